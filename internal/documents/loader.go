// Package documents renders the HTML document an embedded game runs from.
package documents

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/kiliankoe/playtutor/internal/catalog"
	"github.com/kiliankoe/playtutor/internal/questions"
)

// Placeholder is replaced with the JSON encoded game props.
const Placeholder = "{{GAME_PROPS}}"

const defaultTemplate = "quiz.html"

//go:embed templates/*.html
var builtin embed.FS

var ErrNoPlaceholder = errors.New("template has no " + Placeholder)

// Loader resolves a game's template, first from an optional directory and then
// from the built-in set.
type Loader struct {
	catalog *catalog.Catalog
	dir     fs.FS
	embed   fs.FS
}

func NewLoader(c *catalog.Catalog, dir string) *Loader {
	sub, _ := fs.Sub(builtin, "templates")
	l := &Loader{catalog: c, embed: sub}
	if dir != "" {
		l.dir = os.DirFS(dir)
	}
	return l
}

// Load fetches the template for props.GameID and fills in the props. A fetch
// is a single attempt.
func (l *Loader) Load(ctx context.Context, props questions.GameProps) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g, err := l.catalog.Get(props.GameID)
	if err != nil {
		return "", fmt.Errorf("load %q: %w", props.GameID, err)
	}
	if props.Name == "" {
		props.Name = g.Title
	}
	name := g.Template
	if name == "" {
		name = defaultTemplate
	}
	tmpl, err := l.read(path.Clean(name))
	if err != nil {
		return "", err
	}
	return Render(tmpl, props)
}

func (l *Loader) read(name string) (string, error) {
	if l.dir != nil {
		b, err := fs.ReadFile(l.dir, name)
		if err == nil {
			return string(b), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read template %s: %w", name, err)
		}
	}
	b, err := fs.ReadFile(l.embed, name)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", name, err)
	}
	return string(b), nil
}

// Render substitutes the first Placeholder in tmpl with props as JSON. The
// encoder escapes <, > and & so the value is safe inside a script element.
func Render(tmpl string, props any) (string, error) {
	if !strings.Contains(tmpl, Placeholder) {
		return "", ErrNoPlaceholder
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return strings.Replace(tmpl, Placeholder, string(b), 1), nil
}
