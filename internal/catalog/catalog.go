// Package catalog holds the static set of games a learner can be offered.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

//go:embed games.yaml
var builtin []byte

var ErrGameNotFound = errors.New("game not found")

// GameDescriptor describes one playable game. Descriptors are immutable once
// the catalog is loaded.
type GameDescriptor struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Styles      []string `yaml:"styles" json:"styles"`
	Topics      []string `yaml:"topics" json:"topics"`
	Levels      []string `yaml:"levels" json:"levels"`
	Description string   `yaml:"description" json:"description"`
	Template    string   `yaml:"template" json:"-"`
}

// SupportsStyle reports whether style is one of the game's art styles,
// ignoring case.
func (d GameDescriptor) SupportsStyle(style string) bool {
	for _, s := range d.Styles {
		if strings.EqualFold(s, style) {
			return true
		}
	}
	return false
}

// Catalog is read-only after Load and safe for concurrent readers.
type Catalog struct {
	games []GameDescriptor
	index map[string]int
}

type file struct {
	Games []GameDescriptor `yaml:"games"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Load(builtin)
}

// LoadFile reads a catalog from path, or the embedded one when path is empty.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Load(data)
}

func Load(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Games) == 0 {
		return nil, errors.New("catalog has no games")
	}
	return New(f.Games)
}

// New builds a catalog from descriptors in the given order. Missing ids are
// derived from the title.
func New(games []GameDescriptor) (*Catalog, error) {
	c := &Catalog{games: make([]GameDescriptor, 0, len(games)), index: make(map[string]int, len(games))}
	for i, g := range games {
		if strings.TrimSpace(g.Title) == "" {
			return nil, fmt.Errorf("game %d: missing title", i)
		}
		if len(g.Styles) == 0 {
			return nil, fmt.Errorf("game %q: no styles", g.Title)
		}
		if g.ID == "" {
			g.ID = slug.Make(g.Title)
		}
		if _, dup := c.index[g.ID]; dup {
			return nil, fmt.Errorf("game %q: duplicate id", g.ID)
		}
		c.index[g.ID] = len(c.games)
		c.games = append(c.games, g)
	}
	return c, nil
}

func (c *Catalog) Get(id string) (GameDescriptor, error) {
	i, ok := c.index[id]
	if !ok {
		return GameDescriptor{}, ErrGameNotFound
	}
	return c.games[i], nil
}

// Index returns the catalog position of id, or -1.
func (c *Catalog) Index(id string) int {
	if i, ok := c.index[id]; ok {
		return i
	}
	return -1
}

// All returns a copy of the descriptors in catalog order.
func (c *Catalog) All() []GameDescriptor {
	out := make([]GameDescriptor, len(c.games))
	copy(out, c.games)
	return out
}

func (c *Catalog) Len() int { return len(c.games) }
