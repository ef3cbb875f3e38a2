// Package matching ranks the game catalog against a free-text description of
// a learning problem and a learner.
package matching

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kiliankoe/playtutor/internal/ai"
	"github.com/kiliankoe/playtutor/internal/catalog"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

const (
	MinScore       = 0.3
	MaxResults     = 2
	DefaultTimeout = 45 * time.Second
)

// MatchResult is one ranked game offer. Lists of results are ordered by
// descending MatchScore.
type MatchResult struct {
	GameID            string  `json:"gameId"`
	SelectedStyle     string  `json:"selectedStyle"`
	QuestionSpec      string  `json:"questionSpec"`
	RequiredQuestions string  `json:"requiredQuestions"`
	MatchScore        float64 `json:"matchScore"`
	Name              string  `json:"name"`
	Message           string  `json:"message"`
}

type Engine struct {
	catalog *catalog.Catalog
	gen     ai.Generator
	timeout time.Duration
	log     zerolog.Logger
}

func NewEngine(c *catalog.Catalog, gen ai.Generator, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{catalog: c, gen: gen, timeout: timeout, log: zlog.Logger}
}

func (e *Engine) SetLogger(l zerolog.Logger) { e.log = l }

func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Match scores every catalog game in a single backend call and returns at most
// MaxResults offers scoring at least MinScore. A failed backend call also
// yields an empty list, so "nothing fits" and "scoring unavailable" look the
// same to callers.
func (e *Engine) Match(ctx context.Context, problemSpec, userSpec string) []MatchResult {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var out struct {
		Results []MatchResult `json:"results"`
	}
	start := time.Now()
	if err := e.gen.GenerateObject(ctx, buildPrompt(e.catalog, problemSpec, userSpec), &out); err != nil {
		e.log.Warn().Err(err).Dur("dur", time.Since(start)).Msg("game scoring failed")
		return []MatchResult{}
	}
	results := Rank(e.catalog, userSpec, out.Results)
	e.log.Info().Int("scored", len(out.Results)).Int("matched", len(results)).Dur("dur", time.Since(start)).Msg("games matched")
	return results
}

// Rank turns raw backend scores into the final offer list: entries for unknown
// or repeated games and scores outside [0,1] are dropped, scores below
// MinScore are filtered, the rest is sorted by score with ties kept in catalog
// order and cut to MaxResults.
func Rank(c *catalog.Catalog, userSpec string, scored []MatchResult) []MatchResult {
	seen := map[string]bool{}
	kept := make([]MatchResult, 0, len(scored))
	for _, r := range scored {
		if c.Index(r.GameID) < 0 || seen[r.GameID] {
			continue
		}
		if !ValidScore(r.MatchScore) {
			continue
		}
		seen[r.GameID] = true
		if r.MatchScore < MinScore {
			continue
		}
		kept = append(kept, r)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].MatchScore != kept[j].MatchScore {
			return kept[i].MatchScore > kept[j].MatchScore
		}
		return c.Index(kept[i].GameID) < c.Index(kept[j].GameID)
	})
	if len(kept) > MaxResults {
		kept = kept[:MaxResults]
	}

	for i := range kept {
		g, _ := c.Get(kept[i].GameID)
		kept[i] = Complete(g, userSpec, kept[i])
	}
	return kept
}

// Complete settles the style of m against what g supports and fills in the
// display name and intro message when they are missing.
func Complete(g catalog.GameDescriptor, userSpec string, m MatchResult) MatchResult {
	m.GameID = g.ID
	m.SelectedStyle = chooseStyle(g, userSpec, m.SelectedStyle)
	if strings.TrimSpace(m.Name) == "" {
		m.Name = g.Title
	}
	if strings.TrimSpace(m.Message) == "" {
		m.Message = fmt.Sprintf("I found a fun game to practice with! Want to play %s?", g.Title)
	}
	m.RequiredQuestions = strings.TrimSpace(m.RequiredQuestions)
	return m
}

// ValidScore reports whether s is a usable match score in [0,1].
func ValidScore(s float64) bool {
	return !math.IsNaN(s) && s >= 0 && s <= 1
}

// chooseStyle prefers a supported style the learner asked for, then the
// backend's pick when the game supports it, then the game's first style. When
// the learner mentions several styles the backend's pick breaks the tie.
func chooseStyle(g catalog.GameDescriptor, userSpec, suggested string) string {
	var backend string
	for _, s := range g.Styles {
		if strings.EqualFold(s, strings.TrimSpace(suggested)) {
			backend = s
		}
	}
	mentioned := mentionedStyles(g.Styles, userSpec)
	for _, s := range mentioned {
		if s == backend {
			return s
		}
	}
	if len(mentioned) > 0 {
		return mentioned[0]
	}
	if backend != "" {
		return backend
	}
	return g.Styles[0]
}

// mentionedStyles returns the styles named in userSpec as whole words,
// singular or plural, in the order they appear there.
func mentionedStyles(styles []string, userSpec string) []string {
	if strings.TrimSpace(userSpec) == "" {
		return nil
	}
	type hit struct {
		style string
		at    int
	}
	var hits []hit
	for _, s := range styles {
		if loc := stylePattern(s).FindStringIndex(userSpec); loc != nil {
			hits = append(hits, hit{s, loc[0]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.style
	}
	return out
}

func stylePattern(style string) *regexp.Regexp {
	stem := strings.ToLower(strings.TrimSpace(style))
	if len(stem) > 3 {
		stem = strings.TrimSuffix(stem, "s")
	}
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(stem) + `(?:s|es)?\b`)
}
