package questions

import (
	"regexp"
	"strings"
	"unicode"
)

type Trend string

const (
	TrendSame   Trend = "same"
	TrendHarder Trend = "harder"
	TrendEasier Trend = "easier"
)

const (
	recentWindow = 5
	highAccuracy = 0.8
	lowAccuracy  = 0.4
)

var listMarker = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+`)

// Plan is the adaptive policy derived from prior answers.
type Plan struct {
	Trend          Trend
	RecentAccuracy float64
	Answered       int
	Mastered       []string
	Missed         []string
	Required       []string
	UnmetRequired  []string
}

// BuildPlan summarizes history: accuracy over the most recent answers decides
// the difficulty trend, correctly answered questions must not be reissued and
// required questions already covered by history are dropped from the unmet list.
func BuildPlan(history []HistoryEntry, requiredText string) Plan {
	p := Plan{Trend: TrendSame, Answered: len(history)}

	seen := map[string]bool{}
	for _, h := range history {
		key := normalize(h.Question)
		if key == "" || seen[key+boolKey(h.WasCorrect)] {
			continue
		}
		seen[key+boolKey(h.WasCorrect)] = true
		if h.WasCorrect {
			p.Mastered = append(p.Mastered, h.Question)
		} else {
			p.Missed = append(p.Missed, h.Question)
		}
	}

	if n := len(history); n > 0 {
		recent := history
		if n > recentWindow {
			recent = history[n-recentWindow:]
		}
		correct := 0
		for _, h := range recent {
			if h.WasCorrect {
				correct++
			}
		}
		p.RecentAccuracy = float64(correct) / float64(len(recent))
		switch {
		case p.RecentAccuracy >= highAccuracy:
			p.Trend = TrendHarder
		case p.RecentAccuracy <= lowAccuracy:
			p.Trend = TrendEasier
		}
	}

	p.Required = ParseRequired(requiredText)
	for _, r := range p.Required {
		if !coveredBy(r, history) {
			p.UnmetRequired = append(p.UnmetRequired, r)
		}
	}
	return p
}

// ParseRequired splits free-text required questions into one item per line or
// semicolon, stripping list markers. "None specified" means none.
func ParseRequired(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, "none specified") || strings.EqualFold(text, "none") {
		return nil
	}
	var out []string
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == ';' }) {
		line = strings.TrimSpace(line)
		line = listMarker.ReplaceAllString(line, "")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// IsRequired reports whether question text is one of the required items.
func (p Plan) IsRequired(question string) bool {
	for _, r := range p.Required {
		if sameQuestion(r, question) {
			return true
		}
	}
	return false
}

func (p Plan) isMastered(question string) bool {
	key := normalize(question)
	for _, m := range p.Mastered {
		if normalize(m) == key {
			return true
		}
	}
	return false
}

func coveredBy(required string, history []HistoryEntry) bool {
	for _, h := range history {
		if sameQuestion(required, h.Question) {
			return true
		}
	}
	return false
}

// sameQuestion compares a required item ("Q: 7×8 (A: 56)" style allowed) with
// a question text, ignoring case, spacing and punctuation. One may contain the
// other only as whole tokens, so "5+3" is not part of "15+3".
func sameQuestion(required, question string) bool {
	r := normalize(questionPart(required))
	q := normalize(question)
	if r == "" || q == "" {
		return false
	}
	return r == q || strings.Contains(" "+q+" ", " "+r+" ") || strings.Contains(" "+r+" ", " "+q+" ")
}

var (
	questionPrefix = regexp.MustCompile(`(?i)^\s*q:`)
	answerMarker   = regexp.MustCompile(`(?i)\(a:|\sa:|=>|->`)
)

func questionPart(item string) string {
	s := questionPrefix.ReplaceAllString(strings.TrimSpace(item), "")
	if loc := answerMarker.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	return s
}

const operators = "+-×*/÷=<>"

// normalize lowercases s and splits it into space separated tokens: runs of
// letters and digits, and single operators.
func normalize(s string) string {
	var b strings.Builder
	word := false
	sep := func() {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
	}
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !word {
				sep()
			}
			b.WriteRune(r)
			word = true
		case strings.ContainsRune(operators, r):
			sep()
			b.WriteRune(r)
			word = false
		default:
			word = false
		}
	}
	return b.String()
}

func boolKey(b bool) string {
	if b {
		return "|1"
	}
	return "|0"
}
