package questions

import (
	"reflect"
	"testing"
)

func entries(results ...bool) []HistoryEntry {
	out := make([]HistoryEntry, len(results))
	for i, ok := range results {
		out[i] = HistoryEntry{Question: string(rune('a' + i)), WasCorrect: ok}
	}
	return out
}

func TestBuildPlanTrend(t *testing.T) {
	cases := []struct {
		name    string
		history []HistoryEntry
		want    Trend
	}{
		{"empty", nil, TrendSame},
		{"all correct", entries(true, true, true, true, true), TrendHarder},
		{"mostly wrong", entries(false, false, true, false), TrendEasier},
		{"middling", entries(true, false, true, false, true, false, true), TrendSame},
		// only the last five answers count
		{"recovered", entries(false, false, false, true, true, true, true, true), TrendHarder},
	}
	for _, tc := range cases {
		if got := BuildPlan(tc.history, "").Trend; got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestBuildPlanMasteredAndMissed(t *testing.T) {
	p := BuildPlan([]HistoryEntry{
		{Question: "5+3", WasCorrect: true},
		{Question: "5 + 3", WasCorrect: true},
		{Question: "7×8", WasCorrect: false},
	}, "")
	if !reflect.DeepEqual(p.Mastered, []string{"5+3"}) {
		t.Fatalf("unexpected mastered list %v", p.Mastered)
	}
	if !reflect.DeepEqual(p.Missed, []string{"7×8"}) {
		t.Fatalf("unexpected missed list %v", p.Missed)
	}
}

func TestParseRequired(t *testing.T) {
	got := ParseRequired("- Q: 7×8 (A: 56)\n2. 9×4; \n* 6×6")
	want := []string{"Q: 7×8 (A: 56)", "9×4", "6×6"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if ParseRequired("None specified") != nil {
		t.Fatal("'None specified' means no required questions")
	}
}

func TestRequiredSatisfiedByHistory(t *testing.T) {
	history := []HistoryEntry{{Question: "What is 7 × 8?", WasCorrect: false}}
	p := BuildPlan(history, "Q: 7×8 (A: 56)\nQ: 9×4 (A: 36)")
	if !reflect.DeepEqual(p.UnmetRequired, []string{"Q: 9×4 (A: 36)"}) {
		t.Fatalf("expected only 9×4 to remain, got %v", p.UnmetRequired)
	}
	if !p.IsRequired("What is 9 × 4?") {
		t.Fatal("9×4 should be recognized as required")
	}
}

func TestRequiredMatchesWholeTokens(t *testing.T) {
	history := []HistoryEntry{{Question: "What is 15+3?", WasCorrect: true}}
	p := BuildPlan(history, "5+3")
	if !reflect.DeepEqual(p.UnmetRequired, []string{"5+3"}) {
		t.Fatalf("15+3 must not cover 5+3, unmet %v", p.UnmetRequired)
	}
	if p.IsRequired("What is 15+3?") {
		t.Fatal("15+3 is not the required 5+3")
	}
	if !p.IsRequired("What is 5 + 3?") {
		t.Fatal("spacing should not matter")
	}
}

func TestRequiredWithNonASCIIText(t *testing.T) {
	history := []HistoryEntry{{Question: "x", WasCorrect: true}}
	p := BuildPlan(history, "ȺȺȺȺȺȺ a: 5\nQ: ÄPFEL zählen (A: 3)")
	want := []string{"ȺȺȺȺȺȺ a: 5", "Q: ÄPFEL zählen (A: 3)"}
	if !reflect.DeepEqual(p.UnmetRequired, want) {
		t.Fatalf("expected %v, got %v", want, p.UnmetRequired)
	}
	if !p.IsRequired("Äpfel zählen") {
		t.Fatal("answer part should be ignored for non-ASCII items")
	}
}
