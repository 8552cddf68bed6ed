package hyphen

import (
	"reflect"
	"strings"
	"testing"

	"golang.org/x/text/language"
)

func newTestHyphenator(t *testing.T, patterns, exceptions string) *Hyphenator {
	t.Helper()
	h := &Hyphenator{language: "test"}
	if err := h.loadPatterns(strings.NewReader(patterns)); err != nil {
		t.Fatalf("loading patterns: %v", err)
	}
	if err := h.loadExceptions(strings.NewReader(exceptions)); err != nil {
		t.Fatalf("loading exceptions: %v", err)
	}
	return h
}

func TestBreakPointsBasicPattern(t *testing.T) {
	h := newTestHyphenator(t, "a1b\n", "")
	tests := []struct {
		word string
		want []int
	}{
		// Breaks inside the first two or last two letters are suppressed.
		{"abab", nil},
		{"ababab", []int{3}},
		// Matching is case-insensitive.
		{"Ababab", []int{3}},
		// Too short to hyphenate at all.
		{"aba", nil},
		{"", nil},
	}
	for _, tc := range tests {
		if got := h.BreakPoints(tc.word); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("BreakPoints(%q) = %v, want %v", tc.word, got, tc.want)
		}
	}
}

func TestBreakPointsExceptions(t *testing.T) {
	h := newTestHyphenator(t, "a1b\n", "ta-ble\npresent\n")
	if got := h.BreakPoints("table"); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("exception word: got %v, want [2]", got)
	}
	// An exception with no hyphens forbids breaking entirely.
	if got := h.BreakPoints("present"); got != nil {
		t.Errorf("unbreakable exception: got %v, want nil", got)
	}
}

func TestBreakPointsCommentsAndBlankLines(t *testing.T) {
	h := newTestHyphenator(t, "% comment\n\na1b\n", "")
	if got := h.BreakPoints("ababab"); !reflect.DeepEqual(got, []int{3}) {
		t.Errorf("got %v, want [3]", got)
	}
}

func TestNilHyphenator(t *testing.T) {
	var h *Hyphenator
	if got := h.BreakPoints("anything"); got != nil {
		t.Errorf("nil hyphenator returned %v", got)
	}
	if h.Language() != "" {
		t.Errorf("nil hyphenator language = %q", h.Language())
	}
}

func TestNewEnglishBuiltin(t *testing.T) {
	h := New(language.English, "", nil)
	if h == nil {
		t.Fatal("no built-in English dictionary")
	}
	if h.Language() != "en-us" {
		t.Fatalf("language = %q, want en-us", h.Language())
	}
	if got, want := h.BreakPoints("hyphenation"), []int{2, 6}; !reflect.DeepEqual(got, want) {
		t.Errorf("BreakPoints(hyphenation) = %v, want %v", got, want)
	}
	// Every break must stay clear of the word edges.
	for _, w := range []string{"pagination", "documents", "reading"} {
		for _, p := range h.BreakPoints(w) {
			if p < 2 || p > len(w)-2 {
				t.Errorf("break at %d in %q violates edge rule", p, w)
			}
		}
	}
}

func TestNewUnknownLanguage(t *testing.T) {
	if h := New(language.Make("zu"), "", nil); h != nil {
		t.Fatalf("got dictionary %q for unsupported language", h.Language())
	}
}

func TestParsePattern(t *testing.T) {
	tests := []struct {
		in       string
		wantPure string
		wantVals []int
	}{
		{"a1b", "ab", []int{1, 0}},
		{".hy2p", ".hyp", []int{0, 0, 2, 0}},
		{"4m1p", "mp", []int{4, 1, 0}},
		{"hen5at", "henat", []int{0, 0, 5, 0, 0}},
	}
	for _, tc := range tests {
		pure, vals := parsePattern(tc.in)
		if pure != tc.wantPure || !reflect.DeepEqual(vals, tc.wantVals) {
			t.Errorf("parsePattern(%q) = %q %v, want %q %v", tc.in, pure, vals, tc.wantPure, tc.wantVals)
		}
	}
}
