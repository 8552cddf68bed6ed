package layout

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// fixedMetrics is a deterministic test font: every rune is advance pixels
// wide regardless of style.
type fixedMetrics struct {
	advance int
	height  int
}

func (m fixedMetrics) LineHeight(int) int { return m.height }

func (m fixedMetrics) TextWidth(_ int, s string, _ FontStyle) int {
	return utf8.RuneCountInString(s) * m.advance
}

func collectLines(p *ParsedText, m Metrics, avail int, hyph Hyphenator, lastChunk bool) []*TextBlock {
	var out []*TextBlock
	p.LayoutLines(m, 0, avail, hyph, func(tb *TextBlock) { out = append(out, tb) }, lastChunk)
	return out
}

func TestLayoutLinesGreedyBreaking(t *testing.T) {
	m := fixedMetrics{advance: 1, height: 10}
	p := NewParsedText(BlockStyle{Alignment: AlignLeft, AlignSet: true}, false, false)
	for _, w := range strings.Fields("aaa bb cc dd e") {
		p.AddWord(w, Regular, false)
	}

	lines := collectLines(p, m, 6, nil, true)
	want := []string{"aaa bb", "cc dd", "e"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i, l := range lines {
		if got := l.Text(); got != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got, want[i])
		}
	}
	if !p.Empty() {
		t.Errorf("buffer not drained, %d words left", p.Len())
	}
}

func TestLayoutLinesContinuesGlue(t *testing.T) {
	m := fixedMetrics{advance: 1, height: 10}
	p := NewParsedText(BlockStyle{Alignment: AlignLeft, AlignSet: true}, false, false)
	p.AddWord("Hello", Regular, false)
	p.AddWord("wor", Regular, false)
	p.AddWord("ld", Bold, true)
	p.AddWord("!", Regular, true)

	lines := collectLines(p, m, 40, nil, true)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if got := lines[0].Text(); got != "Hello world!" {
		t.Fatalf("got %q, want %q", got, "Hello world!")
	}
	ws := lines[0].Words
	// "Hello" at 0, "wor" at 6 after one space, "ld" and "!" glued.
	wantX := []int16{0, 6, 9, 11}
	for i, x := range wantX {
		if ws[i].X != x {
			t.Errorf("word %d %q: x = %d, want %d", i, ws[i].Text, ws[i].X, x)
		}
	}
	if ws[2].Style != Bold {
		t.Errorf("glued fragment lost style: got %v", ws[2].Style)
	}
}

func TestLayoutLinesJustification(t *testing.T) {
	m := fixedMetrics{advance: 1, height: 10}
	p := NewParsedText(BlockStyle{}, false, false)
	for _, w := range []string{"a", "b", "c", "dddddddddd"} {
		p.AddWord(w, Regular, false)
	}

	lines := collectLines(p, m, 10, nil, true)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	// First line has 3 one-pixel words and 5 spare pixels over 2 gaps:
	// the first gap gets 3 extra pixels, the second 2.
	ws := lines[0].Words
	wantX := []int16{0, 5, 9}
	for i, x := range wantX {
		if ws[i].X != x {
			t.Errorf("justified word %d: x = %d, want %d", i, ws[i].X, x)
		}
	}
	// The last line of the paragraph is never stretched.
	if got := lines[1].Words[0].X; got != 0 {
		t.Errorf("last line word x = %d, want 0", got)
	}
}

func TestLayoutLinesCenterAndRight(t *testing.T) {
	m := fixedMetrics{advance: 1, height: 10}
	tests := []struct {
		align Alignment
		wantX int16
	}{
		{AlignCenter, 3},
		{AlignRight, 6},
		{AlignLeft, 0},
	}
	for _, tc := range tests {
		p := NewParsedText(BlockStyle{Alignment: tc.align, AlignSet: true}, false, false)
		p.AddWord("abcd", Regular, false)
		lines := collectLines(p, m, 10, nil, true)
		if len(lines) != 1 {
			t.Fatalf("%v: got %d lines, want 1", tc.align, len(lines))
		}
		if got := lines[0].Words[0].X; got != tc.wantX {
			t.Errorf("%v: x = %d, want %d", tc.align, got, tc.wantX)
		}
	}
}

func TestLayoutLinesPartialChunkRetained(t *testing.T) {
	m := fixedMetrics{advance: 1, height: 10}
	p := NewParsedText(BlockStyle{Alignment: AlignLeft, AlignSet: true}, false, false)
	for _, w := range []string{"aaaa", "bbbb", "cccc"} {
		p.AddWord(w, Regular, false)
	}

	// Width 9 fits two words per line; "cccc" remains as the partial line.
	lines := collectLines(p, m, 9, nil, false)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 full line", len(lines))
	}
	if got := lines[0].Text(); got != "aaaa bbbb" {
		t.Fatalf("full line: got %q", got)
	}
	if p.Len() != 1 {
		t.Fatalf("retained words = %d, want 1", p.Len())
	}

	// The continuation call joins the retained word with new input.
	p.AddWord("dddd", Regular, false)
	lines = collectLines(p, m, 9, nil, true)
	if len(lines) != 1 || lines[0].Text() != "cccc dddd" {
		t.Fatalf("continuation: got %v", lines)
	}
	if !p.Empty() {
		t.Errorf("buffer not drained after last chunk")
	}
}

// midpointHyphenator allows a split at every even byte offset.
type midpointHyphenator struct{}

func (midpointHyphenator) BreakPoints(word string) []int {
	var pts []int
	for i := 2; i <= len(word)-2; i += 2 {
		pts = append(pts, i)
	}
	return pts
}

func TestLayoutLinesHyphenation(t *testing.T) {
	m := fixedMetrics{advance: 1, height: 10}
	p := NewParsedText(BlockStyle{Alignment: AlignLeft, AlignSet: true}, true, true)
	p.AddWord("abcdefgh", Regular, false)

	lines := collectLines(p, m, 5, midpointHyphenator{}, true)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if got := lines[0].Text(); got != "abcd-" {
		t.Errorf("head: got %q, want %q", got, "abcd-")
	}
	if got := lines[1].Text(); got != "efgh" {
		t.Errorf("tail: got %q, want %q", got, "efgh")
	}
}

func TestLayoutLinesOverlongWordWithoutHyphenation(t *testing.T) {
	m := fixedMetrics{advance: 1, height: 10}
	p := NewParsedText(BlockStyle{Alignment: AlignLeft, AlignSet: true}, false, false)
	p.AddWord("abcdefghij", Regular, false)
	p.AddWord("x", Regular, false)

	// The overlong word still occupies a line of its own.
	lines := collectLines(p, m, 4, nil, true)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if got := lines[0].Text(); got != "abcdefghij" {
		t.Errorf("got %q", got)
	}
}
