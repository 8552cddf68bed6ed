package section

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"inkpag/layout"
)

func testParams() Params {
	return Params{
		FontID:                2,
		LineCompression:       1.0,
		ExtraParagraphSpacing: true,
		ParagraphAlignment:    layout.AlignJustify,
		ViewportWidth:         480,
		ViewportHeight:        800,
		Hyphenation:           true,
		SourceID:              0xdeadbeef,
	}
}

func testPage(text string, y int16) *layout.Page {
	p := &layout.Page{}
	p.AddLine(&layout.Line{
		X: 10, Y: y,
		Block: layout.TextBlock{Words: []layout.PositionedWord{
			{Word: layout.Word{Text: text, Style: layout.Regular}, X: 0},
		}},
	})
	return p
}

func writeSection(t *testing.T, path string, params Params, pages ...*layout.Page) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	w, err := NewWriter(f, params)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	for _, p := range pages {
		if err := w.AddPage(p); err != nil {
			t.Fatalf("add page: %v", err)
		}
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
}

func TestSectionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ch1.sec")
	writeSection(t, path, testParams(),
		testPage("first", 0), testPage("second", 20), testPage("third", 40))

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	s, err := Open(f, testParams())
	if err != nil {
		t.Fatalf("open section: %v", err)
	}
	if s.PageCount() != 3 {
		t.Fatalf("page count %d, want 3", s.PageCount())
	}
	// Random access in any order.
	for _, tc := range []struct {
		idx  int
		text string
	}{{2, "third"}, {0, "first"}, {1, "second"}} {
		p, err := s.Page(tc.idx)
		if err != nil {
			t.Fatalf("page %d: %v", tc.idx, err)
		}
		line := p.Elements[0].(*layout.Line)
		if got := line.Block.Text(); got != tc.text {
			t.Errorf("page %d text %q, want %q", tc.idx, got, tc.text)
		}
	}
	if _, err := s.Page(3); err == nil {
		t.Error("expected error for out of range page")
	}
	if _, err := s.Page(-1); err == nil {
		t.Error("expected error for negative page")
	}
}

func TestSectionStaleParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ch1.sec")
	writeSection(t, path, testParams(), testPage("p", 0))

	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"font", func(p *Params) { p.FontID = 3 }},
		{"compression", func(p *Params) { p.LineCompression = 0.9 }},
		{"spacing", func(p *Params) { p.ExtraParagraphSpacing = false }},
		{"alignment", func(p *Params) { p.ParagraphAlignment = layout.AlignLeft }},
		{"viewport", func(p *Params) { p.ViewportWidth = 600 }},
		{"hyphenation", func(p *Params) { p.Hyphenation = false }},
		{"source", func(p *Params) { p.SourceID = 1 }},
	}
	for _, tc := range cases {
		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		params := testParams()
		tc.mutate(&params)
		_, err = Open(f, params)
		f.Close()
		if !errors.Is(err, ErrStale) {
			t.Errorf("%s: err = %v, want ErrStale", tc.name, err)
		}
	}
}

func TestSectionCompressionEpsilon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ch1.sec")
	writeSection(t, path, testParams(), testPage("p", 0))

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	params := testParams()
	params.LineCompression += 5e-5 // within tolerance
	if _, err := Open(f, params); err != nil {
		t.Fatalf("epsilon-close compression rejected: %v", err)
	}
}

func TestSectionUnfinalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ch1.sec")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w, err := NewWriter(f, testParams())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.AddPage(testPage("p", 0)); err != nil {
		t.Fatalf("add page: %v", err)
	}
	f.Close() // no Finalize

	rf, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rf.Close()
	if _, err := Open(rf, testParams()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestSectionZeroLUTEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ch1.sec")
	writeSection(t, path, testParams(), testPage("p", 0), testPage("q", 0))

	// Zero out the second lookup table entry.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open rw: %v", err)
	}
	var hdr header
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		t.Fatalf("read header: %v", err)
	}
	if _, err := f.Seek(int64(hdr.LUTOffset)+4, 0); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(0)); err != nil {
		t.Fatalf("patch: %v", err)
	}
	f.Close()

	rf, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rf.Close()
	if _, err := Open(rf, testParams()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestSectionWriterMisuse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ch1.sec")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	w, err := NewWriter(f, testParams())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := w.AddPage(testPage("p", 0)); err == nil {
		t.Error("AddPage after Finalize succeeded")
	}
	if err := w.Finalize(); err == nil {
		t.Error("double Finalize succeeded")
	}
}

func TestSourceHash(t *testing.T) {
	a := SourceHash([]byte("chapter one"))
	if a != SourceHash([]byte("chapter one")) {
		t.Error("hash not deterministic")
	}
	if a == SourceHash([]byte("chapter two")) {
		t.Error("distinct inputs collided")
	}
	// FNV-1a offset basis for empty input.
	if got := SourceHash(nil); got != 2166136261 {
		t.Errorf("empty hash = %d, want offset basis", got)
	}
}
