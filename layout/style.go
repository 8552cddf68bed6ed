// Package layout holds the pagination data model and the engines that fill
// it: the paragraph line breaker and the page builder. Document walkers
// (htmldoc, markdown) produce words and images, layout turns them into
// fixed-size pages positioned at exact pixel coordinates.
package layout

import "fmt"

// FontStyle is a combinable set of font style flags attached to a word.
type FontStyle uint8

const (
	Regular   FontStyle = 0
	Bold      FontStyle = 1 << 0
	Italic    FontStyle = 1 << 1
	Underline FontStyle = 1 << 2
)

func (s FontStyle) String() string {
	if s == Regular {
		return "regular"
	}
	out := ""
	if s&Bold != 0 {
		out += "bold"
	}
	if s&Italic != 0 {
		if out != "" {
			out += "+"
		}
		out += "italic"
	}
	if s&Underline != 0 {
		if out != "" {
			out += "+"
		}
		out += "underline"
	}
	return out
}

// Alignment selects horizontal placement of laid out lines within a block.
type Alignment uint8

const (
	AlignJustify Alignment = iota
	AlignLeft
	AlignCenter
	AlignRight
	// AlignNone inherits: it resolves to the document default (justify when
	// nothing else applies) at layout time.
	AlignNone
)

func (a Alignment) String() string {
	switch a {
	case AlignJustify:
		return "justify"
	case AlignLeft:
		return "left"
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	case AlignNone:
		return "none"
	}
	return fmt.Sprintf("alignment(%d)", uint8(a))
}

// ParseAlignment converts a configuration string into an Alignment.
func ParseAlignment(s string) (Alignment, error) {
	switch s {
	case "justify":
		return AlignJustify, nil
	case "left":
		return AlignLeft, nil
	case "center":
		return AlignCenter, nil
	case "right":
		return AlignRight, nil
	case "none", "":
		return AlignNone, nil
	}
	return AlignNone, fmt.Errorf("unknown alignment %q", s)
}

// Resolve maps the inheriting None sentinel to the effective default.
func (a Alignment) Resolve() Alignment {
	if a == AlignNone {
		return AlignJustify
	}
	return a
}

// BlockStyle carries the paragraph level styling subset: alignment plus
// vertical spacing and horizontal insets, all in pixels. The zero value is a
// style that defines nothing and inherits everything.
type BlockStyle struct {
	Alignment Alignment
	AlignSet  bool

	MarginTop     int
	MarginBottom  int
	PaddingTop    int
	PaddingBottom int
	LeftInset     int
	RightInset    int

	// NoHyphenate keeps words whole even when the document enables
	// hyphenation, used for code and other preformatted blocks.
	NoHyphenate bool
}

// CenterAligned is the style used for headings, captions and placeholders.
func CenterAligned() BlockStyle {
	return BlockStyle{Alignment: AlignCenter, AlignSet: true}
}

// LeftAligned is the style used for preformatted and code content.
func LeftAligned() BlockStyle {
	return BlockStyle{Alignment: AlignLeft, AlignSet: true}
}

// Aligned returns a style that only sets the alignment.
func Aligned(a Alignment) BlockStyle {
	return BlockStyle{Alignment: a, AlignSet: true}
}

// Combine merges override on top of s: explicitly set fields of the override
// win, everything else is kept from the base. Spacing fields treat non-zero
// as explicitly set.
func (s BlockStyle) Combine(override BlockStyle) BlockStyle {
	out := s
	if override.AlignSet {
		out.Alignment = override.Alignment
		out.AlignSet = true
	}
	if override.MarginTop != 0 {
		out.MarginTop = override.MarginTop
	}
	if override.MarginBottom != 0 {
		out.MarginBottom = override.MarginBottom
	}
	if override.PaddingTop != 0 {
		out.PaddingTop = override.PaddingTop
	}
	if override.PaddingBottom != 0 {
		out.PaddingBottom = override.PaddingBottom
	}
	if override.LeftInset != 0 {
		out.LeftInset = override.LeftInset
	}
	if override.RightInset != 0 {
		out.RightInset = override.RightInset
	}
	if override.NoHyphenate {
		out.NoHyphenate = true
	}
	return out
}

// HorizontalInset is the total width unavailable to text on this block.
func (s BlockStyle) HorizontalInset() int {
	return s.LeftInset + s.RightInset
}

// TopSpacing is the vertical gap applied before the first line of the block.
func (s BlockStyle) TopSpacing() int {
	out := 0
	if s.MarginTop > 0 {
		out += s.MarginTop
	}
	if s.PaddingTop > 0 {
		out += s.PaddingTop
	}
	return out
}

// BottomSpacing is the vertical gap applied after the last line of the block.
func (s BlockStyle) BottomSpacing() int {
	out := 0
	if s.MarginBottom > 0 {
		out += s.MarginBottom
	}
	if s.PaddingBottom > 0 {
		out += s.PaddingBottom
	}
	return out
}
