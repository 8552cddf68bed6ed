// Package fonts provides layout.Metrics implementations: a deterministic
// fixed-advance fallback and an OpenType backed family registry.
package fonts

import "inkpag/layout"

// Fixed is a deterministic fixed-advance metrics implementation used for
// tests and for headless cache builds when no font files are configured.
// Bold adds a single pixel per rune, mirroring the widening of emboldened
// faces.
type Fixed struct {
	Advance int // per-rune advance, pixels
	Height  int // line height, pixels
}

// NewFixed returns fixed metrics with sane defaults for zero values.
func NewFixed(advance, height int) *Fixed {
	if advance <= 0 {
		advance = 8
	}
	if height <= 0 {
		height = 16
	}
	return &Fixed{Advance: advance, Height: height}
}

func (f *Fixed) LineHeight(int) int { return f.Height }

func (f *Fixed) TextWidth(_ int, s string, style layout.FontStyle) int {
	n := 0
	for range s {
		n++
	}
	w := n * f.Advance
	if style&layout.Bold != 0 {
		w += n
	}
	return w
}
