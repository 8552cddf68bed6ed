// Package css resolves the subset of CSS that affects text layout on a
// monochrome page: alignment, font emphasis and vertical spacing. Everything
// else a stylesheet may contain is parsed and dropped.
package css

import (
	"strconv"
	"strings"
	"unicode"

	"inkpag/layout"
)

// Value is one parsed property value.
type Value struct {
	Raw     string  // original text with whitespace collapsed
	Keyword string  // lowercase identifier for keyword values
	Value   float64 // numeric part for dimensions and numbers
	Unit    string  // lowercase unit for dimensions, "%" for percentages
}

// Pixels converts a dimension to device pixels. emPx is the current font
// size used for em and rem values. Unitless numbers are taken as pixels.
func (v Value) Pixels(emPx int) int {
	switch v.Unit {
	case "", "px":
		return int(v.Value + 0.5)
	case "em", "rem":
		return int(v.Value*float64(emPx) + 0.5)
	case "pt":
		return int(v.Value*96/72 + 0.5)
	case "%":
		return int(v.Value*float64(emPx)/100 + 0.5)
	}
	return 0
}

// Props is a set of declarations for one element, keyed by property name.
type Props map[string]Value

// Merge returns a copy of p with o's properties layered on top.
func (p Props) Merge(o Props) Props {
	if len(o) == 0 {
		return p
	}
	out := make(Props, len(p)+len(o))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Hidden reports display:none.
func (p Props) Hidden() bool {
	return p["display"].Keyword == "none"
}

// Alignment returns the text-align value if one is declared.
func (p Props) Alignment() (layout.Alignment, bool) {
	v, ok := p["text-align"]
	if !ok {
		return layout.AlignNone, false
	}
	a, err := layout.ParseAlignment(v.Keyword)
	if err != nil {
		return layout.AlignNone, false
	}
	return a, true
}

// FontOverrides reports which font style flags the declarations set and
// which they explicitly clear.
func (p Props) FontOverrides() (set, clear layout.FontStyle) {
	if v, ok := p["font-weight"]; ok {
		switch {
		case v.Keyword == "bold" || v.Keyword == "bolder" || v.Value >= 600:
			set |= layout.Bold
		case v.Keyword == "normal" || v.Keyword == "lighter" || (v.Value > 0 && v.Value < 600):
			clear |= layout.Bold
		}
	}
	if v, ok := p["font-style"]; ok {
		switch v.Keyword {
		case "italic", "oblique":
			set |= layout.Italic
		case "normal":
			clear |= layout.Italic
		}
	}
	if v, ok := p["text-decoration"]; ok {
		switch {
		case strings.Contains(v.Keyword, "underline") || strings.Contains(v.Raw, "underline"):
			set |= layout.Underline
		case v.Keyword == "none":
			clear |= layout.Underline
		}
	}
	return set, clear
}

// ApplyToBlock layers the declarations onto a block style. emPx scales
// relative units.
func (p Props) ApplyToBlock(b *layout.BlockStyle, emPx int) {
	if v, ok := p["margin"]; ok {
		if top, right, bottom, left, ok := expandBoxShorthand(v); ok {
			b.MarginTop = top.Pixels(emPx)
			b.MarginBottom = bottom.Pixels(emPx)
			b.LeftInset = left.Pixels(emPx)
			b.RightInset = right.Pixels(emPx)
		}
	}
	if a, ok := p.Alignment(); ok {
		b.Alignment = a
		b.AlignSet = true
	}
	if v, ok := p["margin-top"]; ok {
		b.MarginTop = v.Pixels(emPx)
	}
	if v, ok := p["margin-bottom"]; ok {
		b.MarginBottom = v.Pixels(emPx)
	}
	if v, ok := p["padding-top"]; ok {
		b.PaddingTop = v.Pixels(emPx)
	}
	if v, ok := p["padding-bottom"]; ok {
		b.PaddingBottom = v.Pixels(emPx)
	}
	if v, ok := p["margin-left"]; ok {
		b.LeftInset = v.Pixels(emPx)
	}
	if v, ok := p["margin-right"]; ok {
		b.RightInset = v.Pixels(emPx)
	}
	if v, ok := p["padding-left"]; ok {
		b.LeftInset += v.Pixels(emPx)
	}
	if v, ok := p["padding-right"]; ok {
		b.RightInset += v.Pixels(emPx)
	}
}

// expandBoxShorthand splits a 1-4 component box value in CSS order.
func expandBoxShorthand(v Value) (top, right, bottom, left Value, ok bool) {
	parts := strings.Fields(v.Raw)
	vals := make([]Value, 0, 4)
	for _, part := range parts {
		c, err := parseComponent(part)
		if err != nil {
			return top, right, bottom, left, false
		}
		vals = append(vals, c)
	}
	switch len(vals) {
	case 1:
		return vals[0], vals[0], vals[0], vals[0], true
	case 2:
		return vals[0], vals[1], vals[0], vals[1], true
	case 3:
		return vals[0], vals[1], vals[2], vals[1], true
	case 4:
		return vals[0], vals[1], vals[2], vals[3], true
	}
	return top, right, bottom, left, false
}

func parseComponent(s string) (Value, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "auto" {
		// auto contributes no spacing
		return Value{Raw: s, Keyword: s}, nil
	}
	numEnd := 0
	for i, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == '-' || r == '+' {
			numEnd = i + 1
		} else {
			break
		}
	}
	num, err := strconv.ParseFloat(s[:numEnd], 64)
	if err != nil {
		return Value{}, err
	}
	return Value{Raw: s, Value: num, Unit: s[numEnd:]}, nil
}

// Selector is the supported subset: an optional element name and an
// optional single class.
type Selector struct {
	Raw     string
	Element string
	Class   string
}

// Specificity orders matching rules: element < class < element.class.
func (s Selector) Specificity() int {
	n := 0
	if s.Element != "" {
		n++
	}
	if s.Class != "" {
		n += 2
	}
	return n
}

func (s Selector) matches(element string, classes []string) bool {
	if s.Element == "" && s.Class == "" {
		return false
	}
	if s.Element != "" && s.Element != element {
		return false
	}
	if s.Class != "" {
		for _, c := range classes {
			if c == s.Class {
				return true
			}
		}
		return false
	}
	return true
}

// Rule is one selector with its declarations.
type Rule struct {
	Selector Selector
	Props    Props
}

// Stylesheet is a parsed sheet reduced to the supported rule subset.
// Warnings record constructs the parser saw and dropped.
type Stylesheet struct {
	Rules    []Rule
	Warnings []string
}

// Match merges the declarations of every rule matching the element, lowest
// specificity first, source order within equal specificity.
func (s *Stylesheet) Match(element string, classes []string) Props {
	if s == nil {
		return nil
	}
	var out Props
	for spec := 1; spec <= 3; spec++ {
		for _, r := range s.Rules {
			if r.Selector.Specificity() != spec || !r.Selector.matches(element, classes) {
				continue
			}
			out = out.Merge(r.Props)
		}
	}
	return out
}
