package layout

import "strings"

// MaxBufferedWords caps how many words a walker may accumulate in one
// ParsedText before it must flush partial lines (lastChunk=false) to bound
// memory on pathologically long paragraphs. This is the caller's contract,
// not an internal limit: ParsedText itself never refuses a word.
const MaxBufferedWords = 750

// Hyphenator knows where a word may be split. A nil Hyphenator disables
// hyphenation.
type Hyphenator interface {
	// BreakPoints returns permissible split positions as ascending byte
	// offsets into word. Offsets never fall inside the first or last two
	// runes.
	BreakPoints(word string) []int
}

// Word is one contiguous run of text with a single style. Continues marks a
// fragment glued to the previous word with no space before it, produced when
// inline tags split a visual word.
type Word struct {
	Text      string
	Style     FontStyle
	Continues bool
}

// PositionedWord is a word placed on a finished line.
type PositionedWord struct {
	Word
	X int16 // pixels from the line origin
}

// TextBlock is one laid out line: words with resolved x advances. It is the
// payload of a page Line element and round-trips through serialization.
type TextBlock struct {
	Words []PositionedWord
}

// Text reconstructs the plain text of the line, inserting spaces at word
// boundaries that are not continuations.
func (b *TextBlock) Text() string {
	var sb strings.Builder
	for i, w := range b.Words {
		if i > 0 && !w.Continues {
			sb.WriteByte(' ')
		}
		sb.WriteString(w.Text)
	}
	return sb.String()
}

// ParsedText accumulates the styled words of one logical paragraph and lays
// them out into lines on demand. It is consumed as lines are extracted; a
// fully laid out ParsedText is empty.
type ParsedText struct {
	words     []Word
	style     BlockStyle
	extraGap  bool
	hyphenate bool
}

// NewParsedText creates an empty paragraph buffer.
func NewParsedText(style BlockStyle, extraGap, hyphenate bool) *ParsedText {
	return &ParsedText{style: style, extraGap: extraGap, hyphenate: hyphenate}
}

// AddWord appends a word. Empty text is ignored.
func (p *ParsedText) AddWord(text string, style FontStyle, continues bool) {
	if text == "" {
		return
	}
	p.words = append(p.words, Word{Text: text, Style: style, Continues: continues})
}

func (p *ParsedText) Empty() bool { return len(p.words) == 0 }

func (p *ParsedText) Len() int { return len(p.words) }

func (p *ParsedText) BlockStyle() BlockStyle { return p.style }

func (p *ParsedText) SetBlockStyle(s BlockStyle) { p.style = s }

// ExtraGap reports whether the paragraph wants the extra half-line gap after
// it.
func (p *ParsedText) ExtraGap() bool { return p.extraGap }

type measuredWord struct {
	Word
	width int
}

// LayoutLines performs greedy line breaking over the buffered words and
// emits one TextBlock per finished line, consuming the source words as it
// goes. Justification distributes leftover pixels into inter-word gaps, left
// to right. When lastChunk is false the trailing partial line is retained
// for a later continuation call instead of being flushed; this is the
// MaxBufferedWords safety valve. There is no backtracking: a width too small
// for any word degenerates to one word per line, never to an error.
func (p *ParsedText) LayoutLines(m Metrics, fontID, avail int, hyph Hyphenator, emit func(*TextBlock), lastChunk bool) {
	if avail <= 0 {
		avail = 1
	}
	spaceW := m.TextWidth(fontID, " ", Regular)
	align := p.effectiveAlignment()

	var cur []measuredWord
	curWidth := 0

	flush := func(lastLine bool) {
		if len(cur) == 0 {
			return
		}
		emit(p.finalizeLine(cur, curWidth, avail, spaceW, align, lastLine))
		cur = cur[:0]
		curWidth = 0
	}

	i := 0
	for i < len(p.words) {
		w := p.words[i]
		width := m.TextWidth(fontID, w.Text, w.Style)

		gap := 0
		if len(cur) > 0 && !w.Continues {
			gap = spaceW
		}

		if len(cur) > 0 && curWidth+gap+width > avail {
			// The word does not fit. Try to hyphenate it into the remaining
			// space before starting a new line.
			if room := avail - curWidth - gap; p.hyphenate && hyph != nil {
				if head, tail, ok := splitHyphenated(m, fontID, hyph, w, room); ok {
					cur = append(cur, measuredWord{Word: head, width: m.TextWidth(fontID, head.Text, head.Style)})
					curWidth += gap + cur[len(cur)-1].width
					p.words[i] = tail
					flush(false)
					continue
				}
			}
			flush(false)
			continue
		}

		if len(cur) == 0 && width > avail && p.hyphenate && hyph != nil {
			// Overlong word on an empty line: peel off as much as fits.
			if head, tail, ok := splitHyphenated(m, fontID, hyph, w, avail); ok {
				hw := m.TextWidth(fontID, head.Text, head.Style)
				emit(p.finalizeLine([]measuredWord{{Word: head, width: hw}}, hw, avail, spaceW, align, false))
				p.words[i] = tail
				continue
			}
		}

		cur = append(cur, measuredWord{Word: w, width: width})
		curWidth += gap + width
		i++
	}

	if lastChunk {
		flush(true)
		p.words = nil
		return
	}

	// Keep the unfinished line for the continuation call.
	remaining := make([]Word, len(cur))
	for j := range cur {
		remaining[j] = cur[j].Word
	}
	p.words = remaining
}

func (p *ParsedText) effectiveAlignment() Alignment {
	if !p.style.AlignSet {
		return AlignJustify
	}
	return p.style.Alignment.Resolve()
}

// finalizeLine computes word x positions for one finished line.
func (p *ParsedText) finalizeLine(words []measuredWord, lineWidth, avail, spaceW int, align Alignment, lastLine bool) *TextBlock {
	gaps := 0
	for j := 1; j < len(words); j++ {
		if !words[j].Continues {
			gaps++
		}
	}

	perGap, remGap := 0, 0
	x := 0
	switch align {
	case AlignJustify:
		// The last line of a paragraph is never stretched.
		if !lastLine && gaps > 0 && lineWidth < avail {
			extra := avail - lineWidth
			perGap = extra / gaps
			remGap = extra % gaps
		}
	case AlignCenter:
		if lineWidth < avail {
			x = (avail - lineWidth) / 2
		}
	case AlignRight:
		if lineWidth < avail {
			x = avail - lineWidth
		}
	}

	out := &TextBlock{Words: make([]PositionedWord, len(words))}
	gapIdx := 0
	for j, w := range words {
		if j > 0 && !w.Continues {
			x += spaceW + perGap
			if gapIdx < remGap {
				x++
			}
			gapIdx++
		}
		out.Words[j] = PositionedWord{Word: w.Word, X: clampInt16(x)}
		x += w.width
	}
	return out
}

// splitHyphenated splits word at the largest break point whose hyphenated
// prefix fits into room pixels. The tail keeps the word's style and starts a
// regular (non continuing) word on the next line.
func splitHyphenated(m Metrics, fontID int, hyph Hyphenator, w Word, room int) (head, tail Word, ok bool) {
	points := hyph.BreakPoints(w.Text)
	best := -1
	for _, bp := range points {
		if bp <= 0 || bp >= len(w.Text) {
			continue
		}
		if m.TextWidth(fontID, w.Text[:bp]+"-", w.Style) <= room {
			best = bp
		}
	}
	if best < 0 {
		return Word{}, Word{}, false
	}
	head = Word{Text: w.Text[:best] + "-", Style: w.Style, Continues: w.Continues}
	tail = Word{Text: w.Text[best:], Style: w.Style}
	return head, tail, true
}

func clampInt16(v int) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}
