package layout

import (
	"fmt"

	"go.uber.org/zap"
)

// Sink receives the styled content stream produced by a document walker.
// Both the HTML and the Markdown walkers drive the same Sink, so everything
// about line breaking, pagination and spacing lives behind this interface
// exactly once.
type Sink interface {
	// StartBlock opens a new paragraph-level block. Any previously open
	// block is closed first.
	StartBlock(style BlockStyle, extraGap bool)
	// AddWord appends a word to the open block. Without an open block a
	// default block is opened implicitly.
	AddWord(text string, style FontStyle, continues bool)
	// AddImage places a pre-scaled raster between blocks.
	AddImage(img *Image)
	// AddSpacing advances the vertical cursor by px between blocks. Any
	// open block is closed first.
	AddSpacing(px int)
	// EndBlock lays out and closes the open block.
	EndBlock()
	// FlushPartial lays out the full lines buffered so far, keeping the
	// trailing partial line for continuation. Walkers call it when
	// WordCount approaches MaxBufferedWords mid-paragraph.
	FlushPartial()
	// WordCount reports how many words are buffered in the open block.
	WordCount() int
	// PageCount reports how many pages have been emitted so far.
	PageCount() int
	// Finish closes any open block, emits the final page and returns the
	// first error encountered anywhere in the stream.
	Finish() error
}

// Geometry fixes the output raster the builder paginates for.
type Geometry struct {
	ViewportWidth  int
	ViewportHeight int
	MarginLeft     int
	MarginRight    int
	MarginTop      int
	MarginBottom   int
}

// TextWidth is the horizontal space available to a line with no insets.
func (g Geometry) TextWidth() int {
	return g.ViewportWidth - g.MarginLeft - g.MarginRight
}

// BuilderOptions are the layout parameters that affect pagination output.
// They are part of the section cache identity: a change to any of them
// invalidates cached pages.
type BuilderOptions struct {
	FontID                int
	LineCompression       float32
	ExtraParagraphSpacing bool
	Hyphenation           bool
}

// Builder is the Sink implementation. It owns the vertical cursor, completes
// pages eagerly as soon as the next line would overflow, and hands every
// finished page to the emit callback. Errors from the callback are sticky:
// the builder goes inert and Finish reports the first one.
type Builder struct {
	m    Metrics
	geom Geometry
	opts BuilderOptions
	hyph Hyphenator
	emit func(*Page) error
	log  *zap.Logger

	cur   *ParsedText
	page  *Page
	nextY int
	pages int
	err   error
}

// NewBuilder creates a Builder paginating into emit. hyph may be nil to
// disable hyphenation regardless of opts.Hyphenation.
func NewBuilder(m Metrics, geom Geometry, opts BuilderOptions, hyph Hyphenator, emit func(*Page) error, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	if !opts.Hyphenation {
		hyph = nil
	}
	return &Builder{
		m:     m,
		geom:  geom,
		opts:  opts,
		hyph:  hyph,
		emit:  emit,
		log:   log.Named("builder"),
		page:  &Page{},
		nextY: geom.MarginTop,
	}
}

// LineHeight is the effective line advance after compression. It never drops
// below one pixel.
func (b *Builder) LineHeight() int {
	lh := b.m.LineHeight(b.opts.FontID)
	if c := b.opts.LineCompression; c > 0 {
		lh = int(float32(lh)*c + 0.5)
	}
	if lh < 1 {
		lh = 1
	}
	return lh
}

// PageCount reports how many pages have been emitted so far.
func (b *Builder) PageCount() int { return b.pages }

func (b *Builder) StartBlock(style BlockStyle, extraGap bool) {
	if b.err != nil {
		return
	}
	if b.cur != nil {
		b.EndBlock()
	}
	b.addVerticalSpace(style.TopSpacing())
	b.cur = NewParsedText(style, extraGap, b.hyph != nil && !style.NoHyphenate)
}

func (b *Builder) AddWord(text string, style FontStyle, continues bool) {
	if b.err != nil {
		return
	}
	if b.cur == nil {
		b.StartBlock(BlockStyle{}, false)
	}
	b.cur.AddWord(text, style, continues)
	if b.cur.Len() >= MaxBufferedWords {
		b.FlushPartial()
	}
}

func (b *Builder) AddImage(img *Image) {
	if b.err != nil || img == nil {
		return
	}
	if b.cur != nil {
		b.EndBlock()
	}
	lineH := b.LineHeight()
	h := int(img.Height)
	if b.nextY > b.geom.MarginTop && b.nextY+h > b.limitY() {
		b.completePage()
	}
	img.X = clampInt16(b.geom.MarginLeft + (b.geom.TextWidth()-int(img.Width))/2)
	img.Y = clampInt16(b.nextY)
	b.page.AddImage(img)
	b.nextY += h + lineH/2
}

func (b *Builder) AddSpacing(px int) {
	if b.err != nil {
		return
	}
	if b.cur != nil {
		b.EndBlock()
	}
	b.addVerticalSpace(px)
}

func (b *Builder) EndBlock() {
	if b.err != nil || b.cur == nil {
		return
	}
	cur := b.cur
	b.layoutChunk(cur, true)
	b.cur = nil
	b.addVerticalSpace(cur.BlockStyle().BottomSpacing())
	if b.opts.ExtraParagraphSpacing && cur.ExtraGap() {
		b.addVerticalSpace(b.LineHeight() / 2)
	}
}

func (b *Builder) FlushPartial() {
	if b.err != nil || b.cur == nil {
		return
	}
	b.layoutChunk(b.cur, false)
}

func (b *Builder) WordCount() int {
	if b.cur == nil {
		return 0
	}
	return b.cur.Len()
}

func (b *Builder) Finish() error {
	if b.cur != nil {
		b.EndBlock()
	}
	if b.err != nil {
		return b.err
	}
	// The final page is emitted even when empty so that every document,
	// including an empty one, has at least one page.
	b.flushPage()
	return b.err
}

func (b *Builder) layoutChunk(p *ParsedText, lastChunk bool) {
	style := p.BlockStyle()
	avail := b.geom.TextWidth() - style.HorizontalInset()
	if avail < 1 {
		avail = 1
	}
	x0 := b.geom.MarginLeft + style.LeftInset
	lineH := b.LineHeight()
	p.LayoutLines(b.m, b.opts.FontID, avail, b.hyph, func(tb *TextBlock) {
		if b.err != nil {
			return
		}
		if b.nextY+lineH > b.limitY() {
			b.completePage()
		}
		b.page.AddLine(&Line{X: clampInt16(x0), Y: clampInt16(b.nextY), Block: *tb})
		b.nextY += lineH
	}, lastChunk)
}

// addVerticalSpace advances the cursor between blocks. Spacing at the top of
// a fresh page is dropped, and trailing spacing never forces an empty page
// by itself: if it runs past the limit the next overflow check starts the
// new page at the margin.
func (b *Builder) addVerticalSpace(px int) {
	if px <= 0 || b.nextY <= b.geom.MarginTop {
		return
	}
	b.nextY += px
}

func (b *Builder) limitY() int {
	return b.geom.ViewportHeight - b.geom.MarginBottom
}

func (b *Builder) completePage() {
	b.flushPage()
}

func (b *Builder) flushPage() {
	if b.err != nil {
		return
	}
	page := b.page
	b.page = &Page{}
	b.nextY = b.geom.MarginTop
	b.pages++
	if err := b.emit(page); err != nil {
		b.err = fmt.Errorf("emitting page %d: %w", b.pages-1, err)
		b.log.Error("page emit failed", zap.Int("page", b.pages-1), zap.Error(err))
	}
}
