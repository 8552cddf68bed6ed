// Package htmldoc walks XHTML chapter content and streams styled words,
// block boundaries and images into a layout.Sink. The walker is a streaming
// tokenizer pass: it never builds a DOM, so arbitrarily large chapters run in
// bounded memory.
package htmldoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"inkpag/css"
	"inkpag/images"
	"inkpag/layout"
)

// maxWordSize bounds the word accumulation buffer. Longer runs are cut and
// emitted as separate words.
const maxWordSize = 64

// noDepth is the inactive value for depth sentinels.
const noDepth = math.MaxInt

// ImageOpener resolves an image src reference from the document to its raw
// encoded bytes. Implementations resolve relative paths against the chapter
// location.
type ImageOpener func(src string) ([]byte, error)

// Config carries the per-document walk parameters.
type Config struct {
	// Alignment is the default paragraph alignment. AlignNone resolves to
	// justified.
	Alignment layout.Alignment
	// EmSize is the pixel size of 1em for CSS lengths. Zero defaults to 16.
	EmSize int
	// Sheet is an optional pre-parsed stylesheet, typically from CSS files
	// linked by the chapter. Rules from <style> elements in the document
	// are merged on top of it.
	Sheet *css.Stylesheet
}

// styleEntry is one level of the inline style stack. Entries are pushed when
// an element changes font styling (via CSS or a legacy tag) and popped when
// it closes. legacy flags always win over CSS clears below them in the
// stack, matching the tag-over-declaration precedence of the renderer this
// walker feeds.
type styleEntry struct {
	depth      int
	set, clear layout.FontStyle
	legacy     layout.FontStyle
}

// Walker drives a layout.Sink from a single XHTML document.
type Walker struct {
	sink   layout.Sink
	parser *css.Parser
	proc   *images.Processor
	opener ImageOpener
	cfg    Config
	log    *zap.Logger

	depth      int
	skipUntil  int
	preUntil   int
	styleUntil int
	styles     []styleEntry
	sheet      *css.Stylesheet
	sheetBuf   bytes.Buffer

	// style is the block style of the current (possibly not yet opened)
	// block. The sink block is opened lazily on the first word so that
	// empty blocks merge their styling into the next one instead of
	// contributing spacing.
	style     layout.BlockStyle
	open      bool
	part      []byte
	continues bool
}

// NewWalker creates a walker feeding sink. proc and opener may be nil, in
// which case every image degrades to its placeholder text.
func NewWalker(sink layout.Sink, proc *images.Processor, opener ImageOpener, cfg Config, log *zap.Logger) *Walker {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.EmSize <= 0 {
		cfg.EmSize = 16
	}
	sheet := &css.Stylesheet{}
	if cfg.Sheet != nil {
		sheet.Rules = append(sheet.Rules, cfg.Sheet.Rules...)
	}
	return &Walker{
		sink:       sink,
		parser:     css.NewParser(log),
		proc:       proc,
		opener:     opener,
		cfg:        cfg,
		log:        log.Named("html"),
		skipUntil:  noDepth,
		preUntil:   noDepth,
		styleUntil: noDepth,
		sheet:      sheet,
		style:      layout.Aligned(cfg.Alignment.Resolve()),
		part:       make([]byte, 0, maxWordSize),
	}
}

// Run tokenizes r to completion, emits every word and image into the sink
// and finishes it. A malformed or unreadable document aborts the walk; the
// sink is not finished in that case so the caller can discard partial
// output.
func (w *Walker) Run(ctx context.Context, r io.Reader) error {
	z := html.NewTokenizer(r)
	for n := 0; ; n++ {
		if n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return fmt.Errorf("tokenizing document: %w", err)
			}
			w.flushPart()
			return w.sink.Finish()
		case html.TextToken:
			w.text(z.Text())
		case html.StartTagToken:
			name, attrs := tagAndAttrs(z)
			w.startElement(name, attrs)
			if voidElement(name) {
				w.endElement(name)
			}
		case html.SelfClosingTagToken:
			name, attrs := tagAndAttrs(z)
			w.startElement(name, attrs)
			w.endElement(name)
		case html.EndTagToken:
			name, _ := z.TagName()
			w.endElement(string(name))
		}
	}
}

func tagAndAttrs(z *html.Tokenizer) (string, map[string]string) {
	name, hasAttr := z.TagName()
	if !hasAttr {
		return string(name), nil
	}
	attrs := make(map[string]string)
	for {
		k, v, more := z.TagAttr()
		attrs[string(k)] = string(v)
		if !more {
			break
		}
	}
	return string(name), attrs
}

func (w *Walker) startElement(name string, attrs map[string]string) {
	// Stylesheets are captured wherever they appear, including inside
	// skipped subtrees like <head>.
	if name == "style" {
		if w.styleUntil > w.depth {
			w.styleUntil = w.depth
		}
		w.depth++
		return
	}

	if w.skipUntil < w.depth {
		w.depth++
		return
	}

	props := w.sheet.Match(name, strings.Fields(attrs["class"]))
	if inline := attrs["style"]; inline != "" {
		props = props.Merge(w.parser.ParseInline(inline))
	}

	if name == "table" {
		// Tables cannot be rendered on the page grid; a visible
		// placeholder beats dropping the content silently.
		w.startBlock(layout.CenterAligned())
		w.emitWord("[Table omitted]", layout.Italic)
		w.skipUntil = w.depth
		w.depth++
		return
	}

	if name == "img" {
		src := attrs["src"]
		alt := attrs["alt"]
		if alt == "" {
			alt = "Image"
		}
		if src == "" {
			w.startBlock(layout.CenterAligned())
			w.styles = append(w.styles, styleEntry{depth: w.depth, legacy: layout.Italic})
			w.depth++
			w.text([]byte("[Image: " + alt + "] "))
			return
		}
		w.processImage(src, alt)
		w.depth++
		return
	}

	if name == "head" || props.Hidden() {
		w.skipUntil = w.depth
		w.depth++
		return
	}

	if attrs["role"] == "doc-pagebreak" || attrs["epub:type"] == "pagebreak" {
		w.skipUntil = w.depth
		w.depth++
		return
	}

	switch {
	case name == "pre":
		w.startBlock(w.blockStyle(layout.LeftAligned(), props))
		if w.preUntil > w.depth {
			w.preUntil = w.depth
		}
	case headerTag(name):
		w.startBlock(w.blockStyle(layout.CenterAligned(), props))
		w.pushStyle(props, layout.Bold)
		w.depth++
		return
	case blockTag(name):
		if name == "br" {
			if len(w.part) > 0 {
				w.flushPart()
			}
			w.startBlock(w.style)
		} else {
			w.startBlock(w.blockStyle(layout.Aligned(w.cfg.Alignment), props))
			if name == "li" {
				w.emitWord("•", layout.Regular)
			}
		}
	case boldTag(name):
		w.pushStyle(props, layout.Bold)
		w.depth++
		return
	case italicTag(name):
		w.pushStyle(props, layout.Italic)
		w.depth++
		return
	}

	w.pushStyle(props, 0)
	w.depth++
}

func (w *Walker) endElement(name string) {
	if name == "style" {
		w.depth--
		if w.styleUntil == w.depth {
			w.styleUntil = noDepth
			w.mergeStyleElement()
		}
		return
	}

	headerOrBlock := headerTag(name) || blockTag(name)
	if len(w.part) > 0 {
		// Words are only flushed when closing an element that ends a
		// block or changes styling. Plain inline closers like </span>
		// leave the buffer so the word continues across the tag.
		styleWillChange := w.hasStyleEntryAt(w.depth - 1)
		isInline := !headerOrBlock && name != "table" && name != "img" && w.depth != 1
		shouldFlush := styleWillChange || headerOrBlock ||
			boldTag(name) || italicTag(name) || underlineTag(name) ||
			name == "table" || name == "img" || w.depth == 1
		if shouldFlush {
			w.flushPart()
			if isInline {
				// The next fragment continues the same visual word.
				w.continues = true
			}
		}
	}

	w.depth--
	if w.skipUntil == w.depth {
		w.skipUntil = noDepth
	}
	if w.preUntil == w.depth {
		w.preUntil = noDepth
	}
	for len(w.styles) > 0 && w.styles[len(w.styles)-1].depth == w.depth {
		w.styles = w.styles[:len(w.styles)-1]
	}
}

func (w *Walker) text(s []byte) {
	if w.styleUntil < w.depth {
		w.sheetBuf.Write(s)
		return
	}
	if w.skipUntil < w.depth {
		return
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\r' || c == '\n' || c == '\t' {
			if w.preUntil < w.depth {
				switch c {
				case '\n':
					w.flushPart()
					if !w.open || w.sink.WordCount() == 0 {
						// Force a blank line.
						w.emitWord(" ", layout.Regular)
					}
					w.startBlock(w.style)
				case '\r':
					// CR is dropped, LF carries the line break.
				default:
					if len(w.part) >= maxWordSize {
						w.flushPart()
					}
					w.part = append(w.part, ' ')
					if c == '\t' && len(w.part) < maxWordSize {
						// Tabs render as two spaces.
						w.part = append(w.part, ' ')
					}
				}
				continue
			}

			w.flushPart()
			// Whitespace is a real word boundary.
			w.continues = false
			continue
		}

		// U+FEFF shows up as a stray BOM in converted chapters.
		if c == 0xef && i+2 < len(s) && s[i+1] == 0xbb && s[i+2] == 0xbf {
			i += 2
			continue
		}

		if len(w.part) >= maxWordSize {
			w.flushPart()
		}
		w.part = append(w.part, c)
	}
}

// startBlock closes the current block if it holds words, or merges the new
// style into it when it is still empty, and resets word continuation.
func (w *Walker) startBlock(s layout.BlockStyle) {
	w.continues = false
	if w.open {
		w.sink.EndBlock()
		w.open = false
		w.style = s
		return
	}
	w.style = w.style.Combine(s)
}

func (w *Walker) emitWord(text string, fs layout.FontStyle) {
	if !w.open {
		w.sink.StartBlock(w.style, true)
		w.open = true
	}
	w.sink.AddWord(text, fs, w.continues)
	w.continues = false
}

func (w *Walker) flushPart() {
	if len(w.part) == 0 {
		return
	}
	w.emitWord(string(w.part), w.effectiveStyle())
	w.part = w.part[:0]
}

// blockStyle layers the element's CSS declarations over its base style.
func (w *Walker) blockStyle(base layout.BlockStyle, props css.Props) layout.BlockStyle {
	props.ApplyToBlock(&base, w.cfg.EmSize)
	return base
}

// pushStyle records the styling contribution of the element entered at the
// current depth. legacy carries the flag implied by the tag itself.
func (w *Walker) pushStyle(props css.Props, legacy layout.FontStyle) {
	set, clear := props.FontOverrides()
	if set == 0 && clear == 0 && legacy == 0 {
		return
	}
	w.styles = append(w.styles, styleEntry{depth: w.depth, set: set, clear: clear, legacy: legacy})
}

// effectiveStyle folds the style stack in push order. Tag-implied flags are
// never cleared by CSS declarations underneath them.
func (w *Walker) effectiveStyle() layout.FontStyle {
	var st, legacy layout.FontStyle
	for _, e := range w.styles {
		st |= e.set
		st &^= e.clear
		legacy |= e.legacy
	}
	return st | legacy
}

func (w *Walker) hasStyleEntryAt(depth int) bool {
	for i := len(w.styles) - 1; i >= 0; i-- {
		if w.styles[i].depth < depth {
			return false
		}
		if w.styles[i].depth == depth {
			return true
		}
	}
	return false
}

func (w *Walker) mergeStyleElement() {
	data := bytes.TrimSpace(w.sheetBuf.Bytes())
	w.sheetBuf.Reset()
	if len(data) == 0 {
		return
	}
	parsed := w.parser.Parse(data, "style element")
	w.sheet.Rules = append(w.sheet.Rules, parsed.Rules...)
	w.sheet.Warnings = append(w.sheet.Warnings, parsed.Warnings...)
}

func (w *Walker) placeholder(text string) {
	w.startBlock(layout.CenterAligned())
	w.emitWord(text, layout.Italic)
}

func (w *Walker) processImage(src, alt string) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		w.log.Debug("remote image not fetched", zap.String("src", src))
		w.placeholder("[Image: " + alt + "]")
		return
	}
	if strings.HasPrefix(src, "data:") {
		w.log.Debug("data URL image not decoded")
		w.placeholder("[Embedded image]")
		return
	}
	if w.opener == nil || w.proc == nil {
		w.placeholder("[Image: " + alt + "]")
		return
	}

	data, err := w.opener(src)
	if err != nil || len(data) == 0 {
		w.log.Warn("unable to read image", zap.String("src", src), zap.Error(err))
		w.placeholder("[Image: " + alt + "]")
		return
	}

	img, err := w.proc.Prepare(data)
	if err != nil {
		w.log.Warn("unable to convert image", zap.String("src", src), zap.Error(err))
		w.placeholder("[Image failed]")
		return
	}

	// Close any pending text so the image lands in stream order.
	if w.open {
		w.sink.EndBlock()
		w.open = false
		w.style = layout.Aligned(w.cfg.Alignment)
	}
	w.sink.AddImage(img)
}

func headerTag(name string) bool {
	switch name {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

func blockTag(name string) bool {
	switch name {
	case "p", "li", "div", "br", "blockquote":
		return true
	}
	return false
}

func boldTag(name string) bool {
	return name == "b" || name == "strong"
}

func italicTag(name string) bool {
	return name == "i" || name == "em" || name == "mark"
}

// underlineTag only participates in word flushing. Underline styling itself
// comes from CSS text-decoration.
func underlineTag(name string) bool {
	return name == "u" || name == "ins"
}

func voidElement(name string) bool {
	switch name {
	case "img", "br", "hr", "meta", "link", "input", "col", "area", "base", "embed", "source", "track", "wbr":
		return true
	}
	return false
}
