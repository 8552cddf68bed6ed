// Package markdown renders CommonMark/GFM documents into paginated output
// through a layout.Sink. The goldmark AST is walked recursively the way the
// page renderer dispatches node kinds: headings centered and bold, code
// blocks preformatted line by line, lists with bullet, number or checkbox
// markers, tables as truncated pipe rows.
package markdown

import (
	"context"
	"runtime"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"inkpag/images"
	"inkpag/layout"
)

const (
	// maxRenderDepth bounds AST recursion; deeper content is dropped with
	// a single warning instead of overflowing the stack.
	maxRenderDepth = 50
	// maxNodeMap bounds the node to page mapping on huge documents.
	maxNodeMap = 100000
	// charWidth approximates one character for blockquote indentation.
	charWidth = 10
	// maxCellRunes truncates table cell text.
	maxCellRunes = 20
	// maxTableCols caps the width of the header separator row.
	maxTableCols = 20
)

// ImageOpener resolves an image reference to its raw encoded bytes.
type ImageOpener func(src string) ([]byte, error)

// Config carries the per-document render parameters.
type Config struct {
	// Alignment is the default paragraph alignment. AlignNone resolves to
	// justified.
	Alignment layout.Alignment
	// LineHeight is the effective line advance in pixels, used for the
	// half-line gaps after headings, code blocks, tables and rules.
	LineHeight int
	// Progress, when set, receives percentages 0..100 as nodes render.
	Progress func(percent int)
}

// Walker renders one Markdown document into a layout.Sink.
type Walker struct {
	sink   layout.Sink
	proc   *images.Processor
	opener ImageOpener
	cfg    Config
	log    *zap.Logger

	src   []byte
	index map[ast.Node]int
	pages []int

	bold       bool
	italic     bool
	listDepth  int
	quoteDepth int
	depth      int
	warned     bool
	visited    int
	lastPct    int

	open  bool
	style layout.BlockStyle
}

// NewWalker creates a walker feeding sink. proc and opener may be nil, in
// which case images degrade to placeholder text.
func NewWalker(sink layout.Sink, proc *images.Processor, opener ImageOpener, cfg Config, log *zap.Logger) *Walker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Walker{
		sink:    sink,
		proc:    proc,
		opener:  opener,
		cfg:     cfg,
		log:     log.Named("markdown"),
		lastPct: -1,
	}
}

// Parse builds the GFM AST for src. The same tree feeds both Run and
// NewNavigation so node indices line up.
func Parse(src []byte) ast.Node {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	return md.Parser().Parse(text.NewReader(src))
}

// Run renders the parsed document into the sink and finishes it. After a
// successful run NodePages reports which page each node started on.
func (w *Walker) Run(ctx context.Context, root ast.Node, src []byte) error {
	w.src = src
	w.index = indexNodes(root)
	n := len(w.index)
	if n > maxNodeMap {
		n = maxNodeMap
	}
	w.pages = make([]int, n)
	w.style = w.paragraphStyle()

	if err := w.renderNode(ctx, root); err != nil {
		return err
	}
	w.closeBlock()
	return w.sink.Finish()
}

// NodePages maps node index (pre-order position in the AST) to the page the
// node started rendering on. Valid after Run.
func (w *Walker) NodePages() []int { return w.pages }

// indexNodes assigns every AST node its pre-order position.
func indexNodes(root ast.Node) map[ast.Node]int {
	index := make(map[ast.Node]int)
	next := 0
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			index[n] = next
			next++
		}
		return ast.WalkContinue, nil
	})
	return index
}

func (w *Walker) renderNode(ctx context.Context, n ast.Node) error {
	if w.depth >= maxRenderDepth {
		if !w.warned {
			w.log.Warn("render depth limit exceeded", zap.Int("limit", maxRenderDepth))
			w.warned = true
		}
		return nil
	}
	w.depth++
	defer func() { w.depth-- }()

	if err := w.recordNode(ctx, n); err != nil {
		return err
	}

	switch node := n.(type) {
	case *ast.Document:
		return w.renderChildren(ctx, node)
	case *ast.Heading:
		return w.renderHeading(ctx, node)
	case *ast.Paragraph:
		return w.renderParagraph(ctx, node)
	case *ast.TextBlock:
		// Tight list item content renders inline in the current block.
		return w.renderChildren(ctx, node)
	case *ast.FencedCodeBlock:
		w.renderCodeLines(codeText(node, w.src))
		return nil
	case *ast.CodeBlock:
		w.renderCodeLines(codeText(node, w.src))
		return nil
	case *ast.List:
		return w.renderList(ctx, node)
	case *ast.ListItem:
		// Reached only for malformed trees; normal items render through
		// renderList with their marker context.
		return w.renderChildren(ctx, node)
	case *ast.Blockquote:
		w.closeBlock()
		w.quoteDepth++
		err := w.renderChildren(ctx, node)
		w.quoteDepth--
		return err
	case *east.Table:
		return w.renderTable(ctx, node)
	case *ast.ThematicBreak:
		w.renderRule()
		return nil
	case *ast.HTMLBlock:
		w.renderHTMLBlock(node)
		return nil
	case *ast.Text:
		w.renderText(node)
		return nil
	case *ast.String:
		w.emitText(string(node.Value))
		return nil
	case *ast.Emphasis:
		return w.renderEmphasis(ctx, node)
	case *east.Strikethrough:
		// No strikethrough rendering on a 1-bit page; the text still shows.
		return w.renderChildren(ctx, node)
	case *ast.Link:
		// Only the link text renders; resolution happens in Navigation.
		return w.renderChildren(ctx, node)
	case *ast.AutoLink:
		w.emitWord(string(node.URL(w.src)), w.fontStyle())
		return nil
	case *ast.Image:
		w.renderImage(node)
		return nil
	case *ast.CodeSpan:
		if txt := plainText(node, w.src); txt != "" {
			w.emitWord("`"+txt+"`", layout.Regular)
		}
		return nil
	case *east.TaskCheckBox:
		if node.IsChecked {
			w.emitWord("[x]", layout.Regular)
		} else {
			w.emitWord("[ ]", layout.Regular)
		}
		return nil
	default:
		return w.renderChildren(ctx, node)
	}
}

func (w *Walker) renderChildren(ctx context.Context, n ast.Node) error {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if err := w.renderNode(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) renderHeading(ctx context.Context, n *ast.Heading) error {
	w.startBlock(w.blockStyle(layout.AlignCenter))
	w.bold = true
	err := w.renderChildren(ctx, n)
	w.bold = false
	w.closeBlock()
	w.halfGap()
	return err
}

func (w *Walker) renderParagraph(ctx context.Context, n *ast.Paragraph) error {
	w.startBlock(w.paragraphStyle())
	if prefix := w.quotePrefix(); prefix != "" {
		w.emitWord(prefix, layout.Regular)
	}
	err := w.renderChildren(ctx, n)
	w.closeBlock()
	return err
}

// renderCodeLines emits code one line per block, left aligned, whole lines
// as single words so internal spacing survives, hyphenation off.
func (w *Walker) renderCodeLines(code string) {
	w.closeBlock()
	prefix := w.quotePrefix()
	for _, line := range strings.Split(strings.TrimSuffix(code, "\n"), "\n") {
		style := w.blockStyle(layout.AlignLeft)
		style.NoHyphenate = true
		w.startBlock(style)
		line = prefix + line
		if line == "" {
			// A space keeps the empty line on the page.
			line = " "
		}
		w.emitWord(line, layout.Regular)
		w.closeBlock()
	}
	w.halfGap()
}

func (w *Walker) renderList(ctx context.Context, n *ast.List) error {
	w.closeBlock()
	w.listDepth++
	defer func() { w.listDepth-- }()

	number := 1
	if n.IsOrdered() && n.Start > 0 {
		number = n.Start
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		item, ok := c.(*ast.ListItem)
		if !ok {
			if err := w.renderNode(ctx, c); err != nil {
				return err
			}
			continue
		}
		if err := w.renderListItem(ctx, item, n.IsOrdered(), number); err != nil {
			return err
		}
		number++
	}
	return nil
}

func (w *Walker) renderListItem(ctx context.Context, item *ast.ListItem, ordered bool, number int) error {
	if err := w.recordNode(ctx, item); err != nil {
		return err
	}
	w.startBlock(w.blockStyle(layout.AlignLeft))
	for i := 1; i < w.listDepth; i++ {
		w.emitWord("  ", layout.Regular)
	}
	switch {
	case itemHasCheckbox(item):
		// The checkbox node renders the marker.
	case ordered:
		w.emitWord(strconv.Itoa(number)+".", layout.Regular)
	default:
		w.emitWord("•", layout.Regular)
	}

	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		switch c.(type) {
		case *ast.Paragraph, *ast.TextBlock:
			// Inline the content so it joins the marker line.
			if err := w.recordNode(ctx, c); err != nil {
				return err
			}
			if err := w.renderChildren(ctx, c); err != nil {
				return err
			}
		case *ast.List:
			w.closeBlock()
			if err := w.renderNode(ctx, c); err != nil {
				return err
			}
		default:
			if err := w.renderNode(ctx, c); err != nil {
				return err
			}
		}
	}
	w.closeBlock()
	return nil
}

func (w *Walker) renderTable(ctx context.Context, n *east.Table) error {
	w.closeBlock()

	colCount := 0
	for row := n.FirstChild(); row != nil; row = row.NextSibling() {
		if cols := row.ChildCount(); cols > colCount {
			colCount = cols
			break
		}
	}
	if colCount == 0 {
		w.startBlock(w.blockStyle(layout.AlignCenter))
		w.emitWord("[Empty table]", layout.Italic)
		w.closeBlock()
		return nil
	}

	for row := n.FirstChild(); row != nil; row = row.NextSibling() {
		if err := w.recordNode(ctx, row); err != nil {
			return err
		}
		_, header := row.(*east.TableHeader)
		w.startBlock(w.blockStyle(layout.AlignLeft))
		col := 0
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			if err := w.recordNode(ctx, cell); err != nil {
				return err
			}
			if col > 0 {
				w.emitWord("|", layout.Regular)
			}
			txt := plainText(cell, w.src)
			if txt == "" {
				txt = " "
			}
			if r := []rune(txt); len(r) > maxCellRunes {
				txt = string(r[:maxCellRunes-3]) + "..."
			}
			style := layout.Regular
			if header {
				style = layout.Bold
			}
			w.emitWord(txt, style)
			col++
		}
		w.closeBlock()

		if header {
			w.startBlock(w.blockStyle(layout.AlignLeft))
			cols := colCount
			if cols > maxTableCols {
				cols = maxTableCols
			}
			w.emitWord(strings.Repeat("-", cols*8), layout.Regular)
			w.closeBlock()
		}
	}

	w.halfGap()
	return nil
}

func (w *Walker) renderRule() {
	w.startBlock(w.blockStyle(layout.AlignCenter))
	w.emitWord(strings.Repeat("-", 40), layout.Regular)
	w.closeBlock()
	w.halfGap()
}

func (w *Walker) renderHTMLBlock(n *ast.HTMLBlock) {
	txt := codeText(n, w.src)
	txt = strings.TrimSpace(txt)
	if txt == "" {
		return
	}
	w.startBlock(w.blockStyle(layout.AlignLeft))
	w.emitWord("[HTML:", layout.Italic)
	if r := []rune(txt); len(r) > 50 {
		w.emitWord(string(r[:50]), layout.Regular)
		w.emitWord("...]", layout.Italic)
	} else {
		w.emitWord(txt, layout.Regular)
		w.emitWord("]", layout.Italic)
	}
	w.closeBlock()
}

func (w *Walker) renderText(n *ast.Text) {
	w.emitText(string(n.Segment.Value(w.src)))
	if n.SoftLineBreak() {
		if w.open {
			w.emitWord(" ", w.fontStyle())
		}
	} else if n.HardLineBreak() {
		w.closeBlock()
		w.startBlock(w.paragraphStyle())
	}
}

func (w *Walker) renderEmphasis(ctx context.Context, n *ast.Emphasis) error {
	if n.Level >= 2 {
		was := w.bold
		w.bold = true
		err := w.renderChildren(ctx, n)
		w.bold = was
		return err
	}
	was := w.italic
	w.italic = true
	err := w.renderChildren(ctx, n)
	w.italic = was
	return err
}

func (w *Walker) renderImage(n *ast.Image) {
	var reqW, reqH int
	if len(n.Title) > 0 {
		reqW, reqH = parseDimensions(string(n.Title))
	}
	alt := strings.TrimSpace(plainText(n, w.src))
	if reqW == 0 && reqH == 0 {
		if stripped, dw, dh, ok := extractAltDimensions(alt); ok {
			alt, reqW, reqH = stripped, dw, dh
		}
	}
	if alt == "" {
		alt = "Image"
	}
	src := sanitizeImageSource(string(n.Destination))

	if src == "" {
		w.emitWord("[Image]", layout.Italic)
		return
	}
	if alt == "Image" {
		if i := strings.LastIndexByte(src, '/'); i >= 0 {
			alt = src[i+1:]
		} else {
			alt = src
		}
	}
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		w.emitWord("[Image: "+alt+"]", layout.Italic)
		return
	}
	if strings.HasPrefix(src, "data:") {
		w.emitWord("[Embedded image]", layout.Italic)
		return
	}
	if w.opener == nil || w.proc == nil {
		w.emitWord("[Image: "+alt+"]", layout.Italic)
		return
	}

	data, err := w.opener(src)
	if err != nil || len(data) == 0 {
		w.log.Warn("unable to read image", zap.String("src", src), zap.Error(err))
		w.startBlock(w.blockStyle(layout.AlignCenter))
		w.emitWord("[Image: "+alt+"]", layout.Italic)
		return
	}
	img, err := w.proc.PrepareBounded(data, reqW, reqH)
	if err != nil {
		w.log.Warn("unable to convert image", zap.String("src", src), zap.Error(err))
		w.startBlock(w.blockStyle(layout.AlignCenter))
		w.emitWord("[Image failed]", layout.Italic)
		return
	}
	w.closeBlock()
	w.sink.AddImage(img)
}

// recordNode notes the page a node starts on and drives progress reporting.
func (w *Walker) recordNode(ctx context.Context, n ast.Node) error {
	if id, ok := w.index[n]; ok && id < len(w.pages) {
		w.pages[id] = w.sink.PageCount()
	}
	w.visited++
	if w.cfg.Progress != nil && len(w.index) > 0 {
		pct := w.visited * 100 / len(w.index)
		if pct > 100 {
			pct = 100
		}
		if pct != w.lastPct {
			w.lastPct = pct
			w.cfg.Progress(pct)
		}
	}
	if w.visited%100 == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		runtime.Gosched()
	}
	return nil
}

// startBlock closes any open block and sets the style for the next one. The
// sink block opens lazily on the first word, so empty blocks never reach the
// page.
func (w *Walker) startBlock(s layout.BlockStyle) {
	w.closeBlock()
	w.style = s
}

func (w *Walker) closeBlock() {
	if w.open {
		w.sink.EndBlock()
		w.open = false
	}
}

func (w *Walker) emitWord(text string, fs layout.FontStyle) {
	if text == "" {
		return
	}
	if !w.open {
		w.sink.StartBlock(w.style, true)
		w.open = true
	}
	w.sink.AddWord(text, fs, false)
}

func (w *Walker) emitText(text string) {
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	}) {
		w.emitWord(word, w.fontStyle())
	}
}

func (w *Walker) halfGap() {
	w.closeBlock()
	if w.cfg.LineHeight > 0 {
		w.sink.AddSpacing(w.cfg.LineHeight / 2)
	}
}

func (w *Walker) fontStyle() layout.FontStyle {
	var s layout.FontStyle
	if w.bold {
		s |= layout.Bold
	}
	if w.italic {
		s |= layout.Italic
	}
	return s
}

func (w *Walker) blockStyle(a layout.Alignment) layout.BlockStyle {
	s := layout.Aligned(a)
	s.LeftInset = w.quoteDepth * 2 * charWidth
	return s
}

func (w *Walker) paragraphStyle() layout.BlockStyle {
	return w.blockStyle(w.cfg.Alignment.Resolve())
}

func (w *Walker) quotePrefix() string {
	return strings.Repeat("> ", w.quoteDepth)
}

func itemHasCheckbox(item ast.Node) bool {
	fc := item.FirstChild()
	if fc == nil {
		return false
	}
	_, ok := fc.FirstChild().(*east.TaskCheckBox)
	return ok
}

// plainText collects the raw text of a node's inline subtree.
func plainText(n ast.Node, src []byte) string {
	var sb strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
		case *ast.String:
			sb.Write(t.Value)
		default:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				walk(c)
			}
		}
	}
	walk(n)
	return sb.String()
}

// codeText joins the raw source lines of a block node.
func codeText(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return sb.String()
}

// parseDimensions reads a "W", "WxH" or "Wx" size token.
func parseDimensions(token string) (wd, ht int) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, 0
	}
	parseInt := func(s string) (int, bool) {
		if s == "" {
			return 0, false
		}
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			return 0, false
		}
		return v, true
	}
	i := strings.IndexAny(token, "xX")
	if i < 0 {
		if v, ok := parseInt(token); ok {
			return v, 0
		}
		return 0, 0
	}
	wv, ok := parseInt(token[:i])
	if !ok {
		return 0, 0
	}
	rest := token[i+1:]
	if rest == "" {
		return wv, 0
	}
	hv, ok := parseInt(rest)
	if !ok {
		return 0, 0
	}
	return wv, hv
}

// extractAltDimensions splits an "alt|WxH" alt text.
func extractAltDimensions(alt string) (stripped string, wd, ht int, ok bool) {
	i := strings.LastIndexByte(alt, '|')
	if i < 0 {
		return "", 0, 0, false
	}
	wd, ht = parseDimensions(alt[i+1:])
	if wd == 0 && ht == 0 {
		return "", 0, 0, false
	}
	return strings.TrimSpace(alt[:i]), wd, ht, true
}

// sanitizeImageSource normalizes a destination: angle brackets stripped,
// query and fragment cut, percent escapes decoded.
func sanitizeImageSource(raw string) string {
	src := strings.TrimSpace(raw)
	if len(src) >= 2 && src[0] == '<' && src[len(src)-1] == '>' {
		src = src[1 : len(src)-1]
	}
	if i := strings.IndexByte(src, '?'); i >= 0 {
		src = src[:i]
	}
	if i := strings.IndexByte(src, '#'); i >= 0 {
		src = src[:i]
	}
	return decodePercent(src)
}

func decodePercent(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi := hexDigit(s[i+1])
			lo := hexDigit(s[i+2])
			if hi >= 0 && lo >= 0 {
				sb.WriteByte(byte(hi<<4 | lo))
				i += 2
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func hexDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}
