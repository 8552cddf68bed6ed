// Package content ties the document walkers, the page builder and the
// section cache together. A Document is opened by path; its pages come out
// of per-chapter section caches that are validated, rebuilt or repaired as
// needed, so opening an unchanged document a second time never re-paginates.
package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inkpag/config"
	"inkpag/css"
	"inkpag/epub"
	"inkpag/htmldoc"
	"inkpag/images"
	"inkpag/layout"
	"inkpag/markdown"
	"inkpag/section"
	"inkpag/storage"
)

// Kind of a source document, detected from its file extension.
type Kind int

const (
	KindUnknown Kind = iota
	KindEPUB
	KindMarkdown
	KindHTML
)

func (k Kind) String() string {
	switch k {
	case KindEPUB:
		return "epub"
	case KindMarkdown:
		return "markdown"
	case KindHTML:
		return "html"
	}
	return "unknown"
}

// DetectKind classifies a document by extension.
func DetectKind(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		return KindEPUB
	case ".md", ".markdown":
		return KindMarkdown
	case ".html", ".xhtml", ".htm":
		return KindHTML
	}
	return KindUnknown
}

// Service owns everything shared between documents: layout parameters, text
// metrics, the cache store and the image processor.
type Service struct {
	cfg     *config.Config
	store   storage.Store
	metrics layout.Metrics
	hyph    layout.Hyphenator
	proc    *images.Processor
	log     *zap.Logger

	geom  layout.Geometry
	opts  layout.BuilderOptions
	align layout.Alignment
	sheet *css.Stylesheet
}

// NewService validates the layout configuration and prepares a service.
// hyph may be nil to disable hyphenation.
func NewService(cfg *config.Config, store storage.Store, metrics layout.Metrics, hyph layout.Hyphenator, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	align, err := layout.ParseAlignment(cfg.Layout.Alignment)
	if err != nil {
		return nil, err
	}
	sheet, err := loadStylesheet(css.NewParser(log), cfg.Layout.Stylesheet)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		metrics: metrics,
		hyph:    hyph,
		proc:    images.NewProcessor(cfg.Images.MaxWidth, cfg.Images.MaxHeight, log),
		log:     log.Named("content"),
		geom: layout.Geometry{
			ViewportWidth:  cfg.Layout.ViewportWidth,
			ViewportHeight: cfg.Layout.ViewportHeight,
			MarginLeft:     cfg.Layout.Margins.Left,
			MarginRight:    cfg.Layout.Margins.Right,
			MarginTop:      cfg.Layout.Margins.Top,
			MarginBottom:   cfg.Layout.Margins.Bottom,
		},
		opts: layout.BuilderOptions{
			FontID:                cfg.Layout.Font.ID,
			LineCompression:       cfg.Layout.LineCompression,
			ExtraParagraphSpacing: cfg.Layout.ExtraParagraphSpacing,
			Hyphenation:           cfg.Layout.Hyphenation.Enable,
		},
		align: align,
		sheet: sheet,
	}, nil
}

// params is the cache identity for one source with the given content id.
func (s *Service) params(sourceID uint32) section.Params {
	return section.Params{
		FontID:                int32(s.opts.FontID),
		LineCompression:       s.opts.LineCompression,
		ExtraParagraphSpacing: s.opts.ExtraParagraphSpacing,
		ParagraphAlignment:    s.align,
		ViewportWidth:         uint16(s.geom.ViewportWidth),
		ViewportHeight:        uint16(s.geom.ViewportHeight),
		Hyphenation:           s.opts.Hyphenation,
		SourceID:              sourceID,
	}
}

// chapter is one cached section of a document.
type chapter struct {
	name   string
	params section.Params
	pages  int
}

// Document is an open, fully paginated document. Pages are addressed by a
// document-global index spanning all chapters.
type Document struct {
	Path    string
	Kind    Kind
	Title   string
	BuildID string

	svc      *Service
	book     *epub.Book
	chapters []chapter
	total    int
	nav      *markdown.Navigation
}

// Open paginates path, reusing section caches where they are still valid.
// BuildID is non-empty only when at least one section was rebuilt.
func (s *Service) Open(ctx context.Context, path string) (*Document, error) {
	kind := DetectKind(path)
	doc := &Document{
		Path:  path,
		Kind:  kind,
		Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		svc:   s,
	}
	var err error
	switch kind {
	case KindEPUB:
		err = s.openEPUB(ctx, doc)
	case KindMarkdown:
		err = s.openMarkdown(ctx, doc)
	case KindHTML:
		err = s.openHTML(ctx, doc)
	default:
		return nil, fmt.Errorf("unsupported document type %q", filepath.Ext(path))
	}
	if err != nil {
		doc.Close()
		return nil, err
	}
	for _, ch := range doc.chapters {
		doc.total += ch.pages
	}
	s.log.Info("document opened",
		zap.String("path", path),
		zap.Stringer("kind", kind),
		zap.Int("sections", len(doc.chapters)),
		zap.Int("pages", doc.total))
	return doc, nil
}

func (s *Service) openEPUB(ctx context.Context, doc *Document) error {
	book, err := epub.Open(doc.Path, s.log)
	if err != nil {
		return err
	}
	doc.book = book
	if t := book.Metadata().Title; t != "" {
		doc.Title = t
	}
	for i := range book.Chapters() {
		params := s.params(uint32(book.ChapterSize(i)))
		name := storage.SectionName(doc.Path, i)
		idx := i
		ch, err := s.ensureSection(ctx, doc, name, params, func(sink layout.Sink, lineH int) error {
			data, err := book.ReadChapter(idx)
			if err != nil {
				return err
			}
			w := htmldoc.NewWalker(sink, s.proc, htmldoc.ImageOpener(book.ImageOpener(idx)), htmldoc.Config{
				Alignment: s.align,
				EmSize:    int(s.cfg.Layout.Font.SizePx),
				Sheet:     s.sheet,
			}, s.log)
			return w.Run(ctx, strings.NewReader(string(data)))
		})
		if err != nil {
			return fmt.Errorf("chapter %d: %w", i, err)
		}
		doc.chapters = append(doc.chapters, ch)
	}
	return nil
}

func (s *Service) openMarkdown(ctx context.Context, doc *Document) error {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	root := markdown.Parse(data)
	doc.nav = markdown.NewNavigation(root, data)

	params := s.params(section.SourceHash(data))
	name := storage.SectionName(doc.Path, 0)
	ch, err := s.ensureSection(ctx, doc, name, params, func(sink layout.Sink, lineH int) error {
		w := markdown.NewWalker(sink, s.proc, localOpener(doc.Path), markdown.Config{
			Alignment:  s.align,
			LineHeight: lineH,
		}, s.log)
		if err := w.Run(ctx, root, data); err != nil {
			return err
		}
		doc.nav.UpdatePages(w.NodePages())
		return nil
	})
	if err != nil {
		return err
	}
	doc.chapters = append(doc.chapters, ch)
	return nil
}

func (s *Service) openHTML(ctx context.Context, doc *Document) error {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	params := s.params(section.SourceHash(data))
	name := storage.SectionName(doc.Path, 0)
	ch, err := s.ensureSection(ctx, doc, name, params, func(sink layout.Sink, lineH int) error {
		w := htmldoc.NewWalker(sink, s.proc, localOpener(doc.Path), htmldoc.Config{
			Alignment: s.align,
			EmSize:    int(s.cfg.Layout.Font.SizePx),
			Sheet:     s.sheet,
		}, s.log)
		return w.Run(ctx, strings.NewReader(string(data)))
	})
	if err != nil {
		return err
	}
	doc.chapters = append(doc.chapters, ch)
	return nil
}

// ensureSection returns a valid cached section, rebuilding it when the cache
// is missing, stale or corrupt. The build callback streams the document into
// the sink; the effective line height is passed for spacing decisions.
func (s *Service) ensureSection(ctx context.Context, doc *Document, name string, params section.Params, build func(sink layout.Sink, lineH int) error) (chapter, error) {
	if s.store.Exists(name) {
		pages, err := s.openCached(name, params)
		if err == nil {
			return chapter{name: name, params: params, pages: pages}, nil
		}
		if !errors.Is(err, section.ErrStale) && !errors.Is(err, section.ErrCorrupt) {
			return chapter{}, err
		}
		s.log.Info("section cache invalidated", zap.String("name", name), zap.Error(err))
		if err := s.store.Remove(name); err != nil {
			return chapter{}, err
		}
	}

	if doc.BuildID == "" {
		doc.BuildID = uuid.NewString()
	}
	s.log.Info("building section", zap.String("name", name), zap.String("build", doc.BuildID))

	f, err := s.store.Create(name)
	if err != nil {
		return chapter{}, err
	}
	pages, err := s.buildSection(f, params, build)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		// A partial file must never be mistaken for a valid cache.
		if rmErr := s.store.Remove(name); rmErr != nil {
			s.log.Warn("unable to remove partial section", zap.String("name", name), zap.Error(rmErr))
		}
		return chapter{}, err
	}
	return chapter{name: name, params: params, pages: pages}, nil
}

func (s *Service) buildSection(f storage.File, params section.Params, build func(sink layout.Sink, lineH int) error) (int, error) {
	sw, err := section.NewWriter(f, params)
	if err != nil {
		return 0, err
	}
	builder := layout.NewBuilder(s.metrics, s.geom, s.opts, s.hyph, sw.AddPage, s.log)
	if err := build(builder, builder.LineHeight()); err != nil {
		return 0, err
	}
	if err := sw.Finalize(); err != nil {
		return 0, err
	}
	return sw.PageCount(), nil
}

// openCached validates an existing cache entry and reports its page count.
func (s *Service) openCached(name string, params section.Params) (int, error) {
	f, err := s.store.Open(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", section.ErrCorrupt, err)
	}
	defer f.Close()
	sec, err := section.Open(f, params)
	if err != nil {
		return 0, err
	}
	return sec.PageCount(), nil
}

// PageCount is the total number of pages across all chapters.
func (d *Document) PageCount() int { return d.total }

// SectionCount reports how many section caches back the document.
func (d *Document) SectionCount() int { return len(d.chapters) }

// SectionPages reports how many pages section i produced.
func (d *Document) SectionPages(i int) int { return d.chapters[i].pages }

// Page loads the page with the given document-global index. Each lookup
// opens the owning section file briefly; the store lock is never held
// between calls.
func (d *Document) Page(i int) (*layout.Page, error) {
	if i < 0 || i >= d.total {
		return nil, fmt.Errorf("page %d out of range [0, %d)", i, d.total)
	}
	local := i
	for _, ch := range d.chapters {
		if local < ch.pages {
			return d.loadPage(ch, local)
		}
		local -= ch.pages
	}
	// Unreachable while chapter counts sum to total.
	return nil, fmt.Errorf("page %d not covered by any section", i)
}

func (d *Document) loadPage(ch chapter, local int) (*layout.Page, error) {
	f, err := d.svc.store.Open(ch.name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sec, err := section.Open(f, ch.params)
	if err != nil {
		return nil, err
	}
	return sec.Page(local)
}

// Navigation exposes the markdown outline, nil for other kinds.
func (d *Document) Navigation() *markdown.Navigation { return d.nav }

// Book returns the underlying package document, nil for non-EPUB sources.
func (d *Document) Book() *epub.Book { return d.book }

// Close releases the underlying container, if any.
func (d *Document) Close() error {
	if d.book != nil {
		return d.book.Close()
	}
	return nil
}

// ClearCache drops the section caches of the document at path. Section
// names are contiguous, so the scan stops at the first missing entry.
func (s *Service) ClearCache(path string) (int, error) {
	removed := 0
	for i := 0; ; i++ {
		name := storage.SectionName(path, i)
		if !s.store.Exists(name) {
			return removed, nil
		}
		if err := s.store.Remove(name); err != nil {
			return removed, err
		}
		removed++
	}
}

// localOpener resolves image references relative to a document file. Paths
// escaping the document directory are refused.
func localOpener(docPath string) func(src string) ([]byte, error) {
	dir := filepath.Dir(docPath)
	return func(src string) ([]byte, error) {
		p := filepath.Join(dir, filepath.FromSlash(src))
		rel, err := filepath.Rel(dir, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			return nil, fmt.Errorf("image path %q escapes document directory", src)
		}
		return os.ReadFile(p)
	}
}

// loadStylesheet loads an optional user stylesheet for HTML pagination.
func loadStylesheet(parser *css.Parser, path string) (*css.Stylesheet, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stylesheet: %w", err)
	}
	return parser.Parse(data, path), nil
}
