// Package epub opens EPUB containers and exposes their reading order. The
// container.xml and OPF package documents give the spine; each spine item is
// one chapter paginated on its own.
package epub

import (
	"fmt"
	"path"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"inkpag/archive"
)

const containerPath = "META-INF/container.xml"

// Chapter is one spine item in reading order. Path is the full archive
// entry path, already resolved against the package document directory.
type Chapter struct {
	ID        string
	Path      string
	MediaType string
}

// Metadata carries the package document's Dublin Core basics.
type Metadata struct {
	Title      string
	Author     string
	Language   string
	Identifier string
}

// Book is an open EPUB container.
type Book struct {
	r        *archive.Reader
	opfDir   string
	meta     Metadata
	chapters []Chapter
	cover    string
	log      *zap.Logger
}

// Open opens and indexes an EPUB file. The container is held open until
// Close so chapters and images read lazily.
func Open(name string, log *zap.Logger) (*Book, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r, err := archive.OpenReader(name)
	if err != nil {
		return nil, err
	}
	b := &Book{r: r, log: log.Named("epub")}
	opfPath, err := b.rootfilePath()
	if err != nil {
		r.Close()
		return nil, err
	}
	if err := b.parsePackage(opfPath); err != nil {
		r.Close()
		return nil, err
	}
	if len(b.chapters) == 0 {
		r.Close()
		return nil, fmt.Errorf("epub %q: no readable spine items", name)
	}
	b.log.Debug("book opened",
		zap.String("title", b.meta.Title),
		zap.Int("chapters", len(b.chapters)))
	return b, nil
}

// Close releases the container.
func (b *Book) Close() error { return b.r.Close() }

// Metadata reports the package metadata.
func (b *Book) Metadata() Metadata { return b.meta }

// Chapters lists spine items in reading order.
func (b *Book) Chapters() []Chapter { return b.chapters }

// ReadChapter reads the content of chapter i in full.
func (b *Book) ReadChapter(i int) ([]byte, error) {
	if i < 0 || i >= len(b.chapters) {
		return nil, fmt.Errorf("chapter %d out of range [0, %d)", i, len(b.chapters))
	}
	return b.r.ReadAll(b.chapters[i].Path)
}

// ChapterSize reports the uncompressed size of chapter i, 0 when absent.
func (b *Book) ChapterSize(i int) uint64 {
	if i < 0 || i >= len(b.chapters) {
		return 0
	}
	return b.r.Size(b.chapters[i].Path)
}

// ImageOpener resolves image references relative to chapter i. The returned
// function matches the walker opener signature.
func (b *Book) ImageOpener(i int) func(src string) ([]byte, error) {
	base := ""
	if i >= 0 && i < len(b.chapters) {
		base = path.Dir(b.chapters[i].Path)
	}
	return func(src string) ([]byte, error) {
		return b.r.ReadAll(resolveHref(base, src))
	}
}

// Cover reads the cover image when the manifest declares one.
func (b *Book) Cover() ([]byte, error) {
	if b.cover == "" {
		return nil, fmt.Errorf("no cover image declared")
	}
	return b.r.ReadAll(b.cover)
}

// rootfilePath reads META-INF/container.xml and returns the package
// document path.
func (b *Book) rootfilePath() (string, error) {
	data, err := b.r.ReadAll(containerPath)
	if err != nil {
		return "", fmt.Errorf("reading container descriptor: %w", err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return "", fmt.Errorf("parsing container descriptor: %w", err)
	}
	for _, rf := range elementsByTag(doc.Root(), "rootfile") {
		if p := rf.SelectAttrValue("full-path", ""); p != "" {
			return path.Clean(p), nil
		}
	}
	return "", fmt.Errorf("container descriptor names no rootfile")
}

// parsePackage reads the OPF document: metadata, manifest and spine.
func (b *Book) parsePackage(opfPath string) error {
	data, err := b.r.ReadAll(opfPath)
	if err != nil {
		return fmt.Errorf("reading package document: %w", err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return fmt.Errorf("parsing package document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("package document is empty")
	}
	b.opfDir = path.Dir(opfPath)

	if md := firstByTag(root, "metadata"); md != nil {
		b.meta = Metadata{
			Title:      childText(md, "title"),
			Author:     childText(md, "creator"),
			Language:   childText(md, "language"),
			Identifier: childText(md, "identifier"),
		}
	}

	manifest := map[string]Chapter{}
	if mf := firstByTag(root, "manifest"); mf != nil {
		for _, item := range elementsByTag(mf, "item") {
			id := item.SelectAttrValue("id", "")
			href := item.SelectAttrValue("href", "")
			if id == "" || href == "" {
				continue
			}
			entry := Chapter{
				ID:        id,
				Path:      resolveHref(b.opfDir, href),
				MediaType: item.SelectAttrValue("media-type", ""),
			}
			manifest[id] = entry
			if strings.Contains(item.SelectAttrValue("properties", ""), "cover-image") {
				b.cover = entry.Path
			}
		}
	}

	spine := firstByTag(root, "spine")
	if spine == nil {
		return fmt.Errorf("package document has no spine")
	}
	for _, ref := range elementsByTag(spine, "itemref") {
		idref := ref.SelectAttrValue("idref", "")
		item, ok := manifest[idref]
		if !ok {
			b.log.Warn("spine references unknown manifest item", zap.String("idref", idref))
			continue
		}
		if !isDocumentType(item.MediaType) {
			b.log.Debug("skipping non-document spine item",
				zap.String("idref", idref), zap.String("media-type", item.MediaType))
			continue
		}
		if !b.r.Exists(item.Path) {
			b.log.Warn("spine item missing from container", zap.String("path", item.Path))
			continue
		}
		b.chapters = append(b.chapters, item)
	}
	return nil
}

func isDocumentType(mediaType string) bool {
	switch mediaType {
	case "application/xhtml+xml", "text/html", "application/x-dtbook+xml":
		return true
	}
	return false
}

// resolveHref joins a container-relative href to its base directory.
func resolveHref(base, href string) string {
	href = strings.TrimSpace(href)
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if base == "" || base == "." {
		return path.Clean(href)
	}
	return path.Clean(path.Join(base, href))
}

// elementsByTag collects descendant elements with the given local tag,
// ignoring namespace prefixes.
func elementsByTag(el *etree.Element, tag string) []*etree.Element {
	if el == nil {
		return nil
	}
	var out []*etree.Element
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, c := range e.ChildElements() {
			if c.Tag == tag {
				out = append(out, c)
			}
			walk(c)
		}
	}
	if el.Tag == tag {
		out = append(out, el)
	}
	walk(el)
	return out
}

func firstByTag(el *etree.Element, tag string) *etree.Element {
	found := elementsByTag(el, tag)
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

func childText(el *etree.Element, tag string) string {
	if c := firstByTag(el, tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}
