package markdown

import (
	"strings"

	"github.com/gosimple/slug"
	"github.com/yuin/goldmark/ast"
)

// TocEntry is one heading in the document outline.
type TocEntry struct {
	Level     int
	Title     string
	NodeIndex int
	Page      int
}

// LinkEntry is one link or image reference found in the document.
type LinkEntry struct {
	Text      string
	Href      string
	Internal  bool
	IsImage   bool
	NodeIndex int
}

// Navigation answers outline and link queries for a parsed document. Build it
// from the same AST the walker rendered so node indices agree, then feed it
// the walker's NodePages via UpdatePages.
type Navigation struct {
	toc   []TocEntry
	links []LinkEntry
}

// NewNavigation scans the document for headings and links.
func NewNavigation(root ast.Node, src []byte) *Navigation {
	nav := &Navigation{}
	index := indexNodes(root)
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			nav.toc = append(nav.toc, TocEntry{
				Level:     node.Level,
				Title:     strings.TrimSpace(plainText(node, src)),
				NodeIndex: index[n],
			})
		case *ast.Link:
			href := string(node.Destination)
			nav.links = append(nav.links, LinkEntry{
				Text:      strings.TrimSpace(plainText(node, src)),
				Href:      href,
				Internal:  isInternalLink(href),
				NodeIndex: index[n],
			})
		case *ast.AutoLink:
			href := string(node.URL(src))
			nav.links = append(nav.links, LinkEntry{
				Text:      href,
				Href:      href,
				Internal:  isInternalLink(href),
				NodeIndex: index[n],
			})
		case *ast.Image:
			href := string(node.Destination)
			nav.links = append(nav.links, LinkEntry{
				Text:      strings.TrimSpace(plainText(node, src)),
				Href:      href,
				Internal:  isInternalLink(href),
				IsImage:   true,
				NodeIndex: index[n],
			})
		}
		return ast.WalkContinue, nil
	})
	return nav
}

// UpdatePages assigns a page number to each outline entry from a node index
// to page mapping.
func (nav *Navigation) UpdatePages(pages []int) {
	for i := range nav.toc {
		if id := nav.toc[i].NodeIndex; id < len(pages) {
			nav.toc[i].Page = pages[id]
		}
	}
}

// TOC returns the document outline in order.
func (nav *Navigation) TOC() []TocEntry { return nav.toc }

// Links returns every link and image reference in order.
func (nav *Navigation) Links() []LinkEntry { return nav.links }

// InternalLinkCount reports how many links target the document itself.
func (nav *Navigation) InternalLinkCount() int {
	n := 0
	for _, l := range nav.links {
		if l.Internal && !l.IsImage {
			n++
		}
	}
	return n
}

// NextHeading returns the first heading after the given page, or nil.
func (nav *Navigation) NextHeading(page int) *TocEntry {
	return nav.nextMatching(page, 0)
}

// NextHeadingAtLevel returns the first heading of the given level after page.
func (nav *Navigation) NextHeadingAtLevel(page, level int) *TocEntry {
	return nav.nextMatching(page, level)
}

func (nav *Navigation) nextMatching(page, level int) *TocEntry {
	for i := range nav.toc {
		e := &nav.toc[i]
		if e.Page > page && (level == 0 || e.Level == level) {
			return e
		}
	}
	return nil
}

// PrevHeading returns the last heading before the given page, or nil.
func (nav *Navigation) PrevHeading(page int) *TocEntry {
	return nav.prevMatching(page, 0)
}

// PrevHeadingAtLevel returns the last heading of the given level before page.
func (nav *Navigation) PrevHeadingAtLevel(page, level int) *TocEntry {
	return nav.prevMatching(page, level)
}

func (nav *Navigation) prevMatching(page, level int) *TocEntry {
	for i := len(nav.toc) - 1; i >= 0; i-- {
		e := &nav.toc[i]
		if e.Page < page && (level == 0 || e.Level == level) {
			return e
		}
	}
	return nil
}

// ResolveLink matches an internal "#fragment" href against the slugged
// outline titles and returns the target heading.
func (nav *Navigation) ResolveLink(href string) (*TocEntry, bool) {
	if !strings.HasPrefix(href, "#") {
		return nil, false
	}
	fragment := strings.TrimPrefix(href, "#")
	if fragment == "" {
		return nil, false
	}
	want := slug.Make(fragment)
	for i := range nav.toc {
		if slug.Make(nav.toc[i].Title) == want {
			return &nav.toc[i], true
		}
	}
	return nil, false
}

// isInternalLink reports whether href points inside the document. Scheme
// prefixed and protocol relative targets are external.
func isInternalLink(href string) bool {
	if href == "" {
		return false
	}
	if strings.Contains(href, "://") {
		return false
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"mailto:", "tel:", "data:", "javascript:"} {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	return true
}
