package epub

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

const containerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const packageOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>A Test Book</dc:title>
    <dc:creator>Jane Writer</dc:creator>
    <dc:language>en</dc:language>
    <dc:identifier id="uid">urn:uuid:1234</dc:identifier>
  </metadata>
  <manifest>
    <item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="css" href="style.css" media-type="text/css"/>
    <item id="pic" href="images/pic.png" media-type="image/png" properties="cover-image"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
    <itemref idref="css"/>
    <itemref idref="ch2"/>
    <itemref idref="ghost"/>
  </spine>
</package>`

func writeBook(t *testing.T, entries map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "book.epub")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w := zip.NewWriter(f)
	for name, content := range entries {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("entry %q: %v", name, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write %q: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

func standardBook(t *testing.T) *Book {
	t.Helper()
	p := writeBook(t, map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": containerXML,
		"OEBPS/content.opf":      packageOPF,
		"OEBPS/text/ch1.xhtml":   "<html><body><p>one</p></body></html>",
		"OEBPS/text/ch2.xhtml":   "<html><body><p>two</p></body></html>",
		"OEBPS/style.css":        "p { margin: 0 }",
		"OEBPS/images/pic.png":   "PNGDATA",
	})
	b, err := Open(p, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSpineOrderAndFiltering(t *testing.T) {
	b := standardBook(t)
	ch := b.Chapters()
	if len(ch) != 2 {
		t.Fatalf("chapters = %+v, want 2 document items", ch)
	}
	if ch[0].Path != "OEBPS/text/ch1.xhtml" || ch[1].Path != "OEBPS/text/ch2.xhtml" {
		t.Errorf("paths = %q, %q", ch[0].Path, ch[1].Path)
	}
	if ch[0].ID != "ch1" {
		t.Errorf("id = %q", ch[0].ID)
	}
}

func TestMetadata(t *testing.T) {
	b := standardBook(t)
	m := b.Metadata()
	if m.Title != "A Test Book" || m.Author != "Jane Writer" || m.Language != "en" || m.Identifier != "urn:uuid:1234" {
		t.Errorf("metadata = %+v", m)
	}
}

func TestReadChapter(t *testing.T) {
	b := standardBook(t)
	data, err := b.ReadChapter(1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "<html><body><p>two</p></body></html>" {
		t.Errorf("content = %q", data)
	}
	if _, err := b.ReadChapter(5); err == nil {
		t.Error("out of range chapter read succeeded")
	}
	if sz := b.ChapterSize(0); sz == 0 {
		t.Error("chapter size = 0")
	}
}

func TestImageOpenerResolvesRelative(t *testing.T) {
	b := standardBook(t)
	open := b.ImageOpener(0)
	data, err := open("../images/pic.png")
	if err != nil {
		t.Fatalf("open image: %v", err)
	}
	if string(data) != "PNGDATA" {
		t.Errorf("image = %q", data)
	}
	if _, err := open("missing.png"); err == nil {
		t.Error("missing image opened")
	}
}

func TestCover(t *testing.T) {
	b := standardBook(t)
	data, err := b.Cover()
	if err != nil {
		t.Fatalf("cover: %v", err)
	}
	if string(data) != "PNGDATA" {
		t.Errorf("cover = %q", data)
	}
}

func TestOpenErrors(t *testing.T) {
	t.Run("missing container descriptor", func(t *testing.T) {
		p := writeBook(t, map[string]string{"mimetype": "application/epub+zip"})
		if _, err := Open(p, nil); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("no spine", func(t *testing.T) {
		p := writeBook(t, map[string]string{
			"META-INF/container.xml": containerXML,
			"OEBPS/content.opf":      `<package><manifest/></package>`,
		})
		if _, err := Open(p, nil); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("empty spine", func(t *testing.T) {
		p := writeBook(t, map[string]string{
			"META-INF/container.xml": containerXML,
			"OEBPS/content.opf":      `<package><manifest/><spine/></package>`,
		})
		if _, err := Open(p, nil); err == nil {
			t.Error("expected error")
		}
	})
}

func TestResolveHref(t *testing.T) {
	tests := []struct{ base, href, want string }{
		{"OEBPS", "text/ch1.xhtml", "OEBPS/text/ch1.xhtml"},
		{"OEBPS/text", "../images/p.png", "OEBPS/images/p.png"},
		{"", "ch1.xhtml", "ch1.xhtml"},
		{".", "ch1.xhtml", "ch1.xhtml"},
		{"OEBPS", "ch1.xhtml#frag", "OEBPS/ch1.xhtml"},
		{"OEBPS", " ch1.xhtml ", "OEBPS/ch1.xhtml"},
	}
	for _, tc := range tests {
		if got := resolveHref(tc.base, tc.href); got != tc.want {
			t.Errorf("resolveHref(%q, %q) = %q, want %q", tc.base, tc.href, got, tc.want)
		}
	}
}
