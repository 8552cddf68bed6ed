package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	w := zip.NewWriter(f)
	for name, content := range entries {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %q: %v", name, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %q: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return p
}

func TestReaderAccess(t *testing.T) {
	p := writeZip(t, map[string]string{
		"META-INF/container.xml": "<container/>",
		"OEBPS/content.opf":      "<package/>",
		"OEBPS/ch1.xhtml":        "<html/>",
	})
	r, err := OpenReader(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	if !r.Exists("META-INF/container.xml") {
		t.Error("container.xml not found")
	}
	if r.Exists("OEBPS/missing.xhtml") {
		t.Error("phantom entry reported present")
	}
	data, err := r.ReadAll("OEBPS/ch1.xhtml")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "<html/>" {
		t.Errorf("content = %q", data)
	}
	if got := r.Size("OEBPS/ch1.xhtml"); got != uint64(len("<html/>")) {
		t.Errorf("size = %d", got)
	}
	if got := r.Size("nope"); got != 0 {
		t.Errorf("missing size = %d, want 0", got)
	}
	if names := r.Names(); len(names) != 3 {
		t.Errorf("names = %v", names)
	}
}

func TestReaderCleansLookupPaths(t *testing.T) {
	p := writeZip(t, map[string]string{"OEBPS/ch1.xhtml": "x"})
	r, err := OpenReader(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	if !r.Exists("OEBPS/./ch1.xhtml") {
		t.Error("dot segment lookup failed")
	}
	if _, err := r.ReadAll("OEBPS//ch1.xhtml"); err != nil {
		t.Errorf("double slash lookup: %v", err)
	}
}

func TestReaderRejectsTraversal(t *testing.T) {
	p := writeZip(t, map[string]string{"../evil.txt": "x"})
	if _, err := OpenReader(p); err == nil {
		t.Fatal("traversal entry accepted")
	}
}

func TestReaderRejectsAbsolute(t *testing.T) {
	p := writeZip(t, map[string]string{"/etc/passwd": "x"})
	if _, err := OpenReader(p); err == nil {
		t.Fatal("absolute entry accepted")
	}
}

func TestReaderMissingEntry(t *testing.T) {
	p := writeZip(t, map[string]string{"a.txt": "x"})
	r, err := OpenReader(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	if _, err := r.Open("b.txt"); err == nil {
		t.Fatal("expected error for missing entry")
	}
}

func TestOpenReaderInvalid(t *testing.T) {
	if _, err := OpenReader(filepath.Join(t.TempDir(), "missing.zip")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := filepath.Join(t.TempDir(), "bad.zip")
	if err := os.WriteFile(bad, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenReader(bad); err == nil {
		t.Error("expected error for invalid zip")
	}
}
