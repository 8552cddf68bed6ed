package library

import (
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "library.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTouchAndGet(t *testing.T) {
	s := openStore(t)
	doc := Document{
		Path:      "/books/a.epub",
		Title:     "A",
		Kind:      "epub",
		PageCount: 120,
		BuildID:   "b-1",
	}
	if err := s.Touch(doc); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, found, err := s.Get("/books/a.epub")
	if err != nil || !found {
		t.Fatalf("get: %v found=%v", err, found)
	}
	if got.Title != "A" || got.Kind != "epub" || got.PageCount != 120 || got.BuildID != "b-1" {
		t.Errorf("doc = %+v", got)
	}
	if got.OpenedAt.IsZero() {
		t.Error("opened_at not defaulted")
	}
}

func TestTouchRefreshKeepsPosition(t *testing.T) {
	s := openStore(t)
	if err := s.Touch(Document{Path: "/b.md", Title: "B", PageCount: 10}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPosition("/b.md", 7); err != nil {
		t.Fatalf("set position: %v", err)
	}
	// Re-opening the same document must not reset the saved page.
	if err := s.Touch(Document{Path: "/b.md", Title: "B v2", PageCount: 12}); err != nil {
		t.Fatal(err)
	}
	got, found, err := s.Get("/b.md")
	if err != nil || !found {
		t.Fatalf("get: %v found=%v", err, found)
	}
	if got.LastPage != 7 {
		t.Errorf("last page = %d, want 7", got.LastPage)
	}
	if got.Title != "B v2" || got.PageCount != 12 {
		t.Errorf("refresh lost metadata: %+v", got)
	}
}

func TestRecentOrderAndLimit(t *testing.T) {
	s := openStore(t)
	base := time.Unix(1700000000, 0)
	for i, p := range []string{"/one", "/two", "/three"} {
		err := s.Touch(Document{Path: p, OpenedAt: base.Add(time.Duration(i) * time.Hour)})
		if err != nil {
			t.Fatal(err)
		}
	}
	recent, err := s.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %+v, want 2", recent)
	}
	if recent[0].Path != "/three" || recent[1].Path != "/two" {
		t.Errorf("order = %q, %q", recent[0].Path, recent[1].Path)
	}
}

func TestForget(t *testing.T) {
	s := openStore(t)
	if err := s.Touch(Document{Path: "/gone"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Forget("/gone"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	_, found, err := s.Get("/gone")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("document still present after forget")
	}
	if err := s.Forget("/never"); err != nil {
		t.Errorf("forgetting unknown path: %v", err)
	}
}

func TestSetPositionUnknownPath(t *testing.T) {
	s := openStore(t)
	if err := s.SetPosition("/missing", 3); err != nil {
		t.Errorf("set position on missing row: %v", err)
	}
}
