package storage

import (
	"io"
	"os"
	"testing"
)

func TestDirStoreRoundTrip(t *testing.T) {
	store, err := NewDirStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	name := SectionName("My Book: Chapter 1", 0)
	f, err := store.Create(name)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.Write([]byte("pages")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !store.Exists(name) {
		t.Fatal("entry missing after create")
	}
	r, err := store.Open(name)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil || string(data) != "pages" {
		t.Fatalf("read back %q (%v)", data, err)
	}

	if err := store.Remove(name); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if store.Exists(name) {
		t.Fatal("entry still present after remove")
	}
	// Removing again is fine.
	if err := store.Remove(name); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestDirStoreRejectsBadNames(t *testing.T) {
	store, err := NewDirStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, name := range []string{"", "../escape.sec", "a/b.sec", ".hidden"} {
		if _, err := store.Create(name); err == nil {
			t.Errorf("create %q succeeded", name)
		}
		if store.Exists(name) {
			t.Errorf("exists %q reported true", name)
		}
	}
}

func TestDirStoreOpenMissing(t *testing.T) {
	store, err := NewDirStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Open("absent.sec"); !os.IsNotExist(err) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

func TestSectionName(t *testing.T) {
	tests := []struct {
		id    string
		index int
		want  string
	}{
		{"My Book: Chapter 1", 0, "my-book-chapter-1.0000.sec"},
		{"Война и мир", 12, "voina-i-mir.0012.sec"},
		{"", 3, "doc.0003.sec"},
	}
	for _, tc := range tests {
		if got := SectionName(tc.id, tc.index); got != tc.want {
			t.Errorf("SectionName(%q, %d) = %q, want %q", tc.id, tc.index, got, tc.want)
		}
	}
}

func TestDirStoreLockReleasedOnDoubleClose(t *testing.T) {
	store, err := NewDirStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	f, err := store.Create("a.sec")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.Close()
	f.Close() // must not unlock twice
	g, err := store.Create("b.sec")
	if err != nil {
		t.Fatalf("create after close: %v", err)
	}
	g.Close()
}
