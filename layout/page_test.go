package layout

import (
	"bytes"
	"reflect"
	"testing"
)

func samplePage() *Page {
	p := &Page{}
	p.AddLine(&Line{
		X: 10, Y: 20,
		Block: TextBlock{Words: []PositionedWord{
			{Word: Word{Text: "Hello", Style: Regular}, X: 0},
			{Word: Word{Text: "wor", Style: Regular}, X: 48},
			{Word: Word{Text: "ld", Style: Bold, Continues: true}, X: 72},
		}},
	})
	p.AddImage(&Image{
		X: 5, Y: 40, Width: 16, Height: 2,
		Data: []byte{0xff, 0x00, 0xaa, 0x55},
	})
	p.AddLine(&Line{X: 10, Y: 60, Block: TextBlock{}})
	return p
}

func TestPageRoundTrip(t *testing.T) {
	want := samplePage()
	var buf bytes.Buffer
	if err := want.Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got, err := DeserializePage(&buf)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\ngot  %#v\nwant %#v", got, want)
	}
	if buf.Len() != 0 {
		t.Errorf("%d trailing bytes after page", buf.Len())
	}
}

func TestPageEmptyRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := (&Page{}).Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got, err := DeserializePage(&buf)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if !got.Empty() {
		t.Fatalf("got %d elements, want none", len(got.Elements))
	}
}

func TestDeserializePageUnknownTag(t *testing.T) {
	// One element with tag 9.
	buf := []byte{0x01, 0x00, 0x09}
	if _, err := DeserializePage(bytes.NewReader(buf)); err == nil {
		t.Fatal("expected error for unknown element tag")
	}
}

func TestDeserializePageTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := samplePage().Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	data := buf.Bytes()
	if _, err := DeserializePage(bytes.NewReader(data[:len(data)-3])); err == nil {
		t.Fatal("expected error for truncated page")
	}
}

func TestImageDataLimit(t *testing.T) {
	img := &Image{Width: 8, Height: 1, Data: make([]byte, maxImageData+1)}
	var buf bytes.Buffer
	if err := img.serialize(&buf); err == nil {
		t.Fatal("expected error for oversized image data")
	}

	// A forged header claiming an oversized payload must be rejected
	// before allocation.
	forged := []byte{
		0x01, 0x00, // one element
		0x02,       // image tag
		0x00, 0x00, // x
		0x00, 0x00, // y
		0x08, 0x00, // width
		0x01, 0x00, // height
		0x01, 0x00, 0x10, 0x00, // data length 1MiB+1
	}
	if _, err := DeserializePage(bytes.NewReader(forged)); err == nil {
		t.Fatal("expected error for forged image length")
	}
}
