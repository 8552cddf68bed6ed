package images

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

func TestPrepareBlackAndWhite(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 16, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 8; x++ {
			src.SetGray(x, y, color.Gray{0})
		}
		for x := 8; x < 16; x++ {
			src.SetGray(x, y, color.Gray{255})
		}
	}

	p := NewProcessor(100, 100, nil)
	img, err := p.Prepare(encodePNG(t, src))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if img.Width != 16 || img.Height != 2 {
		t.Fatalf("dimensions %dx%d, want 16x2", img.Width, img.Height)
	}
	want := []byte{0xff, 0x00, 0xff, 0x00}
	if !bytes.Equal(img.Data, want) {
		t.Fatalf("packed data % x, want % x", img.Data, want)
	}
}

func TestPrepareScalesDown(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 200, 10))
	p := NewProcessor(100, 50, nil)
	img, err := p.Prepare(encodePNG(t, src))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if img.Width != 100 || img.Height != 5 {
		t.Fatalf("dimensions %dx%d, want 100x5", img.Width, img.Height)
	}
	if len(img.Data) != (100+7)/8*5 {
		t.Fatalf("packed size %d, want %d", len(img.Data), (100+7)/8*5)
	}
}

func TestPrepareNoUpscale(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 10, 10))
	p := NewProcessor(100, 100, nil)
	img, err := p.Prepare(encodePNG(t, src))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if img.Width != 10 || img.Height != 10 {
		t.Fatalf("dimensions %dx%d, want 10x10 (no upscale)", img.Width, img.Height)
	}
}

func TestPrepareRejectsGarbage(t *testing.T) {
	p := NewProcessor(100, 100, nil)
	if _, err := p.Prepare([]byte("not an image at all")); err == nil {
		t.Fatal("expected error for undecodable data")
	}
	if _, err := p.Prepare(nil); err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestPrepareRejectsOversizedSource(t *testing.T) {
	p := NewProcessor(100, 100, nil)
	// the size check runs before any decode attempt
	if _, err := p.Prepare(make([]byte, maxSourceBytes+1)); err == nil {
		t.Fatal("expected error for oversized source")
	}
}

func TestPrepareSVG(t *testing.T) {
	svg := []byte(`<?xml version="1.0"?>
<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10" viewBox="0 0 10 10">
  <rect x="0" y="0" width="10" height="10" fill="black"/>
</svg>`)
	p := NewProcessor(100, 100, nil)
	img, err := p.Prepare(svg)
	if err != nil {
		t.Fatalf("prepare svg: %v", err)
	}
	if img.Width != 10 || img.Height != 10 {
		t.Fatalf("dimensions %dx%d, want 10x10", img.Width, img.Height)
	}
}
