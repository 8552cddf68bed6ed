// Package images converts source images into the 1-bit rasters placed on
// pages. Color input is grayscaled, scaled down to the image area and
// ordered-dithered; the result packs one bit per pixel, MSB first, set bits
// meaning ink.
package images

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"inkpag/layout"
)

// maxPackedBytes bounds the packed raster of a single image, matching the
// page format limit.
const maxPackedBytes = 1 << 20

// maxSourceBytes bounds the undecoded source. Anything larger is rejected
// before decode and degrades to the walkers' placeholder path.
const maxSourceBytes = 1 << 20

// Processor prepares page images for a fixed target area.
type Processor struct {
	maxWidth  int
	maxHeight int
	log       *zap.Logger
}

// NewProcessor creates a Processor. Images are scaled to fit maxWidth by
// maxHeight, preserving aspect ratio, never scaled up.
func NewProcessor(maxWidth, maxHeight int, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{maxWidth: maxWidth, maxHeight: maxHeight, log: log.Named("images")}
}

// Prepare decodes, fits and dithers a source image. The returned image has
// its dimensions and data set; the caller positions it on a page.
func (p *Processor) Prepare(data []byte) (*layout.Image, error) {
	return p.PrepareBounded(data, 0, 0)
}

// PrepareBounded is Prepare with an additional per-image size request. The
// effective box never exceeds the processor's own bounds; zero or negative
// values fall back to them.
func (p *Processor) PrepareBounded(data []byte, maxW, maxH int) (*layout.Image, error) {
	if maxW <= 0 || maxW > p.maxWidth {
		maxW = p.maxWidth
	}
	if maxH <= 0 || maxH > p.maxHeight {
		maxH = p.maxHeight
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	if len(data) > maxSourceBytes {
		return nil, fmt.Errorf("source image is %d bytes, limit is %d", len(data), maxSourceBytes)
	}

	var (
		img image.Image
		err error
	)
	if isSVG(data) {
		img, err = p.rasterizeSVG(data, maxW, maxH)
		if err != nil {
			return nil, fmt.Errorf("rasterizing svg: %w", err)
		}
	} else {
		var format string
		img, format, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			if t, merr := filetype.Match(data); merr == nil && t != filetype.Unknown {
				return nil, fmt.Errorf("decoding %s image: %w", t.Extension, err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
		p.log.Debug("decoded image", zap.String("format", format),
			zap.Int("width", img.Bounds().Dx()), zap.Int("height", img.Bounds().Dy()))
	}

	if img.Bounds().Dx() > maxW || img.Bounds().Dy() > maxH {
		img = imaging.Fit(img, maxW, maxH, imaging.Lanczos)
	}
	gray := imaging.Grayscale(img)

	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("image has no pixels after scaling")
	}
	stride := (w + 7) / 8
	if stride*h > maxPackedBytes {
		return nil, fmt.Errorf("packed image is %d bytes, limit is %d", stride*h, maxPackedBytes)
	}

	packed := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, _, _, _ := gray.At(x, y).RGBA()
			if uint8(r>>8) < bayerThreshold(x, y) {
				packed[y*stride+x/8] |= 0x80 >> (x % 8)
			}
		}
	}

	return &layout.Image{
		Width:  uint16(w),
		Height: uint16(h),
		Data:   packed,
	}, nil
}

// rasterizeSVG renders an SVG into the target area.
func (p *Processor) rasterizeSVG(data []byte, maxW, maxH int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	w, h := icon.ViewBox.W, icon.ViewBox.H
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("svg has no viewbox")
	}
	scale := 1.0
	if s := float64(maxW) / w; s < scale {
		scale = s
	}
	if s := float64(maxH) / h; s < scale {
		scale = s
	}
	tw, th := int(w*scale+0.5), int(h*scale+0.5)
	if tw < 1 || th < 1 {
		return nil, fmt.Errorf("svg scales to nothing")
	}

	icon.SetTarget(0, 0, float64(tw), float64(th))
	rgba := image.NewRGBA(image.Rect(0, 0, tw, th))
	// white background, svg content drawn over it
	for i := range rgba.Pix {
		rgba.Pix[i] = 0xff
	}
	scanner := rasterx.NewScannerGV(tw, th, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(tw, th, scanner), 1.0)
	return rgba, nil
}

func isSVG(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(head, []byte("<svg"))
}

// bayer4 is the classic 4x4 ordered dither matrix.
var bayer4 = [4][4]uint8{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

func bayerThreshold(x, y int) uint8 {
	return uint8((uint16(bayer4[y%4][x%4])*2 + 1) * 255 / 32)
}
