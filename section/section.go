// Package section implements the paginated section cache: a binary file
// holding pre-laid-out pages behind an offset table, so that any page of a
// chapter opens in constant time without reflowing the source.
package section

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"

	"inkpag/layout"
)

// formatVersion is bumped whenever the wire format changes shape.
const formatVersion = 1

// lineCompressionEpsilon tolerates float drift when comparing the stored
// line compression against the requested one.
const lineCompressionEpsilon = 1e-4

var (
	// ErrStale means the cache was built with different layout parameters
	// and must be rebuilt.
	ErrStale = errors.New("section cache is stale")
	// ErrCorrupt means the cache file is damaged and must be deleted.
	ErrCorrupt = errors.New("section cache is corrupt")
)

// Params is the layout identity of a section cache. Any difference between
// the stored and the requested parameters invalidates the cache.
type Params struct {
	FontID                int32
	LineCompression       float32
	ExtraParagraphSpacing bool
	ParagraphAlignment    layout.Alignment
	ViewportWidth         uint16
	ViewportHeight        uint16
	Hyphenation           bool
	// SourceID identifies the source content: the byte size for container
	// members, SourceHash for loose files that can change in place.
	SourceID uint32
}

// SourceHash fingerprints source bytes for Params.SourceID (FNV-1a).
func SourceHash(data []byte) uint32 {
	h := fnv.New32a()
	h.Write(data)
	return h.Sum32()
}

// header is the fixed-size file prologue. PageCount and LUTOffset are
// written as zero placeholders and backpatched by Finalize.
type header struct {
	Version               uint8
	FontID                int32
	LineCompression       float32
	ExtraParagraphSpacing uint8
	ParagraphAlignment    uint8
	ViewportWidth         uint16
	ViewportHeight        uint16
	Hyphenation           uint8
	SourceID              uint32
	PageCount             uint16
	LUTOffset             uint32
}

const (
	headerSize      = 1 + 4 + 4 + 1 + 1 + 2 + 2 + 1 + 4 + 2 + 4
	pageCountOffset = headerSize - 6
)

func b2u8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func newHeader(p Params) header {
	return header{
		Version:               formatVersion,
		FontID:                p.FontID,
		LineCompression:       p.LineCompression,
		ExtraParagraphSpacing: b2u8(p.ExtraParagraphSpacing),
		ParagraphAlignment:    uint8(p.ParagraphAlignment),
		ViewportWidth:         p.ViewportWidth,
		ViewportHeight:        p.ViewportHeight,
		Hyphenation:           b2u8(p.Hyphenation),
		SourceID:              p.SourceID,
	}
}

// matches compares the stored identity against the requested one.
func (h header) matches(p Params) bool {
	return h.Version == formatVersion &&
		h.FontID == p.FontID &&
		math.Abs(float64(h.LineCompression-p.LineCompression)) < lineCompressionEpsilon &&
		h.ExtraParagraphSpacing == b2u8(p.ExtraParagraphSpacing) &&
		h.ParagraphAlignment == uint8(p.ParagraphAlignment) &&
		h.ViewportWidth == p.ViewportWidth &&
		h.ViewportHeight == p.ViewportHeight &&
		h.Hyphenation == b2u8(p.Hyphenation) &&
		h.SourceID == p.SourceID
}

// Writer streams pages into a section cache file. Pages are serialized as
// they arrive; Finalize appends the lookup table and backpatches the header.
// An abandoned Writer leaves an unfinalized file with PageCount zero, which
// Open rejects.
type Writer struct {
	w         io.WriteSeeker
	offsets   []uint32
	off       int64
	finalized bool
}

// NewWriter writes the header placeholder and prepares for page output.
func NewWriter(w io.WriteSeeker, params Params) (*Writer, error) {
	hdr := newHeader(params)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("writing section header: %w", err)
	}
	return &Writer{w: w, off: headerSize}, nil
}

// AddPage appends one page. The page's file offset goes into the lookup
// table written by Finalize.
func (sw *Writer) AddPage(p *layout.Page) error {
	if sw.finalized {
		return errors.New("section writer already finalized")
	}
	if sw.off > math.MaxUint32 {
		return fmt.Errorf("section exceeds 4GiB at page %d", len(sw.offsets))
	}
	if len(sw.offsets) >= math.MaxUint16 {
		return fmt.Errorf("section exceeds %d pages", math.MaxUint16)
	}
	cw := &countingWriter{w: sw.w}
	if err := p.Serialize(cw); err != nil {
		return fmt.Errorf("writing page %d: %w", len(sw.offsets), err)
	}
	sw.offsets = append(sw.offsets, uint32(sw.off))
	sw.off += cw.n
	return nil
}

// PageCount reports pages written so far.
func (sw *Writer) PageCount() int { return len(sw.offsets) }

// Finalize writes the lookup table and backpatches page count and table
// offset into the header. The writer is unusable afterwards.
func (sw *Writer) Finalize() error {
	if sw.finalized {
		return errors.New("section writer already finalized")
	}
	sw.finalized = true

	lutOffset := sw.off
	if lutOffset > math.MaxUint32 {
		return errors.New("lookup table offset exceeds 4GiB")
	}
	if err := binary.Write(sw.w, binary.LittleEndian, sw.offsets); err != nil {
		return fmt.Errorf("writing lookup table: %w", err)
	}
	if _, err := sw.w.Seek(pageCountOffset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to header: %w", err)
	}
	patch := struct {
		PageCount uint16
		LUTOffset uint32
	}{uint16(len(sw.offsets)), uint32(lutOffset)}
	if err := binary.Write(sw.w, binary.LittleEndian, &patch); err != nil {
		return fmt.Errorf("backpatching header: %w", err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Section is an open cache file with its lookup table in memory.
type Section struct {
	r   io.ReadSeeker
	lut []uint32
}

// Open validates a cache file against the requested parameters and loads
// its lookup table. ErrStale means rebuild; ErrCorrupt means delete and
// rebuild. Both may be wrapped.
func Open(r io.ReadSeeker, params Params) (*Section, error) {
	var hdr header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrCorrupt, err)
	}
	if !hdr.matches(params) {
		return nil, fmt.Errorf("%w: layout parameters differ", ErrStale)
	}
	// A finalized section always holds at least the final page.
	if hdr.PageCount == 0 || hdr.LUTOffset < headerSize {
		return nil, fmt.Errorf("%w: unfinalized file", ErrCorrupt)
	}
	if _, err := r.Seek(int64(hdr.LUTOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seeking to lookup table: %v", ErrCorrupt, err)
	}
	lut := make([]uint32, hdr.PageCount)
	if err := binary.Read(r, binary.LittleEndian, lut); err != nil {
		return nil, fmt.Errorf("%w: reading lookup table: %v", ErrCorrupt, err)
	}
	for i, off := range lut {
		if off < headerSize || off >= hdr.LUTOffset {
			return nil, fmt.Errorf("%w: page %d offset %d out of range", ErrCorrupt, i, off)
		}
	}
	return &Section{r: r, lut: lut}, nil
}

// PageCount reports the number of pages in the section.
func (s *Section) PageCount() int { return len(s.lut) }

// Page loads page i. Lookup is a single seek.
func (s *Section) Page(i int) (*layout.Page, error) {
	if i < 0 || i >= len(s.lut) {
		return nil, fmt.Errorf("page %d out of range [0, %d)", i, len(s.lut))
	}
	if _, err := s.r.Seek(int64(s.lut[i]), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to page %d: %w", i, err)
	}
	p, err := layout.DeserializePage(s.r)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrCorrupt, i, err)
	}
	return p, nil
}
