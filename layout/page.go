package layout

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Element tags in the page wire format.
const (
	tagLine  = 1
	tagImage = 2
)

// maxImageData bounds a single serialized image payload. Anything larger is
// treated as corruption when reading and a bug when writing.
const maxImageData = 1 << 20

// Element is one renderable item on a page.
type Element interface {
	serialize(w io.Writer) error
}

// Line is a laid out text line anchored at (X, Y) in page coordinates.
type Line struct {
	X, Y  int16
	Block TextBlock
}

// Image is a pre-rendered 1-bit raster anchored at (X, Y). Data holds
// Height rows of MSB-first packed pixels, (Width+7)/8 bytes per row.
type Image struct {
	X, Y          int16
	Width, Height uint16
	Data          []byte
}

// Page is an ordered list of elements. Order is paint order.
type Page struct {
	Elements []Element
}

func (p *Page) AddLine(l *Line) { p.Elements = append(p.Elements, l) }

func (p *Page) AddImage(img *Image) { p.Elements = append(p.Elements, img) }

func (p *Page) Empty() bool { return len(p.Elements) == 0 }

// Serialize writes the page in the section cache wire format. All integers
// are little-endian.
func (p *Page) Serialize(w io.Writer) error {
	if len(p.Elements) > 0xffff {
		return fmt.Errorf("page has %d elements, limit is 65535", len(p.Elements))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(p.Elements))); err != nil {
		return fmt.Errorf("writing element count: %w", err)
	}
	for i, e := range p.Elements {
		if err := e.serialize(w); err != nil {
			return fmt.Errorf("writing element %d: %w", i, err)
		}
	}
	return nil
}

// DeserializePage reads one page written by Serialize. An unknown element
// tag fails the whole page: there is no way to know the element's length.
func DeserializePage(r io.Reader) (*Page, error) {
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("reading element count: %w", err)
	}
	p := &Page{}
	if count > 0 {
		p.Elements = make([]Element, 0, count)
	}
	for i := 0; i < int(count); i++ {
		var tag uint8
		if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
			return nil, fmt.Errorf("reading element %d tag: %w", i, err)
		}
		var (
			e   Element
			err error
		)
		switch tag {
		case tagLine:
			e, err = deserializeLine(r)
		case tagImage:
			e, err = deserializeImage(r)
		default:
			return nil, fmt.Errorf("element %d has unknown tag %d", i, tag)
		}
		if err != nil {
			return nil, fmt.Errorf("reading element %d: %w", i, err)
		}
		p.Elements = append(p.Elements, e)
	}
	return p, nil
}

func (l *Line) serialize(w io.Writer) error {
	hdr := struct {
		Tag  uint8
		X, Y int16
	}{tagLine, l.X, l.Y}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	return l.Block.serialize(w)
}

func deserializeLine(r io.Reader) (*Line, error) {
	var hdr struct{ X, Y int16 }
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	l := &Line{X: hdr.X, Y: hdr.Y}
	if err := l.Block.deserialize(r); err != nil {
		return nil, err
	}
	return l, nil
}

func (img *Image) serialize(w io.Writer) error {
	if len(img.Data) > maxImageData {
		return fmt.Errorf("image data is %d bytes, limit is %d", len(img.Data), maxImageData)
	}
	hdr := struct {
		Tag           uint8
		X, Y          int16
		Width, Height uint16
		DataLen       uint32
	}{tagImage, img.X, img.Y, img.Width, img.Height, uint32(len(img.Data))}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	_, err := w.Write(img.Data)
	return err
}

func deserializeImage(r io.Reader) (*Image, error) {
	var hdr struct {
		X, Y          int16
		Width, Height uint16
		DataLen       uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if hdr.DataLen > maxImageData {
		return nil, fmt.Errorf("image data length %d exceeds limit %d", hdr.DataLen, maxImageData)
	}
	img := &Image{X: hdr.X, Y: hdr.Y, Width: hdr.Width, Height: hdr.Height}
	if hdr.DataLen > 0 {
		img.Data = make([]byte, hdr.DataLen)
		if _, err := io.ReadFull(r, img.Data); err != nil {
			return nil, fmt.Errorf("reading image data: %w", err)
		}
	}
	return img, nil
}

func (b *TextBlock) serialize(w io.Writer) error {
	if len(b.Words) > 0xffff {
		return fmt.Errorf("line has %d words, limit is 65535", len(b.Words))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(b.Words))); err != nil {
		return err
	}
	for _, pw := range b.Words {
		if len(pw.Text) > 0xffff {
			return fmt.Errorf("word is %d bytes, limit is 65535", len(pw.Text))
		}
		flags := uint8(0)
		if pw.Continues {
			flags = 1
		}
		hdr := struct {
			X       int16
			Style   uint8
			Flags   uint8
			TextLen uint16
		}{pw.X, uint8(pw.Style), flags, uint16(len(pw.Text))}
		if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
			return err
		}
		if _, err := io.WriteString(w, pw.Text); err != nil {
			return err
		}
	}
	return nil
}

func (b *TextBlock) deserialize(r io.Reader) error {
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}
	// an empty line keeps Words nil so round trips compare equal
	if count > 0 {
		b.Words = make([]PositionedWord, 0, count)
	}
	buf := make([]byte, 0, 64)
	for i := 0; i < int(count); i++ {
		var hdr struct {
			X       int16
			Style   uint8
			Flags   uint8
			TextLen uint16
		}
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return err
		}
		if cap(buf) < int(hdr.TextLen) {
			buf = make([]byte, hdr.TextLen)
		}
		buf = buf[:hdr.TextLen]
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("reading word %d text: %w", i, err)
		}
		b.Words = append(b.Words, PositionedWord{
			Word: Word{
				Text:      string(buf),
				Style:     FontStyle(hdr.Style),
				Continues: hdr.Flags&1 != 0,
			},
			X: hdr.X,
		})
	}
	return nil
}
