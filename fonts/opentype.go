package fonts

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"inkpag/layout"
)

// Family holds the faces of one font family. Missing style variants fall
// back to the regular face so measurement always succeeds.
type Family struct {
	regular    font.Face
	bold       font.Face
	italic     font.Face
	boldItalic font.Face
	lineHeight int
}

// OpenType measures text with real font files loaded from disk. Font ids
// index the families in registration order.
type OpenType struct {
	families []*Family
	log      *zap.Logger
}

// variant file name suffixes tried for each style axis.
var variantSuffixes = map[layout.FontStyle][]string{
	layout.Bold:               {"-Bold", "-bold", "_Bold"},
	layout.Italic:             {"-Italic", "-italic", "_Italic"},
	layout.Bold | layout.Italic: {"-BoldItalic", "-bolditalic", "_BoldItalic"},
}

// NewOpenType creates an empty registry.
func NewOpenType(log *zap.Logger) *OpenType {
	if log == nil {
		log = zap.NewNop()
	}
	return &OpenType{log: log.Named("fonts")}
}

// LoadFamily registers a font family from its regular face file, looking for
// bold/italic variants next to it. Returns the font id for the new family.
func (o *OpenType) LoadFamily(path string, sizePx float64) (int, error) {
	regular, height, err := loadFace(path, sizePx)
	if err != nil {
		return 0, fmt.Errorf("unable to load font %s: %w", path, err)
	}

	fam := &Family{regular: regular, lineHeight: height}

	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	for style, suffixes := range variantSuffixes {
		for _, suffix := range suffixes {
			variant := base + suffix + ext
			if _, err := os.Stat(variant); err != nil {
				continue
			}
			face, _, err := loadFace(variant, sizePx)
			if err != nil {
				o.log.Warn("Unable to load font variant", zap.String("path", variant), zap.Error(err))
				continue
			}
			switch style {
			case layout.Bold:
				fam.bold = face
			case layout.Italic:
				fam.italic = face
			case layout.Bold | layout.Italic:
				fam.boldItalic = face
			}
			break
		}
	}

	o.families = append(o.families, fam)
	id := len(o.families) - 1
	o.log.Debug("Registered font family", zap.Int("id", id), zap.String("path", path), zap.Int("lineHeight", height))
	return id, nil
}

func loadFace(path string, sizePx float64) (font.Face, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	ft, err := opentype.Parse(data)
	if err != nil {
		return nil, 0, fmt.Errorf("unable to parse font: %w", err)
	}
	face, err := opentype.NewFace(ft, &opentype.FaceOptions{
		Size:    sizePx,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("unable to create face: %w", err)
	}
	m := face.Metrics()
	return face, (m.Height + fixed.I(1) - 1).Floor(), nil
}

func (f *Family) face(style layout.FontStyle) font.Face {
	switch {
	case style&layout.Bold != 0 && style&layout.Italic != 0 && f.boldItalic != nil:
		return f.boldItalic
	case style&layout.Bold != 0 && f.bold != nil:
		return f.bold
	case style&layout.Italic != 0 && f.italic != nil:
		return f.italic
	}
	return f.regular
}

func (o *OpenType) family(fontID int) *Family {
	if fontID < 0 || fontID >= len(o.families) {
		return nil
	}
	return o.families[fontID]
}

func (o *OpenType) LineHeight(fontID int) int {
	fam := o.family(fontID)
	if fam == nil {
		return 16
	}
	return fam.lineHeight
}

func (o *OpenType) TextWidth(fontID int, s string, style layout.FontStyle) int {
	fam := o.family(fontID)
	if fam == nil {
		return len(s) * 8
	}
	return font.MeasureString(fam.face(style), s).Ceil()
}
