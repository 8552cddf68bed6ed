package layout

// Metrics measures text for a font family selected by id. The engine never
// rasterizes glyphs, it only needs line heights and advance widths to decide
// where lines break and pages end. Implementations must be deterministic:
// the same inputs always produce the same widths, otherwise rebuilt section
// caches would not be byte identical.
type Metrics interface {
	// LineHeight returns the uncompressed height of one text line in pixels.
	LineHeight(fontID int) int
	// TextWidth returns the advance width of s drawn with the given style.
	TextWidth(fontID int, s string, style FontStyle) int
}
