package layout

import (
	"fmt"
	"os"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
)

var _ Measurer = (*FontMeasurer)(nil)

// FontMeasurer measures text with a parsed TrueType font at 72 DPI, so one
// font unit equals one template pixel.
type FontMeasurer struct {
	font *truetype.Font
}

func NewFontMeasurer(ttf []byte) (*FontMeasurer, error) {
	parsed, err := truetype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return &FontMeasurer{font: parsed}, nil
}

func LoadFontMeasurer(path string) (*FontMeasurer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font %q: %w", path, err)
	}
	return NewFontMeasurer(data)
}

// Measure returns the tight bounding-box dimensions of text at the given size.
func (m *FontMeasurer) Measure(text string, size int) (int, int) {
	face := truetype.NewFace(m.font, &truetype.Options{
		Size: float64(size),
		DPI:  72,
	})
	defer face.Close()

	bounds, _ := font.BoundString(face, text)
	width := (bounds.Max.X - bounds.Min.X).Ceil()
	height := (bounds.Max.Y - bounds.Min.Y).Ceil()
	return width, height
}

// Font exposes the parsed font for rendering at the size the engine picked.
func (m *FontMeasurer) Font() *truetype.Font {
	return m.font
}
