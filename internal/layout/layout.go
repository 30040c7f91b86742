package layout

import "fmt"

// Box is the horizontal band on the template the name must fit into, in
// template pixels. Y is the baseline the text is vertically centered on.
type Box struct {
	X     int
	Y     int
	Width int
}

// FontRange bounds the discrete size search.
type FontRange struct {
	Default int
	Min     int
}

// Placement is the layout decision for one name: the chosen font size and the
// top-left anchor of the rendered text.
type Placement struct {
	FontSize int
	AnchorX  int
	AnchorY  int
}

// Measurer reports the rendered width and height of text at a font size.
// Implementations must be deterministic for the same inputs.
type Measurer interface {
	Measure(text string, size int) (width, height int)
}

// sizeStep is the fixed decrement between candidate sizes.
const sizeStep = 2

// Engine decides font size and anchor position for a name inside a box.
// It is a pure function of its inputs and the measurer's font metrics:
// no I/O, no randomness, reproducible bit-for-bit.
type Engine struct {
	measurer Measurer
}

func NewEngine(measurer Measurer) (*Engine, error) {
	if measurer == nil {
		return nil, fmt.Errorf("measurer is required")
	}
	return &Engine{measurer: measurer}, nil
}

// Place searches downward from fonts.Default in steps of 2 for the largest
// size whose measured width fits box.Width. If nothing fits by fonts.Min,
// fonts.Min is returned anyway: legibility is sacrificed, never availability.
// The text is centered horizontally in the box and its vertical midpoint sits
// on box.Y.
func (e *Engine) Place(name string, box Box, fonts FontRange) Placement {
	size := fonts.Default

	for size >= fonts.Min {
		width, height := e.measurer.Measure(name, size)
		if width <= box.Width {
			return anchored(size, width, height, box)
		}
		size -= sizeStep
	}

	width, height := e.measurer.Measure(name, fonts.Min)
	return anchored(fonts.Min, width, height, box)
}

func anchored(size, width, height int, box Box) Placement {
	return Placement{
		FontSize: size,
		AnchorX:  box.X + (box.Width-width)/2,
		AnchorY:  box.Y - height/2,
	}
}
