package render

import (
	"fmt"
	"os"

	"github.com/golang/freetype/truetype"
)

// plainFontCandidates is the static ordered list of sans-serif fonts tried
// for the document-number stamp. The number must read as plain text, not in
// the script face used for the name.
var plainFontCandidates = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
	"/usr/share/fonts/truetype/freefont/FreeSans.ttf",
	"/usr/share/fonts/truetype/ubuntu/Ubuntu-R.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
}

func loadFont(path string) (*truetype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font %q: %w", path, err)
	}
	parsed, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %q: %w", path, err)
	}
	return parsed, nil
}

// loadPlainFont tries each candidate in order and returns the first that
// parses. The error reports that no candidate worked; callers fall back to
// the script font as a documented last resort.
func loadPlainFont(candidates []string) (*truetype.Font, error) {
	for _, path := range candidates {
		font, err := loadFont(path)
		if err == nil {
			return font, nil
		}
	}
	return nil, fmt.Errorf("no plain font available among %d candidates", len(candidates))
}
