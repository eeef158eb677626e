package domain

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// ClassCount is the number of hazard classes.
const ClassCount = 4

// ClassAlpha is the opacity baked into every class colour.
const ClassAlpha = 200

// Palette holds one colour per class, ordered low to high.
type Palette [ClassCount]color.NRGBA

// Class names, low to high.
var ClassNames = [ClassCount]string{"pale yellow", "aqua green", "teal", "dark blue"}

// DefaultPalette is the YlGnBu ramp used for every hazard layer.
var DefaultPalette = mustPalette("#ffffcc", "#a1dab4", "#41b6c4", "#225ea8")

// ParsePalette builds a palette from hex colours, applying ClassAlpha.
func ParsePalette(hexes ...string) (Palette, error) {
	var p Palette
	if len(hexes) != ClassCount {
		return p, fmt.Errorf("palette needs %d colours, got %d", ClassCount, len(hexes))
	}
	for i, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			return p, fmt.Errorf("palette colour %d: %w", i, err)
		}
		r, g, b := c.RGB255()
		p[i] = color.NRGBA{R: r, G: g, B: b, A: ClassAlpha}
	}
	return p, nil
}

// Hex returns the "#rrggbb" form of class i, alpha excluded.
func (p Palette) Hex(i int) string {
	c := p[i]
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func mustPalette(hexes ...string) Palette {
	p, err := ParsePalette(hexes...)
	if err != nil {
		panic(err)
	}
	return p
}
