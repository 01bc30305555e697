package lights

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"libdb.so/lightshow/internal/led"
)

// Color is a lattice color. Channels are plain ints so that additive mixing
// can go negative or past 255 for a while; they are only clamped when
// rendered.
type Color [3]int

// Add returns the per-channel sum of c and o.
func (c Color) Add(o Color) Color {
	return Color{c[0] + o[0], c[1] + o[1], c[2] + o[2]}
}

// Sub returns the per-channel difference of c and o.
func (c Color) Sub(o Color) Color {
	return Color{c[0] - o[0], c[1] - o[1], c[2] - o[2]}
}

// IsZero reports whether every channel is zero.
func (c Color) IsZero() bool {
	return c == Color{}
}

// Sum returns the sum of all channels.
func (c Color) Sum() int {
	return c[0] + c[1] + c[2]
}

// Scale returns c with every channel multiplied by f and rounded.
func (c Color) Scale(f float64) Color {
	var out Color
	for k, v := range c {
		out[k] = int(math.Round(float64(v) * f))
	}
	return out
}

// FromRGB converts an LED color to a lattice color.
func FromRGB(c led.RGBColor) Color {
	return Color{int(c[0]), int(c[1]), int(c[2])}
}

// ErrColorLength is the panic value for a color update with more than three
// channels.
var ErrColorLength = errors.New("color has more than 3 channels")

// IndexError is returned (or panicked with) for an index outside of a view.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of range for length %d", e.Index, e.Len)
}
