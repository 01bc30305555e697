// Package led contains the physical side of an LED strip: the 8-bit colors
// that get shipped to the hardware and the buffers that hold them.
package led

import (
	"encoding"
	"fmt"
	"unsafe"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// RGBColor is an 8-bit-per-channel color as sent to an LED.
type RGBColor [3]uint8

var (
	_ encoding.TextUnmarshaler = (*RGBColor)(nil)
	_ encoding.TextMarshaler   = RGBColor{}
)

// UnmarshalText parses a hex color such as "#ff8800".
func (c *RGBColor) UnmarshalText(text []byte) error {
	col, err := colorful.Hex(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid color %q", text)
	}
	r, g, b := col.RGB255()
	*c = RGBColor{r, g, b}
	return nil
}

// MarshalText formats the color as a hex string.
func (c RGBColor) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// String returns the color as a hex string.
func (c RGBColor) String() string {
	col, _ := colorful.MakeColor(rgba(c))
	return col.Hex()
}

// rgba adapts RGBColor to color.Color.
type rgba RGBColor

func (c rgba) RGBA() (r, g, b, a uint32) {
	r = uint32(c[0]) * 0x101
	g = uint32(c[1]) * 0x101
	b = uint32(c[2]) * 0x101
	return r, g, b, 0xFFFF
}

// Buffer is a physical LED buffer of known length. Colors written with SetLED
// only reach the hardware after Sync.
type Buffer interface {
	// Len returns the number of LEDs in the buffer.
	Len() int
	// LED returns the color currently stored for the LED at i.
	LED(i int) RGBColor
	// SetLED stores the color for the LED at i.
	SetLED(i int, c RGBColor)
	// Sync pushes the buffer out to the LEDs. It is comparatively slow, so
	// callers rate-limit it.
	Sync() error
}

// LEDs describes a strip of LEDs. It is a preallocated slice of RGBColor.
type LEDs []RGBColor

// NewLEDs creates a new strip of LEDs. Colors are initialized to black
// (off).
func NewLEDs(numLEDs int) LEDs {
	return make(LEDs, numLEDs)
}

// AsPixels returns the LED strip as a slice of uint8 values. Each LED is
// represented by three values, one for each color channel.
func (l LEDs) AsPixels() []uint8 {
	if len(l) == 0 {
		return nil
	}
	return unsafe.Slice((*uint8)(unsafe.Pointer(&l[0])), 3*len(l))
}

// Len returns the number of LEDs.
func (l LEDs) Len() int { return len(l) }

// LED returns the color of the LED at the given index.
func (l LEDs) LED(i int) RGBColor { return l[i] }

// SetLED sets the color of the LED at the given index.
func (l LEDs) SetLED(i int, c RGBColor) {
	l[i] = c
}

// Draw copies src into dst starting at LED start, stopping at the end of
// either. It returns the number of LEDs copied.
func Draw(dst Buffer, start int, src LEDs) int {
	n := 0
	for ; n < len(src) && start+n < dst.Len(); n++ {
		dst.SetLED(start+n, src[n])
	}
	return n
}

// Memory is a Buffer that keeps everything in memory. Synced holds what the
// "hardware" last received.
type Memory struct {
	LEDs
	Synced LEDs
	Syncs  int
}

var _ Buffer = (*Memory)(nil)

// NewMemory creates a new in-memory buffer of numLEDs LEDs.
func NewMemory(numLEDs int) *Memory {
	return &Memory{
		LEDs:   NewLEDs(numLEDs),
		Synced: NewLEDs(numLEDs),
	}
}

// Sync copies the working LEDs into Synced.
func (m *Memory) Sync() error {
	copy(m.Synced, m.LEDs)
	m.Syncs++
	return nil
}

func (m *Memory) String() string {
	return fmt.Sprintf("memory{%d}", len(m.LEDs))
}

// Window is a Buffer over LEDs [Offset, Offset+N) of a parent buffer, for
// driving two logical strips from one chain. Syncing a window syncs the whole
// parent.
type Window struct {
	Parent Buffer
	Offset int
	N      int
}

var _ Buffer = (*Window)(nil)

// Split cuts buf into a window of the first n LEDs and a window of the rest.
func Split(buf Buffer, n int) (*Window, *Window) {
	if n > buf.Len() {
		n = buf.Len()
	}
	return &Window{buf, 0, n}, &Window{buf, n, buf.Len() - n}
}

func (w *Window) Len() int                 { return w.N }
func (w *Window) LED(i int) RGBColor       { return w.Parent.LED(w.index(i)) }
func (w *Window) SetLED(i int, c RGBColor) { w.Parent.SetLED(w.index(i), c) }
func (w *Window) Sync() error              { return w.Parent.Sync() }

func (w *Window) index(i int) int {
	if i < 0 || i >= w.N {
		panic(fmt.Sprintf("led: window index %d out of range [0, %d)", i, w.N))
	}
	return w.Offset + i
}
