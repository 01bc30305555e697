// Package lights provides a lattice model of the pixels on a strip, views
// over parts of it, and the default rendering of those views to the LEDs.
//
// A lattice cell is a *Color. Every view over the same strip shares the same
// cells, so slicing never copies. Cell identity matters to anyone holding a
// *Color from Get: Update, SetColorOf, AddColorTo and SubColorFrom write
// through that pointer, while Set puts a fresh cell in place and leaves old
// pointers dangling on purpose.
package lights

import (
	"math"
	"time"

	"libdb.so/lightshow/internal/led"
	"libdb.so/lightshow/internal/sched"
)

// Lattice is the shared color storage of a strip.
type Lattice struct {
	cells []*Color
}

// NewLattice creates a lattice of n black cells.
func NewLattice(n int) *Lattice {
	cells := make([]*Color, n)
	for i := range cells {
		cells[i] = new(Color)
	}
	return &Lattice{cells: cells}
}

// Len returns the number of cells.
func (l *Lattice) Len() int { return len(l.cells) }

// Lights is a view over a lattice: an index range, the shared lattice, and
// the strip the lattice is rendered to.
type Lights struct {
	lattice    *Lattice
	strip      *Strip
	indices    Range
	brightness float64
}

var _ Renderer = (*Lights)(nil)

// New creates a lattice covering the whole strip and returns a view over all
// of it.
func New(strip *Strip) *Lights {
	return NewView(strip, NewLattice(strip.Len()), NewRange(strip.Len()))
}

// NewView creates a view over an existing lattice. Every index in r must be a
// valid lattice index and a valid LED index; NewView panics otherwise.
func NewView(strip *Strip, lattice *Lattice, r Range) *Lights {
	n := lattice.Len()
	if strip.Len() < n {
		n = strip.Len()
	}
	if r.Len() > 0 {
		first, _ := r.At(0)
		last, _ := r.At(-1)
		for _, i := range [2]int{first, last} {
			if i < 0 || i >= n {
				panic(&IndexError{Index: i, Len: n})
			}
		}
	}

	return &Lights{
		lattice:    lattice,
		strip:      strip,
		indices:    r,
		brightness: 1.0,
	}
}

// Len returns the number of cells in the view.
func (l *Lights) Len() int { return l.indices.Len() }

// Range returns the absolute lattice indices of the view.
func (l *Lights) Range() Range { return l.indices }

// Lattice returns the shared lattice.
func (l *Lights) Lattice() *Lattice { return l.lattice }

// Strip returns the strip the view renders to.
func (l *Lights) Strip() *Strip { return l.strip }

// Index returns the absolute lattice index of the view's i-th cell.
func (l *Lights) Index(i int) (int, error) {
	return l.indices.At(i)
}

func (l *Lights) mustIndex(i int) int {
	k, err := l.indices.At(i)
	if err != nil {
		panic(err)
	}
	return k
}

// Get returns the cell at i. The pointer aliases the lattice.
func (l *Lights) Get(i int) *Color {
	return l.lattice.cells[l.mustIndex(i)]
}

// Set replaces the cell at i with a new cell holding c. Pointers previously
// returned by Get for that cell no longer refer to the lattice.
func (l *Lights) Set(i int, c Color) {
	cell := c
	l.lattice.cells[l.mustIndex(i)] = &cell
}

// Update overwrites the leading channels of the cell at i in place, leaving
// the rest alone.
func (l *Lights) Update(i int, channels ...int) {
	if len(channels) > len(Color{}) {
		panic(ErrColorLength)
	}
	p := l.Get(i)
	for k, v := range channels {
		p[k] = v
	}
}

// SetRange writes colors over the view in place, starting at the view's
// first cell. It stops when either the view or colors runs out and returns
// the number of cells written.
func (l *Lights) SetRange(colors []Color) int {
	n := l.Len()
	if len(colors) < n {
		n = len(colors)
	}
	for k := 0; k < n; k++ {
		*l.Get(k) = colors[k]
	}
	return n
}

// Colors returns a copy of the view's colors.
func (l *Lights) Colors() []Color {
	out := make([]Color, l.Len())
	for k := range out {
		out[k] = *l.Get(k)
	}
	return out
}

// Slice returns a view over cells [start, stop) of l, sharing its storage.
// Bounds follow Go-with-negatives slice rules; see Range.Slice.
func (l *Lights) Slice(start, stop int) *Lights {
	return l.Stride(start, stop, 1)
}

// Stride is Slice with a step. A zero step panics.
func (l *Lights) Stride(start, stop, step int) *Lights {
	r, err := l.indices.Slice(start, stop, step)
	if err != nil {
		panic(err)
	}
	return &Lights{
		lattice:    l.lattice,
		strip:      l.strip,
		indices:    r,
		brightness: l.brightness,
	}
}

// AddColorTo adds color to the cell at i.
func (l *Lights) AddColorTo(i int, color Color) {
	p := l.Get(i)
	*p = p.Add(color)
}

// SubColorFrom subtracts color from the cell at i.
func (l *Lights) SubColorFrom(i int, color Color) {
	p := l.Get(i)
	*p = p.Sub(color)
}

// SetColorOf overwrites the cell at i in place.
func (l *Lights) SetColorOf(i int, color Color) {
	*l.Get(i) = color
}

// Clear blacks out every cell of the view in place.
func (l *Lights) Clear() {
	for k := 0; k < l.Len(); k++ {
		*l.Get(k) = Color{}
	}
}

// Brightness returns the render scale of the view.
func (l *Lights) Brightness() float64 { return l.brightness }

// SetBrightness sets the render scale of the view, clamped to [0, 1].
func (l *Lights) SetBrightness(v float64) {
	l.brightness = math.Max(0, math.Min(1, v))
}

// Render writes the view's cells, scaled by brightness and clamped to 8 bits,
// into the strip's LED buffer.
func (l *Lights) Render() {
	l.renderFrom(func(k int) Color { return *l.Get(k) })
}

// renderFrom renders colorAt(k) to the LED of the view's k-th cell.
func (l *Lights) renderFrom(colorAt func(k int) Color) {
	br := int(math.Round(l.brightness * 256))
	buf := l.strip.buf
	for k := 0; k < l.Len(); k++ {
		c := colorAt(k)
		buf.SetLED(l.indices.Start+k*l.indices.Step, led.RGBColor{
			scaleChannel(br, c[0]),
			scaleChannel(br, c[1]),
			scaleChannel(br, c[2]),
		})
	}
}

func scaleChannel(br, v int) uint8 {
	v = (br*v + 128) >> 8
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

// Invalidate queues the view to be rendered at the strip's next sync.
func (l *Lights) Invalidate() {
	l.strip.Invalidate(l)
}

// ShowFor invalidates the view and then sleeps for d.
func (l *Lights) ShowFor(t *sched.Task, d time.Duration) error {
	l.Invalidate()
	return t.Sleep(d)
}
