package led

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"
)

// Recorder is a Buffer that records every synced frame to a writer before
// passing the sync on to the wrapped buffer.
//
// Each record is a little-endian uint16 length (of what follows), a
// little-endian uint64 timestamp in microseconds since the Unix epoch, and
// three bytes per LED.
type Recorder struct {
	Buffer
	w   io.Writer
	now func() time.Time
	buf []byte
}

var _ Buffer = (*Recorder)(nil)

// NewRecorder wraps buf so that each Sync is also written to w. If now is nil,
// time.Now is used.
func NewRecorder(buf Buffer, w io.Writer, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		Buffer: buf,
		w:      w,
		now:    now,
	}
}

// Sync records the current frame and then syncs the wrapped buffer.
func (r *Recorder) Sync() error {
	n := r.Buffer.Len()
	size := 2 + 8 + 3*n
	if 8+3*n > 0xFFFF {
		return errors.Errorf("frame of %d LEDs is too large to record", n)
	}

	if cap(r.buf) < size {
		r.buf = make([]byte, size)
	}
	b := r.buf[:size]

	binary.LittleEndian.PutUint16(b[0:], uint16(8+3*n))
	binary.LittleEndian.PutUint64(b[2:], uint64(r.now().UnixMicro()))
	for i := 0; i < n; i++ {
		c := r.Buffer.LED(i)
		copy(b[10+3*i:], c[:])
	}

	if _, err := r.w.Write(b); err != nil {
		return errors.Wrap(err, "failed to record frame")
	}

	return r.Buffer.Sync()
}

// Frame is a single recorded frame.
type Frame struct {
	Time time.Time
	LEDs LEDs
}

// Playback reads frames written by a Recorder.
type Playback struct {
	r io.Reader
}

// NewPlayback creates a new Playback reading from r.
func NewPlayback(r io.Reader) *Playback {
	return &Playback{r: r}
}

// Next reads the next frame. It returns io.EOF when there are no more frames;
// a truncated trailing frame is also treated as the end of the recording.
func (p *Playback) Next() (Frame, error) {
	var hdr [10]byte
	if _, err := io.ReadFull(p.r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, err
	}

	length := int(binary.LittleEndian.Uint16(hdr[0:]))
	if length < 8 || (length-8)%3 != 0 {
		return Frame{}, errors.Errorf("invalid frame length %d", length)
	}

	usec := binary.LittleEndian.Uint64(hdr[2:])
	leds := NewLEDs((length - 8) / 3)
	if _, err := io.ReadFull(p.r, leds.AsPixels()); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, err
	}

	return Frame{
		Time: time.UnixMicro(int64(usec)),
		LEDs: leds,
	}, nil
}
