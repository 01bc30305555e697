// Package spiled drives a WS2812 chain wired to an SPI bus, using the SPI
// port to clock out the NRZ bit stream.
package spiled

import (
	"github.com/pkg/errors"
	"libdb.so/lightshow/internal/led"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"
)

// DefaultFreq is the SPI clock for an 800kHz WS2812 chain: nrzled spends
// three SPI bits on each NRZ bit, and only accepts this rate.
const DefaultFreq = 2500 * physic.KiloHertz

// Buffer is a led.Buffer whose Sync writes the frame to an nrzled device.
type Buffer struct {
	led.LEDs
	dev  *nrzled.Dev
	port spi.Port
}

var _ led.Buffer = (*Buffer)(nil)

// New creates a buffer of numLEDs LEDs on the given SPI port. A zero freq
// means DefaultFreq.
func New(port spi.Port, numLEDs int, freq physic.Frequency) (*Buffer, error) {
	if freq == 0 {
		freq = DefaultFreq
	}

	dev, err := nrzled.NewSPI(port, &nrzled.Opts{
		NumPixels: numLEDs,
		Channels:  3,
		Freq:      freq,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create nrzled device")
	}

	return &Buffer{
		LEDs: led.NewLEDs(numLEDs),
		dev:  dev,
		port: port,
	}, nil
}

// Open initializes the host drivers and opens the named SPI port. An empty
// name opens the first port available.
func Open(name string, numLEDs int, freq physic.Frequency) (*Buffer, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize host drivers")
	}

	port, err := spireg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open SPI port %q", name)
	}

	b, err := New(port, numLEDs, freq)
	if err != nil {
		port.Close()
		return nil, err
	}

	return b, nil
}

// Sync writes the frame out to the LEDs.
func (b *Buffer) Sync() error {
	if _, err := b.dev.Write(b.AsPixels()); err != nil {
		return errors.Wrap(err, "failed to write to SPI")
	}
	return nil
}

// Close turns the LEDs off and closes the port if it can be closed.
func (b *Buffer) Close() error {
	if err := b.dev.Halt(); err != nil {
		return errors.Wrap(err, "failed to halt LEDs")
	}
	if c, ok := b.port.(spi.PortCloser); ok {
		return c.Close()
	}
	return nil
}

func (b *Buffer) String() string {
	return b.dev.String()
}
