package lightshow

import (
	"encoding"
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"libdb.so/lightshow/internal/led"
	"libdb.so/lightshow/internal/lights"
	"libdb.so/lightshow/internal/spiled"
	"periph.io/x/conn/v3/physic"
)

// Transport is how frames reach the LEDs.
type Transport string

const (
	// SerialTransport streams frames to a controller board over a serial
	// port.
	SerialTransport Transport = "serial"
	// SPITransport drives the LEDs directly off an SPI bus.
	SPITransport Transport = "spi"
	// SimTransport keeps frames in memory. Combine it with Record to look
	// at a show without hardware.
	SimTransport Transport = "sim"
)

// Config is the configuration for the light show. The grid and the rings are
// one chain of LEDs: the grid first, then the feed rollers, then the ramp.
type Config struct {
	// Transport is one of "serial", "spi" or "sim".
	Transport Transport `toml:"transport"`
	// Device is the serial device of the controller board, usually
	// /dev/ttyUSB0 or /dev/ttyACM0.
	Device string `toml:"device"`
	// Baud is the baud rate for the serial connection.
	Baud int `toml:"baud"`
	// SPIPort is the periph.io name of the SPI port. Empty means the first
	// one found.
	SPIPort string `toml:"spi_port"`
	// SPIHz is the SPI clock rate. nrzled only drives WS2812 chains at
	// 2500000.
	SPIHz int64 `toml:"spi_hz"`

	// Brightness scales every rendered color, from 0 to 1.
	Brightness float64 `toml:"brightness"`
	// Seed seeds the random source. Zero seeds it from the clock.
	Seed int64 `toml:"seed"`
	// Record is a file to record every synced frame to.
	Record string `toml:"record"`
	// Play keeps dropping random droplets into the grid.
	Play bool `toml:"play"`

	Grid  GridConfig  `toml:"grid"`
	Rings RingsConfig `toml:"rings"`
}

// GridConfig configures the percolator grid.
type GridConfig struct {
	// Width is the side of the square grid.
	Width int `toml:"width"`
	// Delay is how long a droplet sits on each cell.
	Delay TOMLDuration `toml:"delay"`
	// MidDwell multiplies Delay on the midline.
	MidDwell int `toml:"mid_dwell"`
	// Stoichiometric is the per-channel amount a midline cell holds when
	// fully reacted.
	Stoichiometric []int `toml:"stoichiometric"`
	// SyncInterval is the shortest time between two frames.
	SyncInterval TOMLDuration `toml:"sync_interval"`
}

// RingsConfig configures the feed rollers and the ring ramp.
type RingsConfig struct {
	// Rollers is the number of feed roller jewels, 0 or 2.
	Rollers int `toml:"rollers"`
	// RollerSize is the number of LEDs in each roller jewel.
	RollerSize int `toml:"roller_size"`
	// RampLEDs is the number of LEDs lit along the ramp.
	RampLEDs int `toml:"ramp_leds"`
	// Circumference is the number of pixels in a whole turn of the ramp.
	Circumference int `toml:"circumference"`
	// Bottom is the ramp LED at the bottom of the ring.
	Bottom int `toml:"bottom"`
	// Gravity is the ring's gravity in pixels per second squared. Negative
	// pulls towards the bottom.
	Gravity float64 `toml:"gravity"`
	// Blur is the Gaussian blur of a ball, in pixels. Zero draws each ball
	// on one LED.
	Blur float64 `toml:"blur"`
	// Nap is the pause between two physics steps.
	Nap TOMLDuration `toml:"nap"`
	// Spin is the time a roller takes to turn by one tooth.
	Spin TOMLDuration `toml:"spin"`
	// MaxBalls caps the number of balls on the ramp.
	MaxBalls int `toml:"max_balls"`
	// SyncInterval is the shortest time between two frames.
	SyncInterval TOMLDuration `toml:"sync_interval"`

	// LowerColor and UpperColor are the leading tooth colors of the feed
	// rollers, CenterColor the color of their centers.
	LowerColor  led.RGBColor `toml:"lower_color"`
	UpperColor  led.RGBColor `toml:"upper_color"`
	CenterColor led.RGBColor `toml:"center_color"`
	// Decay scales each roller tooth after the leading one.
	Decay float64 `toml:"decay"`
}

// DefaultConfig returns the configuration of the 8x8 grid build with two
// jewel rollers and a 45-LED ramp.
func DefaultConfig() *Config {
	return &Config{
		Transport:  SimTransport,
		Device:     "/dev/ttyACM0",
		Baud:       115200,
		SPIHz:      int64(spiled.DefaultFreq / physic.Hertz),
		Brightness: 31.0 / 255,
		Grid: GridConfig{
			Width:          8,
			Delay:          TOMLDuration(100 * time.Millisecond),
			MidDwell:       14,
			Stoichiometric: []int{8, 8, 8},
			SyncInterval:   TOMLDuration(10 * time.Millisecond),
		},
		Rings: RingsConfig{
			Rollers:       2,
			RollerSize:    7,
			RampLEDs:      45,
			Circumference: 60,
			Bottom:        7,
			Gravity:       -40,
			Nap:           TOMLDuration(10 * time.Millisecond),
			Spin:          TOMLDuration(20 * time.Millisecond),
			MaxBalls:      256,
			SyncInterval:  TOMLDuration(10 * time.Millisecond),
			LowerColor:    led.RGBColor{0xff, 0x00, 0x00},
			UpperColor:    led.RGBColor{0x00, 0xff, 0x00},
			CenterColor:   led.RGBColor{0x00, 0x00, 0x08},
			Decay:         0.3,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Transport {
	case SerialTransport:
		if c.Device == "" {
			return errors.New("serial transport needs a device")
		}
		if c.Baud <= 0 {
			return fmt.Errorf("invalid baud rate %d", c.Baud)
		}
	case SPITransport:
		if c.SPIFreq() != spiled.DefaultFreq {
			return fmt.Errorf("unsupported SPI rate %d, WS2812 chains need %d", c.SPIHz, int64(spiled.DefaultFreq/physic.Hertz))
		}
	case SimTransport:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	if c.Brightness < 0 || c.Brightness > 1 {
		return fmt.Errorf("brightness %v is not within [0, 1]", c.Brightness)
	}

	g := c.Grid
	if g.Width < 2 {
		return fmt.Errorf("grid width %d is too small", g.Width)
	}
	if g.Width*g.Width > 0xFFFF {
		return fmt.Errorf("grid width %d is too large", g.Width)
	}
	if g.Delay <= 0 || g.SyncInterval <= 0 {
		return errors.New("grid delay and sync interval must be positive")
	}
	if g.MidDwell < 1 {
		return fmt.Errorf("invalid mid_dwell %d", g.MidDwell)
	}
	if len(g.Stoichiometric) != 3 {
		return fmt.Errorf("stoichiometric needs 3 channels, got %d", len(g.Stoichiometric))
	}
	for _, v := range g.Stoichiometric {
		if v <= 0 {
			return fmt.Errorf("stoichiometric %v must be positive", g.Stoichiometric)
		}
	}

	// The serial protocol and the recording format carry LED counts in a
	// uint16.
	if n := c.NumLEDs(); n > 0xFFFF {
		return fmt.Errorf("chain of %d LEDs is too long", n)
	}
	if n := c.NumLEDs(); c.Record != "" && 8+3*n > 0xFFFF {
		return fmt.Errorf("chain of %d LEDs is too long to record", n)
	}

	r := c.Rings
	if r.Rollers != 0 && r.Rollers != 2 {
		return fmt.Errorf("rollers must be 0 or 2, got %d", r.Rollers)
	}
	if r.Rollers > 0 && r.RollerSize < 2 {
		return fmt.Errorf("roller size %d is too small", r.RollerSize)
	}
	if r.RampLEDs <= 0 {
		return fmt.Errorf("invalid ramp_leds %d", r.RampLEDs)
	}
	if r.Circumference < r.RampLEDs {
		return fmt.Errorf("circumference %d is shorter than the %d lit LEDs", r.Circumference, r.RampLEDs)
	}
	if r.Bottom < 0 || r.Bottom >= r.Circumference {
		return fmt.Errorf("bottom %d is not on the ring", r.Bottom)
	}
	if r.Blur < 0 {
		return fmt.Errorf("invalid blur %v", r.Blur)
	}
	if r.Nap <= 0 || r.Spin <= 0 || r.SyncInterval <= 0 {
		return errors.New("ring nap, spin and sync interval must be positive")
	}
	if r.MaxBalls <= 0 {
		return fmt.Errorf("invalid max_balls %d", r.MaxBalls)
	}

	return nil
}

// GridLEDs returns the number of LEDs in the grid.
func (c *Config) GridLEDs() int {
	return c.Grid.Width * c.Grid.Width
}

// RingLEDs returns the number of LEDs in the rollers and the ramp.
func (c *Config) RingLEDs() int {
	return c.Rings.Rollers*c.Rings.RollerSize + c.Rings.RampLEDs
}

// SPIFreq returns the SPI clock rate.
func (c *Config) SPIFreq() physic.Frequency {
	return physic.Frequency(c.SPIHz) * physic.Hertz
}

// NumLEDs returns the number of LEDs in the whole chain.
func (c *Config) NumLEDs() int {
	return c.GridLEDs() + c.RingLEDs()
}

// Threshold returns the stoichiometric threshold as a color.
func (c *Config) Threshold() lights.Color {
	var thr lights.Color
	copy(thr[:], c.Grid.Stoichiometric)
	return thr
}

// TOMLDuration is a duration that can be parsed from TOML.
type TOMLDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*TOMLDuration)(nil)
	_ encoding.TextMarshaler   = (*TOMLDuration)(nil)
)

func (d *TOMLDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TOMLDuration(duration)
	return nil
}

func (d TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ParseConfig parses a configuration from a reader. Anything the reader
// leaves out keeps its DefaultConfig value.
func ParseConfig(r io.Reader) (*Config, error) {
	config := DefaultConfig()
	if err := toml.NewDecoder(r).Decode(config); err != nil {
		return nil, err
	}
	return config, nil
}
