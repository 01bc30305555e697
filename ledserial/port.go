package ledserial

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"libdb.so/lightshow/internal/led"
)

// DefaultAckTimeout is how long Sync waits for the controller to ack the
// previous packet before sending the next one anyway.
const DefaultAckTimeout = 100 * time.Millisecond

// Port is an LED buffer on a controller at the other end of a serial line.
// Sync sends the whole frame as a SetPacket, but only once the controller
// has acked the previous packet; ReadLoop must be running to see the acks.
type Port struct {
	led.LEDs
	rw     io.ReadWriter
	logger *slog.Logger
	acks   chan IncomingPacketType

	// AckTimeout bounds how long Sync waits for an ack.
	AckTimeout time.Duration

	initialized bool
	waiting     bool
}

var _ led.Buffer = (*Port)(nil)

// NewPort creates a port of numLEDs LEDs talking over rw.
func NewPort(rw io.ReadWriter, numLEDs int, logger *slog.Logger) *Port {
	if logger == nil {
		logger = slog.Default()
	}
	return &Port{
		LEDs:       led.NewLEDs(numLEDs),
		rw:         rw,
		logger:     logger,
		acks:       make(chan IncomingPacketType, 1),
		AckTimeout: DefaultAckTimeout,
	}
}

// Open opens the serial device and returns a port over it.
func Open(device string, baud, numLEDs int, logger *slog.Logger) (*Port, error) {
	sp, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open serial port")
	}

	if err := sp.SetReadTimeout(serial.NoTimeout); err != nil {
		sp.Close()
		return nil, errors.Wrap(err, "failed to reset read timeout")
	}

	return NewPort(sp, numLEDs, logger), nil
}

// Close closes the underlying connection, which also stops ReadLoop.
func (p *Port) Close() error {
	if c, ok := p.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Sync sends the current frame. The first Sync initializes the controller.
func (p *Port) Sync() error {
	if !p.initialized {
		if p.Len() > 0xFFFF {
			return errors.Errorf("cannot drive %d LEDs, at most %d", p.Len(), 0xFFFF)
		}
		p.logger.Debug("sending initialize packet", "leds", p.Len())
		if err := p.write(InitializePacket{NumLEDs: uint16(p.Len())}); err != nil {
			return errors.Wrap(err, "failed to initialize LEDs")
		}
		p.initialized = true
	}

	p.waitAck()
	return p.write(SetPacket{Pix: p.AsPixels()})
}

func (p *Port) write(packet IncomingPacket) error {
	p.logger.Debug("writing packet", "type", packet.Type())
	if err := WriteIncomingPacket(p.rw, packet); err != nil {
		return err
	}
	p.waiting = true
	return nil
}

func (p *Port) waitAck() {
	if !p.waiting {
		return
	}
	p.waiting = false

	timer := time.NewTimer(p.AckTimeout)
	defer timer.Stop()

	select {
	case t := <-p.acks:
		p.logger.Debug("received ack packet from controller", "acked_for", t)
	case <-timer.C:
		p.logger.Warn("no ack from controller, sending anyway", "timeout", p.AckTimeout)
	}
}

// ReadLoop reads packets from the controller until ctx is done, the
// connection is closed, or the controller reports a failure.
func (p *Port) ReadLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		packet, err := ReadOutgoingPacket(p.rw)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, io.EOF) {
				p.logger.Debug("serial connection closed")
				return nil
			}
			// A short read mid-packet means the line glitched; resync on
			// the next packet.
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrChecksum) {
				p.logger.Warn("dropped bad packet from controller", "error", err)
				continue
			}
			return errors.Wrap(err, "failed to read packet")
		}

		switch packet := packet.(type) {
		case AckPacket:
			select {
			case p.acks <- packet.IncomingPacketType:
			default:
			}

		case ErrorPacket:
			p.logger.Warn(
				"received error packet from controller",
				"message", packet.Message)
			return errors.Errorf("controller reported error: %s", packet.Message)

		case PanicPacket:
			p.logger.Error(
				"controller unrecoverably panicked",
				"message", packet.Message)
			return errors.Errorf("controller panicked: %s", packet.Message)

		case LogPacket:
			p.logger.Info(
				"received log packet from controller",
				"message", packet.Message)
		}
	}

	return ctx.Err()
}
