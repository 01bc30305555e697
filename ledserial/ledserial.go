// Package ledserial implements the serial protocol spoken between the host
// and an LED controller board. Each packet is a type byte, a payload, and a
// little-endian CRC-32 (IEEE) of the type byte and payload.
package ledserial

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// Endianness defines the endianness of the protocol.
var Endianness = binary.LittleEndian

// ErrChecksum is returned when a packet fails its checksum.
var ErrChecksum = errors.New("packet checksum mismatch")

// IncomingPacketType is the type of a packet sent to the controller.
type IncomingPacketType uint8

const (
	TypeInitializePacket IncomingPacketType = iota
	TypeClearPacket
	TypeSetPacket
)

// String returns a string representation of the packet type.
func (t IncomingPacketType) String() string {
	switch t {
	case TypeInitializePacket:
		return "initialize"
	case TypeClearPacket:
		return "clear"
	case TypeSetPacket:
		return "set"
	default:
		return fmt.Sprintf("IncomingPacketType(%d)", t)
	}
}

// IncomingPacket is a packet sent to the controller.
type IncomingPacket interface {
	// Type returns the type of packet.
	Type() IncomingPacketType
}

// InitializePacket tells the controller how many LEDs it drives.
type InitializePacket struct {
	NumLEDs uint16
}

// ClearPacket turns every LED off.
type ClearPacket struct{}

// SetPacket sets every LED. Pix holds three bytes per LED.
type SetPacket struct {
	Pix []uint8
}

func (p InitializePacket) Type() IncomingPacketType { return TypeInitializePacket }
func (p ClearPacket) Type() IncomingPacketType      { return TypeClearPacket }
func (p SetPacket) Type() IncomingPacketType        { return TypeSetPacket }

// OutgoingPacketType is the type of a packet sent by the controller.
type OutgoingPacketType uint8

const (
	TypeErrorPacket OutgoingPacketType = iota
	TypePanicPacket
	TypeLogPacket
	TypeAckPacket
)

// String returns a string representation of the packet type.
func (t OutgoingPacketType) String() string {
	switch t {
	case TypeErrorPacket:
		return "error"
	case TypePanicPacket:
		return "panic"
	case TypeLogPacket:
		return "log"
	case TypeAckPacket:
		return "ack"
	default:
		return fmt.Sprintf("OutgoingPacketType(%d)", t)
	}
}

// OutgoingPacket is a packet sent by the controller.
type OutgoingPacket interface {
	// Type returns the type of packet.
	Type() OutgoingPacketType
}

// ErrorPacket is a packet that indicates an error occurred.
type ErrorPacket struct {
	Message string
}

// PanicPacket is a packet that indicates the controller cannot recover.
type PanicPacket struct {
	Message string
}

// LogPacket is a packet that contains a log message.
type LogPacket struct {
	Message string
}

// AckPacket acknowledges that an incoming packet has been applied.
type AckPacket struct {
	IncomingPacketType IncomingPacketType
}

func (p ErrorPacket) Type() OutgoingPacketType { return TypeErrorPacket }
func (p PanicPacket) Type() OutgoingPacketType { return TypePanicPacket }
func (p LogPacket) Type() OutgoingPacketType   { return TypeLogPacket }
func (p AckPacket) Type() OutgoingPacketType   { return TypeAckPacket }

// ReadContext is what the reader must know about the strip to read
// incoming packets.
type ReadContext struct {
	// NumLEDs is the number of LEDs in the strip.
	NumLEDs uint16
}

// packetReader reads a packet body while hashing everything it reads.
type packetReader struct {
	r    io.Reader
	hash interface{ Sum32() uint32 }
}

func newPacketReader(r io.Reader) *packetReader {
	hash := crc32.NewIEEE()
	return &packetReader{r: io.TeeReader(r, hash), hash: hash}
}

func (r *packetReader) readByte() (uint8, error) {
	var b [1]byte
	_, err := io.ReadFull(r.r, b[:])
	return b[0], err
}

func (r *packetReader) readMessage() (string, error) {
	var length uint16
	if err := binary.Read(r.r, Endianness, &length); err != nil {
		return "", errors.Wrap(err, "failed to read message length")
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", errors.Wrap(err, "failed to read message")
	}
	return string(buf), nil
}

// verify reads the trailing checksum. It must be called after the whole body
// has been read.
func (r *packetReader) verify(raw io.Reader) error {
	sum := r.hash.Sum32()
	var checksum uint32
	if err := binary.Read(raw, Endianness, &checksum); err != nil {
		return errors.Wrap(err, "failed to read packet checksum")
	}
	if checksum != sum {
		return ErrChecksum
	}
	return nil
}

// packetWriter buffers a packet so that it goes out in one write.
type packetWriter struct {
	buf bytes.Buffer
}

func (w *packetWriter) writeByte(b uint8) { w.buf.WriteByte(b) }

func (w *packetWriter) writeUint16(v uint16) {
	var b [2]byte
	Endianness.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *packetWriter) writeMessage(s string) error {
	if len(s) > 0xFFFF {
		return errors.Errorf("message too long (%d bytes)", len(s))
	}
	w.writeUint16(uint16(len(s)))
	w.buf.WriteString(s)
	return nil
}

func (w *packetWriter) flush(dst io.Writer) error {
	var sum [4]byte
	Endianness.PutUint32(sum[:], crc32.ChecksumIEEE(w.buf.Bytes()))
	w.buf.Write(sum[:])

	if _, err := dst.Write(w.buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write packet")
	}
	return nil
}

// ReadIncomingPacket reads a packet sent to the controller.
func ReadIncomingPacket(r io.Reader, context ReadContext) (IncomingPacket, error) {
	pr := newPacketReader(r)

	ptype, err := pr.readByte()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read incoming packet type")
	}

	var packet IncomingPacket
	switch ptype := IncomingPacketType(ptype); ptype {
	case TypeInitializePacket:
		var p InitializePacket
		if err := binary.Read(pr.r, Endianness, &p); err != nil {
			return nil, errors.Wrap(err, "failed to read number of LEDs")
		}
		packet = p

	case TypeClearPacket:
		packet = ClearPacket{}

	case TypeSetPacket:
		p := SetPacket{Pix: make([]uint8, 3*int(context.NumLEDs))}
		if _, err := io.ReadFull(pr.r, p.Pix); err != nil {
			return nil, errors.Wrap(err, "failed to read pixel data")
		}
		packet = p

	default:
		return nil, errors.Errorf("unknown packet type: %s", ptype)
	}

	if err := pr.verify(r); err != nil {
		return nil, err
	}
	return packet, nil
}

// WriteIncomingPacket writes a packet for the controller in a single write.
func WriteIncomingPacket(w io.Writer, p IncomingPacket) error {
	var pw packetWriter
	pw.writeByte(uint8(p.Type()))

	switch p := p.(type) {
	case InitializePacket:
		pw.writeUint16(p.NumLEDs)
	case ClearPacket:
	case SetPacket:
		pw.buf.Write(p.Pix)
	default:
		return errors.Errorf("unknown packet type: %T", p)
	}

	return pw.flush(w)
}

// ReadOutgoingPacket reads a packet sent by the controller.
func ReadOutgoingPacket(r io.Reader) (OutgoingPacket, error) {
	pr := newPacketReader(r)

	ptype, err := pr.readByte()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read outgoing packet type")
	}

	var packet OutgoingPacket
	switch ptype := OutgoingPacketType(ptype); ptype {
	case TypeErrorPacket:
		msg, err := pr.readMessage()
		if err != nil {
			return nil, err
		}
		packet = ErrorPacket{Message: msg}

	case TypePanicPacket:
		msg, err := pr.readMessage()
		if err != nil {
			return nil, err
		}
		packet = PanicPacket{Message: msg}

	case TypeLogPacket:
		msg, err := pr.readMessage()
		if err != nil {
			return nil, err
		}
		packet = LogPacket{Message: msg}

	case TypeAckPacket:
		acked, err := pr.readByte()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read acked packet type")
		}
		packet = AckPacket{IncomingPacketType: IncomingPacketType(acked)}

	default:
		return nil, errors.Errorf("unknown packet type: %s", ptype)
	}

	if err := pr.verify(r); err != nil {
		return nil, err
	}
	return packet, nil
}

// WriteOutgoingPacket writes a packet from the controller in a single write.
func WriteOutgoingPacket(w io.Writer, p OutgoingPacket) error {
	var pw packetWriter
	pw.writeByte(uint8(p.Type()))

	var err error
	switch p := p.(type) {
	case ErrorPacket:
		err = pw.writeMessage(p.Message)
	case PanicPacket:
		err = pw.writeMessage(p.Message)
	case LogPacket:
		err = pw.writeMessage(p.Message)
	case AckPacket:
		pw.writeByte(uint8(p.IncomingPacketType))
	default:
		return errors.Errorf("unknown packet type: %T", p)
	}
	if err != nil {
		return err
	}

	return pw.flush(w)
}
