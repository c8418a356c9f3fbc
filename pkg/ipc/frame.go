// ABOUTME: Wire framing for Discord IPC packets
// ABOUTME: Encodes frames and reassembles them from partial reads
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// Opcode identifies the kind of IPC packet.
type Opcode int32

const (
	OpHandshake Opcode = 0
	OpFrame     Opcode = 1
	OpClose     Opcode = 2
	OpPing      Opcode = 3
	OpPong      Opcode = 4
)

// HeaderSize is the size of the opcode + length prefix.
const HeaderSize = 8

// ErrMalformedFrame is returned by Decoder.Feed when a complete frame does
// not carry a JSON body. The bytes stay buffered.
var ErrMalformedFrame = errors.New("malformed ipc frame")

func (op Opcode) String() string {
	switch op {
	case OpHandshake:
		return "HANDSHAKE"
	case OpFrame:
		return "FRAME"
	case OpClose:
		return "CLOSE"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	default:
		return fmt.Sprintf("OPCODE(%d)", int32(op))
	}
}

// Frame is one decoded packet.
type Frame struct {
	Op      Opcode
	Payload json.RawMessage
}

// Encode marshals payload and prefixes it with the frame header.
func Encode(op Opcode, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", op, err)
	}

	packet := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(packet[0:4], uint32(op))
	binary.LittleEndian.PutUint32(packet[4:8], uint32(len(body)))
	copy(packet[HeaderSize:], body)
	return packet, nil
}

// Decoder reassembles frames from a byte stream delivered in arbitrary
// chunks. It is not safe for concurrent use.
type Decoder struct {
	pending []byte
}

// Feed appends data to the pending buffer and returns every frame that is
// now complete, in stream order. Incomplete trailing bytes are kept for the
// next call.
//
// A complete frame with a negative length or a body that is not JSON stops
// decoding: the frame stays at the head of the buffer and ErrMalformedFrame
// is returned alongside any frames decoded before it.
func (d *Decoder) Feed(data []byte) ([]Frame, error) {
	d.pending = append(d.pending, data...)

	var frames []Frame
	for len(d.pending) >= HeaderSize {
		op := Opcode(int32(binary.LittleEndian.Uint32(d.pending[0:4])))
		length := int32(binary.LittleEndian.Uint32(d.pending[4:8]))
		if length < 0 {
			return frames, fmt.Errorf("%w: negative length %d", ErrMalformedFrame, length)
		}

		end := HeaderSize + int(length)
		if len(d.pending) < end {
			break
		}

		body := d.pending[HeaderSize:end]
		if !json.Valid(body) {
			return frames, fmt.Errorf("%w: %s body of %d bytes is not JSON", ErrMalformedFrame, op, length)
		}

		payload := make(json.RawMessage, len(body))
		copy(payload, body)
		frames = append(frames, Frame{Op: op, Payload: payload})

		d.pending = d.pending[end:]
	}

	if len(d.pending) == 0 {
		d.pending = nil
	}
	return frames, nil
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (d *Decoder) Buffered() int {
	return len(d.pending)
}
