// ABOUTME: Tests for IPC frame encoding and reassembly
// ABOUTME: Covers round trips, split reads and held malformed frames
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHeader(t *testing.T) {
	packet, err := Encode(OpFrame, map[string]int{"a": 1})
	require.NoError(t, err)

	body := `{"a":1}`
	require.Len(t, packet, HeaderSize+len(body))
	assert.Equal(t, uint32(OpFrame), binary.LittleEndian.Uint32(packet[0:4]))
	assert.Equal(t, uint32(len(body)), binary.LittleEndian.Uint32(packet[4:8]))
	assert.Equal(t, body, string(packet[HeaderSize:]))
}

func TestFrameRoundTrip(t *testing.T) {
	payloads := []any{
		map[string]any{"v": 1.0, "client_id": "123"},
		map[string]any{"cmd": "GET_GUILDS", "args": map[string]any{}, "nonce": "n"},
		[]any{1.5, "two", nil, true},
		"plain string with unicode é世",
		42.0,
		map[string]any{},
	}
	ops := []Opcode{OpHandshake, OpFrame, OpClose, OpPing, OpPong, OpFrame}

	var stream []byte
	for i, p := range payloads {
		packet, err := Encode(ops[i], p)
		require.NoError(t, err)
		stream = append(stream, packet...)
	}

	check := func(t *testing.T, frames []Frame) {
		require.Len(t, frames, len(payloads))
		for i, f := range frames {
			assert.Equal(t, ops[i], f.Op)
			var got any
			require.NoError(t, json.Unmarshal(f.Payload, &got))
			assert.Equal(t, payloads[i], got)
		}
	}

	t.Run("single read", func(t *testing.T) {
		var d Decoder
		frames, err := d.Feed(stream)
		require.NoError(t, err)
		check(t, frames)
		assert.Zero(t, d.Buffered())
	})

	t.Run("byte at a time", func(t *testing.T) {
		var d Decoder
		var frames []Frame
		for i := range stream {
			got, err := d.Feed(stream[i : i+1])
			require.NoError(t, err)
			frames = append(frames, got...)
		}
		check(t, frames)
	})

	t.Run("random splits", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		for iter := 0; iter < 50; iter++ {
			var d Decoder
			var frames []Frame
			rest := stream
			for len(rest) > 0 {
				n := 1 + rng.Intn(len(rest))
				got, err := d.Feed(rest[:n])
				require.NoError(t, err)
				frames = append(frames, got...)
				rest = rest[n:]
			}
			check(t, frames)
		}
	})
}

func TestDecoderHoldsPartialFrame(t *testing.T) {
	packet, err := Encode(OpFrame, map[string]string{"evt": "READY"})
	require.NoError(t, err)

	var d Decoder
	frames, err := d.Feed(packet[:5])
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.Equal(t, 5, d.Buffered())

	frames, err = d.Feed(packet[5:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"evt":"READY"}`, string(frames[0].Payload))
}

func TestDecoderHoldsMalformedFrame(t *testing.T) {
	good, err := Encode(OpFrame, map[string]int{"n": 1})
	require.NoError(t, err)

	bad := make([]byte, HeaderSize+3)
	binary.LittleEndian.PutUint32(bad[0:4], uint32(OpFrame))
	binary.LittleEndian.PutUint32(bad[4:8], 3)
	copy(bad[HeaderSize:], "{{{")

	var d Decoder
	stream := append(append([]byte{}, good...), bad...)
	frames, err := d.Feed(stream)
	require.ErrorIs(t, err, ErrMalformedFrame)
	require.Len(t, frames, 1)
	assert.Equal(t, len(bad), d.Buffered())

	// still held, and later frames queue behind it
	frames, err = d.Feed(good)
	require.ErrorIs(t, err, ErrMalformedFrame)
	assert.Empty(t, frames)
	assert.Equal(t, len(bad)+len(good), d.Buffered())
}

func TestDecoderNegativeLength(t *testing.T) {
	bad := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(bad[0:4], uint32(OpFrame))
	binary.LittleEndian.PutUint32(bad[4:8], 0xFFFFFFFF)

	var d Decoder
	_, err := d.Feed(bad)
	require.ErrorIs(t, err, ErrMalformedFrame)
	assert.Equal(t, HeaderSize, d.Buffered())
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "HANDSHAKE", OpHandshake.String())
	assert.Equal(t, "PONG", OpPong.String())
	assert.Equal(t, "OPCODE(9)", Opcode(9).String())
}
