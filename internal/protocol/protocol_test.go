package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

// buildLegacy constructs a legacy 32-byte header followed by payload.
func buildLegacy(h *Header, payload []byte) []byte {
	buf := make([]byte, LegacyHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.StreamID
	buf[6] = h.Codec
	buf[7] = h.Flags &^ FlagExtendedHeader
	binary.BigEndian.PutUint16(buf[8:10], h.Width)
	binary.BigEndian.PutUint16(buf[10:12], h.Height)
	binary.BigEndian.PutUint64(buf[12:20], h.Timestamp)
	binary.BigEndian.PutUint32(buf[20:24], h.FrameID)
	binary.BigEndian.PutUint32(buf[24:28], h.FrameSize)
	binary.BigEndian.PutUint16(buf[28:30], h.ChunkID)
	binary.BigEndian.PutUint16(buf[30:32], h.ChunksTotal)
	copy(buf[LegacyHeaderSize:], payload)
	return buf
}

func validHeader() *Header {
	return &Header{
		Magic:       DefaultMagic,
		Version:     DefaultVersion,
		StreamID:    3,
		Codec:       1,
		Width:       640,
		Height:      480,
		Timestamp:   1724668800000,
		FrameID:     7,
		FrameSize:   70000,
		ChunkID:     0,
		ChunksTotal: 3,
	}
}

func TestParseRoundTrip(t *testing.T) {
	codec := NewCodec()
	payload := bytes.Repeat([]byte{0xAB}, 100)

	want := validHeader()
	data, err := codec.Encode(want, payload)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, gotPayload, err := codec.Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got.Width != want.Width || got.Height != want.Height {
		t.Errorf("Expected dimensions %dx%d, got %dx%d", want.Width, want.Height, got.Width, got.Height)
	}
	if got.Timestamp != want.Timestamp {
		t.Errorf("Expected timestamp %d, got %d", want.Timestamp, got.Timestamp)
	}
	if got.FrameID != want.FrameID {
		t.Errorf("Expected frame ID %d, got %d", want.FrameID, got.FrameID)
	}
	if got.FrameSize != want.FrameSize {
		t.Errorf("Expected frame size %d, got %d", want.FrameSize, got.FrameSize)
	}
	if got.ChunkID != want.ChunkID || got.ChunksTotal != want.ChunksTotal {
		t.Errorf("Expected chunk %d/%d, got %d/%d", want.ChunkID, want.ChunksTotal, got.ChunkID, got.ChunksTotal)
	}
	if got.StreamID != want.StreamID || got.Codec != want.Codec {
		t.Errorf("Expected streamID/codec %d/%d, got %d/%d", want.StreamID, want.Codec, got.StreamID, got.Codec)
	}
	if !got.Extended() {
		t.Error("Encoded datagram should carry the extended header variant")
	}
	if got.PayloadLen != uint16(len(payload)) {
		t.Errorf("Expected payloadLen %d, got %d", len(payload), got.PayloadLen)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Error("Payload does not survive the round trip")
	}
}

func TestParseLegacyVariant(t *testing.T) {
	codec := NewCodec()
	payload := bytes.Repeat([]byte{0x42}, 64)

	data := buildLegacy(validHeader(), payload)

	got, gotPayload, err := codec.Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got.Extended() {
		t.Error("Legacy datagram parsed as extended")
	}
	if got.HeaderSize() != LegacyHeaderSize {
		t.Errorf("Expected header size %d, got %d", LegacyHeaderSize, got.HeaderSize())
	}
	// Legacy payload length is message length minus header size.
	if len(gotPayload) != len(payload) {
		t.Errorf("Expected %d payload bytes, got %d", len(payload), len(gotPayload))
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Error("Legacy payload corrupted")
	}
}

func TestParseNotVideoPacket(t *testing.T) {
	codec := NewCodec()

	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "empty input",
			data: []byte{},
		},
		{
			name: "short input",
			data: make([]byte, LegacyHeaderSize-1),
		},
		{
			name: "bad magic",
			data: func() []byte {
				h := validHeader()
				h.Magic = 0xDEADBEEF
				return buildLegacy(h, nil)
			}(),
		},
		{
			name: "bad version",
			data: func() []byte {
				h := validHeader()
				h.Version = 0x7F
				return buildLegacy(h, nil)
			}(),
		},
		{
			name: "extended flag but truncated header",
			data: func() []byte {
				h := validHeader()
				h.Flags = FlagExtendedHeader
				d := buildLegacy(h, nil)
				d[7] |= FlagExtendedHeader
				return d[:LegacyHeaderSize] // 32 bytes, extended needs 36
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := codec.Parse(tt.data)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !errors.Is(err, ErrNotVideoPacket) {
				t.Errorf("Expected ErrNotVideoPacket, got: %v", err)
			}
		})
	}
}

func TestParseInvalidHeader(t *testing.T) {
	codec := NewCodec()

	tests := []struct {
		name     string
		mutate   func(*Header)
		errorMsg string
	}{
		{
			name:     "zero chunksTotal",
			mutate:   func(h *Header) { h.ChunksTotal = 0 },
			errorMsg: "chunksTotal is zero",
		},
		{
			name:     "zero frameSize",
			mutate:   func(h *Header) { h.FrameSize = 0 },
			errorMsg: "frameSize is zero",
		},
		{
			name:     "chunkID out of range",
			mutate:   func(h *Header) { h.ChunkID = 3 },
			errorMsg: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := validHeader()
			tt.mutate(h)
			data := buildLegacy(h, nil)

			_, _, err := codec.Parse(data)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if errors.Is(err, ErrNotVideoPacket) {
				t.Errorf("Semantic violation should not be reported as foreign traffic: %v", err)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	codec := NewCodec()

	_, err := codec.Encode(validHeader(), make([]byte, 65536))
	if err == nil {
		t.Fatal("Expected error for payload exceeding the payloadLen field")
	}
	if !strings.Contains(err.Error(), "payload too large") {
		t.Errorf("Unexpected error: %v", err)
	}

	// The boundary value still encodes.
	if _, err := codec.Encode(validHeader(), make([]byte, 65535)); err != nil {
		t.Errorf("65535-byte payload rejected: %v", err)
	}
}

func TestParsePayloadLenTruncated(t *testing.T) {
	codec := NewCodec()

	data, err := codec.Encode(validHeader(), bytes.Repeat([]byte{1}, 50))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// Claim more payload than the datagram carries.
	binary.BigEndian.PutUint16(data[32:34], 51)

	_, _, err = codec.Parse(data)
	if err == nil {
		t.Fatal("Expected error for truncated payload")
	}
	if !strings.Contains(err.Error(), "truncated") {
		t.Errorf("Expected truncation error, got: %v", err)
	}
}

func TestParseCustomConstants(t *testing.T) {
	codec := Codec{Magic: 0x11223344, Version: 0x09, ChunkPayloadSize: 1024}

	data, err := codec.Encode(validHeader(), []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if _, _, err := codec.Parse(data); err != nil {
		t.Fatalf("Custom codec failed to parse its own output: %v", err)
	}

	// The default codec must reject it.
	if _, _, err := NewCodec().Parse(data); !errors.Is(err, ErrNotVideoPacket) {
		t.Errorf("Expected ErrNotVideoPacket from mismatched codec, got: %v", err)
	}
}
