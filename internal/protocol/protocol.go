package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Protocol constants from specification
const (
	// DefaultMagic is the 4-byte packet preamble ("VIDF")
	DefaultMagic uint32 = 0x56494446

	// DefaultVersion is the only supported protocol version
	DefaultVersion uint8 = 0x01

	// DefaultChunkPayloadSize is the fixed maximum payload per chunk.
	// A chunk's byte offset inside the frame buffer is chunkID times this value.
	DefaultChunkPayloadSize = 32768

	// Header sizes for the two wire variants
	LegacyHeaderSize   = 32 // no payloadLen field
	ExtendedHeaderSize = 36 // payloadLen (2) + reserved (2)

	// FlagExtendedHeader marks a datagram carrying the extended header variant
	FlagExtendedHeader uint8 = 0x01
)

// ErrNotVideoPacket is returned when the input does not look like this
// protocol at all (too short, wrong magic, wrong version). Callers treat
// such datagrams as foreign traffic, not as a fault.
var ErrNotVideoPacket = errors.New("not a video packet")

// Header represents the decoded fixed-layout datagram header.
// Layout (big-endian):
// [Magic:4][Version:1][StreamID:1][Codec:1][Flags:1][Width:2][Height:2]
// [Timestamp:8][FrameID:4][FrameSize:4][ChunkID:2][ChunksTotal:2]
// plus [PayloadLen:2][Reserved:2] for the extended variant.
type Header struct {
	Magic       uint32
	Version     uint8
	StreamID    uint8 // unused by the reassembly core
	Codec       uint8 // unused by the reassembly core
	Flags       uint8
	Width       uint16 // frame width in pixels
	Height      uint16 // frame height in pixels
	Timestamp   uint64 // unused by the reassembly core
	FrameID     uint32 // identifies one reconstructed frame
	FrameSize   uint32 // total reconstructed byte length
	ChunkID     uint16 // zero-based chunk index
	ChunksTotal uint16 // chunk count for this frame
	PayloadLen  uint16 // extended variant only
}

// Extended reports whether the header uses the payloadLen-bearing variant.
func (h *Header) Extended() bool {
	return h.Flags&FlagExtendedHeader != 0
}

// HeaderSize returns the wire size of this header's variant.
func (h *Header) HeaderSize() int {
	if h.Extended() {
		return ExtendedHeaderSize
	}
	return LegacyHeaderSize
}

// String returns a human-readable representation of the header.
func (h *Header) String() string {
	return fmt.Sprintf("Header{Frame:%d, Chunk:%d/%d, Size:%d, Dim:%dx%d}",
		h.FrameID, h.ChunkID, h.ChunksTotal, h.FrameSize, h.Width, h.Height)
}

// Codec decodes and encodes protocol datagrams. Magic, version and chunk
// payload size are explicit configuration, not package globals.
type Codec struct {
	Magic            uint32
	Version          uint8
	ChunkPayloadSize int
}

// NewCodec creates a codec with the default protocol constants.
func NewCodec() Codec {
	return Codec{
		Magic:            DefaultMagic,
		Version:          DefaultVersion,
		ChunkPayloadSize: DefaultChunkPayloadSize,
	}
}

// Parse decodes one datagram into a validated header plus its payload slice.
// The returned payload aliases data; callers that retain it past the
// datagram's lifetime must copy. Short input, bad magic and bad version wrap
// ErrNotVideoPacket; semantic violations (chunkID out of range, zero
// frameSize or chunksTotal, truncated payload) are plain errors so the
// caller can count them apart from foreign traffic.
func (c Codec) Parse(data []byte) (*Header, []byte, error) {
	if len(data) < LegacyHeaderSize {
		return nil, nil, fmt.Errorf("%w: %d bytes, need at least %d",
			ErrNotVideoPacket, len(data), LegacyHeaderSize)
	}

	magic := binary.BigEndian.Uint32(data[0:4])
	if magic != c.Magic {
		return nil, nil, fmt.Errorf("%w: magic 0x%08x", ErrNotVideoPacket, magic)
	}

	version := data[4]
	if version != c.Version {
		return nil, nil, fmt.Errorf("%w: version 0x%02x", ErrNotVideoPacket, version)
	}

	header := &Header{
		Magic:       magic,
		Version:     version,
		StreamID:    data[5],
		Codec:       data[6],
		Flags:       data[7],
		Width:       binary.BigEndian.Uint16(data[8:10]),
		Height:      binary.BigEndian.Uint16(data[10:12]),
		Timestamp:   binary.BigEndian.Uint64(data[12:20]),
		FrameID:     binary.BigEndian.Uint32(data[20:24]),
		FrameSize:   binary.BigEndian.Uint32(data[24:28]),
		ChunkID:     binary.BigEndian.Uint16(data[28:30]),
		ChunksTotal: binary.BigEndian.Uint16(data[30:32]),
	}

	headerSize := LegacyHeaderSize
	if header.Extended() {
		if len(data) < ExtendedHeaderSize {
			return nil, nil, fmt.Errorf("%w: %d bytes, extended header needs %d",
				ErrNotVideoPacket, len(data), ExtendedHeaderSize)
		}
		header.PayloadLen = binary.BigEndian.Uint16(data[32:34])
		headerSize = ExtendedHeaderSize
	}

	if err := ValidateHeader(header); err != nil {
		return nil, nil, err
	}

	payload := data[headerSize:]
	if header.Extended() {
		if int(header.PayloadLen) > len(payload) {
			return nil, nil, fmt.Errorf("payload truncated: header says %d bytes, got %d",
				header.PayloadLen, len(payload))
		}
		payload = payload[:header.PayloadLen]
	}

	return header, payload, nil
}

// ValidateHeader checks the semantic invariants of an already decoded header.
func ValidateHeader(h *Header) error {
	if h.ChunksTotal == 0 {
		return fmt.Errorf("invalid header: chunksTotal is zero")
	}
	if h.FrameSize == 0 {
		return fmt.Errorf("invalid header: frameSize is zero")
	}
	if h.ChunkID >= h.ChunksTotal {
		return fmt.Errorf("invalid header: chunkID %d out of range (chunksTotal %d)",
			h.ChunkID, h.ChunksTotal)
	}
	return nil
}

// Encode builds one extended-variant datagram from a header and payload.
// Magic, version, the extended flag and payloadLen are filled in from the
// codec and the payload; the remaining fields are taken from h. The payload
// must fit the 16-bit payloadLen field; larger payloads are rejected rather
// than silently truncated on the wire.
func (c Codec) Encode(h *Header, payload []byte) ([]byte, error) {
	if len(payload) > math.MaxUint16 {
		return nil, fmt.Errorf("payload too large for one datagram: %d bytes (max %d)",
			len(payload), math.MaxUint16)
	}

	buf := make([]byte, ExtendedHeaderSize+len(payload))

	binary.BigEndian.PutUint32(buf[0:4], c.Magic)
	buf[4] = c.Version
	buf[5] = h.StreamID
	buf[6] = h.Codec
	buf[7] = h.Flags | FlagExtendedHeader
	binary.BigEndian.PutUint16(buf[8:10], h.Width)
	binary.BigEndian.PutUint16(buf[10:12], h.Height)
	binary.BigEndian.PutUint64(buf[12:20], h.Timestamp)
	binary.BigEndian.PutUint32(buf[20:24], h.FrameID)
	binary.BigEndian.PutUint32(buf[24:28], h.FrameSize)
	binary.BigEndian.PutUint16(buf[28:30], h.ChunkID)
	binary.BigEndian.PutUint16(buf[30:32], h.ChunksTotal)
	binary.BigEndian.PutUint16(buf[32:34], uint16(len(payload)))
	copy(buf[ExtendedHeaderSize:], payload)

	return buf, nil
}
