package frame

import (
	"time"
)

// Frame is one complete encoded still image handed to the consumer once
// every chunk has arrived. Data is always exactly the frameSize declared by
// the first chunk's header; interpreting its contents (JPEG decode etc.) is
// a downstream concern.
type Frame struct {
	FrameID uint32 `json:"frame_id"`
	Width   uint16 `json:"width"`
	Height  uint16 `json:"height"`
	Data    []byte `json:"data"`

	// Created is when the assembly started (first chunk observed); used for
	// assembly-duration measurement, not published.
	Created time.Time `json:"-"`
}

// Assembler reconstructs a single in-flight frame from its chunks. The
// buffer is allocated once at construction and never resized; the received
// set is a fixed bitset over chunk indices. Assemblers are owned by a single
// writer and do no locking of their own.
type Assembler struct {
	frameID     uint32
	width       uint16
	height      uint16
	chunkSize   int
	chunksTotal uint16

	data          []byte
	received      []bool
	receivedCount int
	created       time.Time
	lastUpdate    time.Time
}

// NewAssembler creates an assembler sized by the first chunk's header. The
// header's frameSize, chunksTotal and dimensions are trusted for the whole
// assembly; later chunks of the same frame are not re-validated against
// them.
func NewAssembler(frameID uint32, frameSize uint32, chunksTotal uint16, width, height uint16, chunkSize int) *Assembler {
	now := time.Now()
	return &Assembler{
		frameID:     frameID,
		width:       width,
		height:      height,
		chunkSize:   chunkSize,
		chunksTotal: chunksTotal,
		data:        make([]byte, frameSize),
		received:    make([]bool, chunksTotal),
		created:     now,
		lastUpdate:  now,
	}
}

// AddChunk places one chunk's payload at its fixed offset and reports
// whether the frame is now complete. Invalid chunks are dropped without
// mutating any state:
//
//   - chunkID at or past chunksTotal (malformed or hostile header)
//   - a chunkID already received (duplicate delivery is idempotent)
//   - a computed offset at or past the buffer end (inconsistent header)
//
// The copy is clamped to the remaining buffer space, which both admits the
// final chunk's short payload and discards oversized payload claims. No
// other buffer region is touched. Completion is a pure count of distinct
// received chunk indices; it does not verify how many bytes each copy wrote.
func (a *Assembler) AddChunk(chunkID uint16, payload []byte) bool {
	if chunkID >= a.chunksTotal {
		return false
	}
	if a.received[chunkID] {
		return false
	}

	offset := int(chunkID) * a.chunkSize
	if offset >= len(a.data) {
		return false
	}

	bytesToCopy := len(payload)
	if remaining := len(a.data) - offset; bytesToCopy > remaining {
		bytesToCopy = remaining
	}
	copy(a.data[offset:offset+bytesToCopy], payload[:bytesToCopy])

	a.received[chunkID] = true
	a.receivedCount++
	a.lastUpdate = time.Now()

	return a.receivedCount == int(a.chunksTotal)
}

// Bytes returns the reconstruction buffer, already sized to exactly the
// declared frameSize. Ownership transfers to the caller on completion.
func (a *Assembler) Bytes() []byte {
	return a.data
}

// Frame wraps the buffer and its metadata for the consumer.
func (a *Assembler) Frame() *Frame {
	return &Frame{
		FrameID: a.frameID,
		Width:   a.width,
		Height:  a.height,
		Data:    a.data,
		Created: a.created,
	}
}

// CreatedAt returns when the assembly started.
func (a *Assembler) CreatedAt() time.Time {
	return a.created
}

// FrameID returns the identity this assembler was created for.
func (a *Assembler) FrameID() uint32 {
	return a.frameID
}

// Received reports whether a given chunk index has already been accepted.
func (a *Assembler) Received(chunkID uint16) bool {
	return chunkID < a.chunksTotal && a.received[chunkID]
}

// ReceivedCount returns the number of distinct chunks received so far.
func (a *Assembler) ReceivedCount() int {
	return a.receivedCount
}

// ChunksTotal returns the declared chunk count for this frame.
func (a *Assembler) ChunksTotal() uint16 {
	return a.chunksTotal
}

// LastUpdate returns the time of the most recent accepted chunk.
func (a *Assembler) LastUpdate() time.Time {
	return a.lastUpdate
}
