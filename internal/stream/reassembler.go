package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/framecast/udp-video-service/internal/frame"
	"github.com/framecast/udp-video-service/internal/protocol"
)

// Reassembler routes incoming chunks to per-frame assemblers and evicts
// stale assemblies under capacity pressure. The datagram path is a single
// writer; the mutex exists because the HTTP API reads table statistics
// concurrently.
type Reassembler struct {
	assemblers map[uint32]*frame.Assembler
	mu         sync.Mutex
	logger     *slog.Logger

	chunkSize   int
	maxFrames   int
	maxFrameAge time.Duration

	// Counters for monitoring
	framesCompleted uint64
	framesEvicted   uint64
	chunksRejected  uint64
	chunksDuplicate uint64
}

// Config contains reassembler tuning parameters.
type Config struct {
	// ChunkPayloadSize is the fixed per-chunk payload size used for offset
	// arithmetic.
	ChunkPayloadSize int
	// MaxFrames is the capacity threshold above which GC scans for stale
	// assemblies.
	MaxFrames int
	// MaxFrameAge is the staleness threshold; assemblies not updated within
	// it are eligible for eviction during a GC scan.
	MaxFrameAge time.Duration
}

// NewReassembler creates an empty reassembly table.
func NewReassembler(cfg Config, logger *slog.Logger) *Reassembler {
	return &Reassembler{
		assemblers:  make(map[uint32]*frame.Assembler),
		logger:      logger,
		chunkSize:   cfg.ChunkPayloadSize,
		maxFrames:   cfg.MaxFrames,
		maxFrameAge: cfg.MaxFrameAge,
	}
}

// Push routes one chunk to its frame's assembler, creating the assembler
// from this chunk's header if the frame is new. The first header observed
// for a frameID fixes frameSize, chunksTotal and dimensions for the
// assembly's entire lifetime. On completion the assembler is removed from
// the table and its frame returned; buffer ownership transfers to the
// caller. A frameID that already completed or was evicted starts a fresh
// assembly.
func (r *Reassembler) Push(header *protocol.Header, payload []byte) (*frame.Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	asm, exists := r.assemblers[header.FrameID]
	if !exists {
		asm = frame.NewAssembler(header.FrameID, header.FrameSize,
			header.ChunksTotal, header.Width, header.Height, r.chunkSize)
		r.assemblers[header.FrameID] = asm

		r.logger.Debug("New frame assembly",
			slog.Uint64("frame_id", uint64(header.FrameID)),
			slog.Uint64("frame_size", uint64(header.FrameSize)),
			slog.Int("chunks_total", int(header.ChunksTotal)),
		)
	}

	duplicate := asm.Received(header.ChunkID)
	before := asm.ReceivedCount()
	completed := asm.AddChunk(header.ChunkID, payload)
	if asm.ReceivedCount() == before {
		// Dropped without mutation: re-delivered, out of range relative to
		// the assembly's declared chunksTotal, or offset past the buffer.
		if duplicate {
			r.chunksDuplicate++
		} else {
			r.chunksRejected++
		}
		r.gcLocked(time.Now())
		return nil, false
	}

	if completed {
		delete(r.assemblers, header.FrameID)
		r.framesCompleted++

		r.logger.Debug("Frame completed",
			slog.Uint64("frame_id", uint64(header.FrameID)),
			slog.Int("frame_size", len(asm.Bytes())),
		)
		return asm.Frame(), true
	}

	r.gcLocked(time.Now())
	return nil, false
}

// GC removes stale assemblies, but only once the table has grown past
// maxFrames. Gating the scan on capacity amortizes its cost: a single stale
// assembly below the threshold is allowed to linger until pressure forces a
// scan. This trigger condition is part of the contract.
func (r *Reassembler) GC(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gcLocked(now)
}

func (r *Reassembler) gcLocked(now time.Time) {
	if len(r.assemblers) <= r.maxFrames {
		return
	}

	for frameID, asm := range r.assemblers {
		if now.Sub(asm.LastUpdate()) > r.maxFrameAge {
			delete(r.assemblers, frameID)
			r.framesEvicted++

			r.logger.Debug("Evicted stale frame assembly",
				slog.Uint64("frame_id", uint64(frameID)),
				slog.Int("chunks_received", asm.ReceivedCount()),
				slog.Int("chunks_total", int(asm.ChunksTotal())),
			)
		}
	}
}

// Reset discards every in-flight assembly, e.g. on connection teardown.
func (r *Reassembler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assemblers = make(map[uint32]*frame.Assembler)
}

// ActiveCount returns the number of in-flight assemblies.
func (r *Reassembler) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assemblers)
}

// Stats is a snapshot of reassembly counters for monitoring.
type Stats struct {
	ActiveAssemblies int    `json:"active_assemblies"`
	FramesCompleted  uint64 `json:"frames_completed"`
	FramesEvicted    uint64 `json:"frames_evicted"`
	ChunksRejected   uint64 `json:"chunks_rejected"`
	ChunksDuplicate  uint64 `json:"chunks_duplicate"`
}

// GetStats returns a consistent snapshot of the reassembly counters.
func (r *Reassembler) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		ActiveAssemblies: len(r.assemblers),
		FramesCompleted:  r.framesCompleted,
		FramesEvicted:    r.framesEvicted,
		ChunksRejected:   r.chunksRejected,
		ChunksDuplicate:  r.chunksDuplicate,
	}
}

// AssemblyInfo describes one in-flight assembly for the monitoring API.
type AssemblyInfo struct {
	FrameID        uint32    `json:"frame_id"`
	ChunksReceived int       `json:"chunks_received"`
	ChunksTotal    uint16    `json:"chunks_total"`
	FrameSize      int       `json:"frame_size"`
	LastUpdate     time.Time `json:"last_update"`
}

// Assemblies returns a snapshot of all in-flight assemblies.
func (r *Reassembler) Assemblies() []AssemblyInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]AssemblyInfo, 0, len(r.assemblers))
	for frameID, asm := range r.assemblers {
		infos = append(infos, AssemblyInfo{
			FrameID:        frameID,
			ChunksReceived: asm.ReceivedCount(),
			ChunksTotal:    asm.ChunksTotal(),
			FrameSize:      len(asm.Bytes()),
			LastUpdate:     asm.LastUpdate(),
		})
	}
	return infos
}
