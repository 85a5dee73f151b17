package stream

import (
	"bytes"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/framecast/udp-video-service/internal/protocol"
)

const testChunkSize = 32768

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testReassembler(maxFrames int, maxAge time.Duration) *Reassembler {
	return NewReassembler(Config{
		ChunkPayloadSize: testChunkSize,
		MaxFrames:        maxFrames,
		MaxFrameAge:      maxAge,
	}, testLogger())
}

func chunkHeader(frameID uint32, frameSize uint32, chunkID, chunksTotal uint16) *protocol.Header {
	return &protocol.Header{
		Magic:       protocol.DefaultMagic,
		Version:     protocol.DefaultVersion,
		Width:       640,
		Height:      480,
		FrameID:     frameID,
		FrameSize:   frameSize,
		ChunkID:     chunkID,
		ChunksTotal: chunksTotal,
	}
}

func TestPushSingleFrame(t *testing.T) {
	// The scenario from the wire format spec: 70000 bytes over 3 chunks,
	// delivered in order and out of order.
	payloads := [][]byte{
		bytes.Repeat([]byte{0x01}, testChunkSize),
		bytes.Repeat([]byte{0x02}, testChunkSize),
		bytes.Repeat([]byte{0x03}, 4464),
	}

	orders := map[string][]uint16{
		"in order":     {0, 1, 2},
		"out of order": {2, 0, 1},
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			r := testReassembler(16, time.Minute)

			completions := 0
			for _, chunkID := range order {
				f, ok := r.Push(chunkHeader(7, 70000, chunkID, 3), payloads[chunkID])
				if !ok {
					continue
				}
				completions++

				if f.FrameID != 7 {
					t.Errorf("Expected frame ID 7, got %d", f.FrameID)
				}
				if len(f.Data) != 70000 {
					t.Errorf("Expected 70000-byte frame, got %d", len(f.Data))
				}
				if f.Width != 640 || f.Height != 480 {
					t.Errorf("Expected 640x480, got %dx%d", f.Width, f.Height)
				}
			}

			if completions != 1 {
				t.Errorf("Expected exactly one completion, got %d", completions)
			}
			if r.ActiveCount() != 0 {
				t.Errorf("Completed frame still in table: %d active", r.ActiveCount())
			}
		})
	}
}

func TestPushInterleavedFrames(t *testing.T) {
	r := testReassembler(16, time.Minute)

	frameA := bytes.Repeat([]byte{0xA1}, testChunkSize+100)
	frameB := bytes.Repeat([]byte{0xB2}, testChunkSize+200)

	push := func(frameID uint32, data []byte, chunkID uint16) (*protocol.Header, []byte) {
		start := int(chunkID) * testChunkSize
		end := start + testChunkSize
		if end > len(data) {
			end = len(data)
		}
		return chunkHeader(frameID, uint32(len(data)), chunkID, 2), data[start:end]
	}

	// Interleave: A0, B0, B1 (completes B), A1 (completes A)
	if _, ok := r.Push(push(1, frameA, 0)); ok {
		t.Fatal("Frame 1 completed early")
	}
	if _, ok := r.Push(push(2, frameB, 0)); ok {
		t.Fatal("Frame 2 completed early")
	}

	fB, ok := r.Push(push(2, frameB, 1))
	if !ok {
		t.Fatal("Frame 2 did not complete")
	}
	fA, ok := r.Push(push(1, frameA, 1))
	if !ok {
		t.Fatal("Frame 1 did not complete")
	}

	if !bytes.Equal(fA.Data, frameA) {
		t.Error("Frame 1 buffer corrupted by interleaving")
	}
	if !bytes.Equal(fB.Data, frameB) {
		t.Error("Frame 2 buffer corrupted by interleaving")
	}
}

func TestPushRejectedChunkThenCompletion(t *testing.T) {
	r := testReassembler(16, time.Minute)

	// chunkID 5 on a frame declared with chunksTotal 3. The hostile header
	// claims a larger chunksTotal so it reaches the assembler, which must
	// reject it against the declaration fixed by the first chunk.
	if _, ok := r.Push(chunkHeader(7, 70000, 0, 3), bytes.Repeat([]byte{1}, testChunkSize)); ok {
		t.Fatal("Completed after first chunk")
	}
	if _, ok := r.Push(chunkHeader(7, 70000, 5, 10), []byte{0xFF}); ok {
		t.Fatal("Out-of-range chunk completed the frame")
	}

	if _, ok := r.Push(chunkHeader(7, 70000, 1, 3), bytes.Repeat([]byte{2}, testChunkSize)); ok {
		t.Fatal("Completed after two of three chunks")
	}
	f, ok := r.Push(chunkHeader(7, 70000, 2, 3), bytes.Repeat([]byte{3}, 4464))
	if !ok {
		t.Fatal("Frame did not complete after its three valid chunks")
	}
	if len(f.Data) != 70000 {
		t.Errorf("Expected 70000 bytes, got %d", len(f.Data))
	}

	stats := r.GetStats()
	if stats.ChunksRejected != 1 {
		t.Errorf("Expected 1 rejected chunk, got %d", stats.ChunksRejected)
	}
}

func TestPushDuplicateCounted(t *testing.T) {
	r := testReassembler(16, time.Minute)

	payload := bytes.Repeat([]byte{1}, 100)
	r.Push(chunkHeader(3, 1000, 0, 2), payload)
	r.Push(chunkHeader(3, 1000, 0, 2), payload)

	stats := r.GetStats()
	if stats.ChunksDuplicate != 1 {
		t.Errorf("Expected 1 duplicate chunk, got %d", stats.ChunksDuplicate)
	}
	if stats.ChunksRejected != 0 {
		t.Errorf("Duplicate miscounted as rejection: %d", stats.ChunksRejected)
	}
}

func TestFirstHeaderFixesAssembly(t *testing.T) {
	r := testReassembler(16, time.Minute)

	// Later chunks carry different dimensions and frameSize for the same
	// frameID; the first chunk's header wins for the whole assembly.
	r.Push(chunkHeader(9, 200, 0, 2), bytes.Repeat([]byte{1}, 100))

	h := chunkHeader(9, 9999, 1, 2)
	h.Width = 1
	h.Height = 1
	f, ok := r.Push(h, bytes.Repeat([]byte{2}, 100))
	if !ok {
		t.Fatal("Frame did not complete")
	}

	if len(f.Data) != 200 {
		t.Errorf("Frame size re-validated against a later header: got %d bytes", len(f.Data))
	}
	if f.Width != 640 || f.Height != 480 {
		t.Errorf("Dimensions re-validated against a later header: %dx%d", f.Width, f.Height)
	}
}

func TestFrameIDReuseStartsFreshAssembly(t *testing.T) {
	r := testReassembler(16, time.Minute)

	f, ok := r.Push(chunkHeader(5, 50, 0, 1), bytes.Repeat([]byte{7}, 50))
	if !ok {
		t.Fatal("Single-chunk frame did not complete")
	}
	if f.Data[0] != 7 {
		t.Error("First assembly corrupted")
	}

	// Same frameID again: indistinguishable from a new frame.
	f2, ok := r.Push(chunkHeader(5, 30, 0, 1), bytes.Repeat([]byte{8}, 30))
	if !ok {
		t.Fatal("Reused frameID did not start a fresh assembly")
	}
	if len(f2.Data) != 30 || f2.Data[0] != 8 {
		t.Error("Fresh assembly inherited state from the completed one")
	}
}

func TestGCCapacityGate(t *testing.T) {
	r := testReassembler(3, time.Minute)

	// Three incomplete assemblies; staleness is simulated by scanning with
	// a far-future clock.
	for id := uint32(1); id <= 3; id++ {
		r.Push(chunkHeader(id, 1000, 0, 2), bytes.Repeat([]byte{1}, 100))
	}

	// At the capacity threshold the scan must not trigger, however stale.
	r.GC(time.Now().Add(time.Hour))
	if r.ActiveCount() != 3 {
		t.Fatalf("GC evicted below the capacity threshold: %d active", r.ActiveCount())
	}

	// A fourth assembly pushes the table past maxFrames.
	r.Push(chunkHeader(4, 1000, 0, 2), bytes.Repeat([]byte{1}, 100))

	r.GC(time.Now().Add(time.Hour))
	if got := r.ActiveCount(); got != 0 {
		t.Errorf("Expected all stale assemblies evicted, %d remain", got)
	}

	stats := r.GetStats()
	if stats.FramesEvicted != 4 {
		t.Errorf("Expected 4 evictions, got %d", stats.FramesEvicted)
	}
}

func TestGCKeepsFreshAssemblies(t *testing.T) {
	r := testReassembler(1, time.Minute)

	r.Push(chunkHeader(1, 1000, 0, 2), bytes.Repeat([]byte{1}, 100))
	r.Push(chunkHeader(2, 1000, 0, 2), bytes.Repeat([]byte{1}, 100))

	// Over capacity, but nothing is older than maxFrameAge.
	r.GC(time.Now())
	if r.ActiveCount() != 2 {
		t.Errorf("GC evicted assemblies younger than maxFrameAge: %d active", r.ActiveCount())
	}
}

func TestReset(t *testing.T) {
	r := testReassembler(16, time.Minute)

	r.Push(chunkHeader(1, 1000, 0, 2), bytes.Repeat([]byte{1}, 100))
	r.Push(chunkHeader(2, 1000, 0, 2), bytes.Repeat([]byte{1}, 100))

	r.Reset()
	if r.ActiveCount() != 0 {
		t.Errorf("Reset left %d assemblies in the table", r.ActiveCount())
	}
}

func TestAssembliesSnapshot(t *testing.T) {
	r := testReassembler(16, time.Minute)

	r.Push(chunkHeader(11, 1000, 0, 3), bytes.Repeat([]byte{1}, 100))
	r.Push(chunkHeader(11, 1000, 1, 3), bytes.Repeat([]byte{1}, 100))

	infos := r.Assemblies()
	if len(infos) != 1 {
		t.Fatalf("Expected 1 assembly, got %d", len(infos))
	}

	info := infos[0]
	if info.FrameID != 11 {
		t.Errorf("Expected frame ID 11, got %d", info.FrameID)
	}
	if info.ChunksReceived != 2 || info.ChunksTotal != 3 {
		t.Errorf("Expected 2/3 chunks, got %d/%d", info.ChunksReceived, info.ChunksTotal)
	}
	if info.FrameSize != 1000 {
		t.Errorf("Expected frame size 1000, got %d", info.FrameSize)
	}
}
