// framesend is a test client: it chunks a file into protocol datagrams and
// sends them over UDP, optionally shuffled or duplicated to exercise the
// receiver's reordering and idempotence handling.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/framecast/udp-video-service/internal/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5004", "Server address")
	file := flag.String("file", "", "File to send as one frame (required)")
	frameID := flag.Uint("frame-id", 1, "Frame identifier")
	width := flag.Uint("width", 640, "Frame width")
	height := flag.Uint("height", 480, "Frame height")
	shuffle := flag.Bool("shuffle", false, "Send chunks in random order")
	duplicate := flag.Bool("duplicate", false, "Send every chunk twice")
	repeat := flag.Int("repeat", 1, "Number of frames to send (frame id increments)")
	interval := flag.Duration("interval", 33*time.Millisecond, "Delay between frames")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *file, err)
		os.Exit(1)
	}

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	codec := protocol.NewCodec()

	for i := 0; i < *repeat; i++ {
		id := uint32(*frameID) + uint32(i)
		datagrams, err := buildFrame(codec, data, id, uint16(*width), uint16(*height))
		if err != nil {
			fmt.Fprintf(os.Stderr, "build frame %d: %v\n", id, err)
			os.Exit(1)
		}

		if *shuffle {
			rand.Shuffle(len(datagrams), func(a, b int) {
				datagrams[a], datagrams[b] = datagrams[b], datagrams[a]
			})
		}

		for _, dg := range datagrams {
			if _, err := conn.Write(dg); err != nil {
				fmt.Fprintf(os.Stderr, "send: %v\n", err)
				os.Exit(1)
			}
			if *duplicate {
				conn.Write(dg)
			}
		}

		fmt.Printf("sent frame %d: %d bytes in %d chunks\n", id, len(data), len(datagrams))
		time.Sleep(*interval)
	}
}

// buildFrame splits data into chunk-sized datagrams for one frame.
func buildFrame(codec protocol.Codec, data []byte, frameID uint32, width, height uint16) ([][]byte, error) {
	chunkSize := codec.ChunkPayloadSize
	chunksTotal := (len(data) + chunkSize - 1) / chunkSize

	datagrams := make([][]byte, 0, chunksTotal)
	for chunkID := 0; chunkID < chunksTotal; chunkID++ {
		start := chunkID * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}

		header := &protocol.Header{
			Width:       width,
			Height:      height,
			Timestamp:   uint64(time.Now().UnixMilli()),
			FrameID:     frameID,
			FrameSize:   uint32(len(data)),
			ChunkID:     uint16(chunkID),
			ChunksTotal: uint16(chunksTotal),
		}

		dg, err := codec.Encode(header, data[start:end])
		if err != nil {
			return nil, err
		}
		datagrams = append(datagrams, dg)
	}

	return datagrams, nil
}
