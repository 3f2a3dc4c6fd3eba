// Package device holds the receiver's I/O collaborators: the tuner
// source, the audio sink, file dump/load, hotplug watching, rig control
// and a GPIO mute line. None of these run inside the pipeline's worker
// pool proper; each owns a goroutine that pumps samples into (or out of)
// a pipeline.RingBuffer, matching the source's "I/O filters may block
// briefly on the OS" allowance.
package device

import (
	"context"
	"encoding/binary"
	"math"
	"os"

	"golang.org/x/sys/unix"

	"github.com/openfmrx/hvylya/internal/hvylyaerr"
	"github.com/openfmrx/hvylya/internal/pipeline"
)

// SdrSource reads interleaved unsigned 8-bit I/Q pairs from a V4L2 SDR
// device node (e.g. /dev/swradio0) and feeds them as centered complex64
// baseband samples into a ring buffer, matching the original's direct
// read() loop over the kernel char device.
type SdrSource struct {
	path string
	fd   int
	out  *pipeline.RingBuffer[complex64]
}

// OpenSdrSource opens path in blocking read mode. The caller owns the
// returned source and must call Close when done.
func OpenSdrSource(path string, out *pipeline.RingBuffer[complex64]) (*SdrSource, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, hvylyaerr.NewIoError(path, "open SDR device", err)
	}
	return &SdrSource{path: path, fd: fd, out: out}, nil
}

// Close releases the underlying file descriptor.
func (s *SdrSource) Close() error {
	return unix.Close(s.fd)
}

// Run reads from the device until ctx is cancelled or a read error
// occurs, converting each unsigned 8-bit I/Q pair (DC-centered at 127.5,
// matching the common rtl_sdr/V4L2 SDR byte layout) into a unit-scaled
// complex64 and writing it into the output ring buffer. It blocks on the
// pipeline's output room, which is acceptable because this goroutine is
// not a scheduled pipeline block.
func (s *SdrSource) Run(ctx context.Context) error {
	raw := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			s.out.SetEOF()
			return nil
		default:
		}

		n, err := unix.Read(s.fd, raw)
		if err != nil {
			s.out.SetEOF()
			return hvylyaerr.NewIoError(s.path, "read SDR device", err)
		}
		if n == 0 {
			s.out.SetEOF()
			return nil
		}

		pending := raw[:n-n%2]
		for len(pending) > 0 {
			room := s.out.AvailableWriteRoom()
			if room == 0 {
				continue
			}
			take := len(pending) / 2
			if take > room {
				take = room
			}
			dst := s.out.WriteSlice()
			for i := 0; i < take; i++ {
				iByte := pending[i*2]
				qByte := pending[i*2+1]
				dst[i] = complex((float32(iByte)-127.5)/127.5, (float32(qByte)-127.5)/127.5)
			}
			s.out.Advance(take)
			pending = pending[take*2:]
		}
	}
}

// FileIQSource replays a previously dumped raw complex64 I/Q file,
// supporting the load CLI subcommand. The file format is little-endian
// interleaved float32 I/Q, one pair per sample, matching what FileIQSink
// writes for dump.
type FileIQSource struct {
	f   *os.File
	out *pipeline.RingBuffer[complex64]
}

func OpenFileIQSource(path string, out *pipeline.RingBuffer[complex64]) (*FileIQSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, hvylyaerr.NewIoError(path, "open I/Q dump for playback", err)
	}
	return &FileIQSource{f: f, out: out}, nil
}

func (s *FileIQSource) Close() error { return s.f.Close() }

// Run streams the file until EOF, then marks the output ring buffer EOF
// so the pipeline can drain and stop naturally.
func (s *FileIQSource) Run(ctx context.Context) error {
	buf := make([]byte, 8*4096)
	for {
		select {
		case <-ctx.Done():
			s.out.SetEOF()
			return nil
		default:
		}

		n, err := s.f.Read(buf)
		pending := buf[:n-n%8]
		for len(pending) > 0 {
			room := s.out.AvailableWriteRoom()
			if room == 0 {
				continue
			}
			take := len(pending) / 8
			if take > room {
				take = room
			}
			dst := s.out.WriteSlice()
			for i := 0; i < take; i++ {
				off := i * 8
				re := float32FromBits(binary.LittleEndian.Uint32(pending[off : off+4]))
				im := float32FromBits(binary.LittleEndian.Uint32(pending[off+4 : off+8]))
				dst[i] = complex(re, im)
			}
			s.out.Advance(take)
			pending = pending[take*8:]
		}
		if err != nil {
			s.out.SetEOF()
			return nil
		}
	}
}

func float32FromBits(bits uint32) float32 {
	return math.Float32frombits(bits)
}
