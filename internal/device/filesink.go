package device

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/openfmrx/hvylya/internal/hvylyaerr"
	"github.com/openfmrx/hvylya/internal/pipeline"
)

// dumpNamePattern is the strftime layout for the timestamp part of dump
// file names.
const dumpNamePattern = "%Y%m%d-%H%M%S"

// DumpFileName renders a dump file name for the given sample rate and
// timestamp, e.g. "f32x2@1000000-20260731-153000.bin", matching the
// teacher's tq.go use of strftime.Format for timestamped file names.
func DumpFileName(sampleRate int, at time.Time) (string, error) {
	stamp, err := strftime.Format(dumpNamePattern, at)
	if err != nil {
		return "", fmt.Errorf("device: format dump file name: %w", err)
	}
	return fmt.Sprintf("f32x2@%d-%s.bin", sampleRate, stamp), nil
}

// FileIQSink writes complex64 I/Q samples read from in to path as
// little-endian interleaved float32 pairs, backing the dump CLI
// subcommand.
type FileIQSink struct {
	f   *os.File
	w   *bufio.Writer
	in  *pipeline.Reader[complex64]
}

func CreateFileIQSink(path string, in *pipeline.Reader[complex64]) (*FileIQSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, hvylyaerr.NewIoError(path, "create I/Q dump file", err)
	}
	return &FileIQSink{f: f, w: bufio.NewWriterSize(f, 1<<16), in: in}, nil
}

func (s *FileIQSink) Close() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.f.Close()
}

// Run drains in until ctx is cancelled or the source hits EOF.
func (s *FileIQSink) Run(ctx context.Context) error {
	var scratch [8]byte
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		n := s.in.AvailableSize()
		if n == 0 {
			if s.in.EOF() {
				return nil
			}
			continue
		}
		src := s.in.ReadSlice()
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(scratch[0:4], math.Float32bits(real(src[i])))
			binary.LittleEndian.PutUint32(scratch[4:8], math.Float32bits(imag(src[i])))
			if _, err := s.w.Write(scratch[:]); err != nil {
				return hvylyaerr.NewIoError("", "write I/Q dump", err)
			}
		}
		s.in.Advance(n)
	}
}
