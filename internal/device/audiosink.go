package device

import (
	"github.com/gordonklaus/portaudio"

	"github.com/openfmrx/hvylya/internal/hvylyaerr"
	"github.com/openfmrx/hvylya/internal/pipeline"
)

// AudioSink drains the receiver's stereo float32 output into the default
// PortAudio output device, pulling from the pipeline's two audio readers
// on PortAudio's own callback thread rather than a pipeline-scheduled
// block, matching the original's "sink owns its own I/O thread" model.
type AudioSink struct {
	stream      *portaudio.Stream
	left, right *pipeline.Reader[float32]
}

// OpenAudioSink opens the default stereo output device at sampleRate
// with the given callback buffer size (framesPerBuffer).
func OpenAudioSink(left, right *pipeline.Reader[float32], sampleRate float64, framesPerBuffer int) (*AudioSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, hvylyaerr.NewAudioError("portaudio init: " + err.Error())
	}
	s := &AudioSink{left: left, right: right}
	stream, err := portaudio.OpenDefaultStream(0, 2, sampleRate, framesPerBuffer, s.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, hvylyaerr.NewAudioError("open default output stream: " + err.Error())
	}
	s.stream = stream
	return s, nil
}

// Start begins streaming; callback underruns (not enough audio produced
// yet) are silently recovered by writing silence, matching spec's "sink
// underruns are silently recovered" rule. Persistent stream-level errors
// surface from Start/Close as AudioError.
func (s *AudioSink) Start() error {
	if err := s.stream.Start(); err != nil {
		return hvylyaerr.NewAudioError("start output stream: " + err.Error())
	}
	return nil
}

// Close stops the stream and releases PortAudio.
func (s *AudioSink) Close() error {
	err := s.stream.Close()
	portaudio.Terminate()
	if err != nil {
		return hvylyaerr.NewAudioError("close output stream: " + err.Error())
	}
	return nil
}

func (s *AudioSink) callback(out [][]float32) {
	n := len(out[0])
	la := s.left.AvailableSize()
	ra := s.right.AvailableSize()
	avail := la
	if ra < avail {
		avail = ra
	}
	if avail > n {
		avail = n
	}

	if avail > 0 {
		lsrc := s.left.ReadSlice()
		rsrc := s.right.ReadSlice()
		copy(out[0][:avail], lsrc[:avail])
		copy(out[1][:avail], rsrc[:avail])
		s.left.Advance(avail)
		s.right.Advance(avail)
	}
	for i := avail; i < n; i++ {
		out[0][i] = 0
		out[1][i] = 0
	}
}
