package vidlib

import (
	"fmt"
	"io"

	"github.com/bmharper/cimg/v2"
)

// Frame is one decoded video frame. Frames are transient: they exist only
// while the pipeline is processing them, and are never persisted.
type Frame struct {
	Index     int     // Frame number in the source video
	Timestamp float64 // Seconds from the start of the video
	Image     *cimg.Image
}

// Sampler iterates a video at a fixed stride.
// It is restartable (Reset) but not resumable mid-stream. Corrupt frames are
// skipped, reported through the warning callback, and do not stop iteration.
type Sampler struct {
	decoder   FrameDecoder
	frameRate float64
	stride    int
	next      int

	// OnWarning, if set, receives frame-scoped decode failures
	OnWarning func(frameIndex int, err error)
}

func NewSampler(decoder FrameDecoder, frameRate float64, stride int) (*Sampler, error) {
	if stride < 1 {
		return nil, fmt.Errorf("invalid stride %v (must be >= 1)", stride)
	}
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &Sampler{
		decoder:   decoder,
		frameRate: frameRate,
		stride:    stride,
	}, nil
}

// Total returns the number of frames that one full iteration will attempt.
func (s *Sampler) Total() int {
	n := s.decoder.FrameCount()
	return (n + s.stride - 1) / s.stride
}

// Reset rewinds the sampler to the start of the video.
func (s *Sampler) Reset() {
	s.next = 0
}

// Next returns the next decodable frame, skipping corrupt ones.
// Returns io.EOF when the video is exhausted.
func (s *Sampler) Next() (Frame, error) {
	for ; s.next < s.decoder.FrameCount(); s.next += s.stride {
		idx := s.next
		img, err := s.decoder.DecodeFrame(idx)
		if err != nil {
			if s.OnWarning != nil {
				s.OnWarning(idx, err)
			}
			continue
		}
		s.next += s.stride
		return Frame{
			Index:     idx,
			Timestamp: float64(idx) / s.frameRate,
			Image:     img,
		}, nil
	}
	return Frame{}, io.EOF
}
