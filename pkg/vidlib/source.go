package vidlib

// Package vidlib is the boundary to the video library collaborator.
// The pipeline asks for exactly one thing here: "decode frame N as a pixel
// buffer". Container demuxing is somebody else's problem; the in-tree decoder
// reads a directory of extracted frame images, which is the format our
// annotation tooling exports.

import (
	"errors"
	"fmt"

	"github.com/bmharper/cimg/v2"
)

// ErrVideoUnreadable means the decoder could not open the video at all.
// This is fatal to a pipeline run, unlike individual corrupt frames.
var ErrVideoUnreadable = errors.New("video unreadable")

// FrameDecodeError is a frame-scoped decode failure. The sampler skips the
// frame and reports a warning; it never aborts the video.
type FrameDecodeError struct {
	Frame int
	Err   error
}

func (e *FrameDecodeError) Error() string {
	return fmt.Sprintf("failed to decode frame %v: %v", e.Frame, e.Err)
}

func (e *FrameDecodeError) Unwrap() error {
	return e.Err
}

// FrameDecoder decodes single frames of one video.
// A decoder handle is exclusively owned by one pipeline run.
type FrameDecoder interface {
	// FrameCount returns the total number of frames in the video
	FrameCount() int

	// DecodeFrame decodes frame 'index' (0-based) as an RGB image.
	// A corrupt frame returns a *FrameDecodeError.
	DecodeFrame(index int) (*cimg.Image, error)

	Close()
}

// VideoInfo is the metadata that registration extracts from a source.
type VideoInfo struct {
	SourcePath string  `json:"sourcePath"`
	FrameRate  float64 `json:"frameRate"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameCount int     `json:"frameCount"`
}

// DurationSeconds of the whole video
func (v *VideoInfo) DurationSeconds() float64 {
	if v.FrameRate <= 0 {
		return 0
	}
	return float64(v.FrameCount) / v.FrameRate
}

// OpenVideo opens a decoder for the given source path.
// Returns an error wrapping ErrVideoUnreadable if the source cannot be opened.
func OpenVideo(sourcePath string) (FrameDecoder, error) {
	return OpenImageSequence(sourcePath)
}

// ProbeVideo opens the source and extracts registration metadata, decoding
// the first frame to learn the resolution.
func ProbeVideo(sourcePath string) (*VideoInfo, error) {
	decoder, err := OpenImageSequence(sourcePath)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	info := &VideoInfo{
		SourcePath: sourcePath,
		FrameRate:  decoder.frameRate,
		FrameCount: decoder.FrameCount(),
	}
	first, err := decoder.DecodeFrame(0)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode first frame: %v", ErrVideoUnreadable, err)
	}
	info.Width = first.Width
	info.Height = first.Height
	return info, nil
}
