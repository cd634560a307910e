package vidlib

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/stretchr/testify/require"
)

// Writes a directory of solid-color JPEG frames. Frame 'corrupt' (if >= 0)
// is written as garbage bytes.
func writeTestSequence(t *testing.T, nFrames, corrupt int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < nFrames; i++ {
		name := filepath.Join(dir, fmt.Sprintf("frame-%06d.jpg", i))
		if i == corrupt {
			require.NoError(t, os.WriteFile(name, []byte("not a jpeg"), 0644))
			continue
		}
		img := cimg.NewImage(64, 48, cimg.PixelFormatRGB)
		for p := 0; p < len(img.Pixels); p += 3 {
			img.Pixels[p] = byte(i * 40)
		}
		jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, 90, 0))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(name, jpg, 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sequence.json"), []byte(`{"frameRate": 5}`), 0644))
	return dir
}

func drain(t *testing.T, s *Sampler) []Frame {
	t.Helper()
	frames := []Frame{}
	for {
		f, err := s.Next()
		if errors.Is(err, io.EOF) {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
}

func TestSamplerStride(t *testing.T) {
	dir := writeTestSequence(t, 6, -1)
	decoder, err := OpenImageSequence(dir)
	require.NoError(t, err)
	defer decoder.Close()
	require.Equal(t, 6, decoder.FrameCount())
	require.Equal(t, 5.0, decoder.FrameRate())

	s, err := NewSampler(decoder, decoder.FrameRate(), 2)
	require.NoError(t, err)
	require.Equal(t, 3, s.Total())

	frames := drain(t, s)
	require.Len(t, frames, 3)
	require.Equal(t, 0, frames[0].Index)
	require.Equal(t, 2, frames[1].Index)
	require.Equal(t, 4, frames[2].Index)
	require.Equal(t, 0.4, frames[1].Timestamp)

	// Restartable from scratch
	s.Reset()
	again := drain(t, s)
	require.Len(t, again, 3)
	require.Equal(t, frames[0].Index, again[0].Index)

	_, err = NewSampler(decoder, 5, 0)
	require.Error(t, err)
}

func TestSamplerSkipsCorruptFrames(t *testing.T) {
	dir := writeTestSequence(t, 5, 2)
	decoder, err := OpenImageSequence(dir)
	require.NoError(t, err)
	defer decoder.Close()

	s, err := NewSampler(decoder, decoder.FrameRate(), 1)
	require.NoError(t, err)
	warned := []int{}
	s.OnWarning = func(frameIndex int, err error) {
		decodeErr := &FrameDecodeError{}
		require.ErrorAs(t, err, &decodeErr)
		warned = append(warned, frameIndex)
	}

	frames := drain(t, s)
	require.Len(t, frames, 4)
	require.Equal(t, []int{2}, warned)
	for _, f := range frames {
		require.NotEqual(t, 2, f.Index)
	}
}

func TestOpenVideoUnreadable(t *testing.T) {
	_, err := OpenVideo(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, ErrVideoUnreadable)

	// A directory with no frames is also unreadable
	_, err = OpenVideo(t.TempDir())
	require.ErrorIs(t, err, ErrVideoUnreadable)
}
