package vidlib

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmharper/cimg/v2"
)

// DefaultFrameRate is assumed when a sequence carries no metadata file.
const DefaultFrameRate = 10.0

// sequence.json sits alongside the frames and carries what the filenames can't
type sequenceMeta struct {
	FrameRate float64 `json:"frameRate"`
}

// ImageSequenceDecoder reads a video that has been extracted into a directory
// of numbered frame images (frame-000001.jpg, ...). Frames are ordered by
// filename.
type ImageSequenceDecoder struct {
	dir       string
	files     []string
	frameRate float64
}

func OpenImageSequence(dir string) (*ImageSequenceDecoder, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVideoUnreadable, err)
	}
	files := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no frame images in %v", ErrVideoUnreadable, dir)
	}
	sort.Strings(files)

	frameRate := DefaultFrameRate
	if raw, err := os.ReadFile(filepath.Join(dir, "sequence.json")); err == nil {
		meta := sequenceMeta{}
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("%w: invalid sequence.json: %v", ErrVideoUnreadable, err)
		}
		if meta.FrameRate > 0 {
			frameRate = meta.FrameRate
		}
	}

	return &ImageSequenceDecoder{
		dir:       dir,
		files:     files,
		frameRate: frameRate,
	}, nil
}

func (d *ImageSequenceDecoder) FrameCount() int {
	return len(d.files)
}

func (d *ImageSequenceDecoder) FrameRate() float64 {
	return d.frameRate
}

func (d *ImageSequenceDecoder) DecodeFrame(index int) (*cimg.Image, error) {
	if index < 0 || index >= len(d.files) {
		return nil, &FrameDecodeError{Frame: index, Err: fmt.Errorf("frame index out of range (0..%v)", len(d.files)-1)}
	}
	img, err := cimg.ReadFile(d.files[index])
	if err != nil {
		return nil, &FrameDecodeError{Frame: index, Err: err}
	}
	if img.NChan() != 3 {
		img = img.ToRGB()
	}
	return img, nil
}

func (d *ImageSequenceDecoder) Close() {
}
