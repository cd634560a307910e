package nn

// VideoLabels contains labels for each video frame.
// This is the interchange format for ground-truth annotation files, and it is
// also what the replay detector consumes.
type VideoLabels struct {
	Classes []string       `json:"classes"`
	Width   int            `json:"width,omitempty"`
	Height  int            `json:"height,omitempty"`
	Frames  []*ImageLabels `json:"frames"`
}

type ImageLabels struct {
	Frame   int            `json:"frame,omitempty"` // For video, this is the frame number
	Objects []RawDetection `json:"objects"`
}

// FindFrame returns the labels for the given frame, or nil.
func (v *VideoLabels) FindFrame(frame int) *ImageLabels {
	for _, f := range v.Frames {
		if f.Frame == frame {
			return f
		}
	}
	return nil
}
