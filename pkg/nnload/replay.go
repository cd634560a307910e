package nnload

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vruscope/vruscope/pkg/nn"
)

// replayDetector replays detections recorded in an nn.VideoLabels file.
// It is the deterministic backend used by validation harnesses and tests:
// the "model" output is fixed up front, so any difference in the final
// metrics comes from the pipeline itself.
type replayDetector struct {
	config *nn.ModelConfig
	labels *nn.VideoLabels
}

func NewReplayDetector(config *nn.ModelConfig, labelsFile string) (nn.ObjectDetector, error) {
	raw, err := os.ReadFile(labelsFile)
	if err != nil {
		return nil, err
	}
	labels := &nn.VideoLabels{}
	if err := json.Unmarshal(raw, labels); err != nil {
		return nil, fmt.Errorf("Failed to parse replay labels %v: %w", labelsFile, err)
	}
	return &replayDetector{
		config: config,
		labels: labels,
	}, nil
}

func (d *replayDetector) Close() {
}

func (d *replayDetector) Config() *nn.ModelConfig {
	return d.config
}

func (d *replayDetector) ThreadSafe() bool {
	return true
}

// DetectObjects without a frame index replays frame 0.
func (d *replayDetector) DetectObjects(img nn.ImageCrop, params *nn.DetectionParams) ([]nn.RawDetection, error) {
	return d.DetectFrame(0, img, params)
}

func (d *replayDetector) DetectFrame(frameIndex int, img nn.ImageCrop, params *nn.DetectionParams) ([]nn.RawDetection, error) {
	frame := d.labels.FindFrame(frameIndex)
	if frame == nil {
		return nil, nil
	}
	floor := params.ConfidenceFloor
	out := make([]nn.RawDetection, 0, len(frame.Objects))
	for _, obj := range frame.Objects {
		if obj.Confidence < floor {
			continue
		}
		out = append(out, obj)
	}
	return out, nil
}
