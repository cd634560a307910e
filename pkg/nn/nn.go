package nn

import (
	"encoding/json"
	"os"
	"sync"
)

// Package nn is the neural network interface layer.
// To load a model, use the nnload package.

// DefaultConfidenceFloor is the inference-time floor. Its only purpose is to
// bound result volume coming out of a model; the real acceptance thresholds
// live in the post-processor.
const DefaultConfidenceFloor = 0.25

// DebugConfidenceFloor lets nearly everything through, for inspecting what a
// model emits below the production floor.
const DebugConfidenceFloor = 0.001

// RawDetection is one object found by a model, in model-native class and
// coordinate space. Raw detections are transient: the post-processor consumes
// them and they are never persisted.
type RawDetection struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Rect    `json:"box"`
}

// Inference parameters
type DetectionParams struct {
	ConfidenceFloor float32 // Discard results below this confidence inside the model. Zero value uses the default.
	Unclipped       bool    // If true, don't clip boxes to the model input boundaries
}

func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		ConfidenceFloor: DefaultConfidenceFloor,
		Unclipped:       false,
	}
}

// ImageCrop is a window into an RGB image.
// To create an ImageCrop, start with WholeImage(), and then use Crop() to get a sub-crop.
type ImageCrop struct {
	NChan       int    // Number of channels (eg 3 for RGB)
	Pixels      []byte // The whole image
	ImageWidth  int    // The width of the original image, held in Pixels
	ImageHeight int    // The height of the original image, held in Pixels
	CropX       int    // Origin of crop X
	CropY       int    // Origin of crop Y
	CropWidth   int    // The width of this crop
	CropHeight  int    // The height of this crop
}

func (c ImageCrop) Stride() int {
	return c.ImageWidth * c.NChan
}

// Return a crop of the crop (new crop is relative to existing).
// If any parameter is out of bounds, we panic
func (c ImageCrop) Crop(x1, y1, x2, y2 int) ImageCrop {
	nc := ImageCrop{
		NChan:       c.NChan,
		Pixels:      c.Pixels,
		ImageWidth:  c.ImageWidth,
		ImageHeight: c.ImageHeight,
		CropX:       c.CropX + x1,
		CropY:       c.CropY + y1,
		CropWidth:   x2 - x1,
		CropHeight:  y2 - y1,
	}
	if nc.CropX < 0 || nc.CropY < 0 || nc.CropWidth < 0 || nc.CropHeight < 0 || nc.CropX+nc.CropWidth > c.ImageWidth || nc.CropY+nc.CropHeight > c.ImageHeight {
		panic("Crop out of bounds")
	}
	return nc
}

// Return a 'crop' of the entire image
func WholeImage(nchan int, pixels []byte, width, height int) ImageCrop {
	return ImageCrop{
		NChan:       nchan,
		Pixels:      pixels,
		ImageWidth:  width,
		ImageHeight: height,
		CropX:       0,
		CropY:       0,
		CropWidth:   width,
		CropHeight:  height,
	}
}

// ObjectDetector is given an image, and returns zero or more detected objects.
// Each call is independent: a detector carries no state between frames.
type ObjectDetector interface {
	// Close closes the detector (you MUST call this when finished)
	Close()

	// DetectObjects returns a list of objects detected in the image.
	// nchan is expected to be 3, and image is a 24-bit RGB image.
	DetectObjects(img ImageCrop, params *DetectionParams) ([]RawDetection, error)

	// Model Config.
	// Callers assume that ModelConfig will remain constant, so don't change it
	// once the detector has been created.
	Config() *ModelConfig

	// ThreadSafe declares whether DetectObjects may be called concurrently.
	// Detectors that return false must be wrapped with Serialize() before
	// being shared between worker threads.
	ThreadSafe() bool
}

// FrameAwareDetector is an optional extension of ObjectDetector for
// backends that key their output on the frame index rather than the pixels.
// Callers prefer DetectFrame when a detector implements it.
type FrameAwareDetector interface {
	ObjectDetector
	DetectFrame(frameIndex int, img ImageCrop, params *DetectionParams) ([]RawDetection, error)
}

// ModelConfig is saved in a JSON file along with the weights of the NN model
type ModelConfig struct {
	Architecture string   `json:"architecture"` // eg "yolov8"
	Version      string   `json:"version"`      // eg "yolov8m-2024.1"
	Width        int      `json:"width"`        // eg 320
	Height       int      `json:"height"`       // eg 256
	Classes      []string `json:"classes"`      // eg ["person", "bicycle", "car", ...]
}

// Load model config from a JSON file
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &ModelConfig{}
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// Serialize wraps a detector whose underlying implementation is not safe for
// concurrent DetectObjects calls. The wrapper itself reports ThreadSafe()=true.
// Frame-aware detectors keep their DetectFrame extension through the wrapper.
func Serialize(d ObjectDetector) ObjectDetector {
	if d.ThreadSafe() {
		return d
	}
	s := &serializedDetector{inner: d}
	if fa, ok := d.(FrameAwareDetector); ok {
		return &serializedFrameDetector{serializedDetector: s, innerFrame: fa}
	}
	return s
}

type serializedDetector struct {
	lock  sync.Mutex
	inner ObjectDetector
}

func (s *serializedDetector) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.inner.Close()
}

func (s *serializedDetector) DetectObjects(img ImageCrop, params *DetectionParams) ([]RawDetection, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.inner.DetectObjects(img, params)
}

func (s *serializedDetector) Config() *ModelConfig {
	return s.inner.Config()
}

func (s *serializedDetector) ThreadSafe() bool {
	return true
}

type serializedFrameDetector struct {
	*serializedDetector
	innerFrame FrameAwareDetector
}

func (s *serializedFrameDetector) DetectFrame(frameIndex int, img ImageCrop, params *DetectionParams) ([]RawDetection, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.innerFrame.DetectFrame(frameIndex, img, params)
}
