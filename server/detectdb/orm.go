package detectdb

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cyclopcam/dbh"
	"github.com/vruscope/vruscope/pkg/nn"
)

// Spatial tolerance when computing a detection's identity hash. Boxes that
// land on the same cell of this grid are the same physical detection, so
// re-running a model whose output jitters by a pixel or two does not mint
// new identities.
const IdentityQuantizeCell = 4

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// A video that we have run detection on
type Video struct {
	BaseModel
	SourcePath string      `json:"sourcePath"` // Unique path/URI of the video
	FrameRate  float64     `json:"frameRate"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	FrameCount int         `json:"frameCount"`
	CreatedAt  dbh.IntTime `json:"createdAt"`
}

// A single validated detection of a vulnerable road user
type Detection struct {
	BaseModel
	DetectionID    string      `json:"detectionID"`  // Stable UUID, preserved across re-runs
	IdentityHash   string      `json:"identityHash"` // Dedup key, see ComputeIdentityHash
	VideoID        int64       `json:"videoID"`
	SessionID      *int64      `json:"sessionID"` // Owning validation session (null for standalone runs)
	ModelVersion   string      `json:"modelVersion"`
	FrameIndex     int         `json:"frameIndex"`
	Timestamp      float64     `json:"timestamp"` // Seconds from start of video
	Class          string      `json:"class"`
	Confidence     float32     `json:"confidence"`
	X              int32       `json:"x"`
	Y              int32       `json:"y"`
	Width          int32       `json:"width"`
	Height         int32       `json:"height"`
	FramePath      *string     `json:"framePath"` // Full-frame evidence image in blob storage (null if capture failed)
	CropPath       *string     `json:"cropPath"`  // Zoomed crop evidence image in blob storage (null if capture failed)
	ProcessingMsec int64       `json:"processingMsec"`
	CreatedAt      dbh.IntTime `json:"createdAt"`
}

func (d *Detection) Box() nn.Rect {
	return nn.MakeRect(d.X, d.Y, d.Width, d.Height)
}

func (d *Detection) SetBox(r nn.Rect) {
	d.X = r.X
	d.Y = r.Y
	d.Width = r.Width
	d.Height = r.Height
}

// ComputeIdentityHash returns the deterministic identity of a detection.
// Two detections of the same class, on the same frame of the same video,
// by the same model version, whose boxes agree to within the quantization
// cell, get the same hash.
func ComputeIdentityHash(videoID int64, modelVersion string, frameIndex int, class string, box nn.Rect) string {
	q := box.Quantize(IdentityQuantizeCell)
	h := sha256.New()
	fmt.Fprintf(h, "%v:%v:%v:%v:%v,%v,%v,%v", videoID, modelVersion, frameIndex, class, q.X, q.Y, q.Width, q.Height)
	return hex.EncodeToString(h.Sum(nil))
}

// A human-annotated ground truth object on a frame
type GroundTruth struct {
	BaseModel
	VideoID    int64  `json:"videoID"`
	FrameIndex int    `json:"frameIndex"`
	Class      string `json:"class"`
	X          int32  `json:"x"`
	Y          int32  `json:"y"`
	Width      int32  `json:"width"`
	Height     int32  `json:"height"`
}

func (g *GroundTruth) Box() nn.Rect {
	return nn.MakeRect(g.X, g.Y, g.Width, g.Height)
}

// One validation of a (video, model version) pair against ground truth.
// Metric pointers are null when the denominator was zero. This table is
// append-only so that metric history can be trended across model versions.
type ValidationMetric struct {
	BaseModel
	VideoID       int64                                 `json:"videoID"`
	SessionID     *int64                                `json:"sessionID"` // Session the metric belongs to (null for standalone validation)
	ModelVersion  string                                `json:"modelVersion"`
	TruePos       int                                   `json:"truePos"`
	FalsePos      int                                   `json:"falsePos"`
	FalseNeg      int                                   `json:"falseNeg"`
	SampleSize    int                                   `json:"sampleSize"` // TruePos + FalsePos + FalseNeg
	Precision     *float64                              `json:"precision"`
	Recall        *float64                              `json:"recall"`
	F1            *float64                              `json:"f1"`
	PrecisionLow  *float64                              `json:"precisionLow"` // Wilson 95% interval on Precision
	PrecisionHigh *float64                              `json:"precisionHigh"`
	RecallLow     *float64                              `json:"recallLow"` // Wilson 95% interval on Recall
	RecallHigh    *float64                              `json:"recallHigh"`
	PerClass      *dbh.JSONField[map[string]ClassTally] `json:"perClass"`
	CreatedAt     dbh.IntTime                           `json:"createdAt"`
}

// Per-class TP/FP/FN counts inside a ValidationMetric
type ClassTally struct {
	TruePos  int `json:"truePos"`
	FalsePos int `json:"falsePos"`
	FalseNeg int `json:"falseNeg"`
}
