package pipeline

import (
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
	"github.com/vruscope/vruscope/pkg/nn"
)

// A detection that survived post-processing, with its class resolved to a
// vulnerable road user class name.
type ProcessedDetection struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        nn.Rect `json:"box"`
}

// PostProcessOptions controls the filter chain that turns raw model output
// into validated detections.
type PostProcessOptions struct {
	// Raw model class name to VRU class name. Raw classes without an entry
	// are discarded.
	Remap map[string]string

	// Confidence floor applied after remapping. ClassConfidence overrides
	// DefaultConfidence for specific VRU classes.
	DefaultConfidence float32
	ClassConfidence   map[string]float32

	// Boxes smaller than this many pixels are noise
	MinArea int32

	// Plausible width/height range per VRU class. Classes without an entry
	// are not aspect-checked.
	AspectRange map[string][2]float32

	// Same-class boxes overlapping at or above this IoU are duplicates of
	// one physical object, and only the most confident survives.
	NmsIoU float32

	// Additive per-class confidence adjustment, applied last. The result
	// is clamped to [0, 1].
	ConfidenceBoost map[string]float32
}

func DefaultPostProcessOptions() *PostProcessOptions {
	return &PostProcessOptions{
		Remap:             nn.DefaultVRURemap(),
		DefaultConfidence: 0.5,
		ClassConfidence:   map[string]float32{},
		MinArea:           144, // 12x12 pixels
		AspectRange: map[string][2]float32{
			// Standing or walking people are taller than wide. The wide end
			// of the band tolerates partial occlusion and sitting postures.
			nn.VRUPedestrian:     {0.15, 1.0},
			nn.VRUCyclist:        {0.25, 1.8},
			nn.VRUMotorcyclist:   {0.25, 1.8},
			nn.VRUWheelchairUser: {0.3, 2.0},
		},
		NmsIoU:          0.45,
		ConfidenceBoost: map[string]float32{},
	}
}

// PostProcess runs the filter chain on one frame's raw model output:
// class remap, confidence thresholds, geometry checks, non-maximum
// suppression, confidence adjustment. 'classes' names the model's raw
// class indexes. The result is ordered by descending confidence, with
// position as the tiebreak, so repeated runs emit identical output.
func PostProcess(raw []nn.RawDetection, classes []string, opts *PostProcessOptions) []ProcessedDetection {
	kept := make([]ProcessedDetection, 0, len(raw))
	for _, r := range raw {
		if r.Class < 0 || r.Class >= len(classes) {
			continue
		}
		vruClass, ok := opts.Remap[classes[r.Class]]
		if !ok {
			continue
		}
		threshold := opts.DefaultConfidence
		if t, ok := opts.ClassConfidence[vruClass]; ok {
			threshold = t
		}
		if r.Confidence < threshold {
			continue
		}
		if r.Box.Area() < opts.MinArea {
			continue
		}
		if band, ok := opts.AspectRange[vruClass]; ok {
			aspect := r.Box.Aspect()
			if aspect < band[0] || aspect > band[1] {
				continue
			}
		}
		kept = append(kept, ProcessedDetection{
			Class:      vruClass,
			Confidence: r.Confidence,
			Box:        r.Box,
		})
	}

	kept = suppressDuplicates(kept, opts.NmsIoU)

	for i := range kept {
		boost := opts.ConfidenceBoost[kept[i].Class]
		if boost != 0 {
			c := kept[i].Confidence + boost
			if c < 0 {
				c = 0
			} else if c > 1 {
				c = 1
			}
			kept[i].Confidence = c
		}
	}
	return kept
}

// suppressDuplicates is greedy non-maximum suppression within a class.
// Input order is irrelevant; candidates are visited in descending
// confidence, with (x, y) as the tiebreak.
func suppressDuplicates(dets []ProcessedDetection, iouThreshold float32) []ProcessedDetection {
	if len(dets) < 2 {
		sortDetections(dets)
		return dets
	}
	sortDetections(dets)

	// Spatial index to avoid O(N^2) comparisons
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(dets))
	for _, d := range dets {
		fb.Add(d.Box.X, d.Box.Y, d.Box.X2(), d.Box.Y2())
	}
	fb.Finish()

	suppressed := make([]bool, len(dets))
	for i, d := range dets {
		if suppressed[i] {
			continue
		}
		for _, j := range fb.Search(d.Box.X, d.Box.Y, d.Box.X2(), d.Box.Y2()) {
			if j <= i || suppressed[j] {
				continue
			}
			if dets[j].Class != d.Class {
				continue
			}
			if d.Box.IOU(dets[j].Box) >= iouThreshold {
				suppressed[j] = true
			}
		}
	}

	result := dets[:0]
	for i := range dets {
		if !suppressed[i] {
			result = append(result, dets[i])
		}
	}
	return result
}

func sortDetections(dets []ProcessedDetection) {
	sort.Slice(dets, func(i, j int) bool {
		if dets[i].Confidence != dets[j].Confidence {
			return dets[i].Confidence > dets[j].Confidence
		}
		if dets[i].Box.X != dets[j].Box.X {
			return dets[i].Box.X < dets[j].Box.X
		}
		return dets[i].Box.Y < dets[j].Box.Y
	})
}
