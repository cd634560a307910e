package validate

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vruscope/vruscope/pkg/nn"
	"github.com/vruscope/vruscope/server/detectdb"
)

func det(frame int, class string, box nn.Rect) detectdb.Detection {
	d := detectdb.Detection{
		FrameIndex: frame,
		Class:      class,
		Confidence: 0.9,
	}
	d.SetBox(box)
	return d
}

func gt(frame int, class string, box nn.Rect) detectdb.GroundTruth {
	return detectdb.GroundTruth{
		FrameIndex: frame,
		Class:      class,
		X:          box.X,
		Y:          box.Y,
		Width:      box.Width,
		Height:     box.Height,
	}
}

func TestMatchBasic(t *testing.T) {
	// One detection right on top of a ground truth object, one spurious
	// detection far away.
	dets := []detectdb.Detection{
		det(0, nn.VRUPedestrian, nn.MakeRect(100, 100, 40, 80)),
		det(0, nn.VRUPedestrian, nn.MakeRect(500, 100, 40, 80)),
	}
	truth := []detectdb.GroundTruth{
		gt(0, nn.VRUPedestrian, nn.MakeRect(102, 98, 40, 80)),
	}
	r := MatchVideo(dets, truth, DefaultMatchIoU)
	require.Equal(t, 1, r.TruePos)
	require.Equal(t, 1, r.FalsePos)
	require.Equal(t, 0, r.FalseNeg)
	require.Equal(t, 2, r.SampleSize())
}

func TestMatchClassMismatch(t *testing.T) {
	// Perfect overlap, wrong class: both a false positive and a false negative
	dets := []detectdb.Detection{
		det(0, nn.VRUCyclist, nn.MakeRect(100, 100, 40, 80)),
	}
	truth := []detectdb.GroundTruth{
		gt(0, nn.VRUPedestrian, nn.MakeRect(100, 100, 40, 80)),
	}
	r := MatchVideo(dets, truth, DefaultMatchIoU)
	require.Equal(t, 0, r.TruePos)
	require.Equal(t, 1, r.FalsePos)
	require.Equal(t, 1, r.FalseNeg)
	require.Equal(t, 1, r.PerClass[nn.VRUCyclist].FalsePos)
	require.Equal(t, 1, r.PerClass[nn.VRUPedestrian].FalseNeg)
}

func TestMatchFrameIsolation(t *testing.T) {
	// Same box, wrong frame: no match
	dets := []detectdb.Detection{
		det(1, nn.VRUPedestrian, nn.MakeRect(100, 100, 40, 80)),
	}
	truth := []detectdb.GroundTruth{
		gt(2, nn.VRUPedestrian, nn.MakeRect(100, 100, 40, 80)),
	}
	r := MatchVideo(dets, truth, DefaultMatchIoU)
	require.Equal(t, 0, r.TruePos)
	require.Equal(t, 1, r.FalsePos)
	require.Equal(t, 1, r.FalseNeg)
}

func TestMatchGreedyBestIoU(t *testing.T) {
	// Two detections overlap one ground truth object. The tighter one must
	// win, the other becomes a false positive.
	tight := nn.MakeRect(100, 100, 40, 80)
	loose := nn.MakeRect(110, 100, 40, 80)
	dets := []detectdb.Detection{
		det(0, nn.VRUPedestrian, loose),
		det(0, nn.VRUPedestrian, tight),
	}
	truth := []detectdb.GroundTruth{
		gt(0, nn.VRUPedestrian, tight),
	}
	r := MatchVideo(dets, truth, DefaultMatchIoU)
	require.Equal(t, 1, r.TruePos)
	require.Equal(t, 1, r.FalsePos)
	require.Equal(t, 0, r.FalseNeg)
}

func TestMatchAccounting(t *testing.T) {
	// TP+FP = detections, TP+FN = ground truth, whatever the overlap pattern
	dets := []detectdb.Detection{
		det(0, nn.VRUPedestrian, nn.MakeRect(0, 0, 50, 50)),
		det(0, nn.VRUPedestrian, nn.MakeRect(10, 0, 50, 50)),
		det(0, nn.VRUCyclist, nn.MakeRect(300, 300, 60, 60)),
		det(5, nn.VRUMotorcyclist, nn.MakeRect(0, 0, 80, 80)),
	}
	truth := []detectdb.GroundTruth{
		gt(0, nn.VRUPedestrian, nn.MakeRect(2, 2, 50, 50)),
		gt(0, nn.VRUCyclist, nn.MakeRect(600, 600, 60, 60)),
		gt(3, nn.VRUWheelchairUser, nn.MakeRect(100, 100, 50, 50)),
	}
	r := MatchVideo(dets, truth, DefaultMatchIoU)
	require.Equal(t, len(dets), r.TruePos+r.FalsePos)
	require.Equal(t, len(truth), r.TruePos+r.FalseNeg)
}

func TestMatchPerItemOutcomes(t *testing.T) {
	// Every detection and every missed ground truth object shows up as an
	// individual outcome, with back-references to what it paired with
	hit := det(0, nn.VRUPedestrian, nn.MakeRect(100, 100, 40, 80))
	hit.DetectionID = "det-hit"
	spurious := det(0, nn.VRUPedestrian, nn.MakeRect(500, 100, 40, 80))
	spurious.DetectionID = "det-spurious"

	matched := gt(0, nn.VRUPedestrian, nn.MakeRect(102, 98, 40, 80))
	matched.ID = 11
	missed := gt(1, nn.VRUCyclist, nn.MakeRect(200, 200, 50, 90))
	missed.ID = 12

	r := MatchVideo([]detectdb.Detection{hit, spurious}, []detectdb.GroundTruth{matched, missed}, DefaultMatchIoU)
	require.Len(t, r.Matches, 3)

	byDet := map[string]Match{}
	for _, m := range r.Matches {
		if m.DetectionID != "" {
			byDet[m.DetectionID] = m
		}
	}
	require.Equal(t, MatchTruePos, byDet["det-hit"].Outcome)
	require.Equal(t, int64(11), byDet["det-hit"].GroundTruthID)
	require.Greater(t, byDet["det-hit"].IoU, float32(DefaultMatchIoU))
	require.Equal(t, MatchFalsePos, byDet["det-spurious"].Outcome)
	require.Equal(t, int64(0), byDet["det-spurious"].GroundTruthID)

	// Sorted by frame, so the false negative comes last
	fn := r.Matches[2]
	require.Equal(t, MatchFalseNeg, fn.Outcome)
	require.Equal(t, int64(12), fn.GroundTruthID)
	require.Empty(t, fn.DetectionID)
	require.Equal(t, 1, fn.FrameIndex)

	// The tallies are exactly the outcome counts
	require.Equal(t, 1, r.TruePos)
	require.Equal(t, 1, r.FalsePos)
	require.Equal(t, 1, r.FalseNeg)
}

func TestMatchEmpty(t *testing.T) {
	r := MatchVideo(nil, nil, DefaultMatchIoU)
	require.Equal(t, 0, r.SampleSize())

	r = MatchVideo(nil, []detectdb.GroundTruth{gt(0, nn.VRUPedestrian, nn.MakeRect(0, 0, 10, 10))}, DefaultMatchIoU)
	require.Equal(t, 1, r.FalseNeg)
}
