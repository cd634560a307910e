// Package validate compares persisted detections to ground truth
// annotations and computes quality metrics over the result.
package validate

import (
	"sort"

	"github.com/vruscope/vruscope/server/detectdb"
)

// Minimum IoU for a detection to count as a hit on a ground truth object.
const DefaultMatchIoU = 0.5

type MatchOutcome string

const (
	MatchTruePos  MatchOutcome = "true_positive"
	MatchFalsePos MatchOutcome = "false_positive"
	MatchFalseNeg MatchOutcome = "false_negative"
)

// Match records the fate of one detection or one ground truth object.
// A true positive references both sides of the pairing. A false positive
// has no ground truth, and a false negative has no detection.
type Match struct {
	Outcome       MatchOutcome `json:"outcome"`
	DetectionID   string       `json:"detectionID,omitempty"`   // Empty for false negatives
	GroundTruthID int64        `json:"groundTruthID,omitempty"` // Zero for false positives
	FrameIndex    int          `json:"frameIndex"`
	Class         string       `json:"class"`
	IoU           float32      `json:"iou,omitempty"` // Overlap of the matched pair, true positives only
}

// MatchResult is the outcome of matching one video's detections against
// its ground truth. The tallies are derived from Matches.
type MatchResult struct {
	Matches  []Match
	TruePos  int
	FalsePos int
	FalseNeg int
	PerClass map[string]detectdb.ClassTally
}

func (r *MatchResult) SampleSize() int {
	return r.TruePos + r.FalsePos + r.FalseNeg
}

type candidate struct {
	iou      float32
	detIdx   int
	truthIdx int
}

// MatchVideo pairs detections with ground truth objects, emitting one
// Match per detection and one per unmatched ground truth object.
// Matching is greedy on descending IoU, independently per frame and per
// class. Class mismatches never pair, regardless of overlap. Every
// detection becomes exactly one of TP or FP, and every ground truth object
// exactly one of TP or FN, so TP+FP = len(dets) and TP+FN = len(truth).
func MatchVideo(dets []detectdb.Detection, truth []detectdb.GroundTruth, iouThreshold float32) MatchResult {
	result := MatchResult{
		PerClass: map[string]detectdb.ClassTally{},
	}

	type bucket struct {
		dets  []int
		truth []int
	}
	type bucketKey struct {
		frame int
		class string
	}
	buckets := map[bucketKey]*bucket{}
	getBucket := func(key bucketKey) *bucket {
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		return b
	}
	for i := range dets {
		b := getBucket(bucketKey{dets[i].FrameIndex, dets[i].Class})
		b.dets = append(b.dets, i)
	}
	for i := range truth {
		b := getBucket(bucketKey{truth[i].FrameIndex, truth[i].Class})
		b.truth = append(b.truth, i)
	}

	for key, b := range buckets {
		candidates := []candidate{}
		for _, di := range b.dets {
			detBox := dets[di].Box()
			for _, ti := range b.truth {
				iou := detBox.IOU(truth[ti].Box())
				if iou >= iouThreshold {
					candidates = append(candidates, candidate{iou, di, ti})
				}
			}
		}
		// Highest IoU wins. Ties break on record order, so results are
		// reproducible across runs.
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].iou != candidates[j].iou {
				return candidates[i].iou > candidates[j].iou
			}
			if candidates[i].detIdx != candidates[j].detIdx {
				return candidates[i].detIdx < candidates[j].detIdx
			}
			return candidates[i].truthIdx < candidates[j].truthIdx
		})

		detUsed := map[int]bool{}
		truthUsed := map[int]bool{}
		for _, c := range candidates {
			if detUsed[c.detIdx] || truthUsed[c.truthIdx] {
				continue
			}
			detUsed[c.detIdx] = true
			truthUsed[c.truthIdx] = true
			result.Matches = append(result.Matches, Match{
				Outcome:       MatchTruePos,
				DetectionID:   dets[c.detIdx].DetectionID,
				GroundTruthID: truth[c.truthIdx].ID,
				FrameIndex:    key.frame,
				Class:         key.class,
				IoU:           c.iou,
			})
		}
		for _, di := range b.dets {
			if !detUsed[di] {
				result.Matches = append(result.Matches, Match{
					Outcome:     MatchFalsePos,
					DetectionID: dets[di].DetectionID,
					FrameIndex:  key.frame,
					Class:       key.class,
				})
			}
		}
		for _, ti := range b.truth {
			if !truthUsed[ti] {
				result.Matches = append(result.Matches, Match{
					Outcome:       MatchFalseNeg,
					GroundTruthID: truth[ti].ID,
					FrameIndex:    key.frame,
					Class:         key.class,
				})
			}
		}
	}

	// Map iteration order over buckets is random, so impose a stable order
	sort.Slice(result.Matches, func(i, j int) bool {
		a, b := &result.Matches[i], &result.Matches[j]
		if a.FrameIndex != b.FrameIndex {
			return a.FrameIndex < b.FrameIndex
		}
		if a.Class != b.Class {
			return a.Class < b.Class
		}
		if a.DetectionID != b.DetectionID {
			return a.DetectionID < b.DetectionID
		}
		return a.GroundTruthID < b.GroundTruthID
	})

	for _, m := range result.Matches {
		tally := result.PerClass[m.Class]
		switch m.Outcome {
		case MatchTruePos:
			result.TruePos++
			tally.TruePos++
		case MatchFalsePos:
			result.FalsePos++
			tally.FalsePos++
		case MatchFalseNeg:
			result.FalseNeg++
			tally.FalseNeg++
		}
		result.PerClass[m.Class] = tally
	}
	return result
}
