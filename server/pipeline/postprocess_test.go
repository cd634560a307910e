package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vruscope/vruscope/pkg/nn"
)

var cocoClasses = []string{"person", "bicycle", "car", "motorcycle"}

func classIndex(name string) int {
	for i, c := range cocoClasses {
		if c == name {
			return i
		}
	}
	panic("unknown class " + name)
}

func TestPostProcessRemap(t *testing.T) {
	opts := DefaultPostProcessOptions()
	raw := []nn.RawDetection{
		{Class: classIndex("person"), Confidence: 0.9, Box: nn.MakeRect(10, 10, 40, 80)},
		{Class: classIndex("car"), Confidence: 0.95, Box: nn.MakeRect(200, 10, 120, 80)},
		{Class: classIndex("bicycle"), Confidence: 0.8, Box: nn.MakeRect(400, 10, 60, 80)},
	}
	out := PostProcess(raw, cocoClasses, opts)
	require.Len(t, out, 2)
	classes := []string{out[0].Class, out[1].Class}
	require.Contains(t, classes, nn.VRUPedestrian)
	require.Contains(t, classes, nn.VRUCyclist)
}

func TestPostProcessThresholds(t *testing.T) {
	opts := DefaultPostProcessOptions()
	opts.ClassConfidence[nn.VRUCyclist] = 0.75
	raw := []nn.RawDetection{
		{Class: classIndex("person"), Confidence: 0.55, Box: nn.MakeRect(10, 10, 40, 80)},
		{Class: classIndex("person"), Confidence: 0.45, Box: nn.MakeRect(100, 10, 40, 80)},
		{Class: classIndex("bicycle"), Confidence: 0.7, Box: nn.MakeRect(400, 10, 60, 80)},
	}
	out := PostProcess(raw, cocoClasses, opts)
	// 0.45 person fails the default floor, 0.7 cyclist fails its class floor
	require.Len(t, out, 1)
	require.Equal(t, nn.VRUPedestrian, out[0].Class)
}

func TestPostProcessGeometry(t *testing.T) {
	opts := DefaultPostProcessOptions()
	raw := []nn.RawDetection{
		// Too small to be anything
		{Class: classIndex("person"), Confidence: 0.9, Box: nn.MakeRect(10, 10, 8, 10)},
		// A pedestrian lying on its side is not a plausible box
		{Class: classIndex("person"), Confidence: 0.9, Box: nn.MakeRect(100, 10, 120, 30)},
		// Plausible
		{Class: classIndex("person"), Confidence: 0.9, Box: nn.MakeRect(300, 10, 40, 80)},
	}
	out := PostProcess(raw, cocoClasses, opts)
	require.Len(t, out, 1)
	require.Equal(t, int32(300), out[0].Box.X)
}

func TestPostProcessNMS(t *testing.T) {
	opts := DefaultPostProcessOptions()
	raw := []nn.RawDetection{
		{Class: classIndex("person"), Confidence: 0.80, Box: nn.MakeRect(100, 100, 40, 80)},
		{Class: classIndex("person"), Confidence: 0.90, Box: nn.MakeRect(102, 101, 40, 80)},
		{Class: classIndex("person"), Confidence: 0.85, Box: nn.MakeRect(104, 99, 40, 80)},
		// Same spot, different class: not a duplicate
		{Class: classIndex("motorcycle"), Confidence: 0.70, Box: nn.MakeRect(100, 100, 40, 80)},
	}
	out := PostProcess(raw, cocoClasses, opts)
	require.Len(t, out, 2)
	require.Equal(t, nn.VRUPedestrian, out[0].Class)
	require.Equal(t, float32(0.90), out[0].Confidence)
	require.Equal(t, nn.VRUMotorcyclist, out[1].Class)

	// No surviving same-class pair may overlap above the threshold
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[i].Class == out[j].Class {
				require.Less(t, out[i].Box.IOU(out[j].Box), opts.NmsIoU)
			}
		}
	}
}

func TestPostProcessConfidenceBoost(t *testing.T) {
	opts := DefaultPostProcessOptions()
	opts.ConfidenceBoost[nn.VRUPedestrian] = 0.2
	raw := []nn.RawDetection{
		{Class: classIndex("person"), Confidence: 0.95, Box: nn.MakeRect(10, 10, 40, 80)},
		{Class: classIndex("person"), Confidence: 0.6, Box: nn.MakeRect(200, 10, 40, 80)},
	}
	out := PostProcess(raw, cocoClasses, opts)
	require.Len(t, out, 2)
	// Clamped at 1
	require.Equal(t, float32(1.0), out[0].Confidence)
	require.InDelta(t, 0.8, out[1].Confidence, 1e-6)
}

func TestPostProcessDeterministicOrder(t *testing.T) {
	raw := []nn.RawDetection{
		{Class: classIndex("person"), Confidence: 0.7, Box: nn.MakeRect(500, 10, 40, 80)},
		{Class: classIndex("person"), Confidence: 0.7, Box: nn.MakeRect(100, 10, 40, 80)},
		{Class: classIndex("person"), Confidence: 0.9, Box: nn.MakeRect(300, 10, 40, 80)},
	}
	opts := DefaultPostProcessOptions()
	out1 := PostProcess(raw, cocoClasses, opts)

	// Reversed input produces identical output
	reversed := []nn.RawDetection{raw[2], raw[1], raw[0]}
	out2 := PostProcess(reversed, cocoClasses, opts)
	require.Equal(t, out1, out2)
	require.Equal(t, int32(300), out1[0].Box.X)
	require.Equal(t, int32(100), out1[1].Box.X)
	require.Equal(t, int32(500), out1[2].Box.X)
}
