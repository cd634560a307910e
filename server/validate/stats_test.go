package validate

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vruscope/vruscope/server/detectdb"
)

func TestSummarize(t *testing.T) {
	// 1 hit, 1 spurious detection, nothing missed
	m := Summarize(MatchResult{TruePos: 1, FalsePos: 1, FalseNeg: 0})
	require.NotNil(t, m.Precision)
	require.NotNil(t, m.Recall)
	require.NotNil(t, m.F1)
	require.InDelta(t, 0.5, *m.Precision, 1e-9)
	require.InDelta(t, 1.0, *m.Recall, 1e-9)
	require.InDelta(t, 2.0/3.0, *m.F1, 1e-9)
	require.Equal(t, 2, m.SampleSize)
}

func TestSummarizeNullNotZero(t *testing.T) {
	// No detections at all: precision is unknowable, not zero
	m := Summarize(MatchResult{TruePos: 0, FalsePos: 0, FalseNeg: 3})
	require.Nil(t, m.Precision)
	require.Nil(t, m.PrecisionLow)
	require.NotNil(t, m.Recall)
	require.Equal(t, 0.0, *m.Recall)
	require.Nil(t, m.F1)

	// No ground truth: recall is unknowable
	m = Summarize(MatchResult{TruePos: 0, FalsePos: 2, FalseNeg: 0})
	require.Nil(t, m.Recall)
	require.NotNil(t, m.Precision)
	require.Equal(t, 0.0, *m.Precision)
	require.Nil(t, m.F1)

	// Nothing at all
	m = Summarize(MatchResult{})
	require.Nil(t, m.Precision)
	require.Nil(t, m.Recall)
	require.Nil(t, m.F1)
	require.Equal(t, 0, m.SampleSize)
}

func TestWilsonInterval(t *testing.T) {
	// Known value: 8/10 successes, 95% interval is roughly (0.49, 0.94)
	low, high := wilsonInterval(8, 10)
	require.InDelta(t, 0.4901, low, 0.001)
	require.InDelta(t, 0.9433, high, 0.001)
	require.Less(t, low, 0.8)
	require.Greater(t, high, 0.8)

	// A single observation must still yield a sane, wide interval
	low, high = wilsonInterval(1, 1)
	require.GreaterOrEqual(t, low, 0.0)
	require.LessOrEqual(t, high, 1.0)
	require.Greater(t, high-low, 0.5)

	// Zero successes pins the lower bound at 0
	low, high = wilsonInterval(0, 5)
	require.Equal(t, 0.0, low)
	require.Greater(t, high, 0.0)
	require.LessOrEqual(t, high, 1.0)
}

func TestTrend(t *testing.T) {
	f := func(v float64) *detectdb.ValidationMetric {
		return &detectdb.ValidationMetric{F1: &v}
	}
	require.Equal(t, TrendImproving, Trend(f(0.80), f(0.70), DefaultTrendThreshold).F1)
	require.Equal(t, TrendDeclining, Trend(f(0.60), f(0.70), DefaultTrendThreshold).F1)
	require.Equal(t, TrendStable, Trend(f(0.71), f(0.70), DefaultTrendThreshold).F1)
	require.Equal(t, TrendStable, Trend(f(0.70), f(0.70), DefaultTrendThreshold).F1)

	// Missing history
	require.Equal(t, TrendStable, Trend(f(0.70), nil, DefaultTrendThreshold).F1)
	require.Equal(t, TrendStable, Trend(nil, f(0.70), DefaultTrendThreshold).F1)
	require.Equal(t, TrendStable, Trend(f(0.70), &detectdb.ValidationMetric{}, DefaultTrendThreshold).F1)

	// Climbing off the floor counts as improvement
	require.Equal(t, TrendImproving, Trend(f(0.10), f(0.0), DefaultTrendThreshold).F1)
}

func TestTrendPerMetric(t *testing.T) {
	m := func(precision, recall, f1 float64) *detectdb.ValidationMetric {
		return &detectdb.ValidationMetric{Precision: &precision, Recall: &recall, F1: &f1}
	}

	// Precision up, recall down, F1 flat: each metric moves independently
	trend := Trend(m(0.90, 0.50, 0.70), m(0.80, 0.60, 0.70), DefaultTrendThreshold)
	require.Equal(t, TrendImproving, trend.Precision)
	require.Equal(t, TrendDeclining, trend.Recall)
	require.Equal(t, TrendStable, trend.F1)

	// A metric that is null on either side stays stable
	recall := 0.5
	trend = Trend(&detectdb.ValidationMetric{Recall: &recall}, m(0.80, 0.60, 0.70), DefaultTrendThreshold)
	require.Equal(t, TrendStable, trend.Precision)
	require.Equal(t, TrendDeclining, trend.Recall)
	require.Equal(t, TrendStable, trend.F1)
}

func TestTrendCustomThreshold(t *testing.T) {
	f := func(v float64) *detectdb.ValidationMetric {
		return &detectdb.ValidationMetric{F1: &v}
	}

	// A 10% gain is improvement at the default band, stable at a 20% band
	require.Equal(t, TrendImproving, Trend(f(0.77), f(0.70), DefaultTrendThreshold).F1)
	require.Equal(t, TrendStable, Trend(f(0.77), f(0.70), 0.20).F1)

	// A zero band flags any movement at all
	require.Equal(t, TrendImproving, Trend(f(0.701), f(0.70), 0).F1)
	require.Equal(t, TrendDeclining, Trend(f(0.699), f(0.70), 0).F1)
}
