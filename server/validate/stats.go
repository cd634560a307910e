package validate

import (
	"math"

	"github.com/cyclopcam/dbh"
	"github.com/vruscope/vruscope/server/detectdb"
)

// z for a 95% two-sided normal interval
const wilsonZ95 = 1.959963984540054

// Relative change below which a metric is considered unchanged between
// two validations
const DefaultTrendThreshold = 0.05

type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// MetricTrend classifies each headline metric's movement between two
// validation runs
type MetricTrend struct {
	Precision TrendDirection `json:"precision"`
	Recall    TrendDirection `json:"recall"`
	F1        TrendDirection `json:"f1"`
}

// Summarize turns raw match counts into a metric record.
// Ratios with a zero denominator are left null rather than forced to zero,
// because "no data" and "always wrong" are different findings. The caller
// fills in VideoID and ModelVersion before persisting.
func Summarize(result MatchResult) *detectdb.ValidationMetric {
	m := &detectdb.ValidationMetric{
		TruePos:    result.TruePos,
		FalsePos:   result.FalsePos,
		FalseNeg:   result.FalseNeg,
		SampleSize: result.SampleSize(),
		PerClass:   dbh.MakeJSONField(result.PerClass),
	}
	tp := float64(result.TruePos)

	if n := result.TruePos + result.FalsePos; n > 0 {
		p := tp / float64(n)
		m.Precision = &p
		low, high := wilsonInterval(tp, float64(n))
		m.PrecisionLow = &low
		m.PrecisionHigh = &high
	}
	if n := result.TruePos + result.FalseNeg; n > 0 {
		r := tp / float64(n)
		m.Recall = &r
		low, high := wilsonInterval(tp, float64(n))
		m.RecallLow = &low
		m.RecallHigh = &high
	}
	if m.Precision != nil && m.Recall != nil && *m.Precision+*m.Recall > 0 {
		f1 := 2 * *m.Precision * *m.Recall / (*m.Precision + *m.Recall)
		m.F1 = &f1
	}
	return m
}

// wilsonInterval returns the 95% Wilson score interval for 'successes'
// out of 'n' trials. Unlike the normal approximation it behaves sanely at
// small n and at proportions near 0 or 1, and its bounds always stay
// inside [0, 1].
func wilsonInterval(successes, n float64) (low, high float64) {
	p := successes / n
	z := wilsonZ95
	z2 := z * z
	denom := 1 + z2/n
	center := (p + z2/(2*n)) / denom
	margin := z * math.Sqrt(p*(1-p)/n+z2/(4*n*n)) / denom
	low = center - margin
	high = center + margin
	if low < 0 {
		low = 0
	}
	if high > 1 {
		high = 1
	}
	return low, high
}

// Trend compares the latest validation of a video against the previous
// one, classifying precision, recall and F1 independently. Movements
// within 'relThreshold' of the previous value count as stable.
// A metric that is null on either side is reported stable, since there is
// nothing meaningful to compare.
func Trend(latest, previous *detectdb.ValidationMetric, relThreshold float64) MetricTrend {
	trend := MetricTrend{
		Precision: TrendStable,
		Recall:    TrendStable,
		F1:        TrendStable,
	}
	if latest == nil || previous == nil {
		return trend
	}
	trend.Precision = trendOne(latest.Precision, previous.Precision, relThreshold)
	trend.Recall = trendOne(latest.Recall, previous.Recall, relThreshold)
	trend.F1 = trendOne(latest.F1, previous.F1, relThreshold)
	return trend
}

func trendOne(latest, previous *float64, relThreshold float64) TrendDirection {
	if latest == nil || previous == nil {
		return TrendStable
	}
	prev := *previous
	if prev == 0 {
		if *latest > 0 {
			return TrendImproving
		}
		return TrendStable
	}
	rel := (*latest - prev) / prev
	if rel > relThreshold {
		return TrendImproving
	}
	if rel < -relThreshold {
		return TrendDeclining
	}
	return TrendStable
}
