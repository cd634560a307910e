package detectdb

import (
	"time"

	"github.com/cyclopcam/dbh"
)

// AddMetric appends a validation result. The table is never updated in
// place, so the history of a (video, model version) pair stays intact.
func (d *DetectDB) AddMetric(m *ValidationMetric) error {
	m.CreatedAt = dbh.MakeIntTime(time.Now())
	return d.db.Create(m).Error
}

// MetricHistory returns all validations of a video, oldest first.
// modelVersion is optional.
func (d *DetectDB) MetricHistory(videoID int64, modelVersion string) ([]ValidationMetric, error) {
	tx := d.db.Where("video_id = ?", videoID).Order("created_at, id")
	if modelVersion != "" {
		tx = tx.Where("model_version = ?", modelVersion)
	}
	metrics := []ValidationMetric{}
	if err := tx.Find(&metrics).Error; err != nil {
		return nil, err
	}
	return metrics, nil
}

// LatestTwoMetrics returns the newest and second newest validation for a
// video, for trend analysis. Either may be nil.
func (d *DetectDB) LatestTwoMetrics(videoID int64, modelVersion string) (latest, previous *ValidationMetric, err error) {
	tx := d.db.Where("video_id = ?", videoID).Order("created_at DESC, id DESC").Limit(2)
	if modelVersion != "" {
		tx = tx.Where("model_version = ?", modelVersion)
	}
	metrics := []ValidationMetric{}
	if err := tx.Find(&metrics).Error; err != nil {
		return nil, nil, err
	}
	if len(metrics) > 0 {
		latest = &metrics[0]
	}
	if len(metrics) > 1 {
		previous = &metrics[1]
	}
	return latest, previous, nil
}
