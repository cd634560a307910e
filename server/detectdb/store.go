package detectdb

import (
	"fmt"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/google/uuid"
	"github.com/vruscope/vruscope/pkg/vidlib"
	"github.com/vruscope/vruscope/server/storage"
	"gorm.io/gorm"
)

const (
	storeMaxAttempts  = 3
	storeRetryBackoff = 50 * time.Millisecond
)

// GetOrCreateVideo finds the video record for info.SourcePath,
// or creates one if this is the first run on that video.
func (d *DetectDB) GetOrCreateVideo(info *vidlib.VideoInfo) (*Video, error) {
	video := &Video{}
	err := d.db.Where("source_path = ?", info.SourcePath).First(video).Error
	if err == nil {
		return video, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	video = &Video{
		SourcePath: info.SourcePath,
		FrameRate:  info.FrameRate,
		Width:      info.Width,
		Height:     info.Height,
		FrameCount: info.FrameCount,
		CreatedAt:  dbh.MakeIntTime(time.Now()),
	}
	if err := d.db.Create(video).Error; err != nil {
		return nil, err
	}
	return video, nil
}

func (d *DetectDB) GetVideo(id int64) (*Video, error) {
	video := &Video{}
	if err := d.db.First(video, id).Error; err != nil {
		return nil, err
	}
	return video, nil
}

// StoreFrameDetections writes all detections of one frame in a single
// transaction, so that a frame is either fully persisted or not at all.
// Records are upserted on their identity hash. When a record already exists
// (eg a re-run of the same video and model), the detection adopts the
// existing row's detection_id, and the incoming record only backfills
// evidence paths that the earlier run left null.
//
// A failed transaction is retried a few times before giving up with
// ErrStorageTransaction.
func (d *DetectDB) StoreFrameDetections(dets []*Detection) error {
	if len(dets) == 0 {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt < storeMaxAttempts; attempt++ {
		if attempt != 0 {
			time.Sleep(storeRetryBackoff * time.Duration(attempt))
		}
		lastErr = d.db.Transaction(func(tx *gorm.DB) error {
			for _, det := range dets {
				if err := upsertDetection(tx, det); err != nil {
					return err
				}
			}
			return nil
		})
		if lastErr == nil {
			return nil
		}
		d.log.Warnf("StoreFrameDetections attempt %v/%v failed: %v", attempt+1, storeMaxAttempts, lastErr)
	}
	return fmt.Errorf("%w after %v attempts: %v", ErrStorageTransaction, storeMaxAttempts, lastErr)
}

// Callers serialize writes for a (video, model version) pair via the run
// lock, so checking for an existing row before inserting is race-free.
func upsertDetection(tx *gorm.DB, det *Detection) error {
	if det.IdentityHash == "" {
		det.IdentityHash = ComputeIdentityHash(det.VideoID, det.ModelVersion, det.FrameIndex, det.Class, det.Box())
	}
	existing := &Detection{}
	err := tx.Where("identity_hash = ?", det.IdentityHash).First(existing).Error
	if err == gorm.ErrRecordNotFound {
		det.DetectionID = uuid.NewString()
		det.CreatedAt = dbh.MakeIntTime(time.Now())
		return tx.Create(det).Error
	}
	if err != nil {
		return err
	}
	updates := map[string]any{}
	if existing.FramePath == nil && det.FramePath != nil {
		updates["frame_path"] = *det.FramePath
	}
	if existing.CropPath == nil && det.CropPath != nil {
		updates["crop_path"] = *det.CropPath
	}
	if len(updates) != 0 {
		if err := tx.Model(existing).Updates(updates).Error; err != nil {
			return err
		}
		if v, ok := updates["frame_path"].(string); ok {
			existing.FramePath = &v
		}
		if v, ok := updates["crop_path"].(string); ok {
			existing.CropPath = &v
		}
	}
	*det = *existing
	return nil
}

// GetDetectionByID finds a detection by its public detection_id
func (d *DetectDB) GetDetectionByID(detectionID string) (*Detection, error) {
	det := &Detection{}
	if err := d.db.Where("detection_id = ?", detectionID).First(det).Error; err != nil {
		return nil, err
	}
	return det, nil
}

// DetectionQuery filters GetDetections. Zero values mean "no filter".
type DetectionQuery struct {
	DetectionID   string // Public detection_id, for single-detection operations
	VideoID       int64
	SessionID     *int64
	ModelVersion  string
	Class         string
	MinConfidence float32
	FrameFrom     int // inclusive
	FrameTo       int // exclusive, 0 = no limit
}

// DeleteDetections removes the detections matched by 'q', together with
// their evidence blobs. Rows are deleted in one transaction; blob deletion
// is best-effort afterwards, since an orphaned blob is harmless while a
// dangling evidence path is not. Returns the number of rows deleted.
func (d *DetectDB) DeleteDetections(store storage.Storage, q DetectionQuery) (int, error) {
	dets, err := d.GetDetections(q)
	if err != nil {
		return 0, err
	}
	if len(dets) == 0 {
		return 0, nil
	}
	ids := make([]int64, 0, len(dets))
	for _, det := range dets {
		ids = append(ids, det.ID)
	}
	err = d.db.Transaction(func(tx *gorm.DB) error {
		return tx.Delete(&Detection{}, ids).Error
	})
	if err != nil {
		return 0, err
	}
	for _, det := range dets {
		for _, path := range []*string{det.FramePath, det.CropPath} {
			if path == nil {
				continue
			}
			if err := store.DeleteFile(*path); err != nil {
				d.log.Warnf("Failed to delete evidence blob %v: %v", *path, err)
			}
		}
	}
	return len(dets), nil
}

func (d *DetectDB) GetDetections(q DetectionQuery) ([]Detection, error) {
	tx := d.db.Order("frame_index, x, y")
	if q.DetectionID != "" {
		tx = tx.Where("detection_id = ?", q.DetectionID)
	}
	if q.VideoID != 0 {
		tx = tx.Where("video_id = ?", q.VideoID)
	}
	if q.SessionID != nil {
		tx = tx.Where("session_id = ?", *q.SessionID)
	}
	if q.ModelVersion != "" {
		tx = tx.Where("model_version = ?", q.ModelVersion)
	}
	if q.Class != "" {
		tx = tx.Where("class = ?", q.Class)
	}
	if q.MinConfidence > 0 {
		tx = tx.Where("confidence >= ?", q.MinConfidence)
	}
	if q.FrameFrom > 0 {
		tx = tx.Where("frame_index >= ?", q.FrameFrom)
	}
	if q.FrameTo > 0 {
		tx = tx.Where("frame_index < ?", q.FrameTo)
	}
	dets := []Detection{}
	if err := tx.Find(&dets).Error; err != nil {
		return nil, err
	}
	return dets, nil
}
