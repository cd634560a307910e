package detectdb

import (
	"gorm.io/gorm"

	"github.com/vruscope/vruscope/pkg/nn"
)

// ImportGroundTruth replaces the ground truth annotations for a video with
// the contents of 'labels'. Class names in the label file are stored as-is.
func (d *DetectDB) ImportGroundTruth(videoID int64, labels *nn.VideoLabels) (int, error) {
	records := []GroundTruth{}
	for _, frame := range labels.Frames {
		for _, obj := range frame.Objects {
			if obj.Class < 0 || obj.Class >= len(labels.Classes) {
				continue
			}
			records = append(records, GroundTruth{
				VideoID:    videoID,
				FrameIndex: frame.Frame,
				Class:      labels.Classes[obj.Class],
				X:          obj.Box.X,
				Y:          obj.Box.Y,
				Width:      obj.Box.Width,
				Height:     obj.Box.Height,
			})
		}
	}
	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", videoID).Delete(&GroundTruth{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Create(&records).Error
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// GetGroundTruth returns all annotations for a video, ordered by frame.
func (d *DetectDB) GetGroundTruth(videoID int64) ([]GroundTruth, error) {
	records := []GroundTruth{}
	if err := d.db.Where("video_id = ?", videoID).Order("frame_index, x, y").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
