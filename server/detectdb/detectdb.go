// Package detectdb stores detections, ground truth annotations, and
// validation metrics, and enforces the one-run-per-video-and-model rule.
package detectdb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"gorm.io/gorm"
)

var (
	// Raised when a second run is requested for a (video, model version) pair
	// that already has a run in flight.
	ErrRunInProgress = errors.New("A run for this video and model version is already in progress")

	// Raised after we've given up retrying a failed write transaction.
	ErrStorageTransaction = errors.New("Storage transaction failed")
)

// DetectDB manages detection records
type DetectDB struct {
	log logs.Log
	db  *gorm.DB

	// Guards access to activeRuns
	runLock    sync.Mutex
	activeRuns map[runKey]bool
}

type runKey struct {
	videoID      int64
	modelVersion string
}

// Open or create a detection DB
func NewDetectDB(log logs.Log, config dbh.DBConfig) (*DetectDB, error) {
	log.Infof("Opening detection DB")
	db, err := dbh.OpenDB(log, config, Migrations(log), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open detection database: %w", err)
	}
	return &DetectDB{
		log:        log,
		db:         db,
		activeRuns: map[runKey]bool{},
	}, nil
}

// DB returns the underlying gorm handle
func (d *DetectDB) DB() *gorm.DB {
	return d.db
}

// TryLockRun acquires the run lock for (videoID, modelVersion).
// Returns ErrRunInProgress if another run holds it.
// The caller must release it with UnlockRun.
func (d *DetectDB) TryLockRun(videoID int64, modelVersion string) error {
	d.runLock.Lock()
	defer d.runLock.Unlock()
	key := runKey{videoID, modelVersion}
	if d.activeRuns[key] {
		return ErrRunInProgress
	}
	d.activeRuns[key] = true
	return nil
}

func (d *DetectDB) UnlockRun(videoID int64, modelVersion string) {
	d.runLock.Lock()
	defer d.runLock.Unlock()
	delete(d.activeRuns, runKey{videoID, modelVersion})
}
