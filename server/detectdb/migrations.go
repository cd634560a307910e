package detectdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE video(
			id INTEGER PRIMARY KEY,
			source_path TEXT NOT NULL,
			frame_rate REAL NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			frame_count INT NOT NULL,
			created_at INT NOT NULL
		);
		CREATE UNIQUE INDEX idx_video_source_path ON video (source_path);

		CREATE TABLE detection(
			id INTEGER PRIMARY KEY,
			detection_id TEXT NOT NULL,
			identity_hash TEXT NOT NULL,
			video_id INT NOT NULL,
			session_id INT,
			model_version TEXT NOT NULL,
			frame_index INT NOT NULL,
			timestamp REAL NOT NULL,
			class TEXT NOT NULL,
			confidence REAL NOT NULL,
			x INT NOT NULL,
			y INT NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			frame_path TEXT,
			crop_path TEXT,
			processing_msec INT NOT NULL,
			created_at INT NOT NULL
		);
		CREATE UNIQUE INDEX idx_detection_identity_hash ON detection (identity_hash);
		CREATE UNIQUE INDEX idx_detection_detection_id ON detection (detection_id);
		CREATE INDEX idx_detection_video_model ON detection (video_id, model_version, frame_index);
		CREATE INDEX idx_detection_session ON detection (session_id);

		CREATE TABLE ground_truth(
			id INTEGER PRIMARY KEY,
			video_id INT NOT NULL,
			frame_index INT NOT NULL,
			class TEXT NOT NULL,
			x INT NOT NULL,
			y INT NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL
		);
		CREATE INDEX idx_ground_truth_video_frame ON ground_truth (video_id, frame_index);

		CREATE TABLE validation_metric(
			id INTEGER PRIMARY KEY,
			video_id INT NOT NULL,
			session_id INT,
			model_version TEXT NOT NULL,
			true_pos INT NOT NULL,
			false_pos INT NOT NULL,
			false_neg INT NOT NULL,
			sample_size INT NOT NULL,
			precision REAL,
			recall REAL,
			f1 REAL,
			precision_low REAL,
			precision_high REAL,
			recall_low REAL,
			recall_high REAL,
			per_class TEXT,
			created_at INT NOT NULL
		);
		CREATE INDEX idx_validation_metric_video_model ON validation_metric (video_id, model_version, created_at);
	`))

	return migs
}
