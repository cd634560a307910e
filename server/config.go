package server

import "github.com/cyclopcam/dbh"

type Config struct {
	DB              dbh.DBConfig   `json:"db"`
	EvidenceStorage StorageConfig  `json:"evidenceStorage"`
	ModelDir        string         `json:"modelDir"` // Directory holding model config files
	Pipeline        PipelineConfig `json:"pipeline"`
}

// One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')
type StorageConfig struct {
	Filesystem *StorageConfigFS  `json:"filesystem"`
	GCS        *StorageConfigGCS `json:"gcs"`
}

type StorageConfigFS struct {
	Root string `json:"root"` // Path to the root of the filesystem
}

type StorageConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
	Public bool   `json:"public"` // Whether the bucket is public. This allows us to give clients direct URLs into GCS, instead of passing the data through our service
}

// Overrides for the pipeline defaults. Zero values mean "use the default".
type PipelineConfig struct {
	Stride              int     `json:"stride"`              // Process every Nth frame
	Workers             int     `json:"workers"`             // Parallel frame workers
	FrameTimeoutSeconds int     `json:"frameTimeoutSeconds"` // Per-frame processing limit
	DefaultConfidence   float32 `json:"defaultConfidence"`   // Confidence floor after class remapping
}
