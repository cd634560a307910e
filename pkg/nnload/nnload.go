package nnload

// Package nnload owns model loading and lifecycle. The registry is an
// explicit object that gets passed to whoever needs a detector: there is no
// process-wide model cache. Handles are refcounted, so two pipeline runs that
// use the same model share one detector instance, and the underlying model is
// released when the last handle goes away.

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cyclopcam/logs"
	"github.com/vruscope/vruscope/pkg/nn"
)

// Registry loads models from a directory and keeps them alive while handles
// reference them.
type Registry struct {
	log      logs.Log
	modelDir string

	lock   sync.Mutex
	models map[string]*ModelHandle
}

// ModelHandle is a refcounted reference to a loaded model.
type ModelHandle struct {
	Name string

	registry *Registry
	detector nn.ObjectDetector
	refs     int
}

// Detector returns the detector behind this handle. If the backend is not
// thread-safe, the detector returned here is already serialized.
func (h *ModelHandle) Detector() nn.ObjectDetector {
	return h.detector
}

func NewRegistry(log logs.Log, modelDir string) *Registry {
	return &Registry{
		log:      log,
		modelDir: modelDir,
		models:   map[string]*ModelHandle{},
	}
}

// Load returns a handle to the named model, loading it on first use.
// Every successful Load must be paired with a Release.
func (r *Registry) Load(modelName string) (*ModelHandle, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if h, ok := r.models[modelName]; ok {
		h.refs++
		return h, nil
	}

	detector, err := r.loadDetector(modelName)
	if err != nil {
		return nil, err
	}
	if !detector.ThreadSafe() {
		detector = nn.Serialize(detector)
	}
	h := &ModelHandle{
		Name:     modelName,
		registry: r,
		detector: detector,
		refs:     1,
	}
	r.models[modelName] = h
	r.log.Infof("Loaded model '%v' (%v)", modelName, detector.Config().Version)
	return h, nil
}

// Release drops one reference to the handle, closing the model when the last
// reference is gone.
func (r *Registry) Release(h *ModelHandle) {
	if h == nil {
		return
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	h.refs--
	if h.refs <= 0 {
		h.detector.Close()
		delete(r.models, h.Name)
		r.log.Infof("Released model '%v'", h.Name)
	}
}

// Close releases every model regardless of outstanding handles.
// Call this only during process shutdown.
func (r *Registry) Close() {
	r.lock.Lock()
	defer r.lock.Unlock()
	for name, h := range r.models {
		h.detector.Close()
		delete(r.models, name)
	}
}

func (r *Registry) loadDetector(modelName string) (nn.ObjectDetector, error) {
	base := filepath.Join(r.modelDir, modelName)
	config, err := nn.LoadModelConfig(base + ".json")
	if err != nil {
		return nil, fmt.Errorf("Failed to load model config for '%v': %w", modelName, err)
	}

	// Replay models carry their detections in a sidecar labels file.
	replayFile := base + ".replay.json"
	if _, err := os.Stat(replayFile); err == nil {
		return NewReplayDetector(config, replayFile)
	}

	return nil, fmt.Errorf("No loadable backend for model '%v' (expected %v)", modelName, replayFile)
}
