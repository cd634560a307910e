// Package server is the HTTP service that exposes detection runs,
// detections, and validation metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
	"github.com/vruscope/vruscope/pkg/nnload"
	"github.com/vruscope/vruscope/server/detectdb"
	"github.com/vruscope/vruscope/server/pipeline"
	"github.com/vruscope/vruscope/server/storage"
)

type Server struct {
	Log logs.Log
	DB  *detectdb.DetectDB

	config     *Config
	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
	storage    storage.Storage
	models     *nnload.Registry
	runner     *pipeline.Runner
	jobs       *pipeline.JobManager
}

func NewServer(configFile string) (*Server, error) {
	cfg := &Config{}
	if cfgB, err := os.ReadFile(configFile); err != nil {
		return nil, err
	} else {
		if err := json.Unmarshal(cfgB, cfg); err != nil {
			return nil, fmt.Errorf("Error parsing config file %v: %w", configFile, err)
		}
	}
	logger, err := logs.NewLog()
	if err != nil {
		return nil, err
	}
	db, err := detectdb.NewDetectDB(logger, cfg.DB)
	if err != nil {
		return nil, err
	}

	// Open blob store for evidence images
	var storageServer storage.Storage
	if cfg.EvidenceStorage.GCS != nil {
		storageServer, err = storage.NewStorageGCS(logger, cfg.EvidenceStorage.GCS.Bucket, cfg.EvidenceStorage.GCS.Public)
		if err != nil {
			return nil, err
		}
	} else if cfg.EvidenceStorage.Filesystem != nil {
		storageServer, err = storage.NewStorageFS(logger, cfg.EvidenceStorage.Filesystem.Root)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')")
	}

	s := &Server{
		Log:     logger,
		DB:      db,
		config:  cfg,
		storage: storageServer,
		models:  nnload.NewRegistry(logger, cfg.ModelDir),
		runner:  pipeline.NewRunner(logger, db, storageServer),
		jobs:    pipeline.NewJobManager(),
	}
	s.setupHttpRoutes()
	return s, nil
}

// pipelineOptions merges the config file overrides into the defaults
func (s *Server) pipelineOptions() *pipeline.Options {
	opts := pipeline.DefaultOptions()
	cfg := &s.config.Pipeline
	if cfg.Stride > 0 {
		opts.Stride = cfg.Stride
	}
	if cfg.Workers > 0 {
		opts.Workers = cfg.Workers
	}
	if cfg.FrameTimeoutSeconds > 0 {
		opts.FrameTimeout = time.Duration(cfg.FrameTimeoutSeconds) * time.Second
	}
	if cfg.DefaultConfidence > 0 {
		opts.PostProcess.DefaultConfidence = cfg.DefaultConfidence
	}
	return opts
}

// port example: ":8080"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. Shutting down", sig.String())
			s.Shutdown()
		}
	}()
}

func (s *Server) Shutdown() {
	s.Log.Infof("Shutdown")
	signal.Stop(s.signalIn)
	close(s.signalIn)
	s.Log.Infof("Closing HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.Log.Warnf("Shutdown complete, with error: %v", err)
	} else {
		s.Log.Infof("Shutdown complete")
	}
	s.models.Close()
	s.Log.Close()
}
