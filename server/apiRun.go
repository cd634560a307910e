package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
	"github.com/vruscope/vruscope/pkg/vidlib"
	"github.com/vruscope/vruscope/server/detectdb"
	"github.com/vruscope/vruscope/server/pipeline"
)

type startRunJSON struct {
	VideoPath string `json:"videoPath"` // Path/URI of the video to process
	Model     string `json:"model"`     // Model name, resolved against the model directory
	Stride    int    `json:"stride"`    // Optional: process every Nth frame
	SessionID *int64 `json:"sessionID"` // Optional: validation session that owns the detections
}

// httpRunStart launches a detection run and returns its job immediately.
// The run itself proceeds in the background; progress is visible via
// GET /api/run/:id.
func (s *Server) httpRunStart(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	req := startRunJSON{}
	www.ReadJSON(w, r, &req, 1024*1024)
	if req.VideoPath == "" || req.Model == "" {
		www.PanicBadRequestf("videoPath and model are required")
	}

	info, err := vidlib.ProbeVideo(req.VideoPath)
	if errors.Is(err, vidlib.ErrVideoUnreadable) {
		www.PanicBadRequestf("Video is unreadable: %v", err)
	}
	www.Check(err)

	video, err := s.DB.GetOrCreateVideo(info)
	www.Check(err)

	model, err := s.models.Load(req.Model)
	if err != nil {
		www.PanicBadRequestf("Failed to load model %v: %v", req.Model, err)
	}
	modelVersion := model.Detector().Config().Version

	// Claim the run before creating the job, so a duplicate request fails
	// fast and leaves no job behind.
	if err := s.DB.TryLockRun(video.ID, modelVersion); err != nil {
		s.models.Release(model)
		if errors.Is(err, detectdb.ErrRunInProgress) {
			www.Panic(http.StatusConflict, err.Error())
		}
		www.Check(err)
	}

	opts := s.pipelineOptions()
	if req.Stride > 0 {
		opts.Stride = req.Stride
	}
	opts.SessionID = req.SessionID

	job := s.jobs.NewJob(video.ID, modelVersion)
	ctx := job.BindContext(context.Background())
	go func() {
		defer s.DB.UnlockRun(video.ID, modelVersion)
		defer s.models.Release(model)
		decoder, err := vidlib.OpenVideo(video.SourcePath)
		if err != nil {
			s.Log.Errorf("Job %v: failed to open video %v: %v", job.ID, video.SourcePath, err)
			job.Fail(err)
			return
		}
		defer decoder.Close()
		report, err := s.runner.Run(ctx, job, video, decoder, model.Detector(), opts)
		if err != nil {
			s.Log.Errorf("Job %v finished with error: %v", job.ID, err)
		} else {
			s.Log.Infof("Job %v complete: %v frames, %v detections, %v skipped, %v failed",
				job.ID, report.FramesOK, report.Detections, report.FramesSkipped, report.FramesFailed)
		}
	}()

	www.SendJSON(w, job.Status())
}

func (s *Server) getJob(params httprouter.Params) *pipeline.Job {
	id := www.ParseID(params.ByName("id"))
	job := s.jobs.Get(id)
	if job == nil {
		www.PanicNotFound()
	}
	return job
}

func (s *Server) httpRunStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.getJob(params).Status())
}

func (s *Server) httpRunCancel(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.getJob(params).Cancel()
	www.SendOK(w)
}
