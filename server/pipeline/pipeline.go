// Package pipeline runs object detection over a video and persists the
// validated results: sample frames, detect, filter, capture evidence, store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/vruscope/vruscope/pkg/nn"
	"github.com/vruscope/vruscope/pkg/vidlib"
	"github.com/vruscope/vruscope/server/detectdb"
	"github.com/vruscope/vruscope/server/storage"
)

var (
	// The detector failed on too many consecutive frames, so we stop
	// hammering it and fail the run.
	ErrDetectorUnhealthy = errors.New("Detector is unhealthy")

	// A single frame took too long to process
	ErrFrameTimeout = errors.New("Frame processing timed out")
)

// Options for one detection run
type Options struct {
	Stride                 int           // Process every Nth frame
	Workers                int           // Parallel frame workers
	FrameTimeout           time.Duration // Per-frame processing limit
	MaxConsecutiveFailures int           // Failures in a row before the run is aborted
	SessionID              *int64        // Validation session that owns the run (nil for standalone runs)
	PostProcess            *PostProcessOptions
}

func DefaultOptions() *Options {
	return &Options{
		Stride:                 1,
		Workers:                min(runtime.NumCPU(), 8),
		FrameTimeout:           30 * time.Second,
		MaxConsecutiveFailures: 3,
		PostProcess:            DefaultPostProcessOptions(),
	}
}

// RunReport summarizes what a finished (or aborted) run did
type RunReport struct {
	FramesAttempted int `json:"framesAttempted"` // Frames handed to workers
	FramesOK        int `json:"framesOK"`
	FramesSkipped   int `json:"framesSkipped"` // Undecodable frames
	FramesFailed    int `json:"framesFailed"`  // Frames where detection or storage failed
	Detections      int `json:"detections"`    // Detections persisted (including re-run duplicates)
}

// Runner executes detection runs. One Runner is shared by all jobs; all
// per-run state lives on the stack of Run.
type Runner struct {
	log      logs.Log
	db       *detectdb.DetectDB
	evidence *EvidenceCapturer
}

func NewRunner(log logs.Log, db *detectdb.DetectDB, store storage.Storage) *Runner {
	return &Runner{
		log:      log,
		db:       db,
		evidence: NewEvidenceCapturer(log, store),
	}
}

// Run processes one video with one detector, updating 'job' as it goes.
// The caller owns the run lock for (video, model version) and the decoder.
//
// Frame decode failures and evidence capture failures are recorded as
// warnings and the run continues. Detection failures count toward a
// consecutive-failure limit; crossing it aborts the run with
// ErrDetectorUnhealthy, leaving already-persisted frames in place.
// Cancellation via ctx is honored at frame boundaries.
func (r *Runner) Run(ctx context.Context, job *Job, video *detectdb.Video, decoder vidlib.FrameDecoder, detector nn.ObjectDetector, opts *Options) (*RunReport, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := job.transition(JobRunning); err != nil {
		return nil, err
	}

	report := &RunReport{}
	sampler, err := vidlib.NewSampler(decoder, video.FrameRate, opts.Stride)
	if err != nil {
		job.Fail(err)
		return nil, err
	}
	sampler.OnWarning = func(frameIndex int, err error) {
		r.log.Warnf("Job %v: frame %v decode failed: %v", job.ID, frameIndex, err)
		job.addWarning(frameIndex, fmt.Sprintf("Frame decode failed: %v", err))
		report.FramesSkipped++
	}
	job.setProgress(0, sampler.Total())

	// Per-run shared state, guarded by 'lock'
	lock := sync.Mutex{}
	consecutiveFailures := 0
	var fatalErr error
	framesDone := int64(0)
	fuse := make(chan bool) // closed once, when the run must stop early
	var fuseOnce sync.Once
	abort := func(err error) {
		lock.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		lock.Unlock()
		fuseOnce.Do(func() { close(fuse) })
	}

	frameQueue := make(chan vidlib.Frame)
	wg := sync.WaitGroup{}
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for frame := range frameQueue {
				// Drain without processing once the run is aborting
				select {
				case <-fuse:
					continue
				default:
				}
				nDets, err := r.processFrame(job, video, frame, detector, opts)
				lock.Lock()
				if err != nil {
					report.FramesFailed++
					tripped := false
					if errors.Is(err, detectdb.ErrStorageTransaction) {
						// Storage failed after inference succeeded, so this
						// is fatal for the frame batch only. It neither
						// aborts the run nor counts against detector health.
						consecutiveFailures = 0
					} else {
						consecutiveFailures++
						tripped = consecutiveFailures >= opts.MaxConsecutiveFailures
					}
					lock.Unlock()
					r.log.Errorf("Job %v: frame %v failed: %v", job.ID, frame.Index, err)
					job.addWarning(frame.Index, fmt.Sprintf("Frame processing failed: %v", err))
					if tripped {
						abort(fmt.Errorf("%w: %v consecutive frame failures, last: %v", ErrDetectorUnhealthy, opts.MaxConsecutiveFailures, err))
					}
				} else {
					report.FramesOK++
					report.Detections += nDets
					consecutiveFailures = 0
					lock.Unlock()
				}
				done := atomic.AddInt64(&framesDone, 1)
				job.setProgress(int(done), sampler.Total())
			}
		}()
	}

	// Feed frames until the video ends, the job is cancelled, or a worker
	// trips the fuse.
feed:
	for {
		select {
		case <-ctx.Done():
			break feed
		case <-fuse:
			break feed
		default:
		}
		frame, err := sampler.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			abort(err)
			break
		}
		report.FramesAttempted++
		select {
		case frameQueue <- frame:
		case <-fuse:
			report.FramesAttempted--
			break feed
		case <-ctx.Done():
			report.FramesAttempted--
			break feed
		}
	}
	close(frameQueue)
	wg.Wait()

	lock.Lock()
	err = fatalErr
	lock.Unlock()

	if ctx.Err() != nil {
		job.transition(JobCancelled)
		return report, ctx.Err()
	}
	if err != nil {
		job.Fail(err)
		return report, err
	}
	job.transition(JobCompleted)
	return report, nil
}

// processFrame runs detection and post-processing on one frame, captures
// evidence, and persists the result. The whole frame is subject to the
// per-frame timeout.
func (r *Runner) processFrame(job *Job, video *detectdb.Video, frame vidlib.Frame, detector nn.ObjectDetector, opts *Options) (int, error) {
	type result struct {
		objects []nn.RawDetection
		err     error
	}
	resultCh := make(chan result, 1)
	started := time.Now()
	go func() {
		img := nn.WholeImage(3, frame.Image.Pixels, frame.Image.Width, frame.Image.Height)
		params := nn.NewDetectionParams()
		params.ConfidenceFloor = nn.DebugConfidenceFloor // thresholds are applied in post-processing
		if fa, ok := detector.(nn.FrameAwareDetector); ok {
			objects, err := fa.DetectFrame(frame.Index, img, params)
			resultCh <- result{objects, err}
		} else {
			// Tiling handles frames larger than the model input. On frames
			// that fit, it degenerates to a single DetectObjects call.
			objects, err := nn.TiledInference(detector, img, params, 1)
			resultCh <- result{objects, err}
		}
	}()

	var raw []nn.RawDetection
	select {
	case res := <-resultCh:
		if res.err != nil {
			return 0, res.err
		}
		raw = res.objects
	case <-time.After(opts.FrameTimeout):
		return 0, fmt.Errorf("%w after %v on frame %v", ErrFrameTimeout, opts.FrameTimeout, frame.Index)
	}

	processed := PostProcess(raw, detector.Config().Classes, opts.PostProcess)
	if len(processed) == 0 {
		return 0, nil
	}

	elapsedMsec := time.Since(started).Milliseconds()
	dets := make([]*detectdb.Detection, 0, len(processed))
	for _, p := range processed {
		det := &detectdb.Detection{
			VideoID:        video.ID,
			SessionID:      opts.SessionID,
			ModelVersion:   job.ModelVersion,
			FrameIndex:     frame.Index,
			Timestamp:      frame.Timestamp,
			Class:          p.Class,
			Confidence:     p.Confidence,
			ProcessingMsec: elapsedMsec,
		}
		det.SetBox(p.Box)
		if err := r.evidence.Capture(frame.Image, det); err != nil {
			// Evidence is best-effort. The detection is still stored, with
			// null evidence paths.
			r.log.Warnf("Job %v: evidence capture failed for frame %v: %v", job.ID, frame.Index, err)
			job.addWarning(frame.Index, fmt.Sprintf("Evidence capture failed: %v", err))
		}
		dets = append(dets, det)
	}
	if err := r.db.StoreFrameDetections(dets); err != nil {
		return 0, err
	}
	return len(dets), nil
}
