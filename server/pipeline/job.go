package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bmharper/ringbuffer"
)

type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Capacity of the per-job recent warnings buffer. Must be a power of 2.
const jobWarningCapacity = 64

// A recoverable problem that occurred during a run, but didn't stop it
type Warning struct {
	FrameIndex int       `json:"frameIndex"`
	Message    string    `json:"message"`
	Time       time.Time `json:"time"`
}

// Job is one detection run over one video. All state access goes through
// the lock, because the pipeline workers, the HTTP API, and the job
// manager touch jobs concurrently.
type Job struct {
	ID           int64  `json:"id"`
	VideoID      int64  `json:"videoID"`
	ModelVersion string `json:"modelVersion"`

	lock        sync.Mutex
	state       JobState
	framesDone  int
	framesTotal int
	errMsg      string
	warnings    ringbuffer.RingP[Warning]
	nWarnings   int
	startedAt   time.Time
	finishedAt  time.Time
	cancel      context.CancelFunc
}

// JobStatus is a point-in-time snapshot of a job, for the API
type JobStatus struct {
	ID           int64      `json:"id"`
	VideoID      int64      `json:"videoID"`
	ModelVersion string     `json:"modelVersion"`
	State        JobState   `json:"state"`
	FramesDone   int        `json:"framesDone"`
	FramesTotal  int        `json:"framesTotal"`
	Error        string     `json:"error,omitempty"`
	NumWarnings  int        `json:"numWarnings"`
	Warnings     []Warning  `json:"warnings"` // most recent warnings only
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

func (j *Job) State() JobState {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.state
}

func (j *Job) setState(next JobState) error {
	valid := false
	switch j.state {
	case JobQueued:
		valid = next == JobRunning || next == JobCancelled || next == JobFailed
	case JobRunning:
		valid = next.IsTerminal()
	}
	if !valid {
		return fmt.Errorf("Invalid job state transition %v -> %v", j.state, next)
	}
	j.state = next
	switch next {
	case JobRunning:
		j.startedAt = time.Now()
	case JobCompleted, JobFailed, JobCancelled:
		j.finishedAt = time.Now()
	}
	return nil
}

func (j *Job) transition(next JobState) error {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.setState(next)
}

// Fail moves the job to the failed state with the given error.
// Failing a job that already reached a terminal state is a no-op.
func (j *Job) Fail(err error) {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.state.IsTerminal() {
		return
	}
	j.errMsg = err.Error()
	j.setState(JobFailed)
}

// setProgress never lets progress move backwards, so API clients watching
// a run see a monotonic counter even if updates race.
func (j *Job) setProgress(done, total int) {
	j.lock.Lock()
	defer j.lock.Unlock()
	if total > j.framesTotal {
		j.framesTotal = total
	}
	if done > j.framesDone {
		j.framesDone = done
	}
}

func (j *Job) addWarning(frameIndex int, msg string) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.warnings.Add(Warning{
		FrameIndex: frameIndex,
		Message:    msg,
		Time:       time.Now(),
	})
	j.nWarnings++
}

// BindContext derives a cancellable context for the run and ties it to
// the job, so that Cancel() can reach a run in flight.
func (j *Job) BindContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	j.lock.Lock()
	j.cancel = cancel
	j.lock.Unlock()
	return ctx
}

// Cancel requests cancellation. The pipeline notices at the next frame
// boundary. Cancelling a finished job is a no-op.
func (j *Job) Cancel() {
	j.lock.Lock()
	cancel := j.cancel
	if j.state == JobQueued {
		// Never started, so there is no pipeline to wind down
		j.setState(JobCancelled)
	}
	j.lock.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (j *Job) Status() JobStatus {
	j.lock.Lock()
	defer j.lock.Unlock()
	status := JobStatus{
		ID:           j.ID,
		VideoID:      j.VideoID,
		ModelVersion: j.ModelVersion,
		State:        j.state,
		FramesDone:   j.framesDone,
		FramesTotal:  j.framesTotal,
		Error:        j.errMsg,
		NumWarnings:  j.nWarnings,
		Warnings:     make([]Warning, 0, j.warnings.Len()),
	}
	for i := 0; i < j.warnings.Len(); i++ {
		status.Warnings = append(status.Warnings, j.warnings.Peek(i))
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		status.StartedAt = &t
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		status.FinishedAt = &t
	}
	return status
}

// JobManager tracks all jobs created since the server started
type JobManager struct {
	lock   sync.Mutex
	nextID int64
	jobs   map[int64]*Job
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs: map[int64]*Job{},
	}
}

func (m *JobManager) NewJob(videoID int64, modelVersion string) *Job {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.nextID++
	job := &Job{
		ID:           m.nextID,
		VideoID:      videoID,
		ModelVersion: modelVersion,
		state:        JobQueued,
		warnings:     ringbuffer.NewRingP[Warning](jobWarningCapacity),
	}
	m.jobs[job.ID] = job
	return job
}

func (m *JobManager) Get(id int64) *Job {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.jobs[id]
}
