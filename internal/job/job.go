// Package job tracks pipeline jobs and runs them end to end: fetch, chunk,
// transcribe, extract, write outputs.
package job

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snarg/pullquote/internal/request"
)

// Mode selects what the pipeline produces after transcription.
type Mode string

const (
	ModeQuotes     Mode = "quotes"     // timestamp-anchored quote blocks
	ModeAnalysis   Mode = "analysis"   // free-form question over the transcript
	ModeTranscript Mode = "transcript" // transcript only
)

// State is the lifecycle state of a job.
type State string

const (
	StateQueued       State = "queued"
	StateFetching     State = "fetching"
	StateChunking     State = "chunking"
	StateTranscribing State = "transcribing"
	StateExtracting   State = "extracting"
	StateDone         State = "done"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// Result is the output of a finished job.
type Result struct {
	Title          string  `json:"title"`
	VideoID        string  `json:"video_id,omitempty"`
	Duration       float64 `json:"duration_seconds"`
	Chunks         int     `json:"chunks"`
	AudioCached    bool    `json:"audio_cached"`
	TranscriptUsed bool    `json:"transcript_cached"`
	TranscriptPath string  `json:"transcript_path,omitempty"`
	QuotesPath     string  `json:"quotes_path,omitempty"`
	AnalysisPath   string  `json:"analysis_path,omitempty"`
}

// Job is one pipeline run. Fields other than the identity block are guarded
// by the registry's lock; read snapshots via Registry.Get.
type Job struct {
	ID       string           `json:"id"`
	Mode     Mode             `json:"mode"`
	URL      string           `json:"url"`
	Question string           `json:"question,omitempty"`
	Moments  []request.Moment `json:"moments,omitempty"`

	State      State     `json:"state"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
	Result     *Result   `json:"result,omitempty"`

	cancel context.CancelFunc
}

// Registry holds all jobs for the process lifetime and hands out IDs.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	seq  atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Create registers a new queued job.
func (r *Registry) Create(mode Mode, url, question string, moments []request.Moment) *Job {
	j := &Job{
		ID:        fmt.Sprintf("%d-%04d", time.Now().UnixMilli(), r.seq.Add(1)),
		Mode:      mode,
		URL:       url,
		Question:  question,
		Moments:   moments,
		State:     StateQueued,
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.jobs[j.ID] = j
	r.mu.Unlock()
	return j
}

// Get returns a snapshot of a job by ID.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns snapshots of all jobs, newest first.
func (r *Registry) List() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

// ActiveJobCount returns the number of jobs that have not reached a
// terminal state. Read at metrics scrape time.
func (r *Registry) ActiveJobCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, j := range r.jobs {
		if !isTerminal(j.State) {
			n++
		}
	}
	return n
}

// Cancel aborts a running job. Returns false when the job does not exist or
// already finished.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.cancel == nil || isTerminal(j.State) {
		return false
	}
	j.cancel()
	return true
}

func (r *Registry) setState(id string, state State) {
	r.mu.Lock()
	if j, ok := r.jobs[id]; ok {
		j.State = state
	}
	r.mu.Unlock()
}

func (r *Registry) finish(id string, state State, errMsg string, result *Result) {
	r.mu.Lock()
	if j, ok := r.jobs[id]; ok {
		j.State = state
		j.Error = errMsg
		j.Result = result
		j.FinishedAt = time.Now().UTC()
		j.cancel = nil
	}
	r.mu.Unlock()
}

func (r *Registry) attachCancel(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	if j, ok := r.jobs[id]; ok {
		j.cancel = cancel
	}
	r.mu.Unlock()
}

func isTerminal(s State) bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}
