// Package job owns the per-job lifecycle: an in-process registry, a
// bounded background runner executing the pipeline stages, and a cron
// sweeper reclaiming finished output trees.
package job

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/halftimetv/halftime/internal/fault"
	"github.com/halftimetv/halftime/internal/oracle"
)

// Status is the job lifecycle state.
type Status string

const (
	// StatusQueued indicates the job is waiting for a worker slot.
	StatusQueued Status = "queued"
	// StatusProcessing indicates a worker is running the pipeline.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates the merged output is ready.
	StatusCompleted Status = "completed"
	// StatusFailed indicates a stage failed; ErrorKind carries why.
	StatusFailed Status = "failed"
)

// Progress hints published at stage boundaries. Advisory only.
const (
	ProgressQueued        = 0
	ProgressStarted       = 10
	ProgressSubtitles     = 20
	ProgressSegmented     = 30
	ProgressPlaced        = 60
	ProgressClipExtracted = 70
	ProgressGenerated     = 80
	ProgressSpliced       = 90
	ProgressDone          = 100
)

// Request is a validated processing submission.
type Request struct {
	VideoPath     string         `json:"video_path"`
	SubtitlePath  string         `json:"subtitle_path"`
	Product       oracle.Product `json:"product"`
	Profile       oracle.Profile `json:"user_data"`
	ContentType   string         `json:"content_type,omitempty"`
	ContentGenre  string         `json:"content_genre,omitempty"`
	BufferSeconds int            `json:"buffer_seconds"`
	UseAI         bool           `json:"use_ai"`
}

// EditedRange records which merged segment indices hold edited content.
type EditedRange struct {
	Start int `json:"start"`
	End   int `json:"end"` // exclusive
}

// Job is one pipeline run. Instances are owned by the Store; callers
// hold copies.
type Job struct {
	ID       string  `json:"job_id"`
	Owner    string  `json:"-"`
	Status   Status  `json:"status"`
	Progress int     `json:"progress"`
	Request  Request `json:"request"`

	OutputDir string `json:"-"`

	Placement    *oracle.Result `json:"placement,omitempty"`
	EditedRange  *EditedRange   `json:"edited_range,omitempty"`
	SegmentCount int            `json:"segment_count,omitempty"`

	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a queued job owned by owner, rooted under outRoot.
func New(owner string, req Request, outRoot string) *Job {
	id := uuid.NewString()
	return &Job{
		ID:        id,
		Owner:     owner,
		Status:    StatusQueued,
		Progress:  ProgressQueued,
		Request:   req,
		OutputDir: filepath.Join(outRoot, id),
		CreatedAt: time.Now().UTC(),
	}
}

// Per-job output layout. The worker is the single writer; HTTP
// handlers read concurrently.
func (j *Job) OriginalDir() string      { return filepath.Join(j.OutputDir, "original") }
func (j *Job) EditedClipPath() string   { return filepath.Join(j.OutputDir, "edited_segment.mp4") }
func (j *Job) EditedHLSDir() string     { return filepath.Join(j.OutputDir, "edited_hls") }
func (j *Job) MergedDir() string        { return filepath.Join(j.OutputDir, "segments") }
func (j *Job) FinalPath() string        { return filepath.Join(j.OutputDir, "final_video.mp4") }
func (j *Job) TempPlaylistPath() string { return filepath.Join(j.OutputDir, "playlist_temp.m3u8") }

// IsTerminal reports whether the job has finished, successfully or not.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// HasEditedOutput reports whether the merged segment tree is the
// authoritative view for playback.
func (j *Job) HasEditedOutput() bool {
	return j.Status == StatusCompleted && j.EditedRange != nil
}

// MarkProcessing transitions the job to processing.
func (j *Job) MarkProcessing() {
	j.Status = StatusProcessing
	j.Progress = ProgressStarted
	now := time.Now().UTC()
	j.StartedAt = &now
	j.ErrorKind = ""
	j.ErrorMessage = ""
}

// MarkCompleted transitions the job to completed.
func (j *Job) MarkCompleted() {
	j.Status = StatusCompleted
	j.Progress = ProgressDone
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// MarkFailed transitions the job to failed, capturing the fault kind
// and message.
func (j *Job) MarkFailed(err error) {
	j.Status = StatusFailed
	now := time.Now().UTC()
	j.CompletedAt = &now
	if err != nil {
		j.ErrorKind = string(fault.KindOf(err))
		j.ErrorMessage = err.Error()
	}
}
