package handlers

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/halftimetv/halftime/internal/auth"
	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/job"
	"github.com/halftimetv/halftime/internal/subtitle"
)

// defaultBufferSeconds pads the insertion point when the caller does
// not say how much surrounding footage to regenerate.
const defaultBufferSeconds = 10

// JobRunner is the runner surface the handler needs.
type JobRunner interface {
	Submit(j *job.Job)
	Cancel(id string) bool
}

// VideoHandler handles processing submissions and status reads.
type VideoHandler struct {
	store      *job.Store
	runner     JobRunner
	outputRoot string
	minGap     time.Duration
}

// NewVideoHandler creates a new video handler.
func NewVideoHandler(store *job.Store, runner JobRunner, storage config.StorageConfig, placement config.PlacementConfig) *VideoHandler {
	return &VideoHandler{
		store:      store,
		runner:     runner,
		outputRoot: storage.OutputDir,
		minGap:     placement.MinGap,
	}
}

// PlaylistURL returns the playback URL for a job.
func PlaylistURL(jobID string) string {
	return fmt.Sprintf("/api/v1/videos/playlist/%s.m3u8", jobID)
}

// ProcessInput is the processing submission body.
type ProcessInput struct {
	Body job.Request
}

// ProcessResponse acknowledges a queued job.
type ProcessResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	PlaylistURL string `json:"playlist_url"`
}

// ProcessOutput is the output for the process endpoint.
type ProcessOutput struct {
	Body ProcessResponse
}

// StatusInput identifies a job.
type StatusInput struct {
	JobID string `path:"job_id" doc:"Job identifier"`
}

// StatusResponse is the job status view.
type StatusResponse struct {
	JobID       string     `json:"job_id"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	PlaylistURL string     `json:"playlist_url"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StatusOutput is the output for the status endpoint.
type StatusOutput struct {
	Body StatusResponse
}

// CancelOutput is the output for the cancel endpoint.
type CancelOutput struct {
	Body struct {
		JobID     string `json:"job_id"`
		Cancelled bool   `json:"cancelled"`
	}
}

// GapsInput selects a subtitle file to inspect.
type GapsInput struct {
	SubtitlePath string `query:"subtitle_path" required:"true" doc:"Path to an SRT or VTT file"`
}

// GapView is one dialogue gap in human-readable form.
type GapView struct {
	Start         string  `json:"start"`
	End           string  `json:"end"`
	Duration      float64 `json:"duration_seconds"`
	ContextBefore string  `json:"context_before,omitempty"`
	ContextAfter  string  `json:"context_after,omitempty"`
}

// GapsOutput is the output for the gaps endpoint.
type GapsOutput struct {
	Body struct {
		Count int       `json:"count"`
		Gaps  []GapView `json:"gaps"`
	}
}

// Register registers the video routes with the API.
func (h *VideoHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "processVideo",
		Method:      "POST",
		Path:        "/api/v1/videos/process",
		Summary:     "Submit a video for ad placement",
		Description: "Queues a background job that places and regenerates an ad clip inside the video",
		Tags:        []string{"Videos"},
	}, h.Process)

	huma.Register(api, huma.Operation{
		OperationID: "getVideoStatus",
		Method:      "GET",
		Path:        "/api/v1/videos/status/{job_id}",
		Summary:     "Get job status",
		Description: "Returns the processing status and playlist URL for a job",
		Tags:        []string{"Videos"},
	}, h.Status)

	huma.Register(api, huma.Operation{
		OperationID: "cancelVideoJob",
		Method:      "POST",
		Path:        "/api/v1/videos/cancel/{job_id}",
		Summary:     "Cancel a running job",
		Description: "Requests cancellation of a queued or processing job",
		Tags:        []string{"Videos"},
	}, h.Cancel)

	huma.Register(api, huma.Operation{
		OperationID: "listSubtitleGaps",
		Method:      "GET",
		Path:        "/api/v1/videos/gaps",
		Summary:     "Inspect dialogue gaps",
		Description: "Parses a subtitle file and returns candidate silence gaps",
		Tags:        []string{"Videos"},
	}, h.Gaps)
}

// Process validates the submission and queues a job.
func (h *VideoHandler) Process(ctx context.Context, input *ProcessInput) (*ProcessOutput, error) {
	req := input.Body
	if req.VideoPath == "" || req.SubtitlePath == "" {
		return nil, huma.Error400BadRequest("video_path and subtitle_path are required")
	}
	if _, err := os.Stat(req.VideoPath); err != nil {
		return nil, huma.Error400BadRequest(fmt.Sprintf("video not found: %s", req.VideoPath))
	}
	if _, err := os.Stat(req.SubtitlePath); err != nil {
		return nil, huma.Error400BadRequest(fmt.Sprintf("subtitles not found: %s", req.SubtitlePath))
	}
	if req.Product.Company == "" || req.Product.Name == "" {
		return nil, huma.Error400BadRequest("product requires company and product")
	}
	if req.BufferSeconds < 0 {
		return nil, huma.Error400BadRequest("buffer_seconds must not be negative")
	}
	if req.BufferSeconds == 0 {
		req.BufferSeconds = defaultBufferSeconds
	}

	j := job.New(auth.SubjectFrom(ctx), req, h.outputRoot)
	h.runner.Submit(j)

	return &ProcessOutput{Body: ProcessResponse{
		JobID:       j.ID,
		Status:      string(j.Status),
		PlaylistURL: PlaylistURL(j.ID),
	}}, nil
}

// Status returns the job status for its owner.
func (h *VideoHandler) Status(ctx context.Context, input *StatusInput) (*StatusOutput, error) {
	j, err := h.ownedJob(ctx, input.JobID)
	if err != nil {
		return nil, err
	}
	return &StatusOutput{Body: StatusResponse{
		JobID:       j.ID,
		Status:      string(j.Status),
		Progress:    j.Progress,
		PlaylistURL: PlaylistURL(j.ID),
		ErrorKind:   j.ErrorKind,
		Error:       j.ErrorMessage,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
	}}, nil
}

// Cancel requests cancellation of a queued or running job.
func (h *VideoHandler) Cancel(ctx context.Context, input *StatusInput) (*CancelOutput, error) {
	j, err := h.ownedJob(ctx, input.JobID)
	if err != nil {
		return nil, err
	}
	out := &CancelOutput{}
	out.Body.JobID = j.ID
	out.Body.Cancelled = h.runner.Cancel(j.ID)
	return out, nil
}

// Gaps parses a subtitle file and lists its silence gaps.
func (h *VideoHandler) Gaps(_ context.Context, input *GapsInput) (*GapsOutput, error) {
	cues, err := subtitle.ParseFile(input.SubtitlePath)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	gaps := subtitle.FindGaps(cues, h.minGap)

	out := &GapsOutput{}
	out.Body.Count = len(gaps)
	out.Body.Gaps = make([]GapView, 0, len(gaps))
	for _, g := range gaps {
		out.Body.Gaps = append(out.Body.Gaps, GapView{
			Start:         subtitle.FormatTimestamp(g.Start),
			End:           subtitle.FormatTimestamp(g.End),
			Duration:      subtitle.Seconds(g.Duration),
			ContextBefore: g.ContextBefore,
			ContextAfter:  g.ContextAfter,
		})
	}
	return out, nil
}

// ownedJob resolves a job and enforces ownership.
func (h *VideoHandler) ownedJob(ctx context.Context, id string) (job.Job, error) {
	j, err := h.store.GetOwned(id, auth.SubjectFrom(ctx))
	switch err {
	case nil:
		return j, nil
	case job.ErrNotOwner:
		return job.Job{}, huma.Error403Forbidden("job belongs to another user")
	case job.ErrNotFound:
		return job.Job{}, huma.Error404NotFound("job not found")
	default:
		return job.Job{}, err
	}
}
