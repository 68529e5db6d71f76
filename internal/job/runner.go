package job

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/fault"
	"github.com/halftimetv/halftime/internal/ffmpeg"
	"github.com/halftimetv/halftime/internal/generation"
	"github.com/halftimetv/halftime/internal/hls"
	"github.com/halftimetv/halftime/internal/observability"
	"github.com/halftimetv/halftime/internal/oracle"
	"github.com/halftimetv/halftime/internal/subtitle"
)

// MediaOperator is the slice of the ffmpeg operator the runner needs.
type MediaOperator interface {
	Duration(ctx context.Context, path string) (float64, error)
	SegmentHLS(ctx context.Context, src, dir string, segmentSeconds int) (*ffmpeg.SegmentResult, error)
	Extract(ctx context.Context, src string, t0, t1 float64, dst string) error
	Concat(ctx context.Context, original, clip string, cutStart, cutEnd float64, dst string) error
}

// Placer selects the insertion point.
type Placer interface {
	Place(ctx context.Context, req oracle.PlaceRequest) (*oracle.Result, error)
	PlaceSinglePass(ctx context.Context, req oracle.PlaceRequest) (*oracle.Result, error)
}

// ClipUploader pushes the buffer clip to public hosting.
type ClipUploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// ClipGenerator runs the v2v provider round trip.
type ClipGenerator interface {
	Generate(ctx context.Context, videoURL, prompt string, durationSeconds int) (*generation.Result, error)
	Download(ctx context.Context, url, dst string) error
}

// Runner executes queued jobs on bounded background workers. One
// logical worker per job; the semaphore caps media-toolchain fanout.
type Runner struct {
	store     *Store
	operator  MediaOperator
	placer    Placer
	uploader  ClipUploader
	generator ClipGenerator
	prompts   *generation.PromptBuilder

	segmentSeconds int
	sem            chan struct{}
	logger         *slog.Logger

	// probe validates edited segments before splice.
	probe func(ctx context.Context, segs []hls.Segment) error

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner creates a Runner.
func NewRunner(
	store *Store,
	operator MediaOperator,
	placer Placer,
	uploader ClipUploader,
	generator ClipGenerator,
	prompts *generation.PromptBuilder,
	mediaCfg config.MediaConfig,
	jobsCfg config.JobsConfig,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrent := jobsCfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	segmentSeconds := mediaCfg.SegmentSeconds
	if segmentSeconds <= 0 {
		segmentSeconds = 10
	}
	return &Runner{
		store:          store,
		operator:       operator,
		placer:         placer,
		uploader:       uploader,
		generator:      generator,
		prompts:        prompts,
		segmentSeconds: segmentSeconds,
		sem:            make(chan struct{}, maxConcurrent),
		logger:         observability.WithComponent(logger, "job-runner"),
		probe:          hls.ProbeSegments,
		cancels:        make(map[string]context.CancelFunc),
	}
}

// Submit registers the job and spawns its worker.
func (r *Runner) Submit(j *Job) {
	r.store.Put(j)

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[j.ID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.cancels, j.ID)
			r.mu.Unlock()
			cancel()
		}()

		r.sem <- struct{}{}
		defer func() { <-r.sem }()

		r.run(ctx, j.ID)
	}()
}

// Cancel aborts a running job. The worker observes the cancellation at
// the next stage boundary or blocking call.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until all in-flight workers have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, id string) {
	logger := observability.WithJob(r.logger, id)

	job, err := r.store.Get(id)
	if err != nil {
		logger.Error("job vanished before execution")
		return
	}

	if err := r.execute(ctx, &job, logger); err != nil {
		if ctx.Err() != nil && fault.KindOf(err) != fault.KindCancelled {
			err = fault.Wrap(fault.KindCancelled, err, "job cancelled")
		}
		logger.Error("job failed",
			slog.String("error_kind", string(fault.KindOf(err))),
			slog.String("error", err.Error()))
		r.store.Update(id, func(j *Job) { j.MarkFailed(err) })
		return
	}

	logger.Info("job completed")
}

func (r *Runner) setProgress(id string, progress int) {
	r.store.Update(id, func(j *Job) {
		if progress > j.Progress {
			j.Progress = progress
		}
	})
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fault.Wrap(fault.KindCancelled, err, "job cancelled")
	}
	return nil
}

// execute runs the stage sequence. Stage order is strict; any error
// aborts the run and the caller records the fault.
func (r *Runner) execute(ctx context.Context, job *Job, logger *slog.Logger) error {
	r.store.Update(job.ID, func(j *Job) { j.MarkProcessing() })

	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return fault.Wrap(fault.KindInternal, err, "creating job output dir")
	}

	// Stage 1: parse subtitles.
	cues, err := subtitle.ParseFile(job.Request.SubtitlePath)
	if err != nil {
		return err
	}
	logger.Info("subtitles parsed", slog.Int("cues", len(cues)))
	r.setProgress(job.ID, ProgressSubtitles)
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	// Stage 2: segment the original into the VOD tree.
	segResult, err := r.operator.SegmentHLS(ctx, job.Request.VideoPath, job.OriginalDir(), r.segmentSeconds)
	if err != nil {
		return err
	}
	logger.Info("original segmented",
		slog.Int("segments", segResult.SegmentCount),
		slog.Float64("duration", segResult.Duration))
	r.store.Update(job.ID, func(j *Job) {
		j.SegmentCount = segResult.SegmentCount
		j.Progress = ProgressSegmented
	})
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	// Stage 3: placement.
	placeReq := oracle.PlaceRequest{
		Cues:          cues,
		VideoPath:     job.Request.VideoPath,
		VideoDuration: segResult.Duration,
		Product:       job.Request.Product,
		Profile:       job.Request.Profile,
		BufferBefore:  float64(job.Request.BufferSeconds),
	}
	var placement *oracle.Result
	if job.Request.UseAI {
		placement, err = r.placer.Place(ctx, placeReq)
	} else {
		placement, err = r.placer.PlaceSinglePass(ctx, placeReq)
	}
	if err != nil {
		return err
	}
	logger.Info("placement selected",
		slog.String("insertion_point", placement.Placement.InsertionPoint),
		slog.Float64("confidence", placement.Placement.Confidence))
	r.store.Update(job.ID, func(j *Job) {
		j.Placement = placement
		j.Progress = ProgressPlaced
	})
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	bufferStart, bufferEnd, err := placementWindow(placement)
	if err != nil {
		return err
	}

	// Stage 4: extract the buffer clip.
	clipPath, err := r.extractClip(ctx, job, bufferStart, bufferEnd)
	if err != nil {
		return err
	}
	r.setProgress(job.ID, ProgressClipExtracted)
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	// Stage 5: regenerate the clip with the product integrated.
	if err := r.generateClip(ctx, job, placement, clipPath, bufferEnd-bufferStart, logger); err != nil {
		return err
	}
	r.setProgress(job.ID, ProgressGenerated)
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	// Stage 6: segment the regenerated clip.
	if _, err := r.operator.SegmentHLS(ctx, job.EditedClipPath(), job.EditedHLSDir(), r.segmentSeconds); err != nil {
		return err
	}
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	// Stage 7: splice edited segments over the buffer window.
	merged, editedRange, err := r.splice(ctx, job, bufferStart, bufferEnd)
	if err != nil {
		return err
	}
	r.setProgress(job.ID, ProgressSpliced)
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	// Stage 8: compose the flat download copy with the edited clip
	// replacing the buffer window.
	if err := r.operator.Concat(ctx, job.Request.VideoPath, job.EditedClipPath(), bufferStart, bufferEnd, job.FinalPath()); err != nil {
		return err
	}

	r.store.Update(job.ID, func(j *Job) {
		j.EditedRange = editedRange
		j.SegmentCount = len(merged)
		j.MarkCompleted()
	})
	return nil
}

// placementWindow parses the buffer window out of the oracle result.
func placementWindow(result *oracle.Result) (start, end float64, err error) {
	s, err := subtitle.ParseTimestamp(result.Placement.BufferStart)
	if err != nil {
		return 0, 0, fault.Wrap(fault.KindOracleParse, err, "parsing buffer_start %q", result.Placement.BufferStart)
	}
	e, err := subtitle.ParseTimestamp(result.Placement.BufferEnd)
	if err != nil {
		return 0, 0, fault.Wrap(fault.KindOracleParse, err, "parsing buffer_end %q", result.Placement.BufferEnd)
	}
	start, end = subtitle.Seconds(s), subtitle.Seconds(e)
	if end <= start {
		return 0, 0, fault.New(fault.KindOracleParse, "degenerate buffer window [%.3f, %.3f)", start, end)
	}
	return start, end, nil
}

// extractClip cuts the buffer window into a scratch file that the
// upload stage consumes. The scratch dir is removed by generateClip.
func (r *Runner) extractClip(ctx context.Context, job *Job, start, end float64) (string, error) {
	scratch, err := os.MkdirTemp("", "halftime-clip-")
	if err != nil {
		return "", fault.Wrap(fault.KindInternal, err, "creating clip scratch dir")
	}
	clipPath := filepath.Join(scratch, "buffer_clip.mp4")
	if err := r.operator.Extract(ctx, job.Request.VideoPath, start, end, clipPath); err != nil {
		os.RemoveAll(scratch)
		return "", err
	}
	return clipPath, nil
}

// generateClip uploads the clip, runs generation and downloads the
// result to edited_segment.mp4. The clip scratch dir is removed on all
// exits.
func (r *Runner) generateClip(ctx context.Context, job *Job, placement *oracle.Result, clipPath string, clipSeconds float64, logger *slog.Logger) error {
	defer os.RemoveAll(filepath.Dir(clipPath))

	clipURL, err := r.uploader.Upload(ctx, clipPath)
	if err != nil {
		return err
	}

	prompt := r.prompts.Build(generation.PromptContext{
		Product:       job.Request.Product,
		Profile:       job.Request.Profile,
		SummaryBefore: placement.Placement.SummaryBefore,
		SummaryAfter:  placement.Placement.SummaryAfter,
		ContentType:   job.Request.ContentType,
		ContentGenre:  job.Request.ContentGenre,
		ClipDuration:  clipSeconds,
	})

	result, err := r.generator.Generate(ctx, clipURL, prompt, int(clipSeconds))
	if err != nil {
		return err
	}
	logger.Info("clip regenerated",
		slog.String("request_id", result.RequestID),
		slog.Duration("elapsed", result.Elapsed))

	return r.generator.Download(ctx, result.OutputURL, job.EditedClipPath())
}

// splice merges the edited segment run over the buffer window and
// emits the merged playlist.
func (r *Runner) splice(ctx context.Context, job *Job, bufferStart, bufferEnd float64) ([]hls.Segment, *EditedRange, error) {
	orig, err := hls.ParsePlaylistFile(filepath.Join(job.OriginalDir(), "playlist.m3u8"))
	if err != nil {
		return nil, nil, err
	}
	edited, err := hls.ParsePlaylistFile(filepath.Join(job.EditedHLSDir(), "playlist.m3u8"))
	if err != nil {
		return nil, nil, err
	}

	if err := r.probe(ctx, edited); err != nil {
		return nil, nil, err
	}

	a, b := hls.RangeForWindow(orig, bufferStart, bufferEnd)
	merged, err := hls.Splice(job.MergedDir(), orig, edited, a, b)
	if err != nil {
		return nil, nil, err
	}

	playlistPath := filepath.Join(job.MergedDir(), "playlist.m3u8")
	if err := hls.WritePlaylistFile(playlistPath, merged, nil); err != nil {
		return nil, nil, err
	}

	return merged, &EditedRange{Start: a, End: a + len(edited)}, nil
}
