package oracle

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/fault"
	"github.com/halftimetv/halftime/internal/frame"
	"github.com/halftimetv/halftime/internal/observability"
	"github.com/halftimetv/halftime/internal/subtitle"
)

// multipassConfidence is fixed: visual verification earns it, the
// transcript-only self-estimate does not apply.
const multipassConfidence = 0.9

// PlaceRequest is one placement run over a parsed transcript.
type PlaceRequest struct {
	Cues      []subtitle.Cue
	VideoPath string
	// VideoDuration in seconds; zero means derive from the last cue end.
	VideoDuration float64
	Product       Product
	Profile       Profile
	// BufferBefore/After in seconds; zero means the configured default.
	BufferBefore float64
	BufferAfter  float64
}

// Engine orchestrates placement over the oracle client and frame
// extraction.
type Engine struct {
	client    *Client
	extractor *frame.Extractor
	placement config.PlacementConfig
	logger    *slog.Logger
}

// NewEngine creates a placement engine. The extractor may be nil when
// only single-pass placement is needed.
func NewEngine(client *Client, extractor *frame.Extractor, placement config.PlacementConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:    client,
		extractor: extractor,
		placement: placement,
		logger:    observability.WithComponent(logger, "placement"),
	}
}

func (e *Engine) buffers(req PlaceRequest) (before, after float64) {
	before = req.BufferBefore
	if before <= 0 {
		before = e.placement.BufferBefore.Seconds()
	}
	after = req.BufferAfter
	if after <= 0 {
		after = e.placement.BufferAfter.Seconds()
	}
	return before, after
}

func (e *Engine) transcriptInput(req PlaceRequest) TranscriptInput {
	return TranscriptInput{
		Summary: subtitle.Summary(req.Cues, e.placement.TranscriptCap),
		Gaps:    subtitle.FindGaps(req.Cues, e.placement.MinGap),
		Product: req.Product,
		Profile: req.Profile,
	}
}

func videoDuration(req PlaceRequest) float64 {
	if req.VideoDuration > 0 {
		return req.VideoDuration
	}
	if len(req.Cues) > 0 {
		return subtitle.Seconds(req.Cues[len(req.Cues)-1].End)
	}
	return 0
}

// Place runs the multi-pass analysis: transcript candidates, one frame
// per candidate, visual selection. The scratch frame directory is
// removed on every exit path.
func (e *Engine) Place(ctx context.Context, req PlaceRequest) (*Result, error) {
	in := e.transcriptInput(req)
	bufferBefore, bufferAfter := e.buffers(req)

	candidates, err := e.client.Candidates(ctx, in, e.placement.MaxCandidates)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fault.New(fault.KindNoCandidates, "transcript analysis produced no placement candidates")
	}
	e.logger.Info("candidate pass completed", slog.Int("candidates", len(candidates)))

	if err := ctx.Err(); err != nil {
		return nil, fault.Wrap(fault.KindCancelled, err, "placement cancelled")
	}

	timestamps := make([]float64, len(candidates))
	for i, c := range candidates {
		if d, err := subtitle.ParseTimestamp(c.InsertionPoint); err == nil {
			timestamps[i] = subtitle.Seconds(d)
		}
	}

	frameDir, err := os.MkdirTemp("", "halftime-frames-")
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "creating frame scratch dir")
	}
	defer os.RemoveAll(frameDir)

	frames, err := e.extractor.ExtractBase64(ctx, req.VideoPath, timestamps, frameDir)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "extracting candidate frames")
	}

	selection, err := e.client.VisionSelect(ctx, candidates, frames, req.Product, req.Profile)
	if err != nil {
		return nil, err
	}

	idx := selection.SelectedIndex
	if idx < 0 || idx >= len(candidates) {
		e.logger.Warn("vision selection out of range, using first candidate",
			slog.Int("selected_index", idx))
		idx = 0
	}
	selected := candidates[idx]
	e.logger.Info("visual pass selected placement",
		slog.Int("index", idx),
		slog.String("insertion_point", selected.InsertionPoint))

	placement := Placement{
		InsertionPoint:   selected.InsertionPoint,
		Confidence:       multipassConfidence,
		Reason:           firstNonEmpty(selection.WhySelected, selected.Reason),
		ContextRelevance: selection.VisualDescription,
		SummaryBefore:    selected.TranscriptContext,
		SummaryAfter:     selection.WhyOthersRejected,
	}
	duration := videoDuration(req)
	deriveBuffers(&placement, duration, bufferBefore, bufferAfter)

	return &Result{
		Placement:       placement,
		OverallAnalysis: "Selected via multi-pass analysis. Visual verification confirmed this placement.",
		VideoDuration:   duration,
		TotalGapsFound:  len(in.Gaps),
	}, nil
}

// PlaceSinglePass runs the transcript-only analysis. Confidence is the
// oracle's own estimate.
func (e *Engine) PlaceSinglePass(ctx context.Context, req PlaceRequest) (*Result, error) {
	in := e.transcriptInput(req)
	bufferBefore, bufferAfter := e.buffers(req)

	result, err := e.client.Analyze(ctx, in, int(bufferBefore), int(bufferAfter))
	if err != nil {
		return nil, err
	}

	duration := videoDuration(req)
	if result.Placement.BufferStart == "" || result.Placement.BufferEnd == "" {
		deriveBuffers(&result.Placement, duration, bufferBefore, bufferAfter)
	}
	result.VideoDuration = duration
	return result, nil
}

// deriveBuffers computes buffer_start/buffer_end around the insertion
// point, clamped to [0, duration]. An unparseable insertion point keeps
// whatever the oracle supplied.
func deriveBuffers(p *Placement, duration, before, after float64) {
	d, err := subtitle.ParseTimestamp(p.InsertionPoint)
	if err != nil {
		return
	}
	point := subtitle.Seconds(d)

	start := point - before
	if start < 0 {
		start = 0
	}
	end := point + after
	if duration > 0 && end > duration {
		end = duration
	}

	p.BufferStart = subtitle.FormatTimestamp(secondsToDuration(start))
	p.BufferEnd = subtitle.FormatTimestamp(secondsToDuration(end))
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
