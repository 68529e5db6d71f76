package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/halftimetv/halftime/internal/fault"
)

// Normalization targets applied before concatenation. Mismatched inputs
// are conformed to these rather than rejected, so one encode ladder
// serves every source.
const (
	concatWidth      = 1920
	concatHeight     = 1080
	concatFrameRate  = "24000/1001"
	concatSampleRate = 48000
)

// SegmentResult describes the output of an HLS segmentation run.
type SegmentResult struct {
	PlaylistPath string  `json:"playlist_path"`
	SegmentCount int     `json:"segment_count"`
	Duration     float64 `json:"duration"`
}

// Operator exposes the media operations the pipeline needs, all
// expressed as FFmpeg invocations.
type Operator struct {
	detector *BinaryDetector
	prober   *Prober
	hwPrio   []string
	logger   *slog.Logger
}

// NewOperator creates an Operator. The detector must have been created
// with the configured binary paths; hwPriority orders hardware encoder
// preference.
func NewOperator(detector *BinaryDetector, hwPriority []string, logger *slog.Logger) *Operator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Operator{
		detector: detector,
		hwPrio:   hwPriority,
		logger:   logger,
	}
}

func (o *Operator) binaries(ctx context.Context) (*BinaryInfo, error) {
	info, err := o.detector.Detect(ctx)
	if err != nil {
		return nil, err
	}
	if o.prober == nil {
		o.prober = NewProber(info.FFprobePath)
	}
	return info, nil
}

// Prober returns the ffprobe wrapper, detecting binaries on first use.
func (o *Operator) Prober(ctx context.Context) (*Prober, error) {
	if _, err := o.binaries(ctx); err != nil {
		return nil, err
	}
	return o.prober, nil
}

// Duration returns the media duration of path in seconds.
func (o *Operator) Duration(ctx context.Context, path string) (float64, error) {
	prober, err := o.Prober(ctx)
	if err != nil {
		return 0, err
	}
	return prober.Duration(ctx, path)
}

// Extract cuts [t0, t1) out of src into dst. A stream-copy cut lands on
// the nearest keyframes; when that fails the clip is re-encoded with
// deterministic parameters (H.264, AAC, yuv420p).
func (o *Operator) Extract(ctx context.Context, src string, t0, t1 float64, dst string) error {
	info, err := o.binaries(ctx)
	if err != nil {
		return err
	}

	copyCmd := NewCommandBuilder(info.FFmpegPath).
		HideBanner().
		Overwrite().
		InputWithArgs(src, "-ss", formatSeconds(t0), "-to", formatSeconds(t1)).
		StreamCopy().
		Output(dst).
		Build()

	if err := copyCmd.Run(ctx); err == nil {
		if ok, _ := o.playable(ctx, dst); ok {
			return nil
		}
		o.logger.Warn("stream-copy extract produced unreadable clip, re-encoding",
			slog.String("src", src))
	} else {
		o.logger.Warn("stream-copy extract failed, re-encoding",
			slog.String("src", src),
			slog.String("error", err.Error()))
	}

	encodeCmd := NewCommandBuilder(info.FFmpegPath).
		HideBanner().
		Overwrite().
		InputWithArgs(src, "-ss", formatSeconds(t0), "-to", formatSeconds(t1)).
		VideoCodec("libx264").
		VideoPreset("fast").
		PixelFormat("yuv420p").
		AudioCodec("aac").
		Output(dst).
		Build()

	if err := encodeCmd.Run(ctx); err != nil {
		return fmt.Errorf("extracting [%s, %s) from %s: %w",
			formatSeconds(t0), formatSeconds(t1), src, err)
	}
	return nil
}

// playable checks that a produced file probes with a positive duration.
func (o *Operator) playable(ctx context.Context, path string) (bool, error) {
	st, err := os.Stat(path)
	if err != nil || st.Size() == 0 {
		return false, err
	}
	dur, err := o.prober.Duration(ctx, path)
	if err != nil {
		return false, err
	}
	return dur > 0, nil
}

// SegmentHLS stream-copies src into a VOD segment set under dir. The
// returned duration comes from the container probe; the per-segment
// truth lives in the emitted playlist.
func (o *Operator) SegmentHLS(ctx context.Context, src, dir string, segmentSeconds int) (*SegmentResult, error) {
	info, err := o.binaries(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating segment dir: %w", err)
	}

	playlistPath := filepath.Join(dir, "playlist.m3u8")
	cmd := NewCommandBuilder(info.FFmpegPath).
		HideBanner().
		Overwrite().
		Input(src).
		StreamCopy().
		HLSVODArgs(segmentSeconds, filepath.Join(dir, "segment%03d.ts")).
		Output(playlistPath).
		Build()

	if err := cmd.Run(ctx); err != nil {
		return nil, fmt.Errorf("segmenting %s: %w", src, err)
	}

	duration, err := o.prober.Duration(ctx, src)
	if err != nil {
		return nil, err
	}

	entries, err := filepath.Glob(filepath.Join(dir, "segment*.ts"))
	if err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}

	return &SegmentResult{
		PlaylistPath: playlistPath,
		SegmentCount: len(entries),
		Duration:     duration,
	}, nil
}

// Concat replaces [cutStart, cutEnd) of original with clip, writing the
// result to dst. All three pieces are normalized to a common raster,
// frame rate and audio layout; inputs missing a video or audio stream
// cannot be conformed and fail with an incompatible-streams fault.
func (o *Operator) Concat(ctx context.Context, original, clip string, cutStart, cutEnd float64, dst string) error {
	info, err := o.binaries(ctx)
	if err != nil {
		return err
	}

	if err := o.checkConcatInputs(ctx, original, clip); err != nil {
		return err
	}

	filter := fmt.Sprintf(
		"[0:v]trim=0:%[1]s,setpts=PTS-STARTPTS,setsar=1[v0];"+
			"[0:a]atrim=0:%[1]s,asetpts=PTS-STARTPTS[a0];"+
			"[1:v]scale=%[3]d:%[4]d,setsar=1,fps=%[5]s,setpts=PTS-STARTPTS[v1];"+
			"[1:a]aresample=%[6]d,pan=5.1|FL=FL|FR=FR|FC=FC|LFE=LFE|BL=FL|BR=FR,asetpts=PTS-STARTPTS[a1];"+
			"[0:v]trim=start=%[2]s,setpts=PTS-STARTPTS,setsar=1[v2];"+
			"[0:a]atrim=start=%[2]s,asetpts=PTS-STARTPTS[a2];"+
			"[v0][a0][v1][a1][v2][a2]concat=n=3:v=1:a=1[outv][outa]",
		formatSeconds(cutStart), formatSeconds(cutEnd),
		concatWidth, concatHeight, concatFrameRate, concatSampleRate,
	)

	encoder := info.SelectH264Encoder(o.hwPrio)
	o.logger.Info("concatenating with replacement clip",
		slog.String("encoder", encoder),
		slog.Float64("cut_start", cutStart),
		slog.Float64("cut_end", cutEnd))

	cmd := NewCommandBuilder(info.FFmpegPath).
		HideBanner().
		Overwrite().
		Input(original).
		Input(clip).
		FilterComplex(filter).
		Map("[outv]").
		Map("[outa]").
		VideoCodec(encoder).
		VideoBitrate("8M").
		AudioCodec("aac").
		AudioBitrate("256k").
		FastStart().
		Output(dst).
		Build()

	if err := cmd.Run(ctx); err != nil {
		return fault.Wrap(fault.KindIncompatibleStreams, err, "concatenating %s with %s", original, clip)
	}
	return nil
}

// checkConcatInputs validates that both inputs carry the streams the
// concat filter graph expects.
func (o *Operator) checkConcatInputs(ctx context.Context, original, clip string) error {
	for _, path := range []string{original, clip} {
		streams, err := o.prober.Streams(ctx, path)
		if err != nil {
			return fault.Wrap(fault.KindIncompatibleStreams, err, "probing %s", path)
		}
		if !streams.HasVideo() {
			return fault.New(fault.KindIncompatibleStreams, "%s has no video stream", path)
		}
		if !streams.HasAudio() {
			return fault.New(fault.KindIncompatibleStreams, "%s has no audio stream", path)
		}
	}
	return nil
}

// GrabFrame extracts a single JPEG frame at timestamp t (seconds),
// clamped to just before the end of the media.
func (o *Operator) GrabFrame(ctx context.Context, src string, t float64, dst string) error {
	info, err := o.binaries(ctx)
	if err != nil {
		return err
	}

	duration, err := o.prober.Duration(ctx, src)
	if err != nil {
		return err
	}
	t = clampTimestamp(t, duration)

	cmd := NewCommandBuilder(info.FFmpegPath).
		HideBanner().
		Overwrite().
		InputWithArgs(src, "-ss", formatSeconds(t)).
		OutputArgs("-frames:v", "1", "-q:v", "2").
		Output(dst).
		Build()

	if err := cmd.Run(ctx); err != nil {
		return fmt.Errorf("grabbing frame at %s from %s: %w", formatSeconds(t), src, err)
	}
	return nil
}

// clampTimestamp keeps t inside [0, duration-0.1] so a grab at the very
// end still lands on a decodable frame.
func clampTimestamp(t, duration float64) float64 {
	if duration > 0.1 && t > duration-0.1 {
		t = duration - 0.1
	}
	if t < 0 {
		t = 0
	}
	return t
}

func formatSeconds(t float64) string {
	if t == math.Trunc(t) {
		return fmt.Sprintf("%d", int64(t))
	}
	return fmt.Sprintf("%.3f", t)
}
