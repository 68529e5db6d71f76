package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeResult contains the ffprobe output the pipeline consumes.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index         int    `json:"index"`
	CodecName     string `json:"codec_name"`
	CodecType     string `json:"codec_type"` // video, audio, subtitle, data
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	PixFmt        string `json:"pix_fmt,omitempty"`
	SampleAspect  string `json:"sample_aspect_ratio,omitempty"`
	RFrameRate    string `json:"r_frame_rate,omitempty"`
	AvgFrameRate  string `json:"avg_frame_rate,omitempty"`
	SampleRate    string `json:"sample_rate,omitempty"`
	Channels      int    `json:"channels,omitempty"`
	ChannelLayout string `json:"channel_layout,omitempty"`
}

// StreamInfo is a simplified view used for concat compatibility checks.
type StreamInfo struct {
	VideoCodec      string  `json:"video_codec,omitempty"`
	VideoWidth      int     `json:"video_width,omitempty"`
	VideoHeight     int     `json:"video_height,omitempty"`
	VideoFramerate  float64 `json:"video_framerate,omitempty"`
	VideoSAR        string  `json:"video_sar,omitempty"`
	VideoPixFmt     string  `json:"video_pix_fmt,omitempty"`
	AudioCodec      string  `json:"audio_codec,omitempty"`
	AudioSampleRate int     `json:"audio_sample_rate,omitempty"`
	AudioChannels   int     `json:"audio_channels,omitempty"`
	AudioLayout     string  `json:"audio_layout,omitempty"`
}

// HasVideo reports whether a video stream was found.
func (s *StreamInfo) HasVideo() bool { return s.VideoCodec != "" }

// HasAudio reports whether an audio stream was found.
func (s *StreamInfo) HasAudio() bool { return s.AudioCodec != "" }

// Prober runs ffprobe against media files.
type Prober struct {
	ffprobePath string
}

// NewProber creates a prober using the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

// Probe runs a full ffprobe pass over the file.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=filename,format_name,duration,size,bit_rate",
		"-show_streams",
		"-of", "json",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing probe output for %s: %w", path, err)
	}
	return &result, nil
}

// Duration returns the container duration in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("probing duration of %s: %w", path, err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("parsing duration probe for %s: %w", path, err)
	}

	dur, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("no duration in probe of %s", path)
	}
	return dur, nil
}

// Streams returns the simplified stream view of the first video and
// audio streams.
func (p *Prober) Streams(ctx context.Context, path string) (*StreamInfo, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	return summarizeStreams(result), nil
}

func summarizeStreams(result *ProbeResult) *StreamInfo {
	info := &StreamInfo{}
	for _, s := range result.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec != "" {
				continue
			}
			info.VideoCodec = s.CodecName
			info.VideoWidth = s.Width
			info.VideoHeight = s.Height
			info.VideoFramerate = parseFrameRate(s.RFrameRate)
			info.VideoSAR = s.SampleAspect
			info.VideoPixFmt = s.PixFmt
		case "audio":
			if info.AudioCodec != "" {
				continue
			}
			info.AudioCodec = s.CodecName
			info.AudioChannels = s.Channels
			info.AudioLayout = s.ChannelLayout
			if rate, err := strconv.Atoi(s.SampleRate); err == nil {
				info.AudioSampleRate = rate
			}
		}
	}
	return info
}

// parseFrameRate converts an ffprobe rational like "24000/1001" to fps.
func parseFrameRate(r string) float64 {
	if r == "" || r == "0/0" {
		return 0
	}
	num, den, found := strings.Cut(r, "/")
	if !found {
		v, _ := strconv.ParseFloat(r, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
