package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuilderBasic(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		HideBanner().
		Overwrite().
		Input("/in.mp4").
		StreamCopy().
		Output("/out.mp4").
		Build()

	assert.Equal(t, "/usr/bin/ffmpeg", cmd.Binary)
	assert.Equal(t, []string{
		"-loglevel", "error",
		"-hide_banner",
		"-y",
		"-i", "/in.mp4",
		"-c", "copy",
		"/out.mp4",
	}, cmd.Args)
}

func TestCommandBuilderInputArgsPrecedeInput(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		Overwrite().
		InputWithArgs("/in.mp4", "-ss", "90", "-to", "103").
		StreamCopy().
		Output("/clip.mp4").
		Build()

	args := strings.Join(cmd.Args, " ")
	assert.Contains(t, args, "-ss 90 -to 103 -i /in.mp4")
}

func TestCommandBuilderHLSVODArgs(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		Overwrite().
		Input("/in.mp4").
		StreamCopy().
		HLSVODArgs(10, "/out/segment%03d.ts").
		Output("/out/playlist.m3u8").
		Build()

	args := strings.Join(cmd.Args, " ")
	assert.Contains(t, args, "-f hls")
	assert.Contains(t, args, "-hls_time 10")
	assert.Contains(t, args, "-hls_playlist_type vod")
	assert.Contains(t, args, "-hls_segment_filename /out/segment%03d.ts")
	assert.Contains(t, args, "-hls_flags independent_segments")
}

func TestCommandBuilderFilterComplexMultiInput(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		Overwrite().
		Input("/original.mp4").
		Input("/clip.mp4").
		FilterComplex("[0:v][1:v]concat=n=2[outv]").
		Map("[outv]").
		VideoCodec("libx264").
		Output("/merged.mp4").
		Build()

	args := strings.Join(cmd.Args, " ")
	assert.Contains(t, args, "-i /original.mp4 -i /clip.mp4")
	assert.Contains(t, args, "-filter_complex [0:v][1:v]concat=n=2[outv]")
	assert.Contains(t, args, "-map [outv]")
	// filter_complex and -vf are mutually exclusive.
	assert.NotContains(t, args, "-vf")
}

func TestSelectH264Encoder(t *testing.T) {
	info := &BinaryInfo{Encoders: []string{"libx264", "h264_vaapi", "aac"}}

	assert.Equal(t, "h264_vaapi", info.SelectH264Encoder([]string{"nvenc", "vaapi"}))
	assert.Equal(t, "libx264", info.SelectH264Encoder([]string{"nvenc", "qsv"}))
	assert.Equal(t, "libx264", info.SelectH264Encoder(nil))
}

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 23.976, parseFrameRate("24000/1001"), 0.001)
	assert.InDelta(t, 25.0, parseFrameRate("25/1"), 0.001)
	assert.InDelta(t, 30.0, parseFrameRate("30"), 0.001)
	assert.Zero(t, parseFrameRate("0/0"))
	assert.Zero(t, parseFrameRate(""))
}

func TestClampTimestamp(t *testing.T) {
	assert.InDelta(t, 42.0, clampTimestamp(42, 100), 0.0001)
	assert.InDelta(t, 99.9, clampTimestamp(100, 100), 0.0001)
	assert.InDelta(t, 99.9, clampTimestamp(250, 100), 0.0001)
	assert.Zero(t, clampTimestamp(-3, 100))
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "90", formatSeconds(90))
	assert.Equal(t, "90.500", formatSeconds(90.5))
	assert.Equal(t, "0", formatSeconds(0))
}

func TestSummarizeStreams(t *testing.T) {
	result := &ProbeResult{
		Streams: []ProbeStream{
			{CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080, RFrameRate: "24000/1001", PixFmt: "yuv420p"},
			{CodecType: "audio", CodecName: "aac", SampleRate: "48000", Channels: 6, ChannelLayout: "5.1"},
			{CodecType: "subtitle", CodecName: "subrip"},
		},
	}

	info := summarizeStreams(result)
	require.True(t, info.HasVideo())
	require.True(t, info.HasAudio())
	assert.Equal(t, "h264", info.VideoCodec)
	assert.InDelta(t, 23.976, info.VideoFramerate, 0.001)
	assert.Equal(t, 48000, info.AudioSampleRate)
	assert.Equal(t, 6, info.AudioChannels)
}

func TestFindBinaryOverrideRejected(t *testing.T) {
	_, err := findBinary("ffmpeg", "/nonexistent/ffmpeg", EnvFFmpegBinary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not executable")
}
