package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Command represents an FFmpeg command to execute.
type Command struct {
	Binary    string
	Args      []string
	Output    string
	LogLevel  string
	Overwrite bool

	cmd     *exec.Cmd
	started time.Time
	mu      sync.RWMutex

	monitor *ProcessMonitor

	stderrLines []string
	stderrMu    sync.RWMutex
}

// Progress represents FFmpeg progress information parsed from stderr.
type Progress struct {
	Frame   int64         `json:"frame"`
	FPS     float64       `json:"fps"`
	Bitrate string        `json:"bitrate"`
	Time    time.Duration `json:"time"`
	Speed   float64       `json:"speed"`
}

// CommandBuilder builds FFmpeg commands with a fluent API.
type CommandBuilder struct {
	binary        string
	globalArgs    []string
	inputs        []commandInput
	filterArgs    []string
	filterComplex string
	mapArgs       []string
	outputArgs    []string
	output        string
	logLevel      string
	overwrite     bool
}

type commandInput struct {
	args []string
	path string
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Input adds an input source with no input-side arguments.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	return b.InputWithArgs(input)
}

// InputWithArgs adds an input source preceded by input-side arguments
// (seek positions, format hints).
func (b *CommandBuilder) InputWithArgs(input string, args ...string) *CommandBuilder {
	b.inputs = append(b.inputs, commandInput{args: args, path: input})
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// StreamCopy copies all streams without re-encoding.
func (b *CommandBuilder) StreamCopy() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c", "copy")
	return b
}

// VideoBitrate sets the video bitrate.
func (b *CommandBuilder) VideoBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:v", bitrate)
	return b
}

// AudioBitrate sets the audio bitrate.
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	return b
}

// VideoPreset sets the encoding preset.
func (b *CommandBuilder) VideoPreset(preset string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-preset", preset)
	return b
}

// PixelFormat sets the output pixel format.
func (b *CommandBuilder) PixelFormat(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-pix_fmt", format)
	return b
}

// VideoFilter adds a simple video filter (joined into one -vf chain).
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// FilterComplex sets a filter graph spanning multiple inputs.
func (b *CommandBuilder) FilterComplex(graph string) *CommandBuilder {
	b.filterComplex = graph
	return b
}

// Map selects an output stream by label or specifier.
func (b *CommandBuilder) Map(specifier string) *CommandBuilder {
	b.mapArgs = append(b.mapArgs, "-map", specifier)
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// HLSVODArgs adds VOD HLS segmentation arguments. Every segment starts
// with the stream headers it needs to decode independently.
func (b *CommandBuilder) HLSVODArgs(segmentSeconds int, segmentPattern string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs,
		"-f", "hls",
		"-hls_time", strconv.Itoa(segmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", segmentPattern,
		"-hls_flags", "independent_segments",
	)
	return b
}

// FastStart relocates the moov atom for progressive playback.
func (b *CommandBuilder) FastStart() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-movflags", "+faststart")
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build assembles the argument list into a runnable Command.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	for _, in := range b.inputs {
		args = append(args, in.args...)
		args = append(args, "-i", in.path)
	}

	if b.filterComplex != "" {
		args = append(args, "-filter_complex", b.filterComplex)
	} else if len(b.filterArgs) > 0 {
		args = append(args, "-vf", strings.Join(b.filterArgs, ","))
	}

	args = append(args, b.mapArgs...)
	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary:      b.binary,
		Args:        args,
		Output:      b.output,
		LogLevel:    b.logLevel,
		Overwrite:   b.overwrite,
		stderrLines: make([]string, 0, maxStderrLines),
	}
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Run executes the command and waits for completion. Stderr is captured
// so failures carry the toolchain's own diagnostics.
func (c *Command) Run(ctx context.Context) error {
	c.mu.Lock()
	c.cmd = exec.CommandContext(ctx, c.Binary, c.Args...)
	c.started = time.Now()

	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("getting stderr pipe: %w", err)
	}
	c.mu.Unlock()

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	c.startMonitor()

	stderrDone := make(chan struct{})
	go c.captureStderr(stderr, stderrDone)

	waitErr := c.cmd.Wait()
	<-stderrDone
	c.stopMonitor()

	if waitErr != nil {
		if tail := c.stderrTail(); tail != "" {
			return fmt.Errorf("ffmpeg: %w: %s", waitErr, tail)
		}
		return fmt.Errorf("ffmpeg: %w", waitErr)
	}
	return nil
}

// RunWithProgress runs the command and reports progress parsed from
// stderr. The channel is never closed by this method.
func (c *Command) RunWithProgress(ctx context.Context, progressCh chan<- Progress) error {
	c.mu.Lock()
	c.cmd = exec.CommandContext(ctx, c.Binary, c.Args...)
	c.started = time.Now()

	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("getting stderr pipe: %w", err)
	}
	c.mu.Unlock()

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	c.startMonitor()
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.parseProgress(stderr, progressCh)
	}()

	waitErr := c.cmd.Wait()
	<-done
	c.stopMonitor()
	return waitErr
}

// Kill terminates the FFmpeg process.
func (c *Command) Kill() error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// IsRunning returns true if the command is running.
func (c *Command) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return false
	}
	return c.cmd.ProcessState == nil
}

// Duration returns how long the command has been running.
func (c *Command) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// ProcessStats returns the current process statistics, or nil when
// monitoring is not active.
func (c *Command) ProcessStats() *ProcessStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.monitor == nil {
		return nil
	}
	stats := c.monitor.Stats()
	return &stats
}

func (c *Command) startMonitor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil && c.cmd.Process != nil {
		c.monitor = NewProcessMonitor(c.cmd.Process.Pid)
		c.monitor.Start()
	}
}

func (c *Command) stopMonitor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.monitor != nil {
		c.monitor.Stop()
	}
}

const maxStderrLines = 100

// captureStderr keeps the most recent stderr lines for diagnostics.
func (c *Command) captureStderr(stderr io.ReadCloser, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		c.stderrMu.Lock()
		if len(c.stderrLines) >= maxStderrLines {
			c.stderrLines = c.stderrLines[1:]
		}
		c.stderrLines = append(c.stderrLines, line)
		c.stderrMu.Unlock()
	}
}

// GetStderrLines returns the recent stderr lines captured from FFmpeg.
func (c *Command) GetStderrLines() []string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()
	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}

func (c *Command) stderrTail() string {
	lines := c.GetStderrLines()
	if len(lines) == 0 {
		return ""
	}
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.Join(lines, " | ")
}

var (
	frameRe   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([\d.]+\s*\w+/s)`)
	timeRe    = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	speedRe   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// parseProgress parses FFmpeg progress output from stderr.
func (c *Command) parseProgress(r io.Reader, progressCh chan<- Progress) {
	scanner := bufio.NewScanner(r)
	progress := Progress{}

	for scanner.Scan() {
		line := scanner.Text()

		if m := frameRe.FindStringSubmatch(line); len(m) > 1 {
			progress.Frame, _ = strconv.ParseInt(m[1], 10, 64)
		}
		if m := fpsRe.FindStringSubmatch(line); len(m) > 1 {
			progress.FPS, _ = strconv.ParseFloat(m[1], 64)
		}
		if m := bitrateRe.FindStringSubmatch(line); len(m) > 1 {
			progress.Bitrate = m[1]
		}
		if m := timeRe.FindStringSubmatch(line); len(m) > 4 {
			hours, _ := strconv.Atoi(m[1])
			mins, _ := strconv.Atoi(m[2])
			secs, _ := strconv.Atoi(m[3])
			cs, _ := strconv.Atoi(m[4])
			progress.Time = time.Duration(hours)*time.Hour +
				time.Duration(mins)*time.Minute +
				time.Duration(secs)*time.Second +
				time.Duration(cs)*10*time.Millisecond
		}
		if m := speedRe.FindStringSubmatch(line); len(m) > 1 {
			progress.Speed, _ = strconv.ParseFloat(m[1], 64)
		}

		select {
		case progressCh <- progress:
		default:
			// Don't block a slow consumer.
		}
	}
}
