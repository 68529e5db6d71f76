// Package subtitle parses SRT and WebVTT timed text into cues and derives
// the silence gaps and transcript summaries the placement engine consumes.
package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/halftimetv/halftime/internal/fault"
)

// Format identifies a timed-text dialect.
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
)

// Cue is a single subtitle entry. Times are measured from media origin
// with millisecond precision.
type Cue struct {
	Index int           `json:"index"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

var (
	arrowRe  = regexp.MustCompile(`(\S+)\s*-->\s*(\S+)`)
	markupRe = regexp.MustCompile(`<[^>]+>`)
)

// ParseFile reads and parses a subtitle file, detecting the format from
// the file extension and falling back to header sniffing.
func ParseFile(path string) ([]Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidSubtitles, err, "opening subtitle file %s", path)
	}
	defer f.Close()

	format := FormatSRT
	if strings.EqualFold(filepath.Ext(path), ".vtt") {
		format = FormatVTT
	}
	return Parse(f, format)
}

// Parse parses timed text from r. Individual cue blocks that fail to parse
// are skipped; a non-empty input yielding zero cues is an error.
func Parse(r io.Reader, format Format) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		blocks   [][]string
		current  []string
		sawInput bool
	)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				blocks = append(blocks, current)
				current = nil
			}
			continue
		}
		sawInput = true
		current = append(current, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fault.Wrap(fault.KindInvalidSubtitles, err, "reading subtitle input")
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}

	// Header sniff overrides the caller's guess.
	if len(blocks) > 0 && strings.HasPrefix(blocks[0][0], "WEBVTT") {
		format = FormatVTT
	}
	_ = format // dialects share the block grammar once headers are stripped

	var cues []Cue
	for _, block := range blocks {
		cue, ok := parseBlock(block)
		if !ok {
			continue
		}
		cues = append(cues, cue)
	}

	if len(cues) == 0 {
		if !sawInput {
			return nil, fault.New(fault.KindInvalidSubtitles, "empty subtitle input")
		}
		return nil, fault.New(fault.KindInvalidSubtitles, "no parseable cues in subtitle input")
	}

	sort.SliceStable(cues, func(i, j int) bool { return cues[i].Start < cues[j].Start })
	for i := range cues {
		cues[i].Index = i + 1
	}
	return cues, nil
}

// parseBlock extracts one cue from a block of non-empty lines. The block
// is recognized by its timing line; anything before it (sequence numbers,
// VTT cue identifiers) is ignored and anything after it is the text.
func parseBlock(lines []string) (Cue, bool) {
	arrowIdx := -1
	var m []string
	for i, line := range lines {
		if m = arrowRe.FindStringSubmatch(line); m != nil {
			arrowIdx = i
			break
		}
	}
	if arrowIdx < 0 {
		return Cue{}, false
	}

	start, err := ParseTimestamp(m[1])
	if err != nil {
		return Cue{}, false
	}
	end, err := ParseTimestamp(m[2])
	if err != nil {
		return Cue{}, false
	}
	if end <= start {
		return Cue{}, false
	}

	text := CleanText(strings.Join(lines[arrowIdx+1:], " "))
	if text == "" {
		return Cue{}, false
	}

	return Cue{Start: start, End: end, Text: text}, true
}

// CleanText strips inline markup and collapses whitespace runs (including
// soft newlines) into single spaces.
func CleanText(s string) string {
	s = markupRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// ParseTimestamp parses a subtitle timestamp. Accepted shapes:
// HH:MM:SS,mmm, HH:MM:SS.mmm, MM:SS.mmm, HH:MM:SS, MM:SS, and plain
// floating-point seconds.
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}

	parts := strings.Split(s, ":")
	var hours, minutes int
	var seconds float64

	switch len(parts) {
	case 1:
		if _, err := fmt.Sscanf(parts[0], "%f", &seconds); err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
	case 2:
		if _, err := fmt.Sscanf(parts[0], "%d", &minutes); err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		var err error
		if seconds, err = parseSeconds(parts[1]); err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
	case 3:
		if _, err := fmt.Sscanf(parts[0], "%d", &hours); err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		if _, err := fmt.Sscanf(parts[1], "%d", &minutes); err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		var err error
		if seconds, err = parseSeconds(parts[2]); err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
	default:
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	if minutes < 0 || seconds < 0 || hours < 0 {
		return 0, fmt.Errorf("negative timestamp %q", s)
	}

	total := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
	return total.Round(time.Millisecond), nil
}

// parseSeconds handles the seconds field, where milliseconds may be
// separated by either a comma (SRT) or a period (VTT).
func parseSeconds(s string) (float64, error) {
	s = strings.Replace(s, ",", ".", 1)
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return 0, err
	}
	return v, nil
}

// FormatTimestamp renders a duration as the canonical HH:MM:SS,mmm form.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Millisecond)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	ms := (d - s*time.Second) / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// Seconds converts a duration to floating-point seconds.
func Seconds(d time.Duration) float64 {
	return d.Seconds()
}
