// Package hls owns segmented playlists: parsing, emission, and the splice
// that swaps regenerated segments into an original sequence.
package hls

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mogiioin/hls-m3u8/m3u8"
)

// SegmentFilePattern names segment files on disk.
const SegmentFilePattern = "segment%03d.ts"

// PlaylistFileName is the canonical playlist name inside a segment directory.
const PlaylistFileName = "playlist.m3u8"

// Segment is one transport-stream file referenced by a playlist.
type Segment struct {
	Index    int     `json:"index"`
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
}

// SegmentFileName returns the canonical file name for segment index i.
func SegmentFileName(i int) string {
	return fmt.Sprintf(SegmentFilePattern, i)
}

// ParsePlaylistFile reads a media playlist and resolves segment URIs
// against the playlist's directory.
func ParsePlaylistFile(path string) ([]Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening playlist: %w", err)
	}
	defer f.Close()
	return ParsePlaylist(f, filepath.Dir(path))
}

// ParsePlaylist parses a media playlist. Well-formed playlists (such as
// those ffmpeg emits) go through the strict decoder so per-segment
// durations are exact; anything it rejects falls back to a forgiving line
// scan where every non-comment line is a segment URI.
func ParsePlaylist(r io.Reader, baseDir string) ([]Segment, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading playlist: %w", err)
	}

	if segs, err := parseStrict(data, baseDir); err == nil {
		return segs, nil
	}
	return parseForgiving(data, baseDir)
}

func parseStrict(data []byte, baseDir string) ([]Segment, error) {
	pl, listType, err := m3u8.DecodeFrom(strings.NewReader(string(data)), true)
	if err != nil {
		return nil, err
	}
	media, ok := pl.(*m3u8.MediaPlaylist)
	if !ok || listType != m3u8.MEDIA {
		return nil, fmt.Errorf("not a media playlist")
	}

	var segs []Segment
	for _, ms := range media.GetAllSegments() {
		if ms == nil || ms.URI == "" {
			continue
		}
		segs = append(segs, Segment{
			Index:    len(segs),
			Path:     resolveURI(baseDir, ms.URI),
			Duration: ms.Duration,
		})
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("playlist has no segments")
	}
	return segs, nil
}

// parseForgiving scans line by line: #EXTINF carries the next segment's
// duration, any other #-line is ignored, and any non-empty non-# line is
// a segment URI.
func parseForgiving(data []byte, baseDir string) ([]Segment, error) {
	var (
		segs    []Segment
		pending float64
	)
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if rest, ok := strings.CutPrefix(line, "#EXTINF:"); ok {
				durStr, _, _ := strings.Cut(rest, ",")
				if d, err := strconv.ParseFloat(strings.TrimSpace(durStr), 64); err == nil {
					pending = d
				}
			}
			continue
		}
		segs = append(segs, Segment{
			Index:    len(segs),
			Path:     resolveURI(baseDir, line),
			Duration: pending,
		})
		pending = 0
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning playlist: %w", err)
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("playlist has no segments")
	}
	return segs, nil
}

func resolveURI(baseDir, uri string) string {
	if strings.Contains(uri, "://") || filepath.IsAbs(uri) || baseDir == "" {
		return uri
	}
	return filepath.Join(baseDir, uri)
}

// TargetDuration is the playlist target duration: the maximum individual
// segment duration rounded up.
func TargetDuration(segs []Segment) int {
	var max float64
	for _, s := range segs {
		if s.Duration > max {
			max = s.Duration
		}
	}
	return int(math.Ceil(max))
}

// WritePlaylist emits a VOD media playlist. urlFor maps each segment to
// the URI written into the playlist; nil uses the segment file base name.
func WritePlaylist(w io.Writer, segs []Segment, urlFor func(Segment) string) error {
	if urlFor == nil {
		urlFor = func(s Segment) string { return filepath.Base(s.Path) }
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#EXTM3U\n")
	fmt.Fprintf(bw, "#EXT-X-VERSION:3\n")
	fmt.Fprintf(bw, "#EXT-X-TARGETDURATION:%d\n", TargetDuration(segs))
	fmt.Fprintf(bw, "#EXT-X-MEDIA-SEQUENCE:0\n")
	for _, s := range segs {
		fmt.Fprintf(bw, "#EXTINF:%.3f,\n", s.Duration)
		fmt.Fprintf(bw, "%s\n", urlFor(s))
	}
	fmt.Fprintf(bw, "#EXT-X-ENDLIST\n")
	return bw.Flush()
}

// WritePlaylistFile writes a playlist to path atomically enough for a
// single-writer tree (write then rename).
func WritePlaylistFile(path string, segs []Segment, urlFor func(Segment) string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating playlist: %w", err)
	}
	if err := WritePlaylist(f, segs, urlFor); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
