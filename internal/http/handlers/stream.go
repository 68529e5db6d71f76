package handlers

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/halftimetv/halftime/internal/auth"
	"github.com/halftimetv/halftime/internal/hls"
	"github.com/halftimetv/halftime/internal/job"
	"github.com/halftimetv/halftime/internal/observability"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"

	// Playlists change as the job progresses; segments are immutable
	// once written.
	playlistCacheControl = "no-cache, no-store, must-revalidate"
	segmentCacheControl  = "public, max-age=3600"
)

// StreamHandler serves playlists and segments over raw chi routes.
// These stream non-JSON bodies, so they bypass the huma layer.
type StreamHandler struct {
	store  *job.Store
	logger *slog.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(store *job.Store, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		store:  store,
		logger: observability.WithComponent(logger, "stream"),
	}
}

// Register mounts the streaming routes on the router.
func (h *StreamHandler) Register(r chi.Router) {
	r.Get("/api/v1/videos/playlist/{job_id}.m3u8", h.Playlist)
	r.Get("/api/v1/videos/segments/{job_id}/{name}", h.Segment)
}

// Playlist synthesizes the playlist for the job's current state. A
// completed job with edits lists the merged directory; everything else
// gets the original playlist rewritten to route segment requests back
// through this server.
func (h *StreamHandler) Playlist(w http.ResponseWriter, r *http.Request) {
	j, ok := h.ownedJob(w, r, chi.URLParam(r, "job_id"))
	if !ok {
		return
	}

	// A failed job has no playable view; don't fall back to the
	// original tree.
	if j.Status == job.StatusFailed {
		http.Error(w, "playlist not available", http.StatusNotFound)
		return
	}

	dir := j.OriginalDir()
	if j.HasEditedOutput() {
		dir = j.MergedDir()
	}

	segs, err := h.parsePlaylistRetry(filepath.Join(dir, hls.PlaylistFileName))
	if err != nil {
		h.logger.Warn("playlist read failed",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()))
		http.Error(w, "playlist not available", http.StatusNotFound)
		return
	}

	// Every entry must resolve to a segment the segment route can
	// actually serve; a playlist with dead references is worse than a
	// 404 to the player.
	if err := verifySegments(dir, segs); err != nil {
		h.logger.Warn("playlist references unreadable segment",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()))
		http.Error(w, "playlist not available", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	err = hls.WritePlaylist(&buf, segs, func(s hls.Segment) string {
		return "/api/v1/videos/segments/" + j.ID + "/" + filepath.Base(s.Path)
	})
	if err != nil {
		http.Error(w, "playlist synthesis failed", http.StatusInternalServerError)
		return
	}

	// Keep the processing-view rewrite on disk for debugging; the
	// response is the source of truth.
	if !j.HasEditedOutput() {
		_ = os.WriteFile(j.TempPlaylistPath(), buf.Bytes(), 0o644)
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", playlistCacheControl)
	_, _ = w.Write(buf.Bytes())
}

// Segment streams one transport-stream file from the job's
// authoritative segment directory.
func (h *StreamHandler) Segment(w http.ResponseWriter, r *http.Request) {
	j, ok := h.ownedJob(w, r, chi.URLParam(r, "job_id"))
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	if !validSegmentName(name) {
		http.Error(w, "invalid segment name", http.StatusNotFound)
		return
	}

	dir := j.OriginalDir()
	if j.HasEditedOutput() {
		dir = j.MergedDir()
	}

	f, err := h.openRetry(filepath.Join(dir, name))
	if err != nil {
		http.Error(w, "segment not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", segmentContentType)
	w.Header().Set("Cache-Control", segmentCacheControl)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Debug("segment stream aborted",
			slog.String("job_id", j.ID),
			slog.String("segment", name),
			slog.String("error", err.Error()))
	}
}

func (h *StreamHandler) ownedJob(w http.ResponseWriter, r *http.Request, id string) (job.Job, bool) {
	j, err := h.store.GetOwned(id, auth.SubjectFrom(r.Context()))
	switch {
	case err == nil:
		return j, true
	case errors.Is(err, job.ErrNotOwner):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		http.Error(w, "job not found", http.StatusNotFound)
	}
	return job.Job{}, false
}

// parsePlaylistRetry tolerates one ENOENT: splice renames files into
// place, so a read can race the single writer briefly.
func (h *StreamHandler) parsePlaylistRetry(path string) ([]hls.Segment, error) {
	segs, err := hls.ParsePlaylistFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		time.Sleep(50 * time.Millisecond)
		segs, err = hls.ParsePlaylistFile(path)
	}
	return segs, err
}

func (h *StreamHandler) openRetry(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		time.Sleep(50 * time.Millisecond)
		f, err = os.Open(path)
	}
	return f, err
}

// verifySegments stats every playlist entry in the directory the
// segment route serves from.
func verifySegments(dir string, segs []hls.Segment) error {
	for _, s := range segs {
		path := filepath.Join(dir, filepath.Base(s.Path))
		if _, err := os.Stat(path); err != nil {
			return err
		}
	}
	return nil
}

// validSegmentName rejects traversal and anything that is not a
// playlist-referenced transport-stream file name.
func validSegmentName(name string) bool {
	if name == "" || name != filepath.Base(name) {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return strings.HasSuffix(name, ".ts")
}
