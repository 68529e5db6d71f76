package handlers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halftimetv/halftime/internal/auth"
	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/job"
	"github.com/halftimetv/halftime/internal/oracle"
)

type fakeRunner struct {
	store     *job.Store
	submitted []*job.Job
	cancelled []string
}

func (f *fakeRunner) Submit(j *job.Job) {
	f.store.Put(j)
	f.submitted = append(f.submitted, j)
}

func (f *fakeRunner) Cancel(id string) bool {
	f.cancelled = append(f.cancelled, id)
	return true
}

func newVideoFixture(t *testing.T) (*VideoHandler, *job.Store, *fakeRunner, string) {
	t.Helper()
	store := job.NewStore()
	runner := &fakeRunner{store: store}
	root := t.TempDir()
	h := NewVideoHandler(store, runner, config.StorageConfig{OutputDir: root}, config.PlacementConfig{})
	return h, store, runner, root
}

func writeTestMedia(t *testing.T) (video, subs string) {
	t.Helper()
	dir := t.TempDir()
	video = filepath.Join(dir, "show.mp4")
	subs = filepath.Join(dir, "show.srt")
	require.NoError(t, os.WriteFile(video, []byte("mp4"), 0o644))
	require.NoError(t, os.WriteFile(subs, []byte("1\n00:00:01,000 --> 00:00:03,000\nHello there.\n"), 0o644))
	return video, subs
}

func authedCtx(subject string) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{Subject: subject})
}

func TestProcessQueuesJob(t *testing.T) {
	h, store, runner, _ := newVideoFixture(t)
	video, subs := writeTestMedia(t)

	out, err := h.Process(authedCtx("user-1"), &ProcessInput{Body: job.Request{
		VideoPath:    video,
		SubtitlePath: subs,
		Product:      oracle.Product{Company: "Acme", Name: "Widget"},
	}})
	require.NoError(t, err)

	assert.Equal(t, "queued", out.Body.Status)
	assert.Equal(t, "/api/v1/videos/playlist/"+out.Body.JobID+".m3u8", out.Body.PlaylistURL)

	require.Len(t, runner.submitted, 1)
	assert.Equal(t, "user-1", runner.submitted[0].Owner)
	assert.Equal(t, defaultBufferSeconds, runner.submitted[0].Request.BufferSeconds)

	_, err = store.Get(out.Body.JobID)
	assert.NoError(t, err)
}

func TestProcessValidation(t *testing.T) {
	h, _, runner, _ := newVideoFixture(t)
	video, subs := writeTestMedia(t)

	cases := []struct {
		name string
		req  job.Request
	}{
		{"missing paths", job.Request{Product: oracle.Product{Company: "A", Name: "B"}}},
		{"video missing", job.Request{VideoPath: "/nope.mp4", SubtitlePath: subs, Product: oracle.Product{Company: "A", Name: "B"}}},
		{"subtitles missing", job.Request{VideoPath: video, SubtitlePath: "/nope.srt", Product: oracle.Product{Company: "A", Name: "B"}}},
		{"product incomplete", job.Request{VideoPath: video, SubtitlePath: subs}},
		{"negative buffer", job.Request{VideoPath: video, SubtitlePath: subs, Product: oracle.Product{Company: "A", Name: "B"}, BufferSeconds: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.Process(authedCtx("user-1"), &ProcessInput{Body: tc.req})
			require.Error(t, err)
			var se huma.StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, 400, se.GetStatus())
		})
	}
	assert.Empty(t, runner.submitted, "invalid submissions must not create jobs")
}

func TestStatusOwnership(t *testing.T) {
	h, store, _, root := newVideoFixture(t)

	j := job.New("user-1", job.Request{}, root)
	j.MarkProcessing()
	j.Progress = job.ProgressPlaced
	store.Put(j)

	out, err := h.Status(authedCtx("user-1"), &StatusInput{JobID: j.ID})
	require.NoError(t, err)
	assert.Equal(t, "processing", out.Body.Status)
	assert.Equal(t, job.ProgressPlaced, out.Body.Progress)

	_, err = h.Status(authedCtx("user-2"), &StatusInput{JobID: j.ID})
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 403, se.GetStatus())

	_, err = h.Status(authedCtx("user-1"), &StatusInput{JobID: "missing"})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 404, se.GetStatus())
}

func TestStatusSurfacesFailure(t *testing.T) {
	h, store, _, root := newVideoFixture(t)

	j := job.New("user-1", job.Request{}, root)
	j.ErrorKind = "generation-timeout"
	j.ErrorMessage = "generation timed out after 600s"
	j.Status = job.StatusFailed
	store.Put(j)

	out, err := h.Status(authedCtx("user-1"), &StatusInput{JobID: j.ID})
	require.NoError(t, err)
	assert.Equal(t, "failed", out.Body.Status)
	assert.Equal(t, "generation-timeout", out.Body.ErrorKind)
	assert.Contains(t, out.Body.Error, "timed out")
}

func TestCancelChecksOwnership(t *testing.T) {
	h, store, runner, root := newVideoFixture(t)

	j := job.New("user-1", job.Request{}, root)
	store.Put(j)

	out, err := h.Cancel(authedCtx("user-1"), &StatusInput{JobID: j.ID})
	require.NoError(t, err)
	assert.True(t, out.Body.Cancelled)
	assert.Equal(t, []string{j.ID}, runner.cancelled)

	_, err = h.Cancel(authedCtx("user-2"), &StatusInput{JobID: j.ID})
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 403, se.GetStatus())
}

func TestGapsEndpoint(t *testing.T) {
	h, _, _, _ := newVideoFixture(t)

	dir := t.TempDir()
	subs := filepath.Join(dir, "gaps.srt")
	require.NoError(t, os.WriteFile(subs, []byte(
		"1\n00:00:01,000 --> 00:00:03,000\nFirst line.\n\n"+
			"2\n00:00:10,000 --> 00:00:12,000\nSecond line.\n"), 0o644))

	out, err := h.Gaps(context.Background(), &GapsInput{SubtitlePath: subs})
	require.NoError(t, err)
	require.Equal(t, 1, out.Body.Count)
	assert.Equal(t, "00:00:03,000", out.Body.Gaps[0].Start)
	assert.Equal(t, "00:00:10,000", out.Body.Gaps[0].End)
	assert.InDelta(t, 7.0, out.Body.Gaps[0].Duration, 0.001)
	assert.Contains(t, out.Body.Gaps[0].ContextBefore, "First line.")

	_, err = h.Gaps(context.Background(), &GapsInput{SubtitlePath: "/nope.srt"})
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.GetStatus())
}
