package generation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halftimetv/halftime/internal/fault"
)

func writeClip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake mp4 payload"), 0o644))
	return path
}

func overrideHostURL(t *testing.T, target *string, url string) {
	t.Helper()
	old := *target
	*target = url
	t.Cleanup(func() { *target = old })
}

func TestUploadCatboxWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(10<<20))
		assert.Equal(t, "fileupload", r.FormValue("reqtype"))
		_, _, err := r.FormFile("fileToUpload")
		require.NoError(t, err)
		fmt.Fprint(w, "https://files.catbox.moe/abc123.mp4")
	}))
	t.Cleanup(srv.Close)
	overrideHostURL(t, &catboxURL, srv.URL)

	uploader := NewUploader(5*time.Second, nil)
	url, err := uploader.Upload(context.Background(), writeClip(t))
	require.NoError(t, err)
	assert.Equal(t, "https://files.catbox.moe/abc123.mp4", url)
}

func TestUploadFallsBackOnFailure(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "over capacity", http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(10<<20))
		_, _, err := r.FormFile("file")
		require.NoError(t, err)
		fmt.Fprint(w, "https://0x0.st/xyz.mp4\n")
	}))
	t.Cleanup(fallback.Close)

	overrideHostURL(t, &catboxURL, down.URL)
	overrideHostURL(t, &nullPointerURL, fallback.URL)

	uploader := NewUploader(5*time.Second, nil)
	url, err := uploader.Upload(context.Background(), writeClip(t))
	require.NoError(t, err)
	assert.Equal(t, "https://0x0.st/xyz.mp4", url)
}

func TestUploadFileIODecodesJSON(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusInternalServerError)
	}))
	t.Cleanup(down.Close)

	fileio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"link":"https://file.io/abc"}`)
	}))
	t.Cleanup(fileio.Close)

	overrideHostURL(t, &catboxURL, down.URL)
	overrideHostURL(t, &nullPointerURL, down.URL)
	overrideHostURL(t, &fileIOURL, fileio.URL)

	uploader := NewUploader(5*time.Second, nil)
	url, err := uploader.Upload(context.Background(), writeClip(t))
	require.NoError(t, err)
	assert.Equal(t, "https://file.io/abc", url)
}

func TestUploadAllHostsFail(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(down.Close)

	overrideHostURL(t, &catboxURL, down.URL)
	overrideHostURL(t, &nullPointerURL, down.URL)
	overrideHostURL(t, &fileIOURL, down.URL)

	uploader := NewUploader(5*time.Second, nil)
	_, err := uploader.Upload(context.Background(), writeClip(t))
	require.Error(t, err)
	assert.Equal(t, fault.KindUploadFailed, fault.KindOf(err))
	// Per-host detail survives into the fault message.
	assert.Contains(t, err.Error(), "catbox.moe")
	assert.Contains(t, err.Error(), "0x0.st")
	assert.Contains(t, err.Error(), "file.io")
}

func TestUploadMissingFile(t *testing.T) {
	uploader := NewUploader(time.Second, nil)
	_, err := uploader.Upload(context.Background(), "/nonexistent/clip.mp4")
	require.Error(t, err)
	assert.Equal(t, fault.KindUploadFailed, fault.KindOf(err))
}

func TestUploadNonURLBodyRejected(t *testing.T) {
	// A 200 whose body is not a URL must not win the chain.
	weird := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Internal error, try later")
	}))
	t.Cleanup(weird.Close)

	overrideHostURL(t, &catboxURL, weird.URL)
	overrideHostURL(t, &nullPointerURL, weird.URL)
	overrideHostURL(t, &fileIOURL, weird.URL)

	uploader := NewUploader(5*time.Second, nil)
	_, err := uploader.Upload(context.Background(), writeClip(t))
	require.Error(t, err)
	assert.Equal(t, fault.KindUploadFailed, fault.KindOf(err))
}
