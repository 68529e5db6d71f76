// Package generation regenerates a buffer clip through a
// video-to-video provider: upload the clip to an ephemeral host, submit
// the generation task, poll to completion, download the result.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/halftimetv/halftime/internal/fault"
	"github.com/halftimetv/halftime/internal/observability"
)

// The generation provider pulls the source clip by URL, so the clip
// first goes to an ephemeral public host. Hosts are tried in order;
// the first direct-download URL wins.
type uploadHost struct {
	name   string
	upload func(ctx context.Context, client *http.Client, path string) (string, error)
}

var defaultHosts = []uploadHost{
	{name: "catbox.moe", upload: uploadCatbox},
	{name: "0x0.st", upload: uploadNullPointer},
	{name: "file.io", upload: uploadFileIO},
}

// Uploader pushes local files to ephemeral hosting.
type Uploader struct {
	hosts   []uploadHost
	timeout time.Duration
	logger  *slog.Logger
}

// NewUploader creates an Uploader with the per-host timeout.
func NewUploader(hostTimeout time.Duration, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	if hostTimeout <= 0 {
		hostTimeout = 120 * time.Second
	}
	return &Uploader{
		hosts:   defaultHosts,
		timeout: hostTimeout,
		logger:  observability.WithComponent(logger, "upload"),
	}
}

// Upload pushes path to the first host that accepts it and returns the
// public URL. Every host failing is an upload-failed fault carrying
// per-host detail.
func (u *Uploader) Upload(ctx context.Context, path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", fault.Wrap(fault.KindUploadFailed, err, "reading clip for upload")
	}
	u.logger.Info("uploading clip to ephemeral hosting",
		slog.String("path", path),
		slog.Int64("size_bytes", st.Size()))

	client := &http.Client{Timeout: u.timeout}
	var failures []string
	for _, host := range u.hosts {
		url, err := host.upload(ctx, client, path)
		if err != nil {
			if ctx.Err() != nil {
				return "", fault.Wrap(fault.KindCancelled, ctx.Err(), "upload cancelled")
			}
			u.logger.Warn("upload host failed",
				slog.String("host", host.name),
				slog.String("error", err.Error()))
			failures = append(failures, fmt.Sprintf("%s: %v", host.name, err))
			continue
		}
		u.logger.Info("clip uploaded",
			slog.String("host", host.name),
			slog.String("url", url))
		return url, nil
	}
	return "", fault.New(fault.KindUploadFailed, "all upload hosts failed: %s", strings.Join(failures, "; "))
}

// multipartUpload builds and posts a multipart form with the file under
// fileField plus any extra fields, returning the response body.
func multipartUpload(ctx context.Context, client *http.Client, url, path, fileField string, fields map[string]string) (int, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return 0, "", err
		}
	}
	part, err := writer.CreateFormFile(fileField, filepath.Base(path))
	if err != nil {
		return 0, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return 0, "", err
	}
	if err := writer.Close(); err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(respBody), nil
}

var (
	catboxURL      = "https://catbox.moe/user/api.php"
	nullPointerURL = "https://0x0.st"
	fileIOURL      = "https://file.io"
)

func uploadCatbox(ctx context.Context, client *http.Client, path string) (string, error) {
	status, body, err := multipartUpload(ctx, client, catboxURL, path, "fileToUpload",
		map[string]string{"reqtype": "fileupload"})
	if err != nil {
		return "", err
	}
	url := strings.TrimSpace(body)
	if status != http.StatusOK || !strings.HasPrefix(url, "http") {
		return "", fmt.Errorf("status %d: %.100s", status, body)
	}
	return url, nil
}

func uploadNullPointer(ctx context.Context, client *http.Client, path string) (string, error) {
	status, body, err := multipartUpload(ctx, client, nullPointerURL, path, "file", nil)
	if err != nil {
		return "", err
	}
	url := strings.TrimSpace(body)
	if status != http.StatusOK || !strings.HasPrefix(url, "http") {
		return "", fmt.Errorf("status %d: %.100s", status, body)
	}
	return url, nil
}

func uploadFileIO(ctx context.Context, client *http.Client, path string) (string, error) {
	status, body, err := multipartUpload(ctx, client, fileIOURL, path, "file", nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("status %d: %.100s", status, body)
	}
	var parsed struct {
		Success bool   `json:"success"`
		Link    string `json:"link"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if !parsed.Success || parsed.Link == "" {
		return "", fmt.Errorf("upload rejected: %.100s", body)
	}
	return parsed.Link, nil
}
