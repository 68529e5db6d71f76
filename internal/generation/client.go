package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/fault"
	"github.com/halftimetv/halftime/internal/observability"
)

// Provider duration bounds: the v2v model accepts 3-10 seconds of
// generated output. Requests outside the range clamp; the reinsertion
// step measures the actual clip length afterwards.
const (
	minClipSeconds = 3
	maxClipSeconds = 10
)

type submitRequest struct {
	Duration              int    `json:"duration"`
	EnablePromptExpansion bool   `json:"enable_prompt_expansion"`
	NegativePrompt        string `json:"negative_prompt"`
	Prompt                string `json:"prompt"`
	Resolution            string `json:"resolution"`
	Seed                  int    `json:"seed"`
	Video                 string `json:"video"`
}

type providerEnvelope struct {
	Data struct {
		ID      string   `json:"id"`
		Status  string   `json:"status"`
		Outputs []string `json:"outputs"`
		Error   string   `json:"error"`
	} `json:"data"`
}

// Result describes a completed generation.
type Result struct {
	OutputURL string        `json:"output_url"`
	RequestID string        `json:"request_id"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Client drives the v2v generation provider.
type Client struct {
	httpClient *http.Client
	cfg        config.GenerationConfig
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Client from generation configuration.
func NewClient(cfg config.GenerationConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		// Individual poll requests get their own deadline; the hard
		// job timeout is enforced by the poll loop.
		httpClient: &http.Client{Timeout: 60 * time.Second},
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		logger:     observability.WithComponent(logger, "generation"),
	}
}

// Generate submits the task and polls it to completion.
func (c *Client) Generate(ctx context.Context, videoURL, prompt string, durationSeconds int) (*Result, error) {
	start := time.Now()

	requestID, err := c.submit(ctx, videoURL, prompt, durationSeconds)
	if err != nil {
		return nil, err
	}
	c.logger.Info("generation task submitted",
		slog.String("request_id", requestID),
		slog.String("video_url", videoURL))

	outputURL, err := c.poll(ctx, requestID, start)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	c.logger.Info("generation completed",
		slog.String("request_id", requestID),
		slog.Duration("elapsed", elapsed))
	return &Result{OutputURL: outputURL, RequestID: requestID, Elapsed: elapsed}, nil
}

func clampDuration(seconds int) int {
	if seconds < minClipSeconds {
		return minClipSeconds
	}
	if seconds > maxClipSeconds {
		return maxClipSeconds
	}
	return seconds
}

func (c *Client) submit(ctx context.Context, videoURL, prompt string, durationSeconds int) (string, error) {
	payload := submitRequest{
		Duration:   clampDuration(durationSeconds),
		Prompt:     prompt,
		Resolution: c.cfg.Resolution,
		Seed:       -1,
		Video:      videoURL,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fault.Wrap(fault.KindInternal, err, "encoding generation request")
	}

	url := c.baseURL + "/" + strings.TrimLeft(c.cfg.ModelPath, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fault.Wrap(fault.KindInternal, err, "building generation request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fault.Wrap(fault.KindCancelled, err, "generation submit cancelled")
		}
		return "", fault.Wrap(fault.KindGenerationUnreachable, err, "submitting generation task")
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fault.New(fault.KindGenerationUnreachable, "generation provider returned %d: %.200s",
			resp.StatusCode, string(respBody))
	}

	var parsed providerEnvelope
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fault.Wrap(fault.KindGenerationUnreachable, err, "decoding submit response")
	}
	if parsed.Data.ID == "" {
		return "", fault.New(fault.KindGenerationUnreachable, "submit response carried no task id")
	}
	return parsed.Data.ID, nil
}

// poll checks the task every poll_interval until it completes, the hard
// timeout expires, or the consecutive-error budget runs out. Errors
// double the wait; a successful check resets the budget.
func (c *Client) poll(ctx context.Context, requestID string, start time.Time) (string, error) {
	url := fmt.Sprintf("%s/predictions/%s/result", c.baseURL, requestID)

	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	maxErrs := c.cfg.MaxConsecutiveErrs
	if maxErrs <= 0 {
		maxErrs = 10
	}

	consecutive := 0
	for {
		if time.Since(start) > timeout {
			return "", fault.New(fault.KindGenerationTimeout, "generation timed out after %s", timeout)
		}

		status, outputURL, err := c.checkOnce(ctx, url)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return "", fault.Wrap(fault.KindCancelled, err, "generation poll cancelled")
			}
			consecutive++
			c.logger.Warn("generation status check failed",
				slog.Int("consecutive_errors", consecutive),
				slog.Int("budget", maxErrs),
				slog.String("error", err.Error()))
			if consecutive >= maxErrs {
				return "", fault.Wrap(fault.KindGenerationUnreachable, err,
					"status check failed %d consecutive times", consecutive)
			}
			if err := sleepCtx(ctx, 2*interval); err != nil {
				return "", err
			}
			continue

		case status == "completed":
			if outputURL == "" {
				return "", fault.New(fault.KindGenerationUnreachable, "completed task carried no output URL")
			}
			return outputURL, nil

		case status == "failed":
			return "", fault.New(fault.KindInternal, "generation failed: %s", outputURL)

		default:
			consecutive = 0
			c.logger.Debug("generation in progress",
				slog.String("status", status),
				slog.Duration("elapsed", time.Since(start)))
		}

		if err := sleepCtx(ctx, interval); err != nil {
			return "", err
		}
	}
}

// checkOnce returns (status, outputURL-or-error-detail, err).
func (c *Client) checkOnce(ctx context.Context, url string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("status %d: %.200s", resp.StatusCode, string(body))
	}

	var parsed providerEnvelope
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", fmt.Errorf("decoding status response: %w", err)
	}

	switch parsed.Data.Status {
	case "completed":
		if len(parsed.Data.Outputs) == 0 {
			return "completed", "", nil
		}
		return "completed", parsed.Data.Outputs[0], nil
	case "failed":
		detail := parsed.Data.Error
		if detail == "" {
			detail = "unknown error"
		}
		return "failed", detail, nil
	default:
		return parsed.Data.Status, "", nil
	}
}

// Download streams url to dst.
func (c *Client) Download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fault.Wrap(fault.KindInternal, err, "building download request")
	}

	// Downloads can outlast the poll-request deadline.
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fault.Wrap(fault.KindCancelled, err, "download cancelled")
		}
		return fault.Wrap(fault.KindGenerationUnreachable, err, "downloading generated clip")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fault.New(fault.KindGenerationUnreachable, "download returned %d", resp.StatusCode)
	}

	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fault.Wrap(fault.KindInternal, err, "creating download target")
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fault.Wrap(fault.KindGenerationUnreachable, err, "streaming generated clip")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fault.Wrap(fault.KindInternal, err, "closing download target")
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fault.Wrap(fault.KindInternal, err, "finalizing download")
	}

	c.logger.Info("generated clip downloaded", slog.String("path", dst))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fault.Wrap(fault.KindCancelled, ctx.Err(), "generation wait cancelled")
	case <-timer.C:
		return nil
	}
}
