// Package oracle drives the reasoning service that selects ad insertion
// points, infers viewer profiles and matches products. All tasks share
// one chat-completions transport; prompts are data, not code.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/fault"
	"github.com/halftimetv/halftime/internal/observability"
)

const defaultMaxTokens = 4096

// Message is one chat turn. Content is either a plain string or, for
// vision requests, a []ContentPart.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a multimodal message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an inline base64 data URI.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// JPEGPart builds an inline-image content part from base64 JPEG data.
func JPEGPart(b64 string) ContentPart {
	return ContentPart{
		Type:     "image_url",
		ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + b64, Detail: "high"},
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ChatOptions tune a single completion call.
type ChatOptions struct {
	Model       string // empty = client default
	Temperature float64
	JSONOnly    bool
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cfg        config.OracleConfig
	logger     *slog.Logger
}

// NewClient creates a Client from oracle configuration.
func NewClient(cfg config.OracleConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		cfg:        cfg,
		logger:     observability.WithComponent(logger, "oracle"),
	}
}

// Chat sends one completion request and returns the assistant text.
// Transport and HTTP-level failures map to oracle-unreachable; the
// caller owns decoding the content.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.cfg.Model
	}

	req := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   defaultMaxTokens,
	}
	if opts.JSONOnly {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fault.Wrap(fault.KindInternal, err, "encoding oracle request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fault.Wrap(fault.KindInternal, err, "building oracle request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", fault.Wrap(fault.KindCancelled, err, "oracle call cancelled")
		}
		return "", fault.Wrap(fault.KindOracleUnreachable, err, "calling oracle at %s", c.baseURL)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fault.Wrap(fault.KindOracleUnreachable, err, "reading oracle response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fault.New(fault.KindOracleUnreachable, "oracle returned %d: %s",
			resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fault.Wrap(fault.KindOracleParse, err, "decoding oracle envelope")
	}
	if parsed.Error != nil {
		return "", fault.New(fault.KindOracleUnreachable, "oracle error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fault.New(fault.KindOracleParse, "oracle returned no choices")
	}

	c.logger.Debug("oracle call completed",
		slog.String("model", model),
		slog.Duration("elapsed", time.Since(start)))
	return parsed.Choices[0].Message.Content, nil
}

// DecodeJSON unmarshals oracle output into v. On failure it makes one
// recovery pass extracting the first balanced {...} substring; a second
// failure is an oracle-parse fault.
func DecodeJSON(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}

	extracted, ok := extractObject(raw)
	if !ok {
		return fault.New(fault.KindOracleParse, "no JSON object in oracle response: %s", truncate(raw, 200))
	}
	if err := json.Unmarshal([]byte(extracted), v); err != nil {
		return fault.Wrap(fault.KindOracleParse, err, "decoding recovered oracle JSON")
	}
	return nil
}

// extractObject returns the first balanced top-level JSON object in s.
// Brace depth is tracked outside string literals only.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString:
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
