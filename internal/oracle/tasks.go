package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/halftimetv/halftime/internal/frame"
	"github.com/halftimetv/halftime/internal/subtitle"
)

// Product is the advertised product descriptor.
type Product struct {
	Company  string `json:"company"`
	Name     string `json:"product"`
	Category string `json:"category"`
}

// Profile is the viewer profile carried into placement and matching.
type Profile struct {
	Interests         []string       `json:"interests,omitempty"`
	Demographics      map[string]any `json:"demographics,omitempty"`
	ProductAffinities []string       `json:"product_affinities,omitempty"`
	Analysis          string         `json:"analysis,omitempty"`
}

// Placement is one selected insertion point with editing context.
// Timestamps are HH:MM:SS,mmm strings, the oracle's native shape.
type Placement struct {
	InsertionPoint   string  `json:"insertion_point"`
	BufferStart      string  `json:"buffer_start"`
	BufferEnd        string  `json:"buffer_end"`
	Confidence       float64 `json:"confidence"`
	Reason           string  `json:"reason"`
	ContextRelevance string  `json:"context_relevance"`
	SummaryBefore    string  `json:"summary_before"`
	SummaryAfter     string  `json:"summary_after"`
}

// Result is a complete placement analysis.
type Result struct {
	Placement       Placement `json:"placement"`
	OverallAnalysis string    `json:"overall_analysis"`
	VideoDuration   float64   `json:"video_duration,omitempty"`
	TotalGapsFound  int       `json:"total_gaps_found"`
}

// Candidate is one transcript-proposed insertion point.
type Candidate struct {
	InsertionPoint    string `json:"insertion_point"`
	Reason            string `json:"reason"`
	TranscriptContext string `json:"transcript_context"`
}

// VisionSelection is the vision pass verdict over candidate frames.
type VisionSelection struct {
	SelectedIndex     int    `json:"selected_index"`
	Timestamp         string `json:"timestamp"`
	VisualDescription string `json:"visual_description"`
	WhySelected       string `json:"why_selected"`
	WhyOthersRejected string `json:"why_others_rejected"`
}

// ProductMatch is the catalog match for a viewer profile.
type ProductMatch struct {
	BestMatch struct {
		Product        Product `json:"product"`
		RelevanceScore float64 `json:"relevance_score"`
		Reasoning      string  `json:"reasoning"`
	} `json:"best_match"`
	Ranked []struct {
		Company        string  `json:"company"`
		Product        string  `json:"product"`
		Category       string  `json:"category"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"ranked"`
}

// TranscriptInput is the shared transcript material for placement tasks.
type TranscriptInput struct {
	Summary string
	Gaps    []subtitle.Gap
	Product Product
	Profile Profile
}

// Analyze runs the single-pass placement analysis.
func (c *Client) Analyze(ctx context.Context, in TranscriptInput, bufferBefore, bufferAfter int) (*Result, error) {
	prompt := fmt.Sprintf(analyzePromptTemplate,
		formatProduct(in.Product),
		formatProfile(in.Profile),
		formatGaps(in.Gaps),
		in.Summary,
		bufferBefore, bufferAfter)

	raw, err := c.Chat(ctx, []Message{
		{Role: "system", Content: placementSystemPrompt},
		{Role: "user", Content: prompt},
	}, ChatOptions{Temperature: c.cfg.Temperature, JSONOnly: true})
	if err != nil {
		return nil, err
	}

	var result Result
	if err := DecodeJSON(raw, &result); err != nil {
		return nil, err
	}
	result.TotalGapsFound = len(in.Gaps)
	return &result, nil
}

// Candidates runs the transcript pass of the multi-pass analysis,
// returning up to n candidate insertion points ranked best first.
func (c *Client) Candidates(ctx context.Context, in TranscriptInput, n int) ([]Candidate, error) {
	prompt := fmt.Sprintf(candidatesPromptTemplate,
		n,
		formatProduct(in.Product),
		formatProfile(in.Profile),
		formatGaps(in.Gaps),
		in.Summary)

	raw, err := c.Chat(ctx, []Message{
		{Role: "system", Content: placementSystemPrompt},
		{Role: "user", Content: prompt},
	}, ChatOptions{Temperature: c.cfg.Temperature, JSONOnly: true})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Candidates []Candidate `json:"candidates"`
	}
	if err := DecodeJSON(raw, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Candidates) > n {
		parsed.Candidates = parsed.Candidates[:n]
	}
	return parsed.Candidates, nil
}

// VisionSelect runs the visual pass: one frame per candidate, the
// vision model picks the scene that hosts the product best.
func (c *Client) VisionSelect(ctx context.Context, candidates []Candidate, frames []frame.Frame, product Product, profile Profile) (*VisionSelection, error) {
	prompt := fmt.Sprintf(visionPromptTemplate,
		len(candidates),
		formatProduct(product),
		formatProfile(profile),
		formatCandidateReasons(candidates))

	parts := []ContentPart{TextPart(prompt)}
	for _, f := range frames {
		parts = append(parts, JPEGPart(f.Base64))
	}

	raw, err := c.Chat(ctx, []Message{
		{Role: "system", Content: visionSystemPrompt},
		{Role: "user", Content: parts},
	}, ChatOptions{
		Model:       c.cfg.VisionModelOrDefault(),
		Temperature: c.cfg.Temperature,
		JSONOnly:    true,
	})
	if err != nil {
		return nil, err
	}

	var selection VisionSelection
	if err := DecodeJSON(raw, &selection); err != nil {
		return nil, err
	}
	return &selection, nil
}

// ProfileInfer infers a viewer profile from raw platform data.
func (c *Client) ProfileInfer(ctx context.Context, platformData map[string]any) (*Profile, error) {
	data, err := json.MarshalIndent(platformData, "", "  ")
	if err != nil {
		data = []byte("{}")
	}
	prompt := fmt.Sprintf(profilePromptTemplate, string(data))

	raw, err := c.Chat(ctx, []Message{
		{Role: "system", Content: profileSystemPrompt},
		{Role: "user", Content: prompt},
	}, ChatOptions{Temperature: c.cfg.ProfileTemperature, JSONOnly: true})
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := DecodeJSON(raw, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// MatchProduct ranks the catalog against a viewer profile.
func (c *Client) MatchProduct(ctx context.Context, profile Profile, catalog []Product) (*ProductMatch, error) {
	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		profileJSON = []byte("{}")
	}
	prompt := fmt.Sprintf(productMatchPromptTemplate, string(profileJSON), formatProducts(catalog))

	raw, err := c.Chat(ctx, []Message{
		{Role: "system", Content: profileSystemPrompt},
		{Role: "user", Content: prompt},
	}, ChatOptions{Temperature: c.cfg.ProfileTemperature, JSONOnly: true})
	if err != nil {
		return nil, err
	}

	var match ProductMatch
	if err := DecodeJSON(raw, &match); err != nil {
		return nil, err
	}
	return &match, nil
}
