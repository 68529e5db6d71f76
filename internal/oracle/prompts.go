package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/halftimetv/halftime/internal/subtitle"
)

// Prompt construction limits. Gaps beyond the cap add noise without
// adding signal, and long cue contexts blow the token budget.
const (
	maxPromptGaps   = 15
	maxContextChars = 80
)

const placementSystemPrompt = `You are an expert ad placement analyst. Your job is to find THE perfect moment in video content to insert an advertisement that feels natural and non-disruptive.

You will analyze:
1. Transcript content with timestamps - to understand context and find thematic connections
2. Dialogue gaps - natural pauses that could accommodate ads
3. User preferences - to personalize placement timing based on interests
4. Product information - to find contextually relevant moments

Your goal is to identify the SINGLE BEST moment where an ad would feel like a natural part of the viewing experience, not an interruption. You must also provide detailed summaries of what happens before and after this moment so the ad can be seamlessly integrated.

IMPORTANT: You must respond with valid JSON only.`

const analyzePromptTemplate = `Analyze this video content and find the SINGLE BEST timestamp for ad placement.

## Product to Advertise
%s

## User Preferences
%s

## Detected Dialogue Gaps (potential ad slots)
%s

## Transcript Summary
%s

## Instructions
Find the SINGLE BEST timestamp for ad placement. Consider:
1. Natural pauses in dialogue (gaps) - ads here won't interrupt speech
2. Scene transitions or topic changes - natural break points
3. Contextual relevance - moments that thematically connect to the product
4. User interests - prioritize moments related to what the user likes
5. Emotional pacing - avoid tense/climactic moments, prefer calm transitions

The selected clip will have a %d-second buffer before and %d seconds after for editing context.

Respond with this exact JSON structure:
{
    "placement": {
        "insertion_point": "HH:MM:SS,mmm",
        "buffer_start": "HH:MM:SS,mmm",
        "buffer_end": "HH:MM:SS,mmm",
        "confidence": 0.0 to 1.0,
        "reason": "Detailed explanation of why this is the perfect placement",
        "context_relevance": "How this moment relates to the product/user interests",
        "summary_before": "Detailed summary of what happens in the seconds BEFORE the insertion point (what scene/dialogue is ending)",
        "summary_after": "Detailed summary of what happens in the seconds AFTER the insertion point (what scene/dialogue is starting)"
    },
    "overall_analysis": "Brief summary of the content and why this placement was chosen over others"
}`

const candidatesPromptTemplate = `Analyze this video content and propose up to %d candidate timestamps for ad placement, ranked best first.

## Product to Advertise
%s

## User Preferences
%s

## Detected Dialogue Gaps (potential ad slots)
%s

## Transcript Summary
%s

## Instructions
Propose candidate insertion points. Consider:
1. Natural pauses in dialogue (gaps) - ads here won't interrupt speech
2. Scene transitions or topic changes - natural break points
3. Contextual relevance - moments that thematically connect to the product
4. User interests - prioritize moments related to what the user likes
5. Emotional pacing - avoid tense/climactic moments, prefer calm transitions

Respond with this exact JSON structure:
{
    "candidates": [
        {
            "insertion_point": "HH:MM:SS,mmm",
            "reason": "Why this moment could host an ad",
            "transcript_context": "What is happening in the dialogue around this moment"
        }
    ]
}`

const visionSystemPrompt = `You are an expert visual ad placement analyst. You are shown video frames, one per candidate insertion point, each with the transcript-based reasoning that proposed it. Pick the single frame whose scene would most naturally host the product.

Reject establishing shots, aerial shots and scene transitions with no human subject. Prefer scenes where the product could plausibly appear.

IMPORTANT: You must respond with valid JSON only.`

const visionPromptTemplate = `Select the best of the %d candidate frames for placing this ad.

## Product to Advertise
%s

## User Preferences
%s

## Candidates
Frames follow in candidate order. Their transcript reasoning:
%s

Respond with this exact JSON structure:
{
    "selected_index": 0-based index of the chosen frame,
    "timestamp": "HH:MM:SS,mmm of the chosen candidate",
    "visual_description": "What the chosen frame shows",
    "why_selected": "Why this scene hosts the ad best",
    "why_others_rejected": "Brief reason the other frames lost"
}`

const profileSystemPrompt = `You are an audience analyst. From viewing history, cookie data and browsing signals you infer a viewer's likely demographics, interests and product affinities. Be specific but never invent facts the data cannot support.

IMPORTANT: You must respond with valid JSON only.`

const profilePromptTemplate = `Infer a viewer profile from this platform data.

## Platform Data
%s

Respond with this exact JSON structure:
{
    "interests": ["..."],
    "demographics": {
        "age_group": "...",
        "segment": "...",
        "location": "..."
    },
    "product_affinities": ["..."],
    "analysis": "One-paragraph reasoning behind the inference"
}`

const productMatchPromptTemplate = `Match this viewer profile to the best product for ad placement.

## Viewer Profile
%s

## Available Products
%s

Respond with this exact JSON structure:
{
    "best_match": {
        "product": {"company": "...", "product": "...", "category": "..."},
        "relevance_score": 0.0 to 1.0,
        "reasoning": "Why this product fits this viewer"
    },
    "ranked": [
        {"company": "...", "product": "...", "category": "...", "relevance_score": 0.0 to 1.0}
    ]
}`

// formatGaps renders the top gaps for prompting, with cue context
// trimmed to its tail (before) and head (after).
func formatGaps(gaps []subtitle.Gap) string {
	if len(gaps) == 0 {
		return "(no dialogue gaps detected)"
	}

	var b strings.Builder
	for i, g := range gaps {
		if i == maxPromptGaps {
			break
		}
		fmt.Fprintf(&b, "%d. [%s - %s] Duration: %.2fs\n",
			i+1,
			subtitle.FormatTimestamp(g.Start),
			subtitle.FormatTimestamp(g.End),
			g.Duration.Seconds())
		if g.ContextBefore != "" {
			fmt.Fprintf(&b, "   Before: ...%s\n", tail(g.ContextBefore, maxContextChars))
		}
		if g.ContextAfter != "" {
			fmt.Fprintf(&b, "   After: %s...\n", head(g.ContextAfter, maxContextChars))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatProduct(p Product) string {
	return fmt.Sprintf("Company: %s\nProduct: %s\nCategory: %s",
		orUnknown(p.Company), orUnknown(p.Name), orUnknown(p.Category))
}

func formatProfile(p Profile) string {
	demographics, _ := json.Marshal(p.Demographics)
	if p.Demographics == nil {
		demographics = []byte("{}")
	}
	return fmt.Sprintf("Interests: %s\nDemographics: %s",
		strings.Join(p.Interests, ", "), demographics)
}

func formatCandidateReasons(candidates []Candidate) string {
	var b strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i, c.InsertionPoint, c.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatProducts(products []Product) string {
	if len(products) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, p := range products {
		fmt.Fprintf(&b, "%d. %s - %s (%s)\n", i+1,
			orUnknown(p.Company), orUnknown(p.Name), orUnknown(p.Category))
	}
	return strings.TrimRight(b.String(), "\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
