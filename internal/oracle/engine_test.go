package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/fault"
	"github.com/halftimetv/halftime/internal/frame"
	"github.com/halftimetv/halftime/internal/subtitle"
)

type fakeGrabber struct {
	calls []float64
}

func (g *fakeGrabber) GrabFrame(_ context.Context, _ string, t float64, dst string) error {
	g.calls = append(g.calls, t)
	return os.WriteFile(dst, []byte("jpeg-bytes"), 0o644)
}

func testPlacementConfig() config.PlacementConfig {
	return config.PlacementConfig{
		MinGap:        1500 * time.Millisecond,
		BufferBefore:  10 * time.Second,
		BufferAfter:   3 * time.Second,
		MaxCandidates: 5,
		TranscriptCap: 100,
	}
}

func testCues() []subtitle.Cue {
	return []subtitle.Cue{
		{Index: 1, Start: 1 * time.Second, End: 4 * time.Second, Text: "We should get moving."},
		{Index: 2, Start: 10 * time.Second, End: 14 * time.Second, Text: "The road is long."},
		{Index: 3, Start: 20 * time.Minute, End: 20*time.Minute + 5*time.Second, Text: "We made it."},
	}
}

func scriptedEngine(t *testing.T, grabber *fakeGrabber, responses ...string) *Engine {
	t.Helper()
	var call int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Less(t, call, len(responses), "unexpected extra oracle call")
		fmt.Fprint(w, responses[call])
		call++
	}))
	t.Cleanup(srv.Close)

	client := NewClient(config.OracleConfig{
		BaseURL:     srv.URL,
		APIKey:      "k",
		Model:       "grok-4-1-fast",
		Temperature: 0.3,
		Timeout:     5 * time.Second,
	}, nil)
	return NewEngine(client, frame.NewExtractor(grabber), testPlacementConfig(), nil)
}

func TestPlaceMultipass(t *testing.T) {
	grabber := &fakeGrabber{}
	engine := scriptedEngine(t, grabber,
		chatEnvelope(`{"candidates":[
			{"insertion_point":"00:05:10,000","reason":"scene break","transcript_context":"dinner winds down"},
			{"insertion_point":"00:12:00,000","reason":"quiet stretch","transcript_context":"driving montage"}
		]}`),
		chatEnvelope(`{"selected_index":1,"timestamp":"00:12:00,000",
			"visual_description":"two people in a car",
			"why_selected":"product fits the road trip",
			"why_others_rejected":"frame 0 is an aerial shot"}`),
	)

	result, err := engine.Place(context.Background(), PlaceRequest{
		Cues:      testCues(),
		VideoPath: "/video.mp4",
		Product:   Product{Company: "Acme", Name: "Widget", Category: "gadgets"},
	})
	require.NoError(t, err)

	p := result.Placement
	assert.Equal(t, "00:12:00,000", p.InsertionPoint)
	assert.Equal(t, "00:11:50,000", p.BufferStart)
	assert.Equal(t, "00:12:03,000", p.BufferEnd)
	assert.InDelta(t, 0.9, p.Confidence, 0.0001)
	assert.Equal(t, "product fits the road trip", p.Reason)
	assert.Equal(t, "two people in a car", p.ContextRelevance)
	assert.Equal(t, "driving montage", p.SummaryBefore)

	// One frame grabbed per candidate, at the candidate timestamps.
	require.Len(t, grabber.calls, 2)
	assert.InDelta(t, 310.0, grabber.calls[0], 0.001)
	assert.InDelta(t, 720.0, grabber.calls[1], 0.001)

	// Duration derives from the last cue end.
	assert.InDelta(t, 1205.0, result.VideoDuration, 0.001)
}

func TestPlaceOutOfRangeSelectionClampsToFirst(t *testing.T) {
	engine := scriptedEngine(t, &fakeGrabber{},
		chatEnvelope(`{"candidates":[{"insertion_point":"00:05:10,000","reason":"scene break"}]}`),
		chatEnvelope(`{"selected_index":7,"why_selected":"x"}`),
	)

	result, err := engine.Place(context.Background(), PlaceRequest{
		Cues:      testCues(),
		VideoPath: "/video.mp4",
	})
	require.NoError(t, err)
	assert.Equal(t, "00:05:10,000", result.Placement.InsertionPoint)
}

func TestPlaceNoCandidates(t *testing.T) {
	engine := scriptedEngine(t, &fakeGrabber{},
		chatEnvelope(`{"candidates":[]}`),
	)

	_, err := engine.Place(context.Background(), PlaceRequest{Cues: testCues()})
	require.Error(t, err)
	assert.Equal(t, fault.KindNoCandidates, fault.KindOf(err))
}

func TestPlaceSinglePassDerivesBuffers(t *testing.T) {
	engine := scriptedEngine(t, &fakeGrabber{},
		chatEnvelope(`{"placement":{"insertion_point":"00:00:05,000","confidence":0.72,
			"reason":"early lull"},"overall_analysis":"short film"}`),
	)

	result, err := engine.PlaceSinglePass(context.Background(), PlaceRequest{Cues: testCues()})
	require.NoError(t, err)

	p := result.Placement
	// Start clamps at zero; insertion 5s minus 10s buffer.
	assert.Equal(t, "00:00:00,000", p.BufferStart)
	assert.Equal(t, "00:00:08,000", p.BufferEnd)
	assert.InDelta(t, 0.72, p.Confidence, 0.0001)
	assert.Equal(t, "short film", result.OverallAnalysis)
}

func TestPlaceSinglePassKeepsOracleBuffers(t *testing.T) {
	engine := scriptedEngine(t, &fakeGrabber{},
		chatEnvelope(`{"placement":{"insertion_point":"00:10:00,000",
			"buffer_start":"00:09:52,000","buffer_end":"00:10:02,000","confidence":0.8}}`),
	)

	result, err := engine.PlaceSinglePass(context.Background(), PlaceRequest{Cues: testCues()})
	require.NoError(t, err)
	assert.Equal(t, "00:09:52,000", result.Placement.BufferStart)
	assert.Equal(t, "00:10:02,000", result.Placement.BufferEnd)
}

func TestPlaceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine := scriptedEngine(t, &fakeGrabber{},
		chatEnvelope(`{"candidates":[{"insertion_point":"00:05:10,000"}]}`),
	)

	_, err := engine.Place(ctx, PlaceRequest{Cues: testCues()})
	require.Error(t, err)
	assert.Equal(t, fault.KindCancelled, fault.KindOf(err))
}

func TestFormatGapsTruncatesContext(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "abcdefghij"
	}
	gaps := []subtitle.Gap{{
		Start:         10 * time.Second,
		End:           15 * time.Second,
		Duration:      5 * time.Second,
		ContextBefore: long,
		ContextAfter:  long,
	}}

	out := formatGaps(gaps)
	assert.Contains(t, out, "[00:00:10,000 - 00:00:15,000] Duration: 5.00s")
	// Context lines carry at most 80 chars of cue text.
	assert.Contains(t, out, "Before: ..."+long[len(long)-80:])
	assert.Contains(t, out, "After: "+long[:80]+"...")
}

func TestFormatGapsCapsAtFifteen(t *testing.T) {
	gaps := make([]subtitle.Gap, 20)
	for i := range gaps {
		gaps[i] = subtitle.Gap{
			Start:    time.Duration(i) * time.Minute,
			End:      time.Duration(i)*time.Minute + 2*time.Second,
			Duration: 2 * time.Second,
		}
	}

	out := formatGaps(gaps)
	assert.Contains(t, out, "15. ")
	assert.NotContains(t, out, "16. ")
}
