package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/fault"
)

func chatEnvelope(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.OracleConfig{
		BaseURL:            srv.URL,
		APIKey:             "test-key",
		Model:              "grok-4-1-fast",
		Temperature:        0.3,
		ProfileTemperature: 0.6,
		Timeout:            5 * time.Second,
	}, nil)
}

func TestChatSendsExpectedRequest(t *testing.T) {
	var got chatRequest
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, chatEnvelope("hello"))
	})

	out, err := client.Chat(context.Background(), []Message{
		{Role: "user", Content: "say hello"},
	}, ChatOptions{Temperature: 0.3, JSONOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	assert.Equal(t, "grok-4-1-fast", got.Model)
	assert.InDelta(t, 0.3, got.Temperature, 0.0001)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestChatModelOverride(t *testing.T) {
	var got chatRequest
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, chatEnvelope("ok"))
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}},
		ChatOptions{Model: "grok-vision", Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, "grok-vision", got.Model)
	assert.Nil(t, got.ResponseFormat)
}

func TestChatHTTPErrorIsUnreachable(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, ChatOptions{})
	require.Error(t, err)
	assert.Equal(t, fault.KindOracleUnreachable, fault.KindOf(err))
}

func TestChatTransportErrorIsUnreachable(t *testing.T) {
	client := NewClient(config.OracleConfig{
		BaseURL: "http://127.0.0.1:1",
		Timeout: time.Second,
	}, nil)

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, ChatOptions{})
	require.Error(t, err)
	assert.Equal(t, fault.KindOracleUnreachable, fault.KindOf(err))
}

func TestChatEmptyChoicesIsParseFault(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, ChatOptions{})
	require.Error(t, err)
	assert.Equal(t, fault.KindOracleParse, fault.KindOf(err))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Value string `json:"value"`
	}

	t.Run("direct", func(t *testing.T) {
		var p payload
		require.NoError(t, DecodeJSON(`{"value":"a"}`, &p))
		assert.Equal(t, "a", p.Value)
	})

	t.Run("recovered from prose", func(t *testing.T) {
		var p payload
		raw := "Here is the JSON you asked for:\n```json\n{\"value\":\"b\"}\n```\nHope that helps!"
		require.NoError(t, DecodeJSON(raw, &p))
		assert.Equal(t, "b", p.Value)
	})

	t.Run("nested braces in strings", func(t *testing.T) {
		var p payload
		raw := `prefix {"value":"contains } and { inside"} suffix`
		require.NoError(t, DecodeJSON(raw, &p))
		assert.Equal(t, "contains } and { inside", p.Value)
	})

	t.Run("unrecoverable", func(t *testing.T) {
		var p payload
		err := DecodeJSON("no json here at all", &p)
		require.Error(t, err)
		assert.Equal(t, fault.KindOracleParse, fault.KindOf(err))
	})

	t.Run("truncated object", func(t *testing.T) {
		var p payload
		err := DecodeJSON(`{"value":"never closed`, &p)
		require.Error(t, err)
		assert.Equal(t, fault.KindOracleParse, fault.KindOf(err))
	})
}

func TestTasksDecodeTypedResults(t *testing.T) {
	responses := []string{
		chatEnvelope(`{"candidates":[
			{"insertion_point":"00:05:10,000","reason":"scene break","transcript_context":"dinner ends"},
			{"insertion_point":"00:12:00,500","reason":"quiet gap","transcript_context":"driving"}
		]}`),
		chatEnvelope(`{"interests":["racing"],"demographics":{"age_group":"18-34"},"analysis":"car fan"}`),
	}
	var call int
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, responses[call])
		call++
	})

	candidates, err := client.Candidates(context.Background(), TranscriptInput{Summary: "s"}, 5)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "00:05:10,000", candidates[0].InsertionPoint)

	profile, err := client.ProfileInfer(context.Background(), map[string]any{"shows": []string{"Top Gear"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"racing"}, profile.Interests)
	assert.Equal(t, "car fan", profile.Analysis)
}

func TestCandidatesTruncatesToRequested(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatEnvelope(`{"candidates":[
			{"insertion_point":"00:01:00,000"},
			{"insertion_point":"00:02:00,000"},
			{"insertion_point":"00:03:00,000"}
		]}`))
	})

	candidates, err := client.Candidates(context.Background(), TranscriptInput{}, 2)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}
