package anthropic_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/core"
	"github.com/becomeliminal/nim-recall/llm"
	"github.com/becomeliminal/nim-recall/llm/anthropic"
)

func newCompleter(t *testing.T, h http.HandlerFunc) *anthropic.Completer {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return anthropic.New(func(o *anthropic.Options) {
		o.APIKey = "test-key"
		o.BaseURL = ts.URL + "/"
		o.Model = "claude-test"
	})
}

func TestCompleter_Complete(t *testing.T) {
	var body map[string]any
	c := newCompleter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "Hello "}, {"type": "text", "text": "there"}],
			"stop_reason": "end_turn", "stop_sequence": null,
			"usage": {"input_tokens": 3, "output_tokens": 2}
		}`))
	})

	out, err := c.Complete(context.Background(), llm.Request{
		System: "be brief",
		Messages: []core.Message{
			{Role: core.RoleUser, Content: "hi"},
			{Role: core.RoleAssistant, Content: "hey"},
			{Role: core.RoleUser, Content: "how are you"},
		},
		MaxTokens:   64,
		Temperature: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)

	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, 64, body["max_tokens"])
	assert.EqualValues(t, 0.5, body["temperature"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 3)
	assert.Equal(t, "claude-test", c.Model())
}

func TestCompleter_Stream(t *testing.T) {
	events := []string{
		`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":3,"output_tokens":0}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`,
		`{"type":"message_stop"}`,
	}
	c := newCompleter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			var head struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal([]byte(e), &head)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", head.Type, e)
		}
	})

	var chunks []string
	out, err := c.Stream(context.Background(), llm.Request{
		Messages: []core.Message{{Role: core.RoleUser, Content: "hi"}},
	}, func(s string) { chunks = append(chunks, s) })
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
	assert.Equal(t, []string{"Hel", "lo"}, chunks)
}

func TestCompleter_Error(t *testing.T) {
	c := newCompleter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	})

	_, err := c.Complete(context.Background(), llm.Request{
		Messages: []core.Message{{Role: core.RoleUser, Content: "hi"}},
	})
	assert.Error(t, err)
}
