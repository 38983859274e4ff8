package openai_test

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
	"github.com/becomeliminal/nim-recall/llm/openai"
)

func newCompleter(t *testing.T, h http.HandlerFunc) *openai.Completer {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return openai.New(func(o *openai.Options) {
		o.APIKey = "test-key"
		o.BaseURL = ts.URL + "/v1/"
		o.Model = "llama-test"
	})
}

func TestCompleter_Complete(t *testing.T) {
	var body struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxCompletionTokens int `json:"max_completion_tokens"`
	}
	c := newCompleter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "c1", "object": "chat.completion", "created": 1, "model": "llama-test",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 2, "total_tokens": 3}
		}`))
	})

	out, err := c.Complete(context.Background(), llm.Request{
		System:   "be brief",
		Messages: []core.Message{{Role: core.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)

	assert.Equal(t, "llama-test", body.Model)
	assert.Equal(t, 4096, body.MaxCompletionTokens)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, "user", body.Messages[1].Role)
	assert.Equal(t, "hello", body.Messages[1].Content)
}

func TestCompleter_Stream(t *testing.T) {
	c := newCompleter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, text := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"llama-test\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q},\"finish_reason\":null}]}\n\n", text)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var chunks []string
	out, err := c.Stream(context.Background(), llm.Request{
		Messages: []core.Message{{Role: core.RoleUser, Content: "hi"}},
	}, func(s string) { chunks = append(chunks, s) })
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
	assert.Equal(t, []string{"Hel", "lo"}, chunks)
}

func TestNewGroq(t *testing.T) {
	c := openai.NewGroq("k", "")
	assert.Equal(t, openai.DefaultGroqModel, c.Model())
}
