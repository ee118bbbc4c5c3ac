package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/probe/core"
)

func chatServer(t *testing.T, status int, content string, seen *atomic.Value) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if seen != nil {
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			seen.Store(body)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"message": "upstream unavailable", "type": "server_error"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1234567890,
			"model":   "gpt-4o-mini",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]interface{}{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]interface{}{"prompt_tokens": 40, "completion_tokens": 12, "total_tokens": 52},
		})
	}))
}

func addRequest() Request {
	sig := core.Signature{
		Module:        "calc",
		QualifiedName: "Add",
		Name:          "Add",
		Doc:           "Add returns the sum of a and b.",
		Language:      "go",
		Params: []core.Parameter{
			{Name: "a", TypeHint: "int", Position: 0},
			{Name: "b", TypeHint: "float64", Position: 1},
		},
	}
	return NewRequest(sig, sig.Params)
}

func TestOpenAIClient_Infer(t *testing.T) {
	var seen atomic.Value
	srv := chatServer(t, http.StatusOK, `{"parameters": {"a": {"value": 10, "rationale": "small int"}, "b": {"value": 2.5}}}`, &seen)
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Model: "gpt-4o-mini", MaxRetries: -1}, nil, nil, nil, nil)
	out, err := client.Infer(context.Background(), addRequest())
	require.NoError(t, err)

	assert.Equal(t, Suggestion{Value: 10, Rationale: "small int"}, out["a"])
	assert.Equal(t, 2.5, out["b"].Value)

	body, ok := seen.Load().(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", body["model"])
	format, ok := body["response_format"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])

	messages, ok := body["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]interface{})["content"].(string)
	assert.Contains(t, user, `"callable": "calc::Add"`)
	assert.Contains(t, user, `"type": "float64"`)
}

func TestOpenAIClient_ServerError(t *testing.T) {
	srv := chatServer(t, http.StatusServiceUnavailable, "", nil)
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test", BaseURL: srv.URL, MaxRetries: -1}, nil, nil, nil, nil)
	_, err := client.Infer(context.Background(), addRequest())
	require.Error(t, err)
	assert.Equal(t, "transport", Reason(err))
}

func TestOpenAIClient_MalformedContent(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "sure, a=10 and b=2", nil)
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test", BaseURL: srv.URL, MaxRetries: -1}, nil, nil, nil, nil)
	_, err := client.Infer(context.Background(), addRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, "malformed", Reason(err))
}

func TestOpenAIClient_Canceled(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"parameters": {}}`, nil)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := NewOpenAIClient(OpenAIConfig{APIKey: "test", BaseURL: srv.URL, MaxRetries: -1}, nil, nil, nil, nil)
	_, err := client.Infer(ctx, addRequest())
	require.Error(t, err)
	assert.Contains(t, []string{"canceled", "rate_limited"}, Reason(err))
}

func TestOpenAIClient_PromptTruncatesDoc(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{APIKey: "test", DocTokenBudget: 2}, nil, nil, nil, nil)
	req := addRequest()
	req.Doc = strings.Repeat("a", 100)

	prompt, err := client.prompt(req)
	require.NoError(t, err)
	assert.Contains(t, prompt, `"doc": "aaaaaaaa"`)
	assert.NotContains(t, prompt, strings.Repeat("a", 9))
}

func TestParseSuggestions(t *testing.T) {
	req := addRequest()

	t.Run("partial entries", func(t *testing.T) {
		out, err := ParseSuggestions(`{"parameters": {"a": {"value": [1, 2]}, "b": {"rationale": "no value"}, "c": 3}}`, req)
		require.NoError(t, err)
		assert.Equal(t, []any{1, 2}, out["a"].Value)
		assert.NotContains(t, out, "b")
		assert.NotContains(t, out, "c")
	})

	t.Run("fenced reply", func(t *testing.T) {
		out, err := ParseSuggestions("```json\n{\"parameters\": {\"a\": {\"value\": \"x\"}}}\n```", req)
		require.NoError(t, err)
		assert.Equal(t, "x", out["a"].Value)
	})

	t.Run("explicit null", func(t *testing.T) {
		out, err := ParseSuggestions(`{"parameters": {"a": {"value": null}}}`, req)
		require.NoError(t, err)
		require.Contains(t, out, "a")
		assert.Nil(t, out["a"].Value)
	})

	t.Run("bare value for one parameter", func(t *testing.T) {
		single := req
		single.Params = req.Params[:1]
		out, err := ParseSuggestions(`{"value": 42, "rationale": "answer"}`, single)
		require.NoError(t, err)
		assert.Equal(t, Suggestion{Value: 42, Rationale: "answer"}, out["a"])
	})

	t.Run("bare value for two parameters", func(t *testing.T) {
		_, err := ParseSuggestions(`{"value": 42}`, req)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseSuggestions("a=1", req)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "timeout", Reason(context.DeadlineExceeded))
	assert.Equal(t, "canceled", Reason(context.Canceled))
	assert.Equal(t, "malformed", Reason(ErrMalformed))
}
