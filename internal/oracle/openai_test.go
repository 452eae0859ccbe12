package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:     "chatcmpl-1",
		Object: "chat.completion",
		Model:  "gpt-4o-mini",
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content,
			},
			FinishReason: openai.FinishReasonStop,
		}},
	}
}

func newTestOpenAIOracle(t *testing.T, url string) *openAIOracle {
	t.Helper()
	o, err := newOpenAIOracle(Config{
		APIKey:     "test-key",
		BaseURL:    url,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, nil)
	require.NoError(t, err)
	o.logger = discardLogger()
	return o
}

func TestNewOpenAIOracle_RequiresKey(t *testing.T) {
	_, err := newOpenAIOracle(Config{}, nil)
	assert.Error(t, err)
}

func TestOpenAISession_ChooseKeepsTranscript(t *testing.T) {
	var requests []openai.ChatCompletionRequest
	answers := []string{`{"choice":"Electronics"}`, `{"choice":"Phones"}`}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		_ = json.NewEncoder(w).Encode(chatResponse(answers[len(requests)-1]))
	}))
	defer server.Close()

	o := newTestOpenAIOracle(t, server.URL)
	s, err := o.NewSession(context.Background())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.Choose(context.Background(), menu("Electronics", "Furniture"))
	require.NoError(t, err)
	assert.Equal(t, "Electronics", got)

	got, err = s.Choose(context.Background(), menu("Computers", "Phones"))
	require.NoError(t, err)
	assert.Equal(t, "Phones", got)

	require.Len(t, requests, 2)
	assert.Len(t, requests[0].Messages, 2)
	assert.Len(t, requests[1].Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleAssistant, requests[1].Messages[2].Role)

	require.NotNil(t, requests[1].ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONSchema, requests[1].ResponseFormat.Type)
}

func TestOpenAISession_RejectsUnofferedAnswer(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unlisted option", content: `{"choice":"C"}`},
		{name: "not json", content: `C`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(chatResponse(tt.content))
			}))
			defer server.Close()

			s, err := newTestOpenAIOracle(t, server.URL).NewSession(context.Background())
			require.NoError(t, err)

			_, err = s.Choose(context.Background(), menu("A", "B", "Other (use parent category)"))
			assert.ErrorIs(t, err, ErrOptionNotOffered)
		})
	}
}

func TestOpenAISession_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse(`{"choice":"A"}`))
	}))
	defer server.Close()

	s, err := newTestOpenAIOracle(t, server.URL).NewSession(context.Background())
	require.NoError(t, err)

	got, err := s.Choose(context.Background(), menu("A", "B"))
	require.NoError(t, err)
	assert.Equal(t, "A", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAISession_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad schema","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	s, err := newTestOpenAIOracle(t, server.URL).NewSession(context.Background())
	require.NoError(t, err)

	_, err = s.Choose(context.Background(), menu("A", "B"))
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
