package languageserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inlinesuggest/types"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeBody reads a brotli-compressed JSON request body
func decodeBody(t *testing.T, r *http.Request, out any) {
	t.Helper()
	assert.Equal(t, "br", r.Header.Get("Content-Encoding"), "request is brotli compressed")
	data, err := io.ReadAll(brotli.NewReader(r.Body))
	if assert.NoError(t, err, "read body") {
		assert.NoError(t, json.Unmarshal(data, out), "decode body")
	}
}

func sampleRequest() *types.CompletionRequest {
	return &types.CompletionRequest{
		Document: types.CurrentDocument{
			Document: types.Document{
				Path:     "main.go",
				Language: "go",
				Text:     "package main\n\nfunc main() {\n\t\n}\n",
			},
			CursorOffset: 28,
		},
		OtherDocuments: []types.Document{
			{Path: "/abs/util.go", Language: "go", Text: "package main"},
		},
	}
}

func TestGetCompletions_Success(t *testing.T) {
	var received GetCompletionsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, GetCompletionsPath, r.URL.Path, "path")
		assert.Equal(t, "1", r.Header.Get("Connect-Protocol-Version"), "connect header")
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Basic test-key-"), "auth header")
		decodeBody(t, r, &received)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"promptId": "prompt-1",
			"completionItems": [
				{"completion": {"completionId": "c1", "text": "fmt.Println()", "tokens": ["1", "2"]}, "range": {"startOffset": "28", "endOffset": "28"}, "source": "COMPLETION_SOURCE_NETWORK"},
				{"completion": {"completionId": "c2", "text": "return"}, "range": {"startOffset": 27, "endOffset": 28}}
			]
		}`))
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL, APIKey: "test-key"})
	result, err := client.GetCompletions(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, "prompt-1", result.PromptID, "prompt id")
	assert.Equal(t, types.CompletionSourceNetwork, result.Source, "source")
	require.Equal(t, 2, len(result.Completions), "completions")
	assert.Equal(t, "c1", result.Completions[0].ID, "rank order preserved")
	assert.Equal(t, 2, result.Completions[0].Tokens, "token count")
	assert.Equal(t, 27, result.Completions[1].StartOffset, "numeric offsets accepted")
	assert.False(t, result.Timestamp.IsZero(), "timestamp set")

	assert.Equal(t, "test-key", received.Metadata.APIKey, "api key in metadata")
	assert.Equal(t, client.SessionID, received.Metadata.SessionID, "session id")
	assert.Equal(t, Int64(28), received.Document.CursorOffset, "cursor offset")
	assert.Equal(t, "main.go", received.Document.RelativePath, "relative path")
	assert.Equal(t, "LANGUAGE_GO", received.Document.Language, "language enum")
	require.Equal(t, 1, len(received.OtherDocuments), "other documents")
	assert.Equal(t, "/abs/util.go", received.OtherDocuments[0].AbsolutePath, "absolute path")
	assert.Nil(t, received.MultilineConfig, "threshold omitted when unset")
}

func TestGetCompletions_ForwardsThresholdVerbatim(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeBody(t, r, &raw)
		w.Write([]byte(`{"completionItems": []}`))
	}))
	defer server.Close()

	threshold := 1.7
	req := sampleRequest()
	req.MultilineThreshold = &threshold

	client := NewClient(Config{URL: server.URL})
	result, err := client.GetCompletions(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 0, len(result.Completions), "empty result")
	cfg, ok := raw["multilineConfig"].(map[string]any)
	require.True(t, ok, "multilineConfig present")
	assert.Equal(t, 1.7, cfg["threshold"], "out of range threshold passed through")
}

func TestGetCompletions_ZeroThresholdIsSent(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeBody(t, r, &raw)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	threshold := 0.0
	req := sampleRequest()
	req.MultilineThreshold = &threshold

	_, err := NewClient(Config{URL: server.URL}).GetCompletions(context.Background(), req)
	require.NoError(t, err)

	cfg, ok := raw["multilineConfig"].(map[string]any)
	require.True(t, ok, "multilineConfig present for 0.0")
	assert.Equal(t, 0.0, cfg["threshold"], "zero threshold")
}

func TestGetCompletions_BrotliResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte(`{"completionItems": [{"completion": {"completionId": "c1", "text": "x"}}]}`))
		bw.Close()
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	req := sampleRequest()
	result, err := NewClient(Config{URL: server.URL}).GetCompletions(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, 1, len(result.Completions))
	assert.Equal(t, req.Document.CursorOffset, result.Completions[0].StartOffset, "missing range inserts at cursor")
}

func TestGetCompletions_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected error
	}{
		{"server error", http.StatusInternalServerError, `{"code": "internal", "message": "boom"}`, ErrUnexpectedStatus},
		{"unauthenticated", http.StatusUnauthorized, `denied`, ErrUnexpectedStatus},
		{"malformed json", http.StatusOK, `{not json`, ErrDecode},
		{"missing completion", http.StatusOK, `{"completionItems": [{}]}`, ErrDecode},
		{"missing id", http.StatusOK, `{"completionItems": [{"completion": {"text": "x"}}]}`, ErrDecode},
		{"range outside document", http.StatusOK, `{"completionItems": [{"completion": {"completionId": "c", "text": "x"}, "range": {"startOffset": "0", "endOffset": "9999"}}]}`, ErrDecode},
		{"service error state", http.StatusOK, `{"state": {"state": "CODEIUM_STATE_ERROR", "message": "quota"}}`, ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(Config{URL: server.URL}).GetCompletions(context.Background(), sampleRequest())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.expected), "error kind: %v", err)
		})
	}
}

func TestGetCompletions_ErrorMessageIncludesServerMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"code": "unavailable", "message": "overloaded"}`))
	}))
	defer server.Close()

	_, err := NewClient(Config{URL: server.URL}).GetCompletions(context.Background(), sampleRequest())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "unavailable: overloaded")
}

func TestGetCompletions_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(Config{URL: server.URL}).GetCompletions(ctx, sampleRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "cancellation is visible to the caller")
}

func TestAcceptCompletion(t *testing.T) {
	var received AcceptCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, AcceptCompletionPath, r.URL.Path, "path")
		decodeBody(t, r, &received)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL, APIKey: "k"})
	require.NoError(t, client.AcceptCompletion(context.Background(), "c42"))

	assert.Equal(t, "c42", received.CompletionID, "completion id")
	assert.Equal(t, "k", received.Metadata.APIKey, "api key")
}

func TestWarmup_SendsEmptyRequest(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeBody(t, r, &raw)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := NewClient(Config{URL: server.URL}).Warmup(context.Background())

	assert.True(t, errors.Is(err, ErrUnexpectedStatus), "warm-up is rejected by the service")
	assert.Empty(t, raw, "empty body")
}

func TestNewClient_DefaultURL(t *testing.T) {
	assert.Equal(t, DefaultURL, NewClient(Config{}).URL)
	assert.Equal(t, "http://x", NewClient(Config{URL: "http://x/"}).URL, "trailing slash trimmed")
}

func TestRequestIDsIncrease(t *testing.T) {
	client := NewClient(Config{})

	first := client.metadata("").RequestID
	second := client.metadata("").RequestID

	assert.True(t, second > first, "request ids are monotonic")
}

func TestInt64_UnmarshalJSON(t *testing.T) {
	var v struct {
		A Int64 `json:"a"`
		B Int64 `json:"b"`
		C Int64 `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": "12", "b": 7, "c": null}`), &v))

	assert.Equal(t, Int64(12), v.A)
	assert.Equal(t, Int64(7), v.B)
	assert.Equal(t, Int64(0), v.C)
}
