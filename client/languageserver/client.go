package languageserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"inlinesuggest/logger"
	"inlinesuggest/types"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
)

// DefaultURL is the public language server
const DefaultURL = "https://web-backend.khulnasoft.com"

// Service paths, Connect style
const (
	GetCompletionsPath   = "/exa.language_server_pb.LanguageServerService/GetCompletions"
	AcceptCompletionPath = "/exa.language_server_pb.LanguageServerService/AcceptCompletion"
)

// Errors returned by the client
var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrDecode           = errors.New("malformed response")
)

// Config configures a Client
type Config struct {
	URL              string
	APIKey           string
	IDEName          string
	IDEVersion       string
	ExtensionName    string
	ExtensionVersion string
	// Timeout bounds every HTTP exchange (0 = no timeout)
	Timeout time.Duration
}

// Client is the HTTP client for the language server
type Client struct {
	HTTPClient *http.Client
	URL        string
	APIKey     string
	SessionID  string

	config    Config
	requestID atomic.Int64
}

// NewClient creates a language server client. An empty URL selects DefaultURL.
func NewClient(config Config) *Client {
	url := strings.TrimSuffix(config.URL, "/")
	if url == "" {
		url = DefaultURL
	}
	if config.IDEName == "" {
		config.IDEName = "neovim"
	}
	if config.ExtensionName == "" {
		config.ExtensionName = "inlinesuggest"
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: config.Timeout},
		URL:        url,
		APIKey:     config.APIKey,
		SessionID:  uuid.NewString(),
		config:     config,
	}
}

// metadata builds the per-request metadata block
func (c *Client) metadata(trigger string) *Metadata {
	return &Metadata{
		IDEName:          c.config.IDEName,
		IDEVersion:       c.config.IDEVersion,
		ExtensionName:    c.config.ExtensionName,
		ExtensionVersion: c.config.ExtensionVersion,
		APIKey:           c.APIKey,
		SessionID:        c.SessionID,
		RequestID:        Int64(c.requestID.Add(1)),
		TriggerKind:      trigger,
	}
}

// GetCompletions requests completions for the current document
func (c *Client) GetCompletions(ctx context.Context, req *types.CompletionRequest) (*types.CompletionsAndMetadata, error) {
	defer logger.Trace("languageserver.GetCompletions")()

	body := NewGetCompletionsRequest(req, c.metadata(req.Trigger.String()))

	start := time.Now()
	var resp GetCompletionsResponse
	if err := c.call(ctx, GetCompletionsPath, body, &resp); err != nil {
		return nil, err
	}
	latency := time.Since(start)

	result, err := resp.toMetadata(req.Document.Text, req.Document.CursorOffset)
	if err != nil {
		return nil, err
	}
	result.Latency = latency
	result.Timestamp = time.Now()

	logger.Debug("languageserver: %d completions, prompt=%s, latency=%v, server latency=%dms",
		len(result.Completions), result.PromptID, latency, resp.serverLatencyMs())
	return result, nil
}

// AcceptCompletion reports an accepted completion
func (c *Client) AcceptCompletion(ctx context.Context, completionID string) error {
	defer logger.Trace("languageserver.AcceptCompletion")()

	return c.call(ctx, AcceptCompletionPath, &AcceptCompletionRequest{
		Metadata:     c.metadata(""),
		CompletionID: completionID,
	}, nil)
}

// Warmup sends an empty GetCompletions so that the connection and any
// preflight caches are ready before the first real request. The service is
// expected to reject it.
func (c *Client) Warmup(ctx context.Context) error {
	return c.call(ctx, GetCompletionsPath, &GetCompletionsRequest{}, nil)
}

// call posts a brotli-compressed JSON body and decodes the JSON response into out (if non-nil)
func (c *Client) call(ctx context.Context, path string, in any, out any) error {
	jsonData, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	// Compress with brotli (quality 1 for speed)
	var compressedBuf bytes.Buffer
	brotliWriter := brotli.NewWriterLevel(&compressedBuf, 1)
	if _, err := brotliWriter.Write(jsonData); err != nil {
		return fmt.Errorf("failed to compress request: %w", err)
	}
	if err := brotliWriter.Close(); err != nil {
		return fmt.Errorf("failed to close brotli writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+path, &compressedBuf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Content-Encoding", "br")
	httpReq.Header.Set("Accept-Encoding", "br")
	httpReq.Header.Set("Connect-Protocol-Version", "1")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Basic "+c.APIKey+"-"+c.SessionID)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "br" {
		reader = brotli.NewReader(resp.Body)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, decodeErrorBody(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// NewGetCompletionsRequest converts a completion request into its wire form
func NewGetCompletionsRequest(req *types.CompletionRequest, metadata *Metadata) *GetCompletionsRequest {
	doc := req.Document
	wire := &GetCompletionsRequest{
		Metadata: metadata,
		Document: toWireDocument(doc.Document),
		EditorOptions: &EditorOptions{
			TabSize:      Int64(doc.TabSize),
			InsertSpaces: doc.InsertSpaces,
		},
	}
	wire.Document.CursorOffset = Int64(doc.CursorOffset)
	if wire.EditorOptions.TabSize == 0 {
		wire.EditorOptions.TabSize = 4
	}

	for _, other := range req.OtherDocuments {
		wire.OtherDocuments = append(wire.OtherDocuments, toWireDocument(other))
	}

	if req.MultilineThreshold != nil {
		wire.MultilineConfig = &MultilineConfig{Threshold: *req.MultilineThreshold}
	}
	return wire
}

func toWireDocument(doc types.Document) *Document {
	d := &Document{
		Text:           doc.Text,
		EditorLanguage: doc.Language,
		Language:       languageEnum(doc.Language),
		LineEnding:     "\n",
	}
	if filepath.IsAbs(doc.Path) {
		d.AbsolutePath = doc.Path
	} else {
		d.RelativePath = doc.Path
	}
	if strings.Contains(doc.Text, "\r\n") {
		d.LineEnding = "\r\n"
	}
	return d
}

// languageEnum maps an editor language id to the service enum name
func languageEnum(language string) string {
	if language == "" {
		return "LANGUAGE_UNSPECIFIED"
	}
	switch strings.ToLower(language) {
	case "c++", "cpp":
		return "LANGUAGE_CPP"
	case "c#", "cs", "csharp":
		return "LANGUAGE_CSHARP"
	case "js", "javascript", "javascriptreact":
		return "LANGUAGE_JAVASCRIPT"
	case "ts", "typescript", "typescriptreact":
		return "LANGUAGE_TYPESCRIPT"
	case "py", "python":
		return "LANGUAGE_PYTHON"
	case "sh", "bash", "zsh", "shell":
		return "LANGUAGE_SHELL"
	}
	return "LANGUAGE_" + strings.ToUpper(language)
}

func (r *GetCompletionsResponse) serverLatencyMs() int64 {
	if r.LatencyInfo == nil {
		return 0
	}
	return int64(r.LatencyInfo.TotalLatencyMs)
}

// toMetadata converts the wire response, validating every item against the
// document the request was made for. Items without a range insert at the cursor.
func (r *GetCompletionsResponse) toMetadata(text string, cursor int) (*types.CompletionsAndMetadata, error) {
	if r.State != nil && strings.HasSuffix(r.State.State, "_ERROR") {
		return nil, fmt.Errorf("%w: service state %s: %s", ErrDecode, r.State.State, r.State.Message)
	}

	result := &types.CompletionsAndMetadata{
		Completions: make([]*types.Completion, 0, len(r.CompletionItems)),
		Source:      types.CompletionSourceNetwork,
		PromptID:    r.PromptID,
	}

	for i, item := range r.CompletionItems {
		if item == nil || item.Completion == nil {
			return nil, fmt.Errorf("%w: item %d has no completion", ErrDecode, i)
		}
		if item.Completion.CompletionID == "" {
			return nil, fmt.Errorf("%w: item %d has no completion id", ErrDecode, i)
		}
		if i == 0 && item.Source != "" {
			result.Source = types.ParseCompletionSource(item.Source)
		}

		start, end := cursor, cursor
		if item.Range != nil {
			start, end = int(item.Range.StartOffset), int(item.Range.EndOffset)
		}
		if start < 0 || end < start || end > len(text) {
			return nil, fmt.Errorf("%w: item %d range [%d:%d] outside document of %d bytes", ErrDecode, i, start, end, len(text))
		}

		result.Completions = append(result.Completions, &types.Completion{
			ID:          item.Completion.CompletionID,
			Text:        item.Completion.Text,
			Prefix:      item.Completion.Prefix,
			Stop:        item.Completion.Stop,
			Score:       item.Completion.Score,
			Tokens:      len(item.Completion.Tokens),
			StartOffset: start,
			EndOffset:   end,
		})
	}
	return result, nil
}
