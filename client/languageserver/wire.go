package languageserver

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Int64 is a protobuf JSON int64: encoded as a string, decoded from either
// a string or a number.
type Int64 int64

func (i Int64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatInt(int64(i), 10))), nil
}

func (i *Int64) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*i = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	*i = Int64(v)
	return nil
}

// Metadata identifies the caller on every request
type Metadata struct {
	IDEName          string `json:"ideName,omitempty"`
	IDEVersion       string `json:"ideVersion,omitempty"`
	ExtensionName    string `json:"extensionName,omitempty"`
	ExtensionVersion string `json:"extensionVersion,omitempty"`
	APIKey           string `json:"apiKey,omitempty"`
	SessionID        string `json:"sessionId,omitempty"`
	RequestID        Int64  `json:"requestId,omitempty"`
	TriggerKind      string `json:"triggerKind,omitempty"`
}

// Document is a document as sent over the wire
type Document struct {
	AbsolutePath   string `json:"absolutePath,omitempty"`
	RelativePath   string `json:"relativePath,omitempty"`
	Text           string `json:"text"`
	EditorLanguage string `json:"editorLanguage,omitempty"`
	Language       string `json:"language,omitempty"`
	CursorOffset   Int64  `json:"cursorOffset,omitempty"`
	LineEnding     string `json:"lineEnding,omitempty"`
}

// EditorOptions describes indentation settings of the current document
type EditorOptions struct {
	TabSize      Int64 `json:"tabSize,omitempty"`
	InsertSpaces bool  `json:"insertSpaces"`
}

// MultilineConfig biases generation toward single or multi-line output
type MultilineConfig struct {
	Threshold float64 `json:"threshold"`
}

// GetCompletionsRequest is the request body of GetCompletions
type GetCompletionsRequest struct {
	Metadata        *Metadata        `json:"metadata,omitempty"`
	Document        *Document        `json:"document,omitempty"`
	EditorOptions   *EditorOptions   `json:"editorOptions,omitempty"`
	OtherDocuments  []*Document      `json:"otherDocuments,omitempty"`
	MultilineConfig *MultilineConfig `json:"multilineConfig,omitempty"`
}

// Completion is a completion as returned over the wire
type Completion struct {
	CompletionID string  `json:"completionId"`
	Text         string  `json:"text"`
	Prefix       string  `json:"prefix,omitempty"`
	Stop         string  `json:"stop,omitempty"`
	Score        float64 `json:"score,omitempty"`
	Tokens       []Int64 `json:"tokens,omitempty"`
}

// Range is the byte span of the document a completion replaces
type Range struct {
	StartOffset Int64 `json:"startOffset"`
	EndOffset   Int64 `json:"endOffset"`
}

// CompletionItem is one ranked entry of a GetCompletions response
type CompletionItem struct {
	Completion *Completion `json:"completion"`
	Range      *Range      `json:"range,omitempty"`
	Source     string      `json:"source,omitempty"`
}

// State is the service-reported state of a response
type State struct {
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
}

// LatencyInfo carries server-side timings
type LatencyInfo struct {
	TotalLatencyMs Int64 `json:"totalLatencyMs,omitempty"`
}

// GetCompletionsResponse is the response body of GetCompletions
type GetCompletionsResponse struct {
	State           *State            `json:"state,omitempty"`
	PromptID        string            `json:"promptId,omitempty"`
	CompletionItems []*CompletionItem `json:"completionItems"`
	LatencyInfo     *LatencyInfo      `json:"latencyInfo,omitempty"`
}

// AcceptCompletionRequest reports that the user accepted a completion
type AcceptCompletionRequest struct {
	Metadata     *Metadata `json:"metadata,omitempty"`
	CompletionID string    `json:"completionId"`
}

// errorBody is the Connect error envelope returned with non-2xx statuses
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeErrorBody(body []byte) string {
	var e errorBody
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		if e.Code != "" {
			return e.Code + ": " + e.Message
		}
		return e.Message
	}
	return string(body)
}
