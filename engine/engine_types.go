package engine

import (
	"context"
	"errors"
	"time"

	"inlinesuggest/types"
)

// AcceptCommand is the editor command attached to every rendered completion
const AcceptCommand = "inlinesuggest.acceptCompletion"

// Errors reported by the engine. None of them are fatal; they are logged and
// returned so the host can decide whether to surface them.
var (
	ErrUnknownCompletion = errors.New("completion is not part of the latest response")
	ErrAlreadyAccepted   = errors.New("completion already accepted")
	ErrInvalidCursor     = errors.New("cursor offset outside document")
	ErrInvalidArguments  = errors.New("invalid command arguments")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrStopped           = errors.New("engine stopped")
)

// Service is the remote completion service
type Service interface {
	GetCompletions(ctx context.Context, req *types.CompletionRequest) (*types.CompletionsAndMetadata, error)
	AcceptCompletion(ctx context.Context, completionID string) error
	Warmup(ctx context.Context) error
}

// ResponseCache short-circuits repeated identical requests
type ResponseCache interface {
	Get(req *types.CompletionRequest) *types.CompletionsAndMetadata
	Set(req *types.CompletionRequest, result *types.CompletionsAndMetadata)
}

// InlineCompletionProvider is the surface the editor host talks to
type InlineCompletionProvider interface {
	ProvideInlineCompletions(ctx context.Context, doc types.CurrentDocument, trigger types.TriggerKind) *InlineCompletionList
	FreeInlineCompletions(list *InlineCompletionList)
	HandleCommand(name string, args ...any) error
}

// InlineCompletionList is what the editor renders for one request.
// Items is never nil.
type InlineCompletionList struct {
	ID    uint64
	Items []types.CompletionAndRange
}

func emptyList(id uint64) *InlineCompletionList {
	return &InlineCompletionList{ID: id, Items: []types.CompletionAndRange{}}
}

// EngineConfig configures an Engine
type EngineConfig struct {
	// MultilineThreshold is forwarded verbatim when set
	MultilineThreshold *float64
	// CompletionTimeout bounds each request (0 = no client-side timeout)
	CompletionTimeout time.Duration
	// AcceptRetryWindow retries acceptance reports with backoff for this long (0 = single attempt)
	AcceptRetryWindow time.Duration
	// OtherDocuments seeds the document tracker
	OtherDocuments []types.Document

	// Host callbacks, each optional
	OnCompletionCount func(total int64)
	OnAccepted        func(text string)
	OnStatus          func(status types.Status)
}

// Stats is a point-in-time view of the engine counters
type Stats struct {
	Completions int64
	Accepted    int64
	Status      types.Status
	Documents   int
}
