package types

import "time"

// MaxOtherDocuments is the number of workspace documents forwarded as extra context
const MaxOtherDocuments = 10

// Completion is a single suggestion returned by the language server.
// Completions are never mutated after they are received.
type Completion struct {
	ID     string
	Text   string
	Prefix string // Text the service assumed precedes the completion
	Stop   string // Stop sequence that ended generation, if any
	Score  float64
	Tokens int

	// Byte span of the current document the completion replaces
	StartOffset int
	EndOffset   int
}

// CompletionSource tags where a batch of completions came from
type CompletionSource int

const (
	CompletionSourceUnspecified CompletionSource = iota
	CompletionSourceNetwork
	CompletionSourceCache
)

// String returns the wire name of the source
func (s CompletionSource) String() string {
	switch s {
	case CompletionSourceNetwork:
		return "COMPLETION_SOURCE_NETWORK"
	case CompletionSourceCache:
		return "COMPLETION_SOURCE_CACHE"
	default:
		return "COMPLETION_SOURCE_UNSPECIFIED"
	}
}

// ParseCompletionSource maps a wire name back to a CompletionSource
func ParseCompletionSource(s string) CompletionSource {
	switch s {
	case "COMPLETION_SOURCE_NETWORK", "network":
		return CompletionSourceNetwork
	case "COMPLETION_SOURCE_CACHE", "cache":
		return CompletionSourceCache
	default:
		return CompletionSourceUnspecified
	}
}

// TriggerKind records why a completion was requested. Telemetry only.
type TriggerKind int

const (
	TriggerAutomatic TriggerKind = iota
	TriggerExplicit
)

func (k TriggerKind) String() string {
	if k == TriggerExplicit {
		return "explicit"
	}
	return "automatic"
}

// Position is a location in a document (follows the cursor conventions of the editor host)
type Position struct {
	Line   int // 1-indexed
	Column int // 0-indexed, in bytes
}

// Range is a span of document text, End exclusive
type Range struct {
	Start Position
	End   Position
}

// IsEmpty reports whether the range covers no text (a pure insertion point)
func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

// Command is an editor command the host runs when a suggestion is accepted
type Command struct {
	ID        string
	Title     string
	Arguments []any
}

// CompletionAndRange pairs a completion with the document range it replaces.
// Produced per rendering pass and never persisted.
type CompletionAndRange struct {
	Completion  *Completion
	Range       Range
	StartOffset int // byte offset of Range.Start
	EndOffset   int // byte offset of Range.End
	InsertText  string
	Command     *Command
}

// Document is a workspace file exposed as context. The host owns it;
// the orchestrator only keeps read-only snapshots.
type Document struct {
	Path     string
	Language string
	Text     string
}

// CurrentDocument is the document being edited together with its cursor
type CurrentDocument struct {
	Document
	CursorOffset int // byte offset into Text
	TabSize      int
	InsertSpaces bool
}

// CompletionDetailsWrapper carries per-completion debugging information.
// It never drives control flow.
type CompletionDetailsWrapper struct {
	Index                    int
	Document                 Document
	Completion               *Completion
	AnnotatedCompletionLines []string
	Prompt                   string
}

// CompletionsAndMetadata is the full result of one request.
// Completions are in rank order.
type CompletionsAndMetadata struct {
	Completions []*Completion
	Source      CompletionSource
	Latency     time.Duration
	PromptID    string
	Timestamp   time.Time
}

// Find returns the completion with the given id, or nil
func (m *CompletionsAndMetadata) Find(id string) *Completion {
	if m == nil {
		return nil
	}
	for _, c := range m.Completions {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// CompletionRequest contains everything sent to the language server for one trigger
type CompletionRequest struct {
	RequestID      string
	Document       CurrentDocument
	OtherDocuments []Document
	// MultilineThreshold is forwarded verbatim when set. 0.0 asks for multiline
	// output only; higher values bias toward single-line completions.
	MultilineThreshold *float64
	Trigger            TriggerKind
}
