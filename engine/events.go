package engine

import (
	"inlinesuggest/types"
)

// EventType represents the type of event in the engine
type EventType string

// Event type constants
const (
	EventProvide          EventType = "provide"
	EventProvideAbandoned EventType = "provide_abandoned"
	EventCompletionReady  EventType = "completion_ready"
	EventCompletionError  EventType = "completion_error"
	EventFree             EventType = "free"
	EventAccept           EventType = "accept"
	EventDetails          EventType = "details"
)

// Event represents an event in the engine
type Event struct {
	Type EventType
	Data any
}

// provideCall is a ProvideInlineCompletions invocation waiting on the loop
type provideCall struct {
	document types.CurrentDocument
	trigger  types.TriggerKind
	reply    chan *InlineCompletionList
}

// completionResult is the outcome of one request, tagged with its generation
type completionResult struct {
	generation uint64
	result     *types.CompletionsAndMetadata
	err        error
}

// acceptCall is an acceptance waiting on the loop
type acceptCall struct {
	completionID string
	insertText   string
	reply        chan error
}

// detailsCall asks for the debugging details of a rendered list
type detailsCall struct {
	listID uint64
	reply  chan []*types.CompletionDetailsWrapper
}

// handlers maps each event to its loop-side action
var handlers = map[EventType]func(*Engine, Event){
	EventProvide: func(e *Engine, ev Event) {
		e.handleProvide(ev.Data.(*provideCall))
	},
	EventProvideAbandoned: func(e *Engine, ev Event) {
		e.handleAbandoned(ev.Data.(*provideCall))
	},
	EventCompletionReady: func(e *Engine, ev Event) {
		e.handleCompletionReady(ev.Data.(*completionResult))
	},
	EventCompletionError: func(e *Engine, ev Event) {
		e.handleCompletionError(ev.Data.(*completionResult))
	},
	EventFree: func(e *Engine, ev Event) {
		e.handleFree(ev.Data.(uint64))
	},
	EventAccept: func(e *Engine, ev Event) {
		call := ev.Data.(*acceptCall)
		call.reply <- e.handleAccept(call.completionID, call.insertText)
	},
	EventDetails: func(e *Engine, ev Event) {
		call := ev.Data.(*detailsCall)
		call.reply <- e.details[call.listID]
	},
}
