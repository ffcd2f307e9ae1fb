// Package status reports the health of the completion service to the editor.
package status

import (
	"sync"

	"inlinesuggest/logger"
	"inlinesuggest/types"
)

// Callback receives every status transition
type Callback func(types.Status)

// Reporter is the status state machine.
//
//	Inactive --success--> Active --failure--> Error --success--> Active ...
//
// There is no terminal state. Nothing moves the status back to Active
// except another successful request.
type Reporter struct {
	mu       sync.Mutex
	current  types.Status
	callback Callback
	detached bool
}

// NewReporter creates a reporter in the Inactive state
func NewReporter(callback Callback) *Reporter {
	return &Reporter{
		current:  types.Status{State: types.StateInactive},
		callback: callback,
	}
}

// Current returns the latest status
func (r *Reporter) Current() types.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Succeeded moves to Active
func (r *Reporter) Succeeded(message string) {
	r.transition(types.Status{State: types.StateActive, Message: message})
}

// Failed moves to Error. An empty message is replaced so the host always has
// something to show.
func (r *Reporter) Failed(message string) {
	if message == "" {
		message = "completion request failed"
	}
	r.transition(types.Status{State: types.StateError, Message: message})
}

// Detach stops all further callbacks. Safe to call more than once and from
// any goroutine, including while a request is still resolving.
func (r *Reporter) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = true
	r.callback = nil
}

func (r *Reporter) transition(next types.Status) {
	r.mu.Lock()
	if r.detached {
		r.mu.Unlock()
		return
	}
	changed := r.current != next
	r.current = next
	cb := r.callback
	r.mu.Unlock()

	if !changed {
		return
	}
	logger.Debug("status: %s %q", next.State, next.Message)
	if cb != nil {
		cb(next)
	}
}
