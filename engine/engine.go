package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"inlinesuggest/document"
	"inlinesuggest/logger"
	"inlinesuggest/metrics"
	"inlinesuggest/status"
	"inlinesuggest/types"
)

const (
	warmupTimeout = 10 * time.Second
	acceptTimeout = 10 * time.Second
	// maxRetainedDetails bounds how many unfreed lists keep debugging details
	maxRetainedDetails = 16
)

// pendingRequest is a request the loop is still waiting on
type pendingRequest struct {
	call    *provideCall
	request *types.CompletionRequest
	cancel  context.CancelFunc
}

// Engine orchestrates completion requests for one editor session.
//
// All request state is owned by the event loop goroutine. Public methods post
// events and wait for the loop to answer, so the host may call them from any
// goroutine.
type Engine struct {
	service   Service
	cache     ResponseCache
	tracker   *metrics.Tracker
	documents *document.Tracker
	status    *status.Reporter
	config    EngineConfig

	eventChan chan Event

	// Main context and cancel for the engine lifecycle
	mainCtx    context.Context
	mainCancel context.CancelFunc
	mu         sync.Mutex
	started    bool
	stopped    bool
	stopOnce   sync.Once

	// Loop-owned request state
	generation   uint64
	inflight     map[uint64]*pendingRequest
	lastResponse *types.CompletionsAndMetadata
	lastRequest  *types.CompletionRequest
	accepted     map[string]struct{}
	details      map[uint64][]*types.CompletionDetailsWrapper
	detailsOrder []uint64

	// Counters are written on the loop and read anywhere
	completionCount atomic.Int64
	acceptedCount   atomic.Int64

	subscribers subscriberSet
}

// NewEngine creates an engine. cache and tracker may be nil.
func NewEngine(service Service, config EngineConfig, cache ResponseCache, tracker *metrics.Tracker) *Engine {
	e := &Engine{
		service:   service,
		cache:     cache,
		tracker:   tracker,
		documents: document.NewTracker(config.OtherDocuments),
		config:    config,
		eventChan: make(chan Event, 100),
		inflight:  make(map[uint64]*pendingRequest),
		accepted:  make(map[string]struct{}),
		details:   make(map[uint64][]*types.CompletionDetailsWrapper),
	}
	e.mainCtx, e.mainCancel = context.WithCancel(context.Background())
	e.status = status.NewReporter(func(s types.Status) {
		e.publish(StatusChanged{Status: s})
	})

	if config.OnCompletionCount != nil {
		e.Subscribe(func(n Notification) {
			if c, ok := n.(CompletionCountChanged); ok {
				config.OnCompletionCount(c.Total)
			}
		})
	}
	if config.OnAccepted != nil {
		e.Subscribe(func(n Notification) {
			if a, ok := n.(CompletionAccepted); ok {
				config.OnAccepted(a.Text)
			}
		})
	}
	if config.OnStatus != nil {
		e.Subscribe(func(n Notification) {
			if s, ok := n.(StatusChanged); ok {
				config.OnStatus(s.Status)
			}
		})
	}
	return e
}

// Start runs the event loop until ctx is done or Stop is called, and sends
// the warm-up request.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.stopped || e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	context.AfterFunc(ctx, e.Stop)

	go e.eventLoop(e.mainCtx)
	go e.warmup()
	logger.Info("engine started")
}

// Stop shuts down the engine. Pending callers get empty results, further
// calls are no-ops and no callback starts after Stop returns. Stop may be
// called from inside a callback.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		logger.Info("stopping engine...")

		// Mark as stopped to prevent new operations
		e.mu.Lock()
		e.stopped = true
		e.mu.Unlock()

		// Cancel main context to stop the event loop and every request
		e.mainCancel()
		e.status.Detach()
		e.subscribers.clear()

		logger.Info("engine stopped")
	})
}

// Stopped reports whether Stop has been called
func (e *Engine) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// warmup primes the service connection. The outcome is ignored.
func (e *Engine) warmup() {
	ctx, cancel := context.WithTimeout(e.mainCtx, warmupTimeout)
	defer cancel()

	if err := e.service.Warmup(ctx); err != nil {
		logger.Debug("warm-up request: %v", err)
	}
}

func (e *Engine) eventLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event loop panic recovered: %v", r)
			e.eventLoop(ctx) // Restart the event loop
		}
	}()

	for {
		select {
		case <-ctx.Done():
			e.shutdownInflight()
			return
		case event := <-e.eventChan:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("event handler panic recovered for event %v: %v", event.Type, r)
					}
				}()
				e.handleEvent(event)
			}()
		}
	}
}

func (e *Engine) handleEvent(event Event) {
	if e.Stopped() {
		return
	}

	logger.Debug("handle event: %v", event.Type)

	handler, ok := handlers[event.Type]
	if !ok {
		logger.Warn("no handler for event %q", event.Type)
		return
	}
	handler(e, event)
}

// post hands an event to the loop. It returns false once the engine is stopped.
func (e *Engine) post(event Event) bool {
	select {
	case e.eventChan <- event:
		return true
	case <-e.mainCtx.Done():
		return false
	}
}

// shutdownInflight cancels every pending request and releases its caller
func (e *Engine) shutdownInflight() {
	for gen, pending := range e.inflight {
		pending.cancel()
		pending.call.reply <- emptyList(gen)
		delete(e.inflight, gen)
	}
}

// UpdateOtherDocuments replaces the documents sent as context. Requests
// issued after this call see the new set; requests already in flight keep theirs.
func (e *Engine) UpdateOtherDocuments(docs []types.Document) {
	e.documents.Update(docs)
}

// OtherDocuments returns the current context documents
func (e *Engine) OtherDocuments() []types.Document {
	return e.documents.Snapshot()
}

// Status returns the current service status
func (e *Engine) Status() types.Status {
	return e.status.Current()
}

// CompletionCount is the running total of completions returned
func (e *Engine) CompletionCount() int64 {
	return e.completionCount.Load()
}

// AcceptedCount is the running total of accepted completions
func (e *Engine) AcceptedCount() int64 {
	return e.acceptedCount.Load()
}

// Stats returns a snapshot of the engine counters
func (e *Engine) Stats() Stats {
	return Stats{
		Completions: e.CompletionCount(),
		Accepted:    e.AcceptedCount(),
		Status:      e.Status(),
		Documents:   e.documents.Len(),
	}
}
