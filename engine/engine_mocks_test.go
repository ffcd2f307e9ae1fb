package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"inlinesuggest/types"
)

// --- Mock implementations ---

type mockResponse struct {
	result *types.CompletionsAndMetadata
	err    error
}

// mockCall is one GetCompletions invocation held until the test responds
type mockCall struct {
	ctx     context.Context
	req     *types.CompletionRequest
	respond chan mockResponse
}

// mockService implements Service. With respond set every call is answered
// immediately; otherwise calls are handed to the test through calls.
type mockService struct {
	mu      sync.Mutex
	respond func(req *types.CompletionRequest) (*types.CompletionsAndMetadata, error)
	// ignoreCancel makes held calls wait for a response even after cancellation
	ignoreCancel bool

	calls     chan *mockCall
	requests  []*types.CompletionRequest
	accepted  chan string
	acceptErr error
	warmups   int
}

func newMockService() *mockService {
	return &mockService{
		calls:    make(chan *mockCall, 16),
		accepted: make(chan string, 16),
	}
}

func (s *mockService) GetCompletions(ctx context.Context, req *types.CompletionRequest) (*types.CompletionsAndMetadata, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	respond := s.respond
	ignoreCancel := s.ignoreCancel
	s.mu.Unlock()

	if respond != nil {
		return respond(req)
	}

	call := &mockCall{ctx: ctx, req: req, respond: make(chan mockResponse, 1)}
	s.calls <- call

	if ignoreCancel {
		r := <-call.respond
		return r.result, r.err
	}
	select {
	case r := <-call.respond:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *mockService) AcceptCompletion(ctx context.Context, completionID string) error {
	s.mu.Lock()
	err := s.acceptErr
	s.mu.Unlock()
	s.accepted <- completionID
	return err
}

func (s *mockService) Warmup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warmups++
	return nil
}

func (s *mockService) setRespond(fn func(req *types.CompletionRequest) (*types.CompletionsAndMetadata, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.respond = fn
}

func (s *mockService) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *mockService) lastRequest() *types.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

func (s *mockService) nextCall(t *testing.T) *mockCall {
	t.Helper()
	select {
	case call := <-s.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a service call")
		return nil
	}
}

// mockCache implements ResponseCache with a plain map keyed by document text and cursor
type mockCache struct {
	mu      sync.Mutex
	entries map[string]*types.CompletionsAndMetadata
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]*types.CompletionsAndMetadata)}
}

func cacheKey(req *types.CompletionRequest) string {
	return req.Document.Text + "\x00" + string(rune(req.Document.CursorOffset))
}

func (c *mockCache) Get(req *types.CompletionRequest) *types.CompletionsAndMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	hit, ok := c.entries[cacheKey(req)]
	if !ok {
		return nil
	}
	cp := *hit
	cp.Source = types.CompletionSourceCache
	return &cp
}

func (c *mockCache) Set(req *types.CompletionRequest, result *types.CompletionsAndMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(req)] = result
}

// recorder collects notifications
type recorder struct {
	mu            sync.Mutex
	notifications []Notification
}

func (r *recorder) record(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recorder) statuses() []types.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Status
	for _, n := range r.notifications {
		if s, ok := n.(StatusChanged); ok {
			out = append(out, s.Status)
		}
	}
	return out
}

func (r *recorder) counts() []CompletionCountChanged {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CompletionCountChanged
	for _, n := range r.notifications {
		if c, ok := n.(CompletionCountChanged); ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *recorder) accepts() []CompletionAccepted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CompletionAccepted
	for _, n := range r.notifications {
		if a, ok := n.(CompletionAccepted); ok {
			out = append(out, a)
		}
	}
	return out
}

// --- Helpers ---

func startEngine(t *testing.T, service *mockService, config EngineConfig) (*Engine, *recorder) {
	t.Helper()
	eng := NewEngine(service, config, nil, nil)
	rec := &recorder{}
	eng.Subscribe(rec.record)
	eng.Start(context.Background())
	t.Cleanup(eng.Stop)
	return eng, rec
}

func makeDocument(size, cursor int) types.CurrentDocument {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 'a'
		if i%20 == 19 {
			buf[i] = '\n'
		}
	}
	return types.CurrentDocument{
		Document:     types.Document{Path: "main.go", Language: "go", Text: string(buf)},
		CursorOffset: cursor,
		TabSize:      4,
	}
}

func makeResult(latency time.Duration, ids ...string) *types.CompletionsAndMetadata {
	r := &types.CompletionsAndMetadata{
		Source:    types.CompletionSourceNetwork,
		Latency:   latency,
		PromptID:  "prompt",
		Timestamp: time.Now(),
	}
	for _, id := range ids {
		r.Completions = append(r.Completions, &types.Completion{
			ID:          id,
			Text:        "text-" + id,
			StartOffset: 42,
			EndOffset:   42,
		})
	}
	return r
}

func makeDocs(n int) []types.Document {
	docs := make([]types.Document, n)
	for i := range docs {
		docs[i] = types.Document{Path: "doc" + string(rune('a'+i)) + ".go", Text: "package x"}
	}
	return docs
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
