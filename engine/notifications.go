package engine

import (
	"slices"
	"sync"

	"inlinesuggest/types"
)

// Notification is an event the engine publishes to the host
type Notification interface {
	notification()
}

// CompletionCountChanged fires after every successful request
type CompletionCountChanged struct {
	Total int64
	Delta int
}

// CompletionAccepted fires once per accepted completion
type CompletionAccepted struct {
	CompletionID string
	Text         string
	Total        int64
}

// StatusChanged fires when the service status changes
type StatusChanged struct {
	Status types.Status
}

func (CompletionCountChanged) notification() {}
func (CompletionAccepted) notification()     {}
func (StatusChanged) notification()          {}

// subscriberSet fans notifications out to subscribers. Callbacks run
// without the lock held, so a callback may subscribe, unsubscribe or stop
// the engine. Once clear returns no callback starts; one that is already
// running finishes.
type subscriberSet struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Notification)
	closed bool
}

func (s *subscriberSet) add(fn func(Notification)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	if s.subs == nil {
		s.subs = make(map[int]func(Notification))
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// snapshot returns the subscriber ids in subscription order
func (s *subscriberSet) snapshot() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// lookup returns the callback for id unless it was removed or the set closed
func (s *subscriberSet) lookup(id int) func(Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.subs[id]
}

func (s *subscriberSet) deliver(n Notification) {
	for _, id := range s.snapshot() {
		if fn := s.lookup(id); fn != nil {
			fn(n)
		}
	}
}

func (s *subscriberSet) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = nil
}

// Subscribe registers fn for every notification and returns a function
// that removes it. Callbacks run on the engine goroutine.
func (e *Engine) Subscribe(fn func(Notification)) (unsubscribe func()) {
	return e.subscribers.add(fn)
}

func (e *Engine) publish(n Notification) {
	e.subscribers.deliver(n)
}
