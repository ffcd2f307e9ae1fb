// Package host exposes the engine to Neovim over msgpack-rpc.
package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"inlinesuggest/engine"
	"inlinesuggest/logger"
	"inlinesuggest/text"
	"inlinesuggest/types"

	"github.com/neovim/go-client/nvim"
)

// RPC method names registered on every connection
const (
	MethodProvide   = "inlinesuggest_provide"
	MethodFree      = "inlinesuggest_free"
	MethodCommand   = "inlinesuggest_command"
	MethodDocuments = "inlinesuggest_documents"
	MethodOptions   = "inlinesuggest_options"
	MethodStats     = "inlinesuggest_stats"
	MethodDetails   = "inlinesuggest_details"
)

// notifyLua forwards a notification to the plugin's Lua handler
const notifyLua = `local ok, m = pcall(require, 'inlinesuggest'); if ok and m.on_notification then m.on_notification(...) end`

const (
	provideTimeout   = 30 * time.Second
	notifyQueueSize  = 64
	detailsTimeout   = 2 * time.Second
	notifyKindCount  = "completion_count"
	notifyKindAccept = "accepted"
	notifyKindStatus = "status"
)

// luaExecutor is the part of *nvim.Nvim used for notifications
type luaExecutor interface {
	ExecLua(code string, result any, args ...any) error
}

// Sources are optional daemon components reported by MethodStats.
// Leave a field nil when the component is disabled.
type Sources struct {
	Cache   interface{ Len() int }
	Watcher interface{ Paths() []string }
}

// Host binds one engine to any number of Neovim connections
type Host struct {
	engine  *engine.Engine
	options map[string]any
	sources Sources

	mu      sync.Mutex
	clients map[luaExecutor]struct{}

	notifications chan Notification
	unsubscribe   func()
	done          chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup
}

// New creates a host for eng. options are returned as-is by MethodOptions.
func New(eng *engine.Engine, options map[string]any, sources Sources) *Host {
	h := &Host{
		engine:        eng,
		options:       options,
		sources:       sources,
		clients:       make(map[luaExecutor]struct{}),
		notifications: make(chan Notification, notifyQueueSize),
		done:          make(chan struct{}),
	}
	h.unsubscribe = eng.Subscribe(h.enqueue)

	h.wg.Add(1)
	go h.forward()
	return h
}

// Attach registers the RPC handlers on n and starts pushing notifications to it
func (h *Host) Attach(n *nvim.Nvim) error {
	handlers := map[string]any{
		MethodProvide:   h.provide,
		MethodFree:      h.free,
		MethodCommand:   h.command,
		MethodDocuments: h.documents,
		MethodOptions:   h.editorOptions,
		MethodStats:     h.stats,
		MethodDetails:   h.details,
	}
	for name, fn := range handlers {
		if err := n.RegisterHandler(name, fn); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	h.addClient(n)
	return nil
}

// Detach stops notifications to n
func (h *Host) Detach(n *nvim.Nvim) {
	h.removeClient(n)
}

// Close stops forwarding notifications
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		h.unsubscribe()
		close(h.done)
		h.wg.Wait()
	})
}

func (h *Host) addClient(c luaExecutor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Host) removeClient(c luaExecutor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *Host) clientList() []luaExecutor {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]luaExecutor, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// --- RPC handlers ---

func (h *Host) provide(args ProvideArgs) (*ListResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), provideTimeout)
	defer cancel()

	list := h.engine.ProvideInlineCompletions(ctx, args.currentDocument(), args.triggerKind())
	return toListResult(list), nil
}

func (h *Host) free(id uint64) {
	h.engine.FreeInlineCompletions(&engine.InlineCompletionList{ID: id})
}

func (h *Host) command(name string, args []any) error {
	if err := h.engine.HandleCommand(name, args...); err != nil {
		return err
	}
	return nil
}

func (h *Host) documents(docs []DocumentArgs) {
	converted := make([]types.Document, len(docs))
	for i, d := range docs {
		converted[i] = types.Document{Path: d.Path, Language: d.Language, Text: d.Text}
	}
	h.engine.UpdateOtherDocuments(converted)
}

func (h *Host) editorOptions() (map[string]any, error) {
	return h.options, nil
}

func (h *Host) stats() (*StatsResult, error) {
	s := h.engine.Stats()
	r := &StatsResult{
		Completions:   s.Completions,
		Accepted:      s.Accepted,
		Status:        s.Status.State.String(),
		StatusMessage: s.Status.Message,
		Documents:     s.Documents,
	}
	if h.sources.Cache != nil {
		r.CachedResponses = h.sources.Cache.Len()
	}
	if h.sources.Watcher != nil {
		r.ContextFiles = h.sources.Watcher.Paths()
	}
	return r, nil
}

func (h *Host) details(id uint64) ([]DetailsResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), detailsTimeout)
	defer cancel()

	var out []DetailsResult
	for _, d := range h.engine.CompletionDetails(ctx, id) {
		out = append(out, DetailsResult{
			Index:        d.Index,
			CompletionID: d.Completion.ID,
			Path:         d.Document.Path,
			Lines:        d.AnnotatedCompletionLines,
			Prompt:       d.Prompt,
		})
	}
	return out, nil
}

// --- Notifications ---

// enqueue runs on the engine goroutine and must not block
func (h *Host) enqueue(n engine.Notification) {
	payload, ok := toNotification(n)
	if !ok {
		return
	}
	select {
	case h.notifications <- payload:
	default:
		logger.Warn("host: notification queue full, dropping %s", payload.Kind)
	}
}

func (h *Host) forward() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case payload := <-h.notifications:
			for _, c := range h.clientList() {
				if err := c.ExecLua(notifyLua, nil, payload); err != nil {
					logger.Debug("host: notify %s: %v", payload.Kind, err)
				}
			}
		}
	}
}

func toNotification(n engine.Notification) (Notification, bool) {
	switch v := n.(type) {
	case engine.CompletionCountChanged:
		return Notification{Kind: notifyKindCount, Total: v.Total, Delta: v.Delta}, true
	case engine.CompletionAccepted:
		return Notification{Kind: notifyKindAccept, Total: v.Total, CompletionID: v.CompletionID, Text: v.Text}, true
	case engine.StatusChanged:
		return Notification{Kind: notifyKindStatus, Status: v.Status.State.String(), Message: v.Status.Message}, true
	}
	return Notification{}, false
}

// --- Conversions ---

func (a ProvideArgs) currentDocument() types.CurrentDocument {
	doc := types.CurrentDocument{
		Document:     types.Document{Path: a.Path, Language: a.Language, Text: a.Text},
		TabSize:      a.TabSize,
		InsertSpaces: a.InsertSpaces,
	}
	if a.CursorOffset != nil {
		doc.CursorOffset = *a.CursorOffset
	} else {
		doc.CursorOffset = text.PositionToOffset(a.Text, types.Position{Line: a.CursorLine, Column: a.CursorCol})
	}
	return doc
}

func (a ProvideArgs) triggerKind() types.TriggerKind {
	if a.Trigger == types.TriggerExplicit.String() {
		return types.TriggerExplicit
	}
	return types.TriggerAutomatic
}

func toListResult(list *engine.InlineCompletionList) *ListResult {
	out := &ListResult{ID: list.ID, Items: make([]ItemResult, 0, len(list.Items))}
	for _, item := range list.Items {
		r := ItemResult{
			CompletionID: item.Completion.ID,
			InsertText:   item.InsertText,
			StartLine:    item.Range.Start.Line,
			StartCol:     item.Range.Start.Column,
			EndLine:      item.Range.End.Line,
			EndCol:       item.Range.End.Column,
			StartOffset:  item.StartOffset,
			EndOffset:    item.EndOffset,
			Insertion:    item.Range.IsEmpty(),
		}
		if item.Command != nil {
			r.Command = item.Command.ID
			r.Arguments = item.Command.Arguments
		}
		out.Items = append(out.Items, r)
	}
	return out
}
