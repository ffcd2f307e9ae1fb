package engine

import (
	"context"
	"errors"

	"inlinesuggest/logger"
	"inlinesuggest/text"
	"inlinesuggest/types"

	"github.com/google/uuid"
)

// ProvideInlineCompletions requests completions at the cursor of doc and
// returns what the editor should render. It never fails: errors are reported
// through the status channel and yield an empty list.
//
// Issuing a request supersedes every earlier one. A superseded caller gets
// an empty list immediately and its result is dropped when it arrives.
func (e *Engine) ProvideInlineCompletions(ctx context.Context, doc types.CurrentDocument, trigger types.TriggerKind) *InlineCompletionList {
	defer logger.Trace("engine.ProvideInlineCompletions")()

	if !text.ValidOffset(doc.Text, doc.CursorOffset) {
		logger.Warn("provide: %v: offset %d in %d bytes of %s", ErrInvalidCursor, doc.CursorOffset, len(doc.Text), doc.Path)
		return emptyList(0)
	}

	call := &provideCall{
		document: doc,
		trigger:  trigger,
		reply:    make(chan *InlineCompletionList, 1),
	}
	if !e.post(Event{Type: EventProvide, Data: call}) {
		return emptyList(0)
	}

	select {
	case list := <-call.reply:
		return list
	case <-ctx.Done():
		// The editor moved on; cancel the request if it is still ours
		e.post(Event{Type: EventProvideAbandoned, Data: call})
		return emptyList(0)
	case <-e.mainCtx.Done():
		return emptyList(0)
	}
}

// FreeInlineCompletions releases a list the editor no longer displays. If the
// request behind it is still running it is cancelled. Safe to call with nil,
// twice, or with a list the engine never produced.
func (e *Engine) FreeInlineCompletions(list *InlineCompletionList) {
	if list == nil || list.ID == 0 {
		return
	}
	e.post(Event{Type: EventFree, Data: list.ID})
}

// CompletionDetails returns the debugging details of a list that has not been freed
func (e *Engine) CompletionDetails(ctx context.Context, listID uint64) []*types.CompletionDetailsWrapper {
	call := &detailsCall{listID: listID, reply: make(chan []*types.CompletionDetailsWrapper, 1)}
	if !e.post(Event{Type: EventDetails, Data: call}) {
		return nil
	}
	select {
	case details := <-call.reply:
		return details
	case <-ctx.Done():
		return nil
	case <-e.mainCtx.Done():
		return nil
	}
}

// handleProvide issues a new request and supersedes all earlier ones
func (e *Engine) handleProvide(call *provideCall) {
	e.generation++
	gen := e.generation
	e.supersede(gen)

	req := &types.CompletionRequest{
		RequestID:          uuid.NewString(),
		Document:           call.document,
		OtherDocuments:     e.documents.Snapshot(),
		MultilineThreshold: e.config.MultilineThreshold,
		Trigger:            call.trigger,
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if e.config.CompletionTimeout > 0 {
		ctx, cancel = context.WithTimeout(e.mainCtx, e.config.CompletionTimeout)
	} else {
		ctx, cancel = context.WithCancel(e.mainCtx)
	}
	e.inflight[gen] = &pendingRequest{call: call, request: req, cancel: cancel}

	logger.Debug("request %d (%s): %s offset %d, %d other documents",
		gen, req.Trigger, req.Document.Path, req.Document.CursorOffset, len(req.OtherDocuments))

	go func() {
		defer cancel()
		result, err := e.fetch(ctx, req)
		res := &completionResult{generation: gen, result: result, err: err}
		if err != nil {
			e.post(Event{Type: EventCompletionError, Data: res})
			return
		}
		e.post(Event{Type: EventCompletionReady, Data: res})
	}()
}

// fetch serves req from the cache when possible, otherwise from the service
func (e *Engine) fetch(ctx context.Context, req *types.CompletionRequest) (*types.CompletionsAndMetadata, error) {
	if e.cache != nil {
		if hit := e.cache.Get(req); hit != nil {
			logger.Debug("request %s served from cache", req.RequestID)
			return hit, nil
		}
	}

	result, err := e.service.GetCompletions(ctx, req)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &types.CompletionsAndMetadata{Source: types.CompletionSourceNetwork}
	}
	if e.cache != nil {
		e.cache.Set(req, result)
	}
	return result, nil
}

// supersede cancels every request older than gen and releases its caller
func (e *Engine) supersede(gen uint64) {
	for old, pending := range e.inflight {
		if old >= gen {
			continue
		}
		logger.Debug("request %d superseded by %d", old, gen)
		pending.cancel()
		pending.call.reply <- emptyList(old)
		delete(e.inflight, old)
	}
}

// takeCurrent removes and returns the pending request for gen if it is
// still the latest one. Anything else is a stale result.
func (e *Engine) takeCurrent(gen uint64) *pendingRequest {
	pending, ok := e.inflight[gen]
	if !ok || gen != e.generation {
		logger.Debug("dropping stale result of request %d (latest %d)", gen, e.generation)
		e.tracker.TrackSuperseded(e.mainCtx)
		return nil
	}
	delete(e.inflight, gen)
	return pending
}

func (e *Engine) handleCompletionReady(res *completionResult) {
	pending := e.takeCurrent(res.generation)
	if pending == nil {
		return
	}

	result := res.result
	n := len(result.Completions)
	total := e.completionCount.Add(int64(n))

	e.lastResponse = result
	e.lastRequest = pending.request
	e.accepted = make(map[string]struct{})

	e.status.Succeeded("")
	e.tracker.TrackCompletions(e.mainCtx, n, result.Latency, result.Source, pending.request.Trigger)
	e.publish(CompletionCountChanged{Total: total, Delta: n})

	logger.Debug("request %d: %d completions from %s in %v", res.generation, n, result.Source, result.Latency)

	list := e.buildList(res.generation, pending.request, result)
	pending.call.reply <- list
}

func (e *Engine) handleCompletionError(res *completionResult) {
	pending := e.takeCurrent(res.generation)
	if pending == nil {
		return
	}

	err := res.err
	switch {
	case errors.Is(err, context.Canceled):
		logger.Debug("request %d canceled: %v", res.generation, err)
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request %d timed out after %v", res.generation, e.config.CompletionTimeout)
		e.status.Failed("completion request timed out")
		e.tracker.TrackError(e.mainCtx, "timeout")
	default:
		logger.Error("request %d failed: %v", res.generation, err)
		e.status.Failed(err.Error())
		e.tracker.TrackError(e.mainCtx, "service")
	}

	pending.call.reply <- emptyList(res.generation)
}

// handleAbandoned cancels the request of a caller that stopped waiting
func (e *Engine) handleAbandoned(call *provideCall) {
	for gen, pending := range e.inflight {
		if pending.call != call {
			continue
		}
		logger.Debug("request %d abandoned by caller", gen)
		pending.cancel()
		pending.call.reply <- emptyList(gen)
		delete(e.inflight, gen)
		return
	}
}

func (e *Engine) handleFree(listID uint64) {
	if pending, ok := e.inflight[listID]; ok {
		pending.cancel()
		pending.call.reply <- emptyList(listID)
		delete(e.inflight, listID)
	}
	e.dropDetails(listID)
}

// buildList maps a result onto the document it was requested for
func (e *Engine) buildList(gen uint64, req *types.CompletionRequest, result *types.CompletionsAndMetadata) *InlineCompletionList {
	content := req.Document.Text
	list := emptyList(gen)
	details := make([]*types.CompletionDetailsWrapper, 0, len(result.Completions))

	for i, c := range result.Completions {
		rng, start, end := text.RangeFromOffsets(content, c.StartOffset, c.EndOffset)
		list.Items = append(list.Items, types.CompletionAndRange{
			Completion:  c,
			Range:       rng,
			StartOffset: start,
			EndOffset:   end,
			InsertText:  c.Text,
			Command: &types.Command{
				ID:        AcceptCommand,
				Title:     "Accept Completion",
				Arguments: []any{c.ID, c.Text},
			},
		})
		details = append(details, &types.CompletionDetailsWrapper{
			Index:                    i,
			Document:                 req.Document.Document,
			Completion:               c,
			AnnotatedCompletionLines: text.AnnotateEdit(content, start, end, c.Text),
			Prompt:                   result.PromptID,
		})
	}

	e.keepDetails(gen, details)
	return list
}

func (e *Engine) keepDetails(listID uint64, details []*types.CompletionDetailsWrapper) {
	if len(details) == 0 {
		return
	}
	e.details[listID] = details
	e.detailsOrder = append(e.detailsOrder, listID)
	for len(e.detailsOrder) > maxRetainedDetails {
		delete(e.details, e.detailsOrder[0])
		e.detailsOrder = e.detailsOrder[1:]
	}
}

func (e *Engine) dropDetails(listID uint64) {
	if _, ok := e.details[listID]; !ok {
		return
	}
	delete(e.details, listID)
	for i, id := range e.detailsOrder {
		if id == listID {
			e.detailsOrder = append(e.detailsOrder[:i], e.detailsOrder[i+1:]...)
			break
		}
	}
}
