package engine

import (
	"context"
	"fmt"

	"inlinesuggest/logger"
	"inlinesuggest/text"

	"gopkg.in/cenkalti/backoff.v1"
)

// HandleCommand runs an editor command. AcceptCommand takes any leading
// context arguments followed by the completion id and the inserted text.
func (e *Engine) HandleCommand(name string, args ...any) error {
	if name != AcceptCommand {
		logger.Warn("command %q: %v", name, ErrUnknownCommand)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	if len(args) < 2 {
		logger.Warn("command %q: %v: got %d arguments", name, ErrInvalidArguments, len(args))
		return fmt.Errorf("%w: want completion id and text, got %d arguments", ErrInvalidArguments, len(args))
	}

	id, ok := args[len(args)-2].(string)
	if !ok || id == "" {
		logger.Warn("command %q: %v: completion id %v", name, ErrInvalidArguments, args[len(args)-2])
		return fmt.Errorf("%w: completion id must be a non-empty string", ErrInvalidArguments)
	}
	insertText, ok := args[len(args)-1].(string)
	if !ok {
		logger.Warn("command %q: %v: insert text %v", name, ErrInvalidArguments, args[len(args)-1])
		return fmt.Errorf("%w: insert text must be a string", ErrInvalidArguments)
	}
	return e.AcceptedLastCompletion(id, insertText)
}

// AcceptedLastCompletion records that the user accepted a completion from the
// most recent response. The service is notified in the background; its answer
// never affects the editor.
func (e *Engine) AcceptedLastCompletion(completionID, insertText string) error {
	defer logger.Trace("engine.AcceptedLastCompletion")()

	call := &acceptCall{
		completionID: completionID,
		insertText:   insertText,
		reply:        make(chan error, 1),
	}
	if !e.post(Event{Type: EventAccept, Data: call}) {
		return ErrStopped
	}
	select {
	case err := <-call.reply:
		return err
	case <-e.mainCtx.Done():
		return ErrStopped
	}
}

func (e *Engine) handleAccept(completionID, insertText string) error {
	completion := e.lastResponse.Find(completionID)
	if completion == nil {
		logger.Warn("accept %s: %v", completionID, ErrUnknownCompletion)
		return fmt.Errorf("%w: %s", ErrUnknownCompletion, completionID)
	}
	if _, done := e.accepted[completionID]; done {
		logger.Debug("accept %s: %v", completionID, ErrAlreadyAccepted)
		return fmt.Errorf("%w: %s", ErrAlreadyAccepted, completionID)
	}
	e.accepted[completionID] = struct{}{}

	if insertText == "" {
		insertText = completion.Text
	}
	total := e.acceptedCount.Add(1)

	content := e.lastRequest.Document.Text
	stats := text.CountLineChanges(content, completion.StartOffset, completion.EndOffset, insertText)
	e.tracker.TrackAccepted(e.mainCtx, stats.Additions, stats.Deletions)

	logger.Info("accepted completion %s (+%d -%d lines), total %d", completionID, stats.Additions, stats.Deletions, total)

	e.reportAcceptance(completionID)
	e.publish(CompletionAccepted{CompletionID: completionID, Text: insertText, Total: total})
	return nil
}

// reportAcceptance tells the service about an acceptance without blocking the loop
func (e *Engine) reportAcceptance(completionID string) {
	window := e.config.AcceptRetryWindow

	go func() {
		ctx, cancel := context.WithTimeout(e.mainCtx, acceptTimeout+window)
		defer cancel()

		op := func() error {
			return e.service.AcceptCompletion(ctx, completionID)
		}

		var err error
		if window > 0 {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = window
			err = backoff.Retry(op, backoff.WithContext(b, ctx))
		} else {
			err = op()
		}
		if err != nil {
			logger.Debug("accept report for %s failed: %v", completionID, err)
		}
	}()
}
