package metrics

import (
	"context"
	"testing"
	"time"

	"inlinesuggest/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Totals(t *testing.T) {
	ctx := context.Background()
	p, err := Setup("test")
	require.NoError(t, err)
	defer p.Shutdown(ctx)

	tr := p.Tracker()
	tr.TrackCompletions(ctx, 2, 50*time.Millisecond, types.CompletionSourceNetwork, types.TriggerAutomatic)
	tr.TrackCompletions(ctx, 1, 0, types.CompletionSourceCache, types.TriggerExplicit)
	tr.TrackAccepted(ctx, 3, 1)
	tr.TrackError(ctx, "network")
	tr.TrackSuperseded(ctx)
	tr.TrackSuperseded(ctx)

	totals, err := p.Totals(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), totals[MetricCompletions], "completions summed over sources")
	assert.Equal(t, int64(1), totals[MetricAccepted], "accepted")
	assert.Equal(t, int64(4), totals[MetricAcceptedLines], "lines added and removed")
	assert.Equal(t, int64(1), totals[MetricErrors], "errors")
	assert.Equal(t, int64(2), totals[MetricSuperseded], "superseded")
	_, hasLatency := totals[MetricLatency]
	assert.False(t, hasLatency, "histograms are not counters")
}

func TestTracker_NilIsNoop(t *testing.T) {
	var tr *Tracker
	ctx := context.Background()

	assert.NotPanics(t, func() {
		tr.TrackCompletions(ctx, 1, time.Millisecond, types.CompletionSourceNetwork, types.TriggerAutomatic)
		tr.TrackAccepted(ctx, 1, 0)
		tr.TrackError(ctx, "x")
		tr.TrackSuperseded(ctx)
	})
}

func TestProvider_ShutdownTwice(t *testing.T) {
	p, err := Setup("")
	require.NoError(t, err)

	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()), "second shutdown is a no-op")
}
