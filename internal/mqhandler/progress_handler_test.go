package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "trackhub/contracts/mq"
	"trackhub/pkg/mq"
	"trackhub/pkg/trace"
)

type fakeRecomputer struct {
	calls   []string
	traces  []string
	results []error
}

func (f *fakeRecomputer) RecomputeCompletion(ctx context.Context, projectID string) (int, error) {
	f.calls = append(f.calls, projectID)
	f.traces = append(f.traces, trace.FromContext(ctx))
	if len(f.results) > 0 {
		err := f.results[0]
		f.results = f.results[1:]
		if err != nil {
			return 0, err
		}
	}
	return 50, nil
}

type memGuard struct {
	seen     map[string]bool
	released int
}

func (g *memGuard) AcquireOnce(_ context.Context, handler, key string) bool {
	if g.seen == nil {
		g.seen = map[string]bool{}
	}
	k := handler + ":" + key
	if g.seen[k] {
		return false
	}
	g.seen[k] = true
	return true
}

func (g *memGuard) Release(_ context.Context, handler, key string) {
	delete(g.seen, handler+":"+key)
	g.released++
}

type memCounter struct{ counts map[string]int64 }

func (c *memCounter) IncrementAndGet(_ context.Context, key string) (int64, error) {
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[key]++
	return c.counts[key], nil
}

func (c *memCounter) Reset(_ context.Context, key string) error {
	delete(c.counts, key)
	return nil
}

func payload(t *testing.T, projectID string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(mqcontracts.ProgressRecomputedPayload{
		Level:        "module",
		NodeID:       "mod-1",
		ProjectID:    projectID,
		Progress:     50,
		Status:       "IN_PROGRESS",
		TraceID:      "trace-1",
		RecomputedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	return raw
}

func newHandler(rec *fakeRecomputer) (*ProgressRecomputedHandler, *memGuard, *memCounter) {
	g := &memGuard{}
	c := &memCounter{}
	return NewProgressRecomputedHandler(rec, g, c, zap.NewNop()), g, c
}

func TestHandleRecomputesOnce(t *testing.T) {
	rec := &fakeRecomputer{}
	h, _, _ := newHandler(rec)
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, payload(t, "p-1")))
	require.NoError(t, h.Handle(ctx, payload(t, "p-1")))

	assert.Equal(t, []string{"p-1"}, rec.calls)
	assert.Equal(t, []string{"trace-1"}, rec.traces)
}

func TestHandleBadPayloadIsDeadLettered(t *testing.T) {
	h, _, _ := newHandler(&fakeRecomputer{})

	err := h.Handle(context.Background(), json.RawMessage(`{not json`))
	assert.ErrorIs(t, err, mq.ErrDeadLetter)

	err = h.Handle(context.Background(), payload(t, ""))
	assert.ErrorIs(t, err, mq.ErrDeadLetter)
}

func TestHandleNonRetryableIsAcked(t *testing.T) {
	rec := &fakeRecomputer{results: []error{fmt.Errorf("list: %w", pgx.ErrNoRows)}}
	h, _, _ := newHandler(rec)

	assert.NoError(t, h.Handle(context.Background(), payload(t, "p-1")))
	assert.Len(t, rec.calls, 1)
}

func TestHandleRetriesThenDeadLetters(t *testing.T) {
	results := make([]error, maxRetries+1)
	for i := range results {
		results[i] = context.DeadlineExceeded
	}
	rec := &fakeRecomputer{results: results}
	h, guard, _ := newHandler(rec)
	ctx := context.Background()

	for i := 0; i < maxRetries; i++ {
		err := h.Handle(ctx, payload(t, "p-1"))
		require.Error(t, err)
		assert.False(t, errors.Is(err, mq.ErrDeadLetter), "attempt %d", i+1)
	}
	assert.Equal(t, maxRetries, guard.released)

	err := h.Handle(ctx, payload(t, "p-1"))
	assert.ErrorIs(t, err, mq.ErrDeadLetter)
	assert.Len(t, rec.calls, maxRetries+1)
}

func TestHandleSuccessResetsCounter(t *testing.T) {
	rec := &fakeRecomputer{results: []error{context.DeadlineExceeded, nil}}
	h, _, counter := newHandler(rec)
	ctx := context.Background()

	require.Error(t, h.Handle(ctx, payload(t, "p-1")))
	require.NoError(t, h.Handle(ctx, payload(t, "p-1")))
	assert.Empty(t, counter.counts)
}
