package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trackhub/pkg/trace"
)

type fakeStore struct {
	pending []*Event
	failed  []*Event
	sent    []int64
	retried []int64
}

func (s *fakeStore) GetPendingEvents(context.Context, int) ([]*Event, error) { return s.pending, nil }
func (s *fakeStore) GetFailedEvents(context.Context, int) ([]*Event, error)  { return s.failed, nil }

func (s *fakeStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	for _, e := range append(s.pending, s.failed...) {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrEventNotFound
}

func (s *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, _ int) error {
	s.retried = append(s.retried, id)
	return nil
}

type publishCall struct {
	routingKey string
	traceID    string
}

type fakePublisher struct {
	fail  map[string]bool
	calls []publishCall
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, _ any) error {
	p.calls = append(p.calls, publishCall{routingKey: routingKey, traceID: trace.FromContext(ctx)})
	if p.fail[routingKey] {
		return errors.New("broker down")
	}
	return nil
}

func event(id int64, key string, payload string) *Event {
	return &Event{ID: id, RoutingKey: key, Payload: json.RawMessage(payload), Status: StatusPending}
}

func TestDispatcherMarksSentAndFailed(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		event(1, "feature.toggled", `{"feature_id":"f1","trace_id":"t-1"}`),
		event(2, "progress.recomputed", `{"node_id":"m1"}`),
		event(3, "feature.toggled", `not json`),
	}}
	pub := &fakePublisher{fail: map[string]bool{"progress.recomputed": true}}

	sent := NewDispatcher(store, pub, zap.NewNop()).ProcessPendingEvents(context.Background())

	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{1}, store.sent)
	assert.Equal(t, []int64{2, 3}, store.retried)
	require.Len(t, pub.calls, 2)
	assert.Equal(t, "t-1", pub.calls[0].traceID)
}

func TestReplayFailedEventsContinuesPastErrors(t *testing.T) {
	store := &fakeStore{failed: []*Event{
		event(7, "progress.recomputed", `{}`),
		event(8, "feature.toggled", `{}`),
	}}
	pub := &fakePublisher{fail: map[string]bool{"progress.recomputed": true}}

	n, err := NewReplayService(store, pub, zap.NewNop()).ReplayFailedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{8}, store.sent)
	assert.Equal(t, []int64{7}, store.retried)
}

func TestReplayUnknownEvent(t *testing.T) {
	err := NewReplayService(&fakeStore{}, &fakePublisher{}, zap.NewNop()).ReplayEvent(context.Background(), 99)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestNextAttempt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	status, next := NextAttempt(2, 5, now)
	assert.Equal(t, StatusPending, status)
	require.NotNil(t, next)
	assert.Equal(t, now.Add(10*time.Second), *next)

	status, next = NextAttempt(5, 5, now)
	assert.Equal(t, StatusFailed, status)
	assert.Nil(t, next)
}
