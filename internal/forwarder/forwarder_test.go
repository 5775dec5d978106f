package forwarder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracyhatemice/popfetch/internal/config"
	"github.com/tracyhatemice/popfetch/internal/receiver"
)

type fakeReceiver struct {
	emails    []receiver.Email
	err       error
	gotSeen   map[string]struct{}
	gotSince  time.Time
	fetchCall int
}

func (r *fakeReceiver) Fetch(ctx context.Context, seen map[string]struct{}, since time.Time) ([]receiver.Email, error) {
	r.fetchCall++
	r.gotSeen = seen
	r.gotSince = since
	return r.emails, r.err
}

func (r *fakeReceiver) Close() error { return nil }

type fakeSender struct {
	failFor map[string]error
	sent    []string
}

func (s *fakeSender) Forward(raw []byte, to string, originalID string) error {
	if err := s.failFor[originalID]; err != nil {
		return err
	}
	s.sent = append(s.sent, originalID)
	return nil
}

type fakeTracker struct {
	seen    map[string]struct{}
	markErr error
}

func (t *fakeTracker) SeenIDs() map[string]struct{} {
	return t.seen
}

func (t *fakeTracker) MarkSeen(id string) error {
	if t.markErr != nil {
		return t.markErr
	}
	t.seen[id] = struct{}{}
	return nil
}

func newTestForwarder(recv *fakeReceiver, snd *fakeSender, tracker *fakeTracker) *Forwarder {
	acct := config.Account{
		Name:         "work",
		Protocol:     "pop3",
		Host:         "pop.example.com",
		ForwardTo:    "archive@example.com",
		LookbackDays: 3,
	}
	f := New(acct, recv, snd, tracker, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.now = func() time.Time {
		return time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	}
	return f
}

func TestPollForwardsAndMarks(t *testing.T) {
	recv := &fakeReceiver{emails: []receiver.Email{
		{ID: "<a@x>", Content: []byte("mail a")},
		{ID: "<b@x>", Content: []byte("mail b")},
	}}
	snd := &fakeSender{}
	tracker := &fakeTracker{seen: map[string]struct{}{"<old@x>": {}}}

	f := newTestForwarder(recv, snd, tracker)
	f.Poll(context.Background())

	assert.Equal(t, []string{"<a@x>", "<b@x>"}, snd.sent)
	assert.Contains(t, tracker.seen, "<a@x>")
	assert.Contains(t, tracker.seen, "<b@x>")

	// The receiver got the tracker snapshot and the lookback cutoff.
	assert.Contains(t, recv.gotSeen, "<old@x>")
	assert.Equal(t, time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC), recv.gotSince)
}

func TestPollFetchFailure(t *testing.T) {
	recv := &fakeReceiver{err: errors.New("connection refused")}
	snd := &fakeSender{}
	tracker := &fakeTracker{seen: map[string]struct{}{}}

	f := newTestForwarder(recv, snd, tracker)
	f.Poll(context.Background())

	assert.Empty(t, snd.sent)
	assert.Empty(t, tracker.seen)
}

func TestPollSkipsMarkingOnForwardFailure(t *testing.T) {
	recv := &fakeReceiver{emails: []receiver.Email{
		{ID: "<a@x>", Content: []byte("mail a")},
		{ID: "<b@x>", Content: []byte("mail b")},
	}}
	snd := &fakeSender{failFor: map[string]error{"<a@x>": errors.New("smtp 451")}}
	tracker := &fakeTracker{seen: map[string]struct{}{}}

	f := newTestForwarder(recv, snd, tracker)
	f.Poll(context.Background())

	// The failed message stays unmarked so the next cycle retries it.
	assert.NotContains(t, tracker.seen, "<a@x>")
	assert.Contains(t, tracker.seen, "<b@x>")
	assert.Equal(t, []string{"<b@x>"}, snd.sent)
}

func TestRunStopsOnCancel(t *testing.T) {
	recv := &fakeReceiver{}
	snd := &fakeSender{}
	tracker := &fakeTracker{seen: map[string]struct{}{}}

	f := newTestForwarder(recv, snd, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not stop on cancel")
	}
	require.GreaterOrEqual(t, recv.fetchCall, 1)
}
