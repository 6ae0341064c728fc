package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name  string
	err   error
	calls int
}

func (s *fakeSender) Send(context.Context, string, string) error {
	s.calls++
	return s.err
}

func (s *fakeSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyEventFilter(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{"open", "close"}, testLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "open", "t", "m"))
	require.NoError(t, n.Notify(ctx, "error", "t", "m"))
	assert.Equal(t, 1, sender.calls, "unlisted events are filtered")

	require.NoError(t, n.NotifyAll(ctx, "t", "m"))
	assert.Equal(t, 2, sender.calls, "NotifyAll bypasses the filter")
}

func TestNotifyEmptyEventListAllowsAll(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Equal(t, 1, sender.calls)
}

func TestNotifyCollectsSenderFailures(t *testing.T) {
	broken := &fakeSender{name: "broken", err: errors.New("boom")}
	working := &fakeSender{name: "working"}
	n := NewNotifier([]Sender{broken, working}, nil, testLogger())

	err := n.Notify(context.Background(), "open", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, 1, working.calls, "one failing channel never blocks the others")
}

func TestNotifyNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	assert.NoError(t, n.Notify(context.Background(), "open", "t", "m"))
}
