package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name     string
	err      error
	messages []string
}

func (s *recordingSender) Send(_ context.Context, title, message string) error {
	s.messages = append(s.messages, title+"|"+message)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"action_failed"}, slog.Default())

	require.NoError(t, n.Notify(context.Background(), "action_success", "t", "m"))
	assert.Empty(t, s.messages, "events outside the allowed set are dropped")

	require.NoError(t, n.Notify(context.Background(), "action_failed", "t", "m"))
	assert.Equal(t, []string{"t|m"}, s.messages)
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, slog.Default())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, s.messages, 1)
}

func TestNotifierContinuesPastFailingSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: assert.AnError}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.Default())

	err := n.Notify(context.Background(), "action_success", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.messages, 1, "one failing sender must not stop the rest")
}

func TestDiscordSenderPayload(t *testing.T) {
	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	s := NewDiscordSender(ts.URL)
	require.NoError(t, s.Send(context.Background(), "forecastd: subscribe", "subscribe confirmed"))
	assert.Equal(t, "**forecastd: subscribe**\nsubscribe confirmed", got["content"])
}

func TestDiscordSenderHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	s := NewDiscordSender(ts.URL)
	err := s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
