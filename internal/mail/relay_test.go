package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayEnabled(t *testing.T) {
	assert.False(t, NewRelay(Config{}).Enabled())
	assert.False(t, NewRelay(Config{ServiceID: "svc", TemplateID: "tpl"}).Enabled())
	assert.True(t, NewRelay(Config{ServiceID: "svc", TemplateID: "tpl", PublicKey: "key"}).Enabled())
}

func TestRelaySendPayload(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	relay := NewRelay(Config{
		Endpoint:   ts.URL,
		ServiceID:  "svc",
		TemplateID: "tpl",
		PublicKey:  "key",
	})

	require.NoError(t, relay.Send(context.Background(), "user@example.com", "great forecasts"))

	assert.Equal(t, "svc", got["service_id"])
	assert.Equal(t, "tpl", got["template_id"])
	assert.Equal(t, "key", got["user_id"])
	params, ok := got["template_params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "user@example.com", params["user_email"])
	assert.Equal(t, "great forecasts", params["message"])
}

func TestRelaySendFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer ts.Close()

	relay := NewRelay(Config{Endpoint: ts.URL, ServiceID: "s", TemplateID: "t", PublicKey: "k"})
	err := relay.Send(context.Background(), "user@example.com", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
