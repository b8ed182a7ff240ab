// Package mail sends paid feedback messages to the developers through an
// EmailJS-compatible HTTP relay. Fire and forget: the HTTP status is the
// only delivery signal, and a failure never affects the payment that
// unlocked the form.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the relay endpoint and account identifiers.
type Config struct {
	Endpoint   string
	ServiceID  string
	TemplateID string
	PublicKey  string
}

// Relay is the mail-relay client.
type Relay struct {
	cfg    Config
	client *http.Client
}

// NewRelay creates a Relay. Enabled() is false until the service, template
// and key are all configured.
func NewRelay(cfg Config) *Relay {
	return &Relay{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled reports whether the relay is fully configured.
func (r *Relay) Enabled() bool {
	return r.cfg.ServiceID != "" && r.cfg.TemplateID != "" && r.cfg.PublicKey != ""
}

// Send posts one feedback message with the sender's reply address.
func (r *Relay) Send(ctx context.Context, email, message string) error {
	payload := map[string]any{
		"service_id":  r.cfg.ServiceID,
		"template_id": r.cfg.TemplateID,
		"user_id":     r.cfg.PublicKey,
		"template_params": map[string]string{
			"user_email": email,
			"message":    message,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mail: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mail: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mail: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
