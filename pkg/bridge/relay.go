// Copyright 2025-2026 Mvemba Research Systems

package bridge

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mvemba/steny-bridge/pkg/whatsapp"
)

const relayTimeout = 15 * time.Second

// Relay posts bridged inbound events to the configured n8n webhook. Delivery
// is at-most-once and best-effort: the consumer logs and discards failures,
// there is no retry queue.
type Relay struct {
	url    string
	secret string
	client *http.Client
	log    zerolog.Logger
}

// NewRelay builds a relay. An empty url makes Post a silent no-op.
func NewRelay(url, secret string, log zerolog.Logger) *Relay {
	return &Relay{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: relayTimeout},
		log:    log.With().Str("component", "relay").Logger(),
	}
}

// Post sends the event as canonical JSON. When a signing secret is
// configured the body bytes are signed and the signature attached, so the
// receiver can verify the exact bytes it read.
func (r *Relay) Post(evt whatsapp.InboundEvent) error {
	if r.url == "" {
		return nil
	}

	body, err := CanonicalJSON(evt)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.secret != "" {
		req.Header.Set(SignatureHeader, SignPayload(body, r.secret))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Pump consumes bridged events until the channel closes, relaying each one.
// A failed relay for one event must not stop delivery of the next, so errors
// are logged and dropped here.
func (r *Relay) Pump(events <-chan whatsapp.InboundEvent) {
	for evt := range events {
		if err := r.Post(evt); err != nil {
			r.log.Warn().Err(err).Str("from", evt.From).Msg("Webhook relay failed")
		}
	}
}
