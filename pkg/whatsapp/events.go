// Copyright 2025-2026 Mvemba Research Systems

package whatsapp

import (
	"time"

	"go.mau.fi/whatsmeow/types/events"
)

// InboundEvent is the normalized form of a received text message, as posted
// to the downstream webhook. Timestamp is milliseconds since the Unix epoch.
type InboundEvent struct {
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// handleEvent dispatches a raw whatsmeow event to the appropriate handler.
// It is registered on every client the manager creates.
func (m *Manager) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		m.bridgeMessage(evt)
	case *events.Connected:
		m.handleConnected()
	case *events.PairSuccess:
		m.handlePaired(evt.ID.String())
	case *events.Disconnected:
		m.handleClose("disconnected")
	case *events.StreamReplaced:
		m.handleClose("stream replaced")
	case *events.LoggedOut:
		m.handleLoggedOut()
	default:
		// History syncs, receipts, presence etc. are not bridged; only
		// live message notifications are.
		m.log.Trace().Type("event_type", rawEvt).Msg("Unhandled event type")
	}
}

// bridgeMessage filters a live message notification down to a user-authored
// text message and enqueues it for the webhook relay.
//
// Echo prevention: the session's own sends come back as events with IsFromMe
// set and must not be relayed. Messages without a plain or extended text body
// (reactions, media, protocol messages) are skipped too.
func (m *Manager) bridgeMessage(evt *events.Message) {
	if evt.Info.IsFromMe {
		return
	}
	msg := evt.Message
	if msg == nil {
		return
	}
	text := msg.GetConversation()
	if text == "" {
		text = msg.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		return
	}

	ie := InboundEvent{
		From:      evt.Info.Chat.String(),
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}

	// The relay consumer must not block event processing: enqueue is
	// non-blocking and a full buffer drops the event (best-effort delivery).
	select {
	case m.events <- ie:
	default:
		m.log.Warn().Str("from", ie.From).Msg("Event buffer full, dropping inbound message")
	}
}

// Events returns the channel of bridged inbound messages. Each qualifying
// inbound message is enqueued at most once; the consumer owns delivery.
func (m *Manager) Events() <-chan InboundEvent {
	return m.events
}
