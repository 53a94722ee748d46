// Copyright 2025-2026 Mvemba Research Systems

// Package whatsapp owns the WhatsApp side of the bridge: the session
// lifecycle (credential store, pairing, reconnect policy) and the event
// bridge that normalizes inbound text messages for the webhook relay.
//
// [Manager] is the single-session state machine. It is the only writer of
// the live client handle; the HTTP gateway reads the session exclusively
// through the Manager's accessor methods.
//
// [InboundEvent] is the normalized representation of a received text
// message, delivered at most once on the channel returned by
// [Manager.Events].
package whatsapp
