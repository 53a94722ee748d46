// Copyright 2025-2026 Mvemba Research Systems

// Package bridge is the secured HTTP surface of the Steny Bridge and its
// outbound webhook relay.
//
// # Core Types
//
// [Gateway] serves the HTTP API: liveness and reachability diagnostics,
// API-key-protected pairing artifacts (/pairing-code, /qr.png) and the
// protected send endpoint (/v1/send). Global middleware applies restrictive
// response headers, a request-body cap and a fixed-window rate limit before
// any route handler runs.
//
// [Relay] forwards bridged inbound events to the configured n8n webhook with
// an optional HMAC-SHA256 integrity signature. Delivery is at-most-once and
// best-effort.
//
// # Security Contract
//
// API keys are compared in constant time ([VerifyAPIKey]); webhook payloads
// are signed over their canonical JSON serialization ([SignPayload],
// [CanonicalJSON]) so the receiver can verify the exact bytes on the wire.
// Handler failures map to a fixed error taxonomy with generic messages; no
// internal detail reaches a client.
package bridge
