// Copyright 2025-2026 Mvemba Research Systems

package whatsapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// expectRestarts asserts how many reconnect attempts the manager spawns.
func expectRestarts(t *testing.T, restarts <-chan struct{}, want int) {
	t.Helper()
	got := 0
	deadline := time.After(time.Second)
	for got < want {
		select {
		case <-restarts:
			got++
		case <-deadline:
			t.Fatalf("saw %d restart attempts, want %d", got, want)
		}
	}
	select {
	case <-restarts:
		t.Fatalf("saw more than %d restart attempts", want)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReconnectOnDisconnect(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	restarts := make(chan struct{}, 4)
	m.startFn = func() { restarts <- struct{}{} }

	m.handleEvent(&events.Disconnected{})
	expectRestarts(t, restarts, 1)
	if m.Ready() {
		t.Error("manager must not report ready after a disconnect")
	}
}

func TestReconnectOnStreamReplaced(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	restarts := make(chan struct{}, 4)
	m.startFn = func() { restarts <- struct{}{} }

	m.handleEvent(&events.StreamReplaced{})
	expectRestarts(t, restarts, 1)
}

func TestLogoutIsTerminal(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	restarts := make(chan struct{}, 4)
	m.startFn = func() { restarts <- struct{}{} }

	m.handleEvent(&events.LoggedOut{})
	expectRestarts(t, restarts, 0)

	// Even a later disconnect must not revive a logged-out session.
	m.handleEvent(&events.Disconnected{})
	expectRestarts(t, restarts, 0)
	if m.Ready() {
		t.Error("logged-out session must never report ready")
	}
}

func TestConnectedClearsPairingState(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	m.mu.Lock()
	m.qr = "2@stale-qr"
	m.pairingCode = "ABCD-EFGH"
	m.mu.Unlock()

	m.handleEvent(&events.Connected{})

	if !m.Ready() {
		t.Error("manager should be ready after Connected")
	}
	if m.QR() != "" {
		t.Error("stale QR must be cleared on registration")
	}
	if m.PairingCode() != "" {
		t.Error("stale pairing code must be cleared on registration")
	}
}

func TestPairSuccessClearsPairingState(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	m.mu.Lock()
	m.qr = "2@stale-qr"
	m.pairingCode = "ABCD-EFGH"
	m.mu.Unlock()

	m.handleEvent(&events.PairSuccess{ID: types.NewJID("243900000000", types.DefaultUserServer)})

	if m.QR() != "" || m.PairingCode() != "" {
		t.Error("pairing artifacts must be cleared after a successful pairing")
	}
}

func TestSendTextWithoutSession(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	err := m.SendText(context.Background(), "243900000000@s.whatsapp.net", "hello")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendText without a client = %v, want ErrNotConnected", err)
	}
}

func TestCloseStopsReconnects(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	restarts := make(chan struct{}, 4)
	m.startFn = func() { restarts <- struct{}{} }

	m.Close()
	m.handleEvent(&events.Disconnected{})
	expectRestarts(t, restarts, 0)
}

func TestDigitsOnly(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{in: "+243 900-000-000", want: "243900000000"},
		{in: "243900000000", want: "243900000000"},
		{in: "(243) 900.000.000", want: "243900000000"},
		{in: "", want: ""},
		{in: "no digits", want: ""},
	}
	for _, tt := range tests {
		if got := digitsOnly(tt.in); got != tt.want {
			t.Errorf("digitsOnly(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
