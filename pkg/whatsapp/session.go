// Copyright 2025-2026 Mvemba Research Systems

package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotConnected is returned by SendText when there is no live session.
var ErrNotConnected = errors.New("whatsapp session not connected")

const eventBufferSize = 64

// ManagerConfig holds the session manager settings.
type ManagerConfig struct {
	// AuthDir is the directory holding the durable credential store
	// (see ResolveAuthDir).
	AuthDir string
	// PhoneNumber enables pairing-code issuance for an unregistered session.
	// Empty disables it; pairing then works via QR only.
	PhoneNumber string
}

// Manager owns the lifecycle of the single WhatsApp session: credential
// initialization, connect, reconnect policy and the ephemeral pairing
// artifacts (QR challenge, pairing code).
//
// The client handle is single-writer: only the manager's own event handlers
// replace it. The gateway reads it exclusively through Ready, QR, PairingCode
// and SendText.
type Manager struct {
	cfg    ManagerConfig
	log    zerolog.Logger
	events chan InboundEvent

	container *sqlstore.Container

	// startFn is the reconnect hook; it defaults to a fresh connect attempt
	// and is replaced in tests.
	startFn func()

	mu          sync.Mutex
	client      *whatsmeow.Client
	qr          string
	pairingCode string
	ready       bool
	closed      bool
}

// NewManager creates a session manager. Start must be called before the
// manager is useful.
func NewManager(cfg ManagerConfig, log zerolog.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		log:    log.With().Str("component", "wa_session").Logger(),
		events: make(chan InboundEvent, eventBufferSize),
	}
	m.startFn = m.restart
	return m
}

// Start opens the credential store and establishes the session. Credential
// updates are persisted synchronously by the store on every update, so a
// crash right after pairing does not lose the registration.
//
// A Start failure is fatal to the process; later disconnects are handled by
// the reconnect policy instead.
func (m *Manager) Start(ctx context.Context) error {
	dbPath := filepath.Join(m.cfg.AuthDir, "steny-bridge.db")
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", dbPath), waLog.Zerolog(m.log.With().Str("component", "wa_store").Logger()))
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	m.container = container
	return m.connect(ctx)
}

// connect builds a fresh client from the stored credentials and opens the
// session. On reconnect the previous client is replaced, never mutated.
func (m *Manager) connect(ctx context.Context) error {
	device, err := m.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("load device credentials: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Zerolog(m.log.With().Str("component", "wa_client").Logger()))
	// Reconnects are owned by the manager so that an explicit logout stays
	// terminal.
	client.EnableAutoReconnect = false
	client.AddEventHandler(m.handleEvent)

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	registered := client.Store.ID != nil
	if !registered {
		// GetQRChannel must be requested before Connect.
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			m.log.Warn().Err(err).Msg("QR channel unavailable")
		} else {
			go m.consumeQR(qrChan)
		}
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	m.log.Info().Bool("registered", registered).Msg("WhatsApp session opened")

	if !registered {
		m.requestPairingCode(ctx, client)
	}
	return nil
}

// requestPairingCode asks for a phone-pairing code when a phone number is
// configured. Failures are logged and non-fatal; pairing falls back to QR.
func (m *Manager) requestPairingCode(ctx context.Context, client *whatsmeow.Client) {
	phone := digitsOnly(m.cfg.PhoneNumber)
	if phone == "" {
		m.log.Info().Msg("WA_PHONE_NUMBER missing, pairing code disabled")
		return
	}
	code, err := client.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to request pairing code")
		return
	}
	m.mu.Lock()
	m.pairingCode = code
	m.mu.Unlock()
	m.log.Info().Str("code", code).Msg("WhatsApp pairing code issued")
}

// consumeQR tracks the latest QR challenge. Each new code overwrites the
// previous one; a successful pairing clears it.
func (m *Manager) consumeQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			m.mu.Lock()
			m.qr = item.Code
			m.mu.Unlock()
			m.log.Info().Msg("QR updated, open /qr.png to scan")
		case "success":
			m.clearPairingState()
			m.log.Info().Msg("QR pairing successful")
		default:
			m.log.Debug().Str("event", item.Event).Msg("QR channel closed")
		}
	}
}

// clearPairingState drops the ephemeral pairing artifacts. They are
// meaningless once the session is registered and serving a stale code would
// only confuse the operator.
func (m *Manager) clearPairingState() {
	m.mu.Lock()
	m.qr = ""
	m.pairingCode = ""
	m.mu.Unlock()
}

func (m *Manager) handleConnected() {
	m.mu.Lock()
	m.ready = true
	m.mu.Unlock()
	m.clearPairingState()
	m.log.Info().Msg("WhatsApp connection open")
}

func (m *Manager) handlePaired(jid string) {
	m.clearPairingState()
	m.log.Info().Str("jid", jid).Msg("Device paired")
}

// handleClose applies the reconnect policy for non-logout disconnects: one
// asynchronous replace-the-client attempt whose failure is swallowed. Retries
// are reactive — the next attempt happens on the next disconnect event, not
// on a timer.
func (m *Manager) handleClose(cause string) {
	m.mu.Lock()
	m.ready = false
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	m.log.Warn().Str("cause", cause).Msg("WhatsApp connection closed, reconnecting")
	go m.startFn()
}

// handleLoggedOut is the terminal transition: the stored credentials are
// invalid and no reconnect is attempted.
func (m *Manager) handleLoggedOut() {
	m.mu.Lock()
	m.ready = false
	m.closed = true
	m.mu.Unlock()
	m.clearPairingState()
	m.log.Error().Msg("Logged out by server, credentials invalidated; re-pair required")
}

func (m *Manager) restart() {
	if err := m.connect(context.Background()); err != nil {
		m.log.Warn().Err(err).Msg("Reconnect attempt failed")
	}
}

// Ready reports whether a live session is available for sends.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready && !m.closed
}

// QR returns the latest QR challenge string, or "" when none is pending.
func (m *Manager) QR() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.qr
}

// PairingCode returns the latest pairing code, or "" when none was issued.
func (m *Manager) PairingCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pairingCode
}

// SendText sends a plain text message to the given JID over the live session.
func (m *Manager) SendText(ctx context.Context, to, text string) error {
	m.mu.Lock()
	client := m.client
	ready := m.ready && !m.closed
	m.mu.Unlock()
	if client == nil || !ready {
		return ErrNotConnected
	}

	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse recipient: %w", err)
	}
	_, err = client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Close tears the session down for process shutdown. It is not a logout: the
// credentials stay valid for the next start.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.ready = false
	client := m.client
	m.client = nil
	m.mu.Unlock()
	if client != nil {
		client.Disconnect()
	}
}

// digitsOnly strips everything but decimal digits from a phone number.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
