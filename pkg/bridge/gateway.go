// Copyright 2025-2026 Mvemba Research Systems

package bridge

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/util/random"
)

const (
	maxBodyBytes     = 256 << 10 // request body cap, matches the original 256kb limit
	rateLimitMax     = 60
	rateLimitWindow  = 60 * time.Second
	diagProbeTimeout = 8 * time.Second
	qrImageSize      = 512
)

// Session is the gateway's view of the WhatsApp session manager. It only
// needs to issue sends and read pairing state; the lifecycle stays with the
// manager. An interface keeps the gateway testable without a live session.
type Session interface {
	Ready() bool
	QR() string
	PairingCode() string
	SendText(ctx context.Context, to, text string) error
}

// SendRequest is the body of POST /v1/send.
type SendRequest struct {
	To   string `json:"to" validate:"required,min=10,max=60"`
	Text string `json:"text" validate:"required,min=1,max=3000"`
}

// Gateway is the authenticated HTTP surface of the bridge.
type Gateway struct {
	apiKey        string
	allowedPrefix string
	session       Session
	limiter       *rateLimiter
	validate      *validator.Validate
	log           zerolog.Logger

	// Probe targets, overridable in tests.
	diagDNSHost  string
	diagHTTPSURL string
}

// NewGateway builds the gateway around an injected session reference.
func NewGateway(cfg *Config, session Session, log zerolog.Logger) *Gateway {
	return &Gateway{
		apiKey:        cfg.APIKey,
		allowedPrefix: cfg.AllowedToPrefix,
		session:       session,
		limiter:       newRateLimiter(rateLimitMax, rateLimitWindow),
		validate:      validator.New(),
		log:           log.With().Str("component", "gateway").Logger(),
		diagDNSHost:   "web.whatsapp.com",
		diagHTTPSURL:  "https://www.google.com",
	}
}

// Handler returns the fully wired router: request logging, security headers,
// body cap and rate limiting run before any route handler.
func (g *Gateway) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(hlog.NewHandler(g.log))
	r.Use(requestID)
	r.Use(g.accessLog)
	r.Use(securityHeaders)
	r.Use(limitBody)
	r.Use(g.rateLimit)

	r.HandleFunc("/", g.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/diag", g.handleDiag).Methods(http.MethodGet)
	r.HandleFunc("/pairing-code", g.requireAPIKey(g.handlePairingCode)).Methods(http.MethodGet)
	r.HandleFunc("/qr.png", g.requireAPIKey(g.handleQR)).Methods(http.MethodGet)
	r.HandleFunc("/v1/send", g.requireAPIKey(g.handleSend)).Methods(http.MethodPost)
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := random.String(12)
		log := zerolog.Ctx(r.Context())
		log.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("request_id", id)
		})
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) accessLog(next http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	})(next)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.limiter.Allow(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the rate-limit bucket for a request: the remote IP
// without the ephemeral port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (g *Gateway) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Steny Bridge is running."))
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":            true,
		"whatsappReady": g.session != nil && g.session.Ready(),
	})
}

// handleDiag performs best-effort DNS and HTTPS reachability probes. Probe
// failures are reported inline in the body, never as a handler error, and
// each probe is bounded so a hung network cannot hang the request.
func (g *Gateway) handleDiag(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]interface{})

	dnsCtx, cancel := context.WithTimeout(r.Context(), diagProbeTimeout)
	addrs, err := net.DefaultResolver.LookupHost(dnsCtx, g.diagDNSHost)
	cancel()
	if err != nil {
		out["dns_web_whatsapp_error"] = err.Error()
	} else {
		out["dns_web_whatsapp"] = addrs
	}

	httpsCtx, cancel := context.WithTimeout(r.Context(), diagProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(httpsCtx, http.MethodGet, g.diagHTTPSURL, nil)
	if err != nil {
		out["https_google"] = map[string]interface{}{"error": err.Error()}
	} else if resp, err := http.DefaultClient.Do(req); err != nil {
		out["https_google"] = map[string]interface{}{"error": err.Error()}
	} else {
		_ = resp.Body.Close()
		out["https_google"] = map[string]interface{}{"status": resp.StatusCode}
	}

	writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handlePairingCode(w http.ResponseWriter, _ *http.Request) {
	code := ""
	if g.session != nil {
		code = g.session.PairingCode()
	}
	if code == "" {
		writeError(w, http.StatusNotFound, "Pairing code not available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pairingCode": code})
}

func (g *Gateway) handleQR(w http.ResponseWriter, _ *http.Request) {
	qr := ""
	if g.session != nil {
		qr = g.session.QR()
	}
	if qr == "" {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("QR not available"))
		return
	}

	png, err := qrcode.Encode(qr, qrcode.Medium, qrImageSize)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Failed to generate QR"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (g *Gateway) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	// Policy before schema: a disallowed recipient is rejected as such even
	// when the rest of the payload would not validate.
	if g.allowedPrefix != "" && !strings.HasPrefix(req.To, g.allowedPrefix) {
		writeError(w, http.StatusForbidden, "Recipient not allowed")
		return
	}
	if err := g.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	if g.session == nil || !g.session.Ready() {
		writeError(w, http.StatusServiceUnavailable, "WhatsApp not ready")
		return
	}

	if err := g.session.SendText(r.Context(), req.To, req.Text); err != nil {
		// The client gets a generic failure; the detail stays in the log.
		hlog.FromRequest(r).Warn().Err(err).Str("to", req.To).Msg("Send failed")
		writeError(w, http.StatusInternalServerError, "Send failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
