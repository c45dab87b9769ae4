// Package gateway owns the WebSocket listener, per-connection Client
// lifecycle, and the EventFanout loop described in §4.4/§5. Structurally
// grounded on the teacher's internal/gateway/server.go (gorilla/websocket
// upgrade, origin allow-list, connection table behind an RWMutex, mux-based
// HTTP server lifecycle) but rewired end to end for this domain: clients
// are SubscriberSessions fed by an eventbus.Bus instead of agent-bridge
// Clients fed by an internal pub/sub router.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/embergate/internal/config"
	"github.com/nextlevelbuilder/embergate/internal/eventbus"
	"github.com/nextlevelbuilder/embergate/internal/store"
	"github.com/nextlevelbuilder/embergate/internal/voice"
)

// Server is the gateway: HTTP(S) listener, WebSocket upgrade endpoint, and
// the connection table of live Clients.
type Server struct {
	cfg   *config.Config
	bus   eventbus.Bus
	store *store.Stores

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client

	httpServer *http.Server
	mux        *http.ServeMux

	voice         *voice.Machine
	voiceVerifier *voice.WebhookVerifier
}

// NewServer constructs a Server wired to the given event bus and storage
// collaborator set.
func NewServer(cfg *config.Config, bus eventbus.Bus, stores *store.Stores) *Server {
	s := &Server{
		cfg:     cfg,
		bus:     bus,
		store:   stores,
		clients: make(map[string]*Client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetVoice wires the VoiceSessionMachine and its webhook verifier into the
// gateway, registering its webhook route the next time BuildMux runs. Must
// be called before Start (and before any prior BuildMux call, since the
// mux is built once and cached).
func (s *Server) SetVoice(m *voice.Machine, verifier *voice.WebhookVerifier) {
	s.voice = m
	s.voiceVerifier = verifier
}

// checkOrigin validates the WebSocket origin against the allow-list. An
// empty allow-list permits all origins (dev mode); an empty Origin header
// (non-browser clients) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("gateway.cors_rejected", "origin", origin)
	return false
}

// BuildMux creates and caches the HTTP mux with the websocket and health
// routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.voice != nil {
		mux.HandleFunc("/voice/webhook", voice.Handler(s.voice, s.voiceVerifier))
	}
	s.mux = mux
	return mux
}

// Start begins listening for WebSocket connections, blocking until ctx is
// cancelled, at which point it drains the HTTP server with a bounded grace
// period.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	slog.Info("gateway.starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("gateway.upgrade_failed", "error", err)
		return
	}

	client := newClient(conn, s.bus, s.store)
	s.registerClient(client)
	defer s.unregisterClient(client)

	client.Run(r.Context())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","clients":%d}`, s.ClientCount())
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ConnID] = c
	slog.Info("gateway.client_connected", "conn_id", c.ConnID)
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.ConnID)
	slog.Info("gateway.client_disconnected", "conn_id", c.ConnID)
}

// ClientCount returns the number of live connections.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
