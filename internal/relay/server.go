package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/nextlevelbuilder/qabrowser/pkg/protocol"
)

// ServerConfig configures the relay HTTP server.
type ServerConfig struct {
	Addr string
	// AllowedOrigins restricts websocket Origin headers. Empty allows any.
	AllowedOrigins []string
	Conn           ConnOptions
	// RateLimitRPM caps upgrades per remote IP per minute. 0 disables.
	RateLimitRPM   int
	RateLimitBurst int
	// MaxConnections caps simultaneously open connections. 0 means no cap.
	MaxConnections int
}

// Server exposes the relay over HTTP: websocket subscriptions, health and
// metrics.
type Server struct {
	relay    *Relay
	cfg      ServerConfig
	limiter  *RateLimiter
	upgrader websocket.Upgrader
	router   chi.Router
	logger   *slog.Logger
}

// NewServer creates a server for relay.
func NewServer(relay *Relay, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Conn = cfg.Conn.withDefaults()
	s := &Server{
		relay:   relay,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst),
		logger:  logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	r := chi.NewRouter()
	r.Get("/ws/{testID}", s.handleWS)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, protocol.NewError(protocol.ErrNotFound, "no route for "+req.URL.Path))
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler, for embedding or httptest.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then closes every subscriber
// and shuts the listener down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	defer s.limiter.Stop()
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("relay listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Hijacked websocket connections are not tracked by Shutdown.
	s.relay.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("relay stopped")
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	if testID == "" {
		writeJSON(w, http.StatusBadRequest, protocol.NewError(protocol.ErrInvalidRequest, "test id is required"))
		return
	}
	if !s.limiter.Allow(clientIP(r)) {
		shape := protocol.NewError(protocol.ErrResourceExhausted, "too many connection attempts")
		shape.Retryable = true
		shape.RetryAfterMs = 1000
		writeJSON(w, http.StatusTooManyRequests, shape)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.logger.Warn("websocket upgrade failed", "test_id", testID, "error", err)
		return
	}

	ch := newWSChannel(conn, testID, s.cfg.Conn, s.logger)
	if err := s.relay.Subscribe(r.Context(), testID, ch); err != nil {
		s.logger.Warn("subscriber setup failed", "test_id", testID, "error", err)
		return
	}

	go ch.pingLoop()
	ch.readLoop()

	s.relay.Unsubscribe(testID, ch)
	_ = ch.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	reg := s.relay.Registry()
	sessions := reg.SessionCount()
	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:         protocol.HealthHealthy,
		ActiveSessions: sessions,
		ActiveTests:    sessions,
		Subscribers:    reg.SubscriberCount(),
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients send no Origin.
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	s.logger.Warn("security.origin_rejected", "origin", origin)
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
