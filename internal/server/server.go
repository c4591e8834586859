// ABOUTME: Dashboard server that wires the store, gateway client, router, hub and briefing
// ABOUTME: Owns the HTTP listener (TCP or tsnet) and the lifecycle of background pollers

package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/coven-dashboard/internal/auth"
	"github.com/2389/coven-dashboard/internal/briefing"
	"github.com/2389/coven-dashboard/internal/config"
	"github.com/2389/coven-dashboard/internal/conversation"
	"github.com/2389/coven-dashboard/internal/gateway"
	"github.com/2389/coven-dashboard/internal/metrics"
	"github.com/2389/coven-dashboard/internal/store"
)

// gatewayClient is the part of *gateway.Client the server uses.
type gatewayClient interface {
	Start(ctx context.Context)
	Close() error
	State() gateway.State
	Ready() bool
	URL() string
	Pending() int
	Subscribe(ctx context.Context) <-chan gateway.Event

	SendMessage(ctx context.Context, text string) (string, error)
	SendToSession(ctx context.Context, sessionKey, text string, timeout time.Duration) (json.RawMessage, error)
	ListSessions(ctx context.Context) []gateway.Session
	GetSessionDetails(ctx context.Context, sessionKey string) (json.RawMessage, error)
	SpawnSession(ctx context.Context, req gateway.SpawnRequest) (json.RawMessage, error)
	KillSession(ctx context.Context, sessionKey string) (json.RawMessage, error)
	GetSessionLogs(ctx context.Context, sessionKey string, limit int) []gateway.LogEntry
	SearchMemory(ctx context.Context, query string) *gateway.MemorySearchResult
}

var _ gatewayClient = (*gateway.Client)(nil)

// Server is the running dashboard.
type Server struct {
	config      *config.Config
	store       store.Store
	gateway     gatewayClient
	auth        *auth.Authenticator
	hub         *conversation.Hub
	router      *conversation.Router
	briefing    *briefing.Aggregator
	metrics     *metrics.Collectors
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	upgrader    websocket.Upgrader
	logger      *slog.Logger
	startedAt   time.Time

	// background pollers started by Run
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup

	// chat submissions dispatched from /ws; Shutdown waits for them
	chatMu      sync.Mutex
	chatClosing bool
	chatWG      sync.WaitGroup
}

// initStore opens the SQLite database named by config or COVEN_DASHBOARD_DB.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("COVEN_DASHBOARD_DB"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

func gatewayOptions(cfg *config.Config, observer gateway.Observer, onState func(gateway.State)) gateway.Options {
	gc := cfg.Gateway
	return gateway.Options{
		URL:              gc.URL,
		Token:            gc.Token,
		SessionKey:       gc.SessionKey,
		ClientID:         gc.ClientID,
		ClientVersion:    gc.ClientVersion,
		ReconnectDelay:   gc.ReconnectDelay,
		HandshakeTimeout: gc.HandshakeTimeout,
		MessageTimeout:   gc.MessageTimeout,
		ListTimeout:      gc.ListTimeout,
		SpawnTimeout:     gc.SpawnTimeout,
		KillTimeout:      gc.KillTimeout,
		LogsTimeout:      gc.LogsTimeout,
		MemoryTimeout:    gc.MemoryTimeout,
		Observer:         observer,
		OnStateChange:    onState,
	}
}

// New creates a Server from configuration. The gateway connection is not
// opened until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	var m *metrics.Collectors
	var observer gateway.Observer
	if cfg.Metrics.Enabled {
		m = metrics.New()
		observer = m
	}

	hub := conversation.NewHub(logger)
	client := gateway.New(
		gatewayOptions(cfg, observer, func(state gateway.State) {
			hub.Broadcast(conversation.EventGatewayStatus, conversation.GatewayStatusPayload{
				State: state.String(),
				Ready: state == gateway.StateReady,
			})
		}),
		gateway.NewWebSocketTransport(cfg.Gateway.URL),
		logger,
	)

	srv, err := assemble(cfg, st, client, hub, m, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return srv, nil
}

// assemble wires already constructed components into a Server.
func assemble(cfg *config.Config, st store.Store, gw gatewayClient, hub *conversation.Hub, m *metrics.Collectors, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	briefOpts := briefing.Options{
		UserName:    cfg.Briefing.UserName,
		CacheWindow: cfg.Briefing.CacheWindow,
		AITimeout:   cfg.Briefing.AITimeout,
	}
	if m != nil {
		hub.OnCountChange = m.ClientsChanged
		briefOpts.OnGenerated = m.BriefingGenerated
	}

	s := &Server{
		config:    cfg,
		store:     st,
		gateway:   gw,
		auth:      auth.NewAuthenticator(st, st, verifier, cfg.Auth.TokenTTL, logger),
		hub:       hub,
		router:    conversation.NewRouter(gw, st, hub, cfg.Gateway.SessionKey, logger),
		briefing:  briefing.New(briefing.Sources{Planner: st, Calendar: st}, gw, briefOpts, logger),
		metrics:   m,
		logger:    logger.With("component", "server"),
		startedAt: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The token query parameter authenticates the socket.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Store returns the server's store.
func (s *Server) Store() store.Store {
	return s.store
}

// Run connects to the gateway, starts the pollers, and serves HTTP until
// ctx is canceled. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.setupListener(ctx)
	if err != nil {
		return err
	}

	s.gateway.Start(ctx)
	s.startBackground(ctx)

	errCh := s.startServer(ln)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (s *Server) startBackground(ctx context.Context) {
	bgCtx, cancel := context.WithCancel(ctx)
	s.bgCancel = cancel

	s.bgWG.Add(2)
	go func() {
		defer s.bgWG.Done()
		s.pollSessions(bgCtx, s.config.Poller.SessionsInterval)
	}()
	go func() {
		defer s.bgWG.Done()
		s.forwardGatewayEvents(bgCtx)
	}()
}

// setupListener creates the HTTP listener (Tailscale or TCP).
func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", s.config.Server.HTTPAddr)
		}
		return s.setupTailscaleListener(ctx)
	}

	s.logger.Info("starting dashboard", "http_addr", s.config.Server.HTTPAddr, "gateway_url", s.gateway.URL())
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

func (s *Server) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown uses a fresh context since the run context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "coven-dashboard", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and listens on :80, :443 with
// Tailscale certificates, or a public Funnel.
func (s *Server) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := s.createTailscaleListener(tsCfg)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, err
	}
	return ln, nil
}

func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

func (s *Server) createTailscaleListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		s.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := s.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		s.logger.Info("enabling HTTPS with Tailscale certs on :443")
		ln, err := s.tsnetServer.Listen("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
		}
		lc, err := s.tsnetServer.LocalClient()
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("getting tailscale local client: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			GetCertificate: lc.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}), nil
	default:
		ln, err := s.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// appendCloseError appends an error with label if err is non-nil.
// waitChats stops accepting chat submissions and waits for running ones.
func (s *Server) waitChats(ctx context.Context) error {
	s.chatMu.Lock()
	s.chatClosing = true
	s.chatMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.chatWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for chat submissions: %w", ctx.Err())
	}
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops HTTP, the pollers and the gateway connection, disconnects
// web clients, and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down dashboard")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.bgWG.Wait()

	// Closing the gateway rejects pending requests, so in-flight chats finish promptly.
	errs = appendCloseError(errs, "gateway close", s.gateway.Close())
	if err := s.waitChats(ctx); err != nil {
		s.logger.Warn("chat submissions still running at shutdown", "error", err)
		errs = append(errs, err)
	}
	s.hub.Close()

	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", s.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
