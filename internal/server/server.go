package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/muurk/mypv/internal/coordinator"
	"github.com/muurk/mypv/internal/entity"
	"github.com/muurk/mypv/internal/logging"
	"github.com/muurk/mypv/internal/metrics"
	"github.com/muurk/mypv/internal/snapshot"
)

const (
	defaultReadTimeout     = 15 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds the server configuration
type Config struct {
	// Addr is the listen address, e.g. ":8080"
	Addr string

	// CertFile and KeyFile enable HTTPS when both are set
	CertFile string
	KeyFile  string

	// ReadTimeout bounds reading a request; WebSocket connections are
	// exempt once upgraded
	ReadTimeout time.Duration
}

// Device is one polled device as served over HTTP.
// *bridge.Handle implements it.
type Device interface {
	metrics.Device
	TriggerBoost(ctx context.Context) error
	SetMode(ctx context.Context, enabled bool) error
	State() coordinator.State
	LastOutcome() coordinator.CycleOutcome
}

// Server serves the device API
type Server struct {
	config    Config
	devices   []Device
	byHost    map[string]Device
	router    *httprouter.Router
	collector *metrics.Collector
	logger    *zap.Logger
	upgrader  websocket.Upgrader

	http     *http.Server
	listener net.Listener

	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[*websocket.Conn]struct{}
	closed      bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server for devices. Hosts must be unique.
func New(config Config, devices []Device, opts ...Option) (*Server, error) {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaultReadTimeout
	}
	if (config.CertFile == "") != (config.KeyFile == "") {
		return nil, errors.New("both cert and key files are required for TLS")
	}

	s := &Server{
		config:      config,
		devices:     devices,
		byHost:      make(map[string]Device, len(devices)),
		logger:      logging.GetLogger(),
		activeConns: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, d := range devices {
		if _, dup := s.byHost[d.Host()]; dup {
			return nil, fmt.Errorf("duplicate device host %s", d.Host())
		}
		s.byHost[d.Host()] = d
	}

	metricDevices := make([]metrics.Device, 0, len(devices))
	for _, d := range devices {
		metricDevices = append(metricDevices, d)
	}
	s.collector = metrics.NewCollector(metricDevices...)

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *httprouter.Router {
	r := httprouter.New()
	r.GET("/health", s.handleHealth)
	r.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.NewRegistry(s.collector), promhttp.HandlerOpts{}))
	r.GET("/api/devices", s.handleDevices)
	r.GET("/api/devices/:host/snapshot", s.withDevice(s.handleSnapshot))
	r.GET("/api/devices/:host/entities", s.withDevice(s.handleEntities))
	r.POST("/api/devices/:host/boost", s.withDevice(s.handleBoost))
	r.PUT("/api/devices/:host/mode", s.withDevice(s.handleMode))
	r.GET("/api/devices/:host/ws", s.withDevice(s.handleWebSocket))
	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

// Handler returns the HTTP handler, wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.router)
}

// Start listens and serves until ctx ends or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	var tlsConfig *tls.Config
	if s.config.CertFile != "" {
		var err error
		tlsConfig, err = NewTLSConfig(s.config.CertFile, s.config.KeyFile)
		if err != nil {
			return err
		}
		s.logger.Info("TLS enabled", zap.Any("tls", GetTLSInfo(tlsConfig)))
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	if tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}

	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx ends or Shutdown is called.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = listener.Close()
		return http.ErrServerClosed
	}
	s.listener = listener
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv := s.http
	s.mu.Unlock()

	s.logger.Info("Server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Int("devices", len(s.devices)),
		zap.Bool("tls", s.config.CertFile != ""),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv := s.http
	for conn := range s.activeConns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.logger.Info("Shutting down server")
	s.collector.Close()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Shutdown timeout, forcing close")
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// GetActiveConnections returns the number of open WebSocket clients
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

func (s *Server) trackConn(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.activeConns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackConn(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.activeConns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

// deviceHandle is an httprouter handle with the device already resolved.
type deviceHandle func(w http.ResponseWriter, r *http.Request, d Device)

func (s *Server) withDevice(h deviceHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		d, ok := s.byHost[p.ByName("host")]
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown device %q", p.ByName("host")))
			return
		}
		h(w, r, d)
	}
}

// deviceSummary is one entry of /api/devices
type deviceSummary struct {
	Host          string            `json:"host"`
	Name          string            `json:"name"`
	Identity      snapshot.Identity `json:"identity"`
	Status        string            `json:"status"`
	Poller        string            `json:"poller"`
	LastOutcome   string            `json:"last_outcome"`
	Cycle         uint64            `json:"cycle"`
	LastSuccessAt *time.Time        `json:"last_success_at,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
}

func summarize(d Device, snap snapshot.Snapshot) deviceSummary {
	sum := deviceSummary{
		Host:     d.Host(),
		Name:     d.Name(),
		Identity: snap.Identity,
		Status:      status(snap),
		Poller:      d.State().String(),
		LastOutcome: d.LastOutcome().String(),
		Cycle:       snap.Cycle,
	}
	if !snap.LastSuccessAt.IsZero() {
		t := snap.LastSuccessAt
		sum.LastSuccessAt = &t
	}
	if snap.LastError != nil {
		sum.LastError = snap.LastError.Error()
	}
	return sum
}

func status(snap snapshot.Snapshot) string {
	switch {
	case snap.Empty():
		return "pending"
	case snap.Healthy():
		return "online"
	default:
		return "stale"
	}
}

// statesMessage is pushed to WebSocket clients and returned by /entities
type statesMessage struct {
	Type   string            `json:"type,omitempty"`
	Host   string            `json:"host"`
	Cycle  uint64            `json:"cycle"`
	Device entity.DeviceInfo `json:"device"`
	States []entity.State    `json:"states"`
}

func statesFor(d Device, snap snapshot.Snapshot) statesMessage {
	set := d.Entities()
	return statesMessage{
		Host:   d.Host(),
		Cycle:  snap.Cycle,
		Device: set.Device(snap),
		States: set.States(snap),
	}
}
