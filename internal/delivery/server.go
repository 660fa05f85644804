package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"stream-clipper/internal/buffer"
	"stream-clipper/internal/platform/logger"
	"stream-clipper/internal/platform/metrics"
)

const (
	// DefaultHost keeps the server off external interfaces.
	DefaultHost = "127.0.0.1"
	// DefaultPort is fixed so the player URL is stable across restarts.
	DefaultPort = 12345

	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"

	streamPrefix = "/stream/"
)

// ErrNoActiveBuffer is reported (as HTTP 404) when no capture has registered
// a buffer directory yet.
var ErrNoActiveBuffer = errors.New("stream not started")

// Server is the loopback HTTP server for the rolling buffer.
type Server struct {
	host     string
	port     int
	registry *Registry
	log      *slog.Logger
	metrics  *metrics.Metrics
	router   chi.Router

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// NewServer builds the router. Port 0 binds an ephemeral port on Start.
// Metrics may be nil.
func NewServer(host string, port int, registry *Registry, log *slog.Logger, m *metrics.Metrics) *Server {
	if strings.TrimSpace(host) == "" {
		host = DefaultHost
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		host:     host,
		port:     port,
		registry: registry,
		log:      log,
		metrics:  m,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Range", "Content-Type"},
		ExposedHeaders: []string{"Content-Length", "Content-Range"},
		MaxAge:         300,
	}))
	r.Use(logger.DeliveryLogger(s.log))
	r.Use(metrics.DeliveryMiddleware(s.metrics))

	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Get(streamPrefix+"*", s.serveStream)
	r.Head(streamPrefix+"*", s.serveStream)
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the buffer registry the server reads from.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	addr := net.JoinHostPort(s.host, fmt.Sprint(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.srv = srv
	s.listener = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("delivery server error", "error", err)
		}
	}()

	s.log.Info("delivery server started", "addr", ln.Addr().String())
	return nil
}

// Port returns the bound port, or the configured one before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return tcp.Port
		}
	}
	return s.port
}

// ManifestURL is the URL of the playlist served for the current buffer.
func (s *Server) ManifestURL() string {
	return fmt.Sprintf("http://localhost:%d%s%s", s.Port(), streamPrefix, buffer.ManifestName)
}

// Shutdown drains open connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown delivery server: %w", err)
	}
	s.log.Info("delivery server stopped")
	return nil
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request) {
	root, ok := s.registry.Root()
	if !ok {
		http.Error(w, ErrNoActiveBuffer.Error(), http.StatusNotFound)
		return
	}

	name, ok := cleanRelative(chi.URLParam(r, "*"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	full := filepath.Join(root, filepath.FromSlash(name))
	f, err := os.Open(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	switch strings.ToLower(path.Ext(name)) {
	case ".m3u8":
		w.Header().Set("Content-Type", playlistContentType)
		w.Header().Set("Cache-Control", "no-cache")
	case ".ts":
		w.Header().Set("Content-Type", segmentContentType)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// cleanRelative rejects empty names and anything that would leave the root.
func cleanRelative(raw string) (string, bool) {
	raw = strings.ReplaceAll(raw, "\\", "/")
	if raw == "" || strings.HasPrefix(raw, "/") {
		return "", false
	}
	for _, part := range strings.Split(raw, "/") {
		if part == ".." {
			return "", false
		}
	}
	cleaned := path.Clean(raw)
	if cleaned == "." || strings.Contains(cleaned, ":") {
		return "", false
	}
	return cleaned, true
}

type healthResponse struct {
	Status string `json:"status"`
	Buffer bool   `json:"buffer"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	_, active := s.registry.Root()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", Buffer: active})
}
