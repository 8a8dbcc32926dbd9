package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"planner/internal/filestore"
	"planner/internal/housekeeping"
	"planner/internal/store"
)

const (
	allowRemoteEnvKey = "PLANNER_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 5 * time.Minute
	writeTimeout      = 5 * time.Minute
	idleTimeout       = 60 * time.Second
)

// Options configures the upload pipeline of a Server.
type Options struct {
	MaxFileBytes      int64
	MaxRequestBytes   int64
	AllowedMediaTypes []string
	AdminToken        string
}

// storePinger is the part of the store the status endpoint needs.
type storePinger interface {
	Ping(ctx context.Context) error
	Driver() store.Driver
}

// Server wraps HTTP handlers for the planner API.
type Server struct {
	addr            string
	files           *filestore.Store
	recorder        *MetadataRecorder
	tasks           *TaskService
	uploads         *UploadService
	images          ImageLister
	housekeeping    *housekeeping.Service
	pinger          storePinger
	logger          *slog.Logger
	adminToken      string
	maxRequestBytes int64

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a new server instance. The recorder should already have been
// probed so degraded mode is known before the first request.
func New(addr string, taskStore store.TaskStore, recorder *MetadataRecorder, files *filestore.Store, sweeps *housekeeping.Service, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	s := &Server{
		addr:            addr,
		files:           files,
		recorder:        recorder,
		tasks:           NewTaskService(taskStore, NewCompletionGate(files)),
		uploads:         NewUploadService(files, recorder, opts.MaxFileBytes, opts.AllowedMediaTypes, logger),
		images:          NewImageLister(recorder, files, logger),
		housekeeping:    sweeps,
		logger:          logger,
		adminToken:      strings.TrimSpace(opts.AdminToken),
		maxRequestBytes: opts.MaxRequestBytes,
	}
	if pinger, ok := taskStore.(storePinger); ok {
		s.pinger = pinger
	}
	return s
}


// ListenAndServe starts the HTTP server and blocks until it stops. A clean
// Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	s.mu.Lock()
	s.httpServer = server
	s.mu.Unlock()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a running server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	s.log().Info("stopping server")
	return server.Shutdown(ctx)
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
