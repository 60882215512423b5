package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/marshallshelly/pebble-api/pkg/api/handlers"
	"github.com/marshallshelly/pebble-api/pkg/api/router"
	"github.com/marshallshelly/pebble-api/pkg/config"
	"github.com/marshallshelly/pebble-api/pkg/datasource/factory"
)

// ErrRunning is returned by Start when the server is already serving.
var ErrRunning = errors.New("server is already running")

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Addr overrides the configured listen address.
	Addr   string
	Hooks  *handlers.Hooks
	State  *State
	Logger logrus.FieldLogger
}

// Manager owns the lifecycle of one server: datasources, router, listener
// and the health check job.
type Manager struct {
	cfg   *config.Config
	opts  ManagerOptions
	state *State
	log   logrus.FieldLogger

	mu        sync.Mutex
	sources   *factory.Set
	router    *router.Router
	metrics   *Metrics
	http      *http.Server
	listener  net.Listener
	scheduler gocron.Scheduler
	group     *errgroup.Group
}

// NewManager creates a stopped manager.
func NewManager(cfg *config.Config, opts ManagerOptions) *Manager {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	state := opts.State
	if state == nil {
		state = NewState(nil)
	}
	return &Manager{cfg: cfg, opts: opts, state: state, log: log}
}

// State returns the runtime state.
func (m *Manager) State() *State {
	return m.state
}

// Running reports whether the server is serving.
func (m *Manager) Running() bool {
	return m.state.Running()
}

// Addr returns the bound listen address, or "" when stopped.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Router returns the router of the running server.
func (m *Manager) Router() *router.Router {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.router
}

// Start connects the datasources, binds the listener and starts serving in
// the background.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.http != nil {
		return ErrRunning
	}

	sources, err := factory.Build(ctx, m.cfg, m.log)
	if err != nil {
		return err
	}
	rt := router.New(m.cfg, sources.DataSources(), router.Options{Hooks: m.opts.Hooks, Logger: m.log})
	metrics := NewMetrics()
	srv := New(m.cfg, rt, Options{State: m.state, Metrics: metrics, Logger: m.log})

	addr := m.opts.Addr
	if addr == "" {
		addr = m.cfg.ServerConfig.Addr()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		_ = sources.Close()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLimitConcurrentJobs(1, gocron.LimitModeWait))
	if err != nil {
		_ = ln.Close()
		_ = sources.Close()
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	m.sources = sources
	m.router = rt
	m.metrics = metrics
	m.listener = ln
	m.scheduler = scheduler
	m.http = &http.Server{Handler: srv, ReadHeaderTimeout: 10 * time.Second}

	if _, err := scheduler.NewJob(
		gocron.DurationJob(m.cfg.ServerConfig.HealthInterval()),
		gocron.NewTask(m.checkHealth),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		m.log.WithError(err).Warn("failed to schedule datasource health check")
	}
	scheduler.Start()

	httpServer := m.http
	m.group = &errgroup.Group{}
	m.group.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	m.state.setRunning(true)
	m.log.WithFields(logrus.Fields{
		"addr":     ln.Addr().String(),
		"entities": len(rt.Entities()),
		"run_id":   m.state.RunID(),
	}).Info("server started")
	return nil
}

// checkHealth pings every datasource and publishes the result.
func (m *Manager) checkHealth() {
	m.mu.Lock()
	sources, metrics := m.sources, m.metrics
	m.mu.Unlock()
	if sources == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	failed := sources.Ping(ctx)
	health := make(map[string]string)
	for _, b := range sources.Backends() {
		label := b.Label()
		if err, ok := failed[label]; ok && err != nil {
			health[label] = err.Error()
			metrics.setDatasource(label, false)
			m.log.WithField("datasource", label).WithError(err).Warn("datasource health check failed")
			continue
		}
		health[label] = "ok"
		metrics.setDatasource(label, true)
	}
	m.state.SetHealth(health)
}

// Stop shuts the server down and releases the datasources.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.http == nil {
		m.mu.Unlock()
		return nil
	}
	srv, group, scheduler, sources := m.http, m.group, m.scheduler, m.sources
	m.http = nil
	m.listener = nil
	m.sources = nil
	m.router = nil
	m.scheduler = nil
	m.group = nil
	m.mu.Unlock()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := group.Wait(); err != nil {
		errs = append(errs, err)
	}
	if err := scheduler.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
	}
	if err := sources.Close(); err != nil {
		errs = append(errs, fmt.Errorf("datasource close: %w", err))
	}

	m.state.setRunning(false)
	m.log.Info("server stopped")
	return errors.Join(errs...)
}

// Run starts the server and blocks until ctx is done or SIGINT/SIGTERM is
// received, then stops it. A second signal exits the process immediately.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	serveErr := make(chan error, 1)
	m.mu.Lock()
	group := m.group
	m.mu.Unlock()
	go func() { serveErr <- group.Wait() }()

	select {
	case <-ctx.Done():
	case s := <-sig:
		m.log.Infof("received %s, shutting down", s)
		go func() {
			<-sig
			m.log.Error("received second signal, terminating immediately")
			os.Exit(1)
		}()
	case err := <-serveErr:
		if err != nil {
			_ = m.Stop(context.Background())
			return err
		}
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.Stop(shutdown)
}
