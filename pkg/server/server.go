// Package server exposes a router over HTTP.
//
// Every request outside /_meta is converted to an api.Request, dispatched
// through the router under an outer timeout, and written back as JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/marshallshelly/pebble-api/pkg/api"
	"github.com/marshallshelly/pebble-api/pkg/api/router"
	"github.com/marshallshelly/pebble-api/pkg/config"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// TimeoutMessage is the error returned when a request exceeds the outer timeout.
const TimeoutMessage = "Request timed out - database operation may be taking too long"

// Options configures a Server.
type Options struct {
	State   *State
	Metrics *Metrics
	Logger  logrus.FieldLogger
}

// Server is the HTTP front of a router.
type Server struct {
	cfg     *config.Config
	router  *router.Router
	state   *State
	metrics *Metrics
	limiter *rate.Limiter
	timeout time.Duration
	log     logrus.FieldLogger
	mux     *chi.Mux
}

// New builds the HTTP handler tree.
func New(cfg *config.Config, rt *router.Router, opts Options) *Server {
	s := &Server{
		cfg:     cfg,
		router:  rt,
		state:   opts.State,
		metrics: opts.Metrics,
		timeout: cfg.ServerConfig.RequestTimeout(),
		log:     opts.Logger,
		mux:     chi.NewRouter(),
	}
	if s.state == nil {
		s.state = NewState(nil)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	if rl := cfg.ServerConfig.RateLimiting; rl != nil && rl.RequestsPerMinute > 0 {
		burst := rl.Burst
		if burst <= 0 {
			burst = rl.RequestsPerMinute
		}
		s.limiter = rate.NewLimiter(rate.Limit(float64(rl.RequestsPerMinute)/60), burst)
	}

	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/_meta", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Handle("/metrics", s.metrics.Handler())
		if cfg.Documentation != nil && cfg.Documentation.Enabled {
			r.Get("/routes", s.routes)
		}
	})
	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.rateLimit)
		}
		r.Handle("/*", http.HandlerFunc(s.serveAPI))
	})
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// State returns the runtime state the server reports into.
func (s *Server) State() *State {
	return s.state
}

func (s *Server) serveAPI(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, resp := s.toRequest(w, r)
	entity := "unknown"
	if req != nil {
		if name, ok := s.router.EntityOf(req); ok {
			entity = name
		}
		resp = s.dispatch(r.Context(), req)
	}
	if resp == nil {
		// client went away
		return
	}

	if id := middleware.GetReqID(r.Context()); id != "" {
		w.Header().Set("X-Request-Id", id)
	}
	s.write(w, resp)

	s.state.Record(resp.Status)
	s.metrics.observe(r.Method, entity, resp.Status, time.Since(start))
}

// toRequest converts an HTTP request. On failure it returns the response to
// send instead.
func (s *Server) toRequest(w http.ResponseWriter, r *http.Request) (*api.Request, *api.Response) {
	method, err := schema.ParseHTTPMethod(r.Method)
	if err != nil {
		return nil, api.NewResponse(http.StatusMethodNotAllowed,
			api.JSON(map[string]string{"error": err.Error()}))
	}

	body := r.Body
	if limit := s.cfg.ServerConfig.MaxPayloadBytes(); limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, api.NewResponse(http.StatusRequestEntityTooLarge,
				api.JSON(map[string]string{"error": "Payload too large"}))
		}
		return nil, api.ErrorResponse(api.Wrap(api.KindIO, err, "failed to read request body"))
	}

	req := api.NewRequest(method, r.URL.Path, string(data))
	req.Query = firstValues(r.URL.Query())
	req.Headers = firstValues(r.Header)
	return req, nil
}

func firstValues(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// dispatch runs the router under the outer timeout. It returns nil when the
// caller's context was canceled.
func (s *Server) dispatch(parent context.Context, req *api.Request) *api.Response {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	done := make(chan *api.Response, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				s.log.WithField("path", req.Path).Errorf("handler panic: %v", p)
				done <- api.ErrorResponse(api.Errorf(api.KindServer, "internal error"))
			}
		}()
		done <- s.router.Handle(ctx, req)
	}()

	select {
	case resp := <-done:
		return resp
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.log.WithFields(logrus.Fields{
				"method":  req.Method,
				"path":    req.Path,
				"timeout": s.timeout,
			}).Warn("request timed out")
			return api.NewResponse(http.StatusGatewayTimeout,
				api.JSON(map[string]string{"error": TimeoutMessage}))
		}
		return nil
	}
}

func (s *Server) write(w http.ResponseWriter, resp *api.Response) {
	data, err := resp.Encode()
	if err != nil {
		s.log.WithError(err).Error("failed to encode response")
		resp = api.ErrorResponse(api.Wrap(api.KindSerialization, err, "failed to encode response"))
		data, _ = resp.Encode()
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.Status)
	if data != nil {
		_, _ = w.Write(data)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("failed to encode response")
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	if !s.state.Healthy() {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, s.state.Snapshot())
}

func (s *Server) routes(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string][]string)
	for _, e := range s.router.Entities() {
		out[e] = s.router.Endpoints(e)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"api_prefix": strings.Trim(s.cfg.APIPrefix, "/"),
		"entities":   out,
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
			s.state.Record(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}
