// Package httpapi serves the control and status API. Charge and boost
// requests are handed to the device workers and answered with 202 and the
// request sequence number; results show up in GET /status.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/history"
	"github.com/kilianp07/energysched/core/logger"
	"github.com/kilianp07/energysched/core/scheduler"
	"github.com/kilianp07/energysched/infra/myenergi"
)

var (
	// ErrUnknownDevice is returned for a device name that is not configured.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrInvalidRequest marks a request body the controller rejected.
	ErrInvalidRequest = errors.New("invalid request")
)

// Controller is the application surface driven by the API.
type Controller interface {
	Devices() []string
	View(name string) (scheduler.View, error)
	Plan(name string, rf scheduler.RequestFile) (uint64, error)
	Apply(name string, rf scheduler.RequestFile) (uint64, error)
	ClearCharge(name string) (uint64, error)
	Boost(name string, req scheduler.BoostRequest) (uint64, error)
	CancelBoost(name string) (uint64, error)
	Schedules(ctx context.Context, name string) ([]myenergi.ScheduleEntry, error)
	History(ctx context.Context, q history.Query) ([]history.Record, error)
}

// Accepted answers an asynchronous request.
type Accepted struct {
	Device string `json:"device"`
	Seq    uint64 `json:"seq"`
}

// Server exposes a Controller over HTTP.
type Server struct {
	ctrl    Controller
	log     logger.Logger
	token   string
	metrics http.Handler
	timeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on every request that
// changes device state.
func WithToken(token string) Option { return func(s *Server) { s.token = token } }

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) Option { return func(s *Server) { s.log = log } }

// WithMetricsHandler replaces the default Prometheus handler on /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// NewServer builds a server around ctrl.
func NewServer(ctrl Controller, opts ...Option) *Server {
	s := &Server{ctrl: ctrl, metrics: promhttp.Handler(), timeout: 30 * time.Second}
	for _, o := range opts {
		o(s)
	}
	s.log = logger.OrNop(s.log)
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/status", s.handleStatus)
	r.Get("/schedules", s.handleSchedules)
	r.Get("/history", s.handleHistory)
	r.Handle("/metrics", s.metrics)

	r.Group(func(pr chi.Router) {
		pr.Use(s.requireToken)
		pr.Post("/charge/plan", s.handlePlan)
		pr.Post("/charge/apply", s.handleApply)
		pr.Delete("/charge", s.handleClear)
		pr.Post("/boost", s.handleBoost)
		pr.Delete("/boost", s.handleCancelBoost)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("http shutdown: %v", err)
		}
		cancel()
	}()
	s.log.Infof("control API listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// device resolves the ?device= parameter. It may be omitted when exactly
// one device is configured.
func (s *Server) device(r *http.Request) (string, error) {
	if name := r.URL.Query().Get("device"); name != "" {
		return name, nil
	}
	names := s.ctrl.Devices()
	if len(names) == 1 {
		return names[0], nil
	}
	return "", errors.Join(ErrInvalidRequest, errors.New("device parameter is required"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("device") == "" {
		views := make([]scheduler.View, 0, len(s.ctrl.Devices()))
		for _, name := range s.ctrl.Devices() {
			v, err := s.ctrl.View(name)
			if err != nil {
				s.fail(w, err)
				return
			}
			views = append(views, v)
		}
		writeJSON(w, http.StatusOK, views)
		return
	}
	v, err := s.ctrl.View(r.URL.Query().Get("device"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	name, err := s.device(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	entries, err := s.ctrl.Schedules(r.Context(), name)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := history.Query{Device: r.URL.Query().Get("device"), Kind: r.URL.Query().Get("kind")}
	for key, dst := range map[string]*time.Time{"since": &q.Start, "until": &q.End} {
		v := r.URL.Query().Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.fail(w, errors.Join(ErrInvalidRequest, fmt.Errorf("%s: %w", key, err)))
			return
		}
		*dst = t
	}
	recs, err := s.ctrl.History(r.Context(), q)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	s.submitCharge(w, r, s.ctrl.Plan)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	s.submitCharge(w, r, s.ctrl.Apply)
}

func (s *Server) submitCharge(w http.ResponseWriter, r *http.Request, submit func(string, scheduler.RequestFile) (uint64, error)) {
	name, err := s.device(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var rf scheduler.RequestFile
	if err := decode(r, &rf); err != nil {
		s.fail(w, err)
		return
	}
	seq, err := submit(name, rf)
	s.accepted(w, name, seq, err)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	name, err := s.device(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	seq, err := s.ctrl.ClearCharge(name)
	s.accepted(w, name, seq, err)
}

func (s *Server) handleBoost(w http.ResponseWriter, r *http.Request) {
	name, err := s.device(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req scheduler.BoostRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	seq, err := s.ctrl.Boost(name, req)
	s.accepted(w, name, seq, err)
}

func (s *Server) handleCancelBoost(w http.ResponseWriter, r *http.Request) {
	name, err := s.device(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	seq, err := s.ctrl.CancelBoost(name)
	s.accepted(w, name, seq, err)
}

func (s *Server) accepted(w http.ResponseWriter, name string, seq uint64, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, Accepted{Device: name, Seq: seq})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Errorf("request failed: %v", err)
	}
	writeError(w, status, err.Error())
}

// StatusFor maps an error to the HTTP status reported for it.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrBoostUnsupported), errors.Is(err, device.ErrModeUnsupported):
		return http.StatusConflict
	case device.IsBusy(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, device.ErrCommand):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrInvalidRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
