// Package api serves the ground station's live view: link control, series
// readouts and charts over HTTP, plus a gRPC health service.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/ground.control/internal/flightlog"
	"github.com/banshee-data/ground.control/internal/httputil"
	"github.com/banshee-data/ground.control/internal/link"
	"github.com/banshee-data/ground.control/internal/monitoring"
	"github.com/banshee-data/ground.control/internal/series"
	"github.com/banshee-data/ground.control/internal/telemetry"
	"github.com/banshee-data/ground.control/internal/version"
)

var logf = monitoring.Component("api")

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultMaxPoints caps the samples returned by /api/series/{id} when the
// request does not set ?limit.
const DefaultMaxPoints = 2000

type Server struct {
	link      *link.Manager
	pipeline  *telemetry.Pipeline
	store     *series.Store
	flightlog *flightlog.Log
}

// Option configures a Server.
type Option func(*Server)

// WithFlightLog exposes the flight log session in /api/status.
func WithFlightLog(l *flightlog.Log) Option {
	return func(s *Server) { s.flightlog = l }
}

func NewServer(m *link.Manager, p *telemetry.Pipeline, opts ...Option) *Server {
	s := &Server{
		link:     m,
		pipeline: p,
		store:    p.Store(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/ports", s.listPorts)
	mux.HandleFunc("/api/ports/refresh", s.refreshPorts)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/connect", s.connect)
	mux.HandleFunc("/api/disconnect", s.disconnect)
	mux.HandleFunc("/api/series", s.listSeries)
	mux.HandleFunc("GET /api/series/{id}", s.showSeries)
	mux.HandleFunc("GET /api/series/{id}/last", s.showLastValue)
	mux.HandleFunc("/charts", s.showCharts)
	return mux
}

// Handler is ServeMux wrapped in LoggingMiddleware.
func (s *Server) Handler() http.Handler {
	return LoggingMiddleware(s.ServeMux())
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Version          string          `json:"version"`
	Link             link.Status     `json:"link"`
	BytesReadHuman   string          `json:"bytes_read_human"`
	Pipeline         telemetry.Stats `json:"pipeline"`
	FlightLogSession string          `json:"flight_log_session,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	st := s.link.Status()
	resp := StatusResponse{
		Version:        version.String(),
		Link:           st,
		BytesReadHuman: humanize.Bytes(st.BytesRead),
		Pipeline:       s.pipeline.Stats(),
	}
	if s.flightlog != nil {
		resp.FlightLogSession = s.flightlog.Session()
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listPorts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.link.KnownPorts())
}

func (s *Server) refreshPorts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if err := s.link.RefreshKnownPorts(); err != nil {
		logf("refresh ports: %v", err)
		httputil.InternalServerError(w, "failed to enumerate ports")
		return
	}
	httputil.WriteJSONOK(w, s.link.KnownPorts())
}

// configRequest is a partial link configuration; unset fields keep their
// current value.
type configRequest struct {
	Port     *string `json:"port"`
	BaudRate *int    `json:"baud_rate"`
	DataBits *int    `json:"data_bits"`
	StopBits *int    `json:"stop_bits"`
	Parity   *string `json:"parity"`
}

func (c configRequest) apply(cfg link.Config) link.Config {
	if c.Port != nil {
		cfg.Port = *c.Port
	}
	if c.BaudRate != nil {
		cfg.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		cfg.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		cfg.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		cfg.Parity = *c.Parity
	}
	return cfg
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.link.Config())
	case http.MethodPost:
		var req configRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.link.SetConfig(req.apply(s.link.Config())); err != nil {
			writeLinkError(w, err)
			return
		}
		httputil.WriteJSONOK(w, s.link.Config())
	default:
		httputil.MethodNotAllowed(w, "GET, POST")
	}
}

// writeLinkError maps manager errors onto status codes.
func writeLinkError(w http.ResponseWriter, err error) {
	if errors.Is(err, link.ErrOperationInFlight) {
		httputil.Conflict(w, err.Error())
		return
	}
	httputil.BadRequest(w, err.Error())
}

// transitionResponse reports whether a connect or disconnect was started.
type transitionResponse struct {
	Started bool       `json:"started"`
	State   link.State `json:"state"`
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var req struct {
		Port string `json:"port"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	started := s.link.Connect(req.Port)
	if !started && req.Port == "" && s.link.Config().Port == "" {
		httputil.BadRequest(w, link.ErrNoPortSelected.Error())
		return
	}
	status := http.StatusAccepted
	if !started {
		status = http.StatusConflict
	}
	httputil.WriteJSON(w, status, transitionResponse{Started: started, State: s.link.State()})
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	started := s.link.Disconnect()
	status := http.StatusAccepted
	if !started {
		status = http.StatusConflict
	}
	httputil.WriteJSON(w, status, transitionResponse{Started: started, State: s.link.State()})
}

// SeriesInfo is the per-series readout: identity, last value and summary.
type SeriesInfo struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Unit    string          `json:"unit"`
	Last    *series.Sample  `json:"last,omitempty"`
	Summary series.Summary  `json:"summary"`
	Points  []series.Sample `json:"points,omitempty"`
}

func describe(sr *series.Series) SeriesInfo {
	info := SeriesInfo{ID: sr.ID, Name: sr.Name, Unit: sr.Unit, Summary: sr.Summary()}
	if last, ok := sr.LastValue(); ok {
		info.Last = &last
	}
	return info
}

func (s *Server) listSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	list := s.store.List()
	out := make([]SeriesInfo, 0, len(list))
	for _, sr := range list {
		out = append(out, describe(sr))
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) showSeries(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		httputil.NotFound(w, "unknown series")
		return
	}

	limit := DefaultMaxPoints
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	info := describe(sr)
	points := sr.Points()
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	info.Points = points
	httputil.WriteJSONOK(w, info)
}

func (s *Server) showLastValue(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		httputil.NotFound(w, "unknown series")
		return
	}
	last, ok := sr.LastValue()
	if !ok {
		httputil.NotFound(w, "series is empty")
		return
	}
	httputil.WriteJSONOK(w, struct {
		series.Sample
		Unit string `json:"unit"`
	}{last, sr.Unit})
}
