/*
Package control exposes the running agent over a loopback HTTP API.

The daemon owns the search index lock and the capture loop, so every
other surface (CLI commands, the MCP server, a tray shell) talks to it
through this API instead of opening storage directly.

Routes:

	GET  /health
	GET  /status
	POST /capture
	POST /recording          {"enabled": bool}
	POST /recording/toggle
	POST /event-triggers     {"enabled": bool}
	POST /events             {"reason": string}
	GET  /search?q=&tag=&date=&app=&from=&to=&limit=&offset=
	GET  /entries/{id}
	POST /entries/{id}/reindex
	GET  /failures?limit=
	GET  /rules
	POST /rules              {"text": string}
	GET  /summary?date=
*/
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/khanglvm/monitome/internal/activity"
	"github.com/khanglvm/monitome/internal/capture"
	"github.com/khanglvm/monitome/internal/extraction"
	"github.com/khanglvm/monitome/internal/pipeline"
	"github.com/khanglvm/monitome/internal/search"
	"github.com/khanglvm/monitome/internal/storage"
)

// Error codes carried in error bodies so clients can map them back to
// sentinel errors.
const (
	CodeNotFound          = "not_found"
	CodeRecordingDisabled = "recording_disabled"
	CodePermissionDenied  = "permission_denied"
	CodeNoActivity        = "no_activity"
	CodeCaptureFailed     = "capture_failed"
	CodeAnalysisFailed    = "analysis_failed"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)

// Agent is the command surface the API serves. *pipeline.Pipeline
// implements it.
type Agent interface {
	Status(ctx context.Context) (*pipeline.Status, error)
	CaptureNow(ctx context.Context) (*storage.Screenshot, error)
	SetRecording(enabled bool) error
	ToggleRecording() (bool, error)
	SetEventTriggers(enabled bool) error
	ReportActivity(reason string) bool
	Search(ctx context.Context, q search.Query) (*search.Results, error)
	Entry(ctx context.Context, id string) (*activity.Entry, error)
	Reindex(ctx context.Context, id string) error
	Failures(ctx context.Context, limit int) ([]storage.Failure, error)
	Rules(ctx context.Context) ([]storage.LearnedRule, error)
	Learn(ctx context.Context, text string) (*storage.LearnedRule, error)
	Summary(ctx context.Context, date string) (*extraction.Summary, error)
}

// ErrorBody is the JSON body of every non-2xx response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RecordingBody is the request and response body of the recording routes.
type RecordingBody struct {
	Enabled bool `json:"enabled"`
}

// EventBody reports externally detected activity.
type EventBody struct {
	Reason string `json:"reason"`
}

// EventResult says whether the event source accepted a reported event.
type EventResult struct {
	Accepted bool `json:"accepted"`
}

// RuleBody is the body of POST /rules.
type RuleBody struct {
	Text string `json:"text"`
}

// Server is the control API handler.
type Server struct {
	agent   Agent
	logger  *slog.Logger
	version string
	router  chi.Router
}

// NewServer builds the router for agent.
func NewServer(agent Agent, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		agent:   agent,
		logger:  logger.With("component", "control"),
		version: version,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/capture", s.handleCapture)

	r.Route("/recording", func(r chi.Router) {
		r.Post("/", s.handleSetRecording)
		r.Post("/toggle", s.handleToggleRecording)
	})
	r.Post("/event-triggers", s.handleSetEventTriggers)
	r.Post("/events", s.handleEvent)

	r.Get("/search", s.handleSearch)
	r.Route("/entries/{id}", func(r chi.Router) {
		r.Get("/", s.handleEntry)
		r.Post("/reindex", s.handleReindex)
	})
	r.Get("/failures", s.handleFailures)

	r.Route("/rules", func(r chi.Router) {
		r.Get("/", s.handleRules)
		r.Post("/", s.handleLearn)
	})
	r.Get("/summary", s.handleSummary)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve listens on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on an existing listener until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("control API listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control API shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.agent.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	shot, err := s.agent.CaptureNow(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, shot)
}

func (s *Server) handleSetRecording(w http.ResponseWriter, r *http.Request) {
	var body RecordingBody
	if !decode(w, r, &body) {
		return
	}
	if err := s.agent.SetRecording(body.Enabled); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleToggleRecording(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.agent.ToggleRecording()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordingBody{Enabled: enabled})
}

func (s *Server) handleSetEventTriggers(w http.ResponseWriter, r *http.Request) {
	var body RecordingBody
	if !decode(w, r, &body) {
		return
	}
	if err := s.agent.SetEventTriggers(body.Enabled); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var body EventBody
	if !decode(w, r, &body) {
		return
	}
	writeJSON(w, http.StatusAccepted, EventResult{Accepted: s.agent.ReportActivity(body.Reason)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: err.Error(), Code: CodeBadRequest})
		return
	}
	res, err := s.agent.Search(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.agent.Entry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.agent.Reindex(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"screenshot_id": id, "status": "queued"})
}

func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := s.agent.Failures(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if failures == nil {
		failures = []storage.Failure{}
	}
	writeJSON(w, http.StatusOK, failures)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.agent.Rules(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rules == nil {
		rules = []storage.LearnedRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	var body RuleBody
	if !decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "rule text is required", Code: CodeBadRequest})
		return
	}
	rule, err := s.agent.Learn(r.Context(), body.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format(activity.DateLayout)
	}
	if _, err := time.Parse(activity.DateLayout, date); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "date must be YYYY-MM-DD", Code: CodeBadRequest})
		return
	}
	sum, err := s.agent.Summary(r.Context(), date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// parseQuery reads search filters from the URL. tag may repeat.
func parseQuery(r *http.Request) (search.Query, error) {
	v := r.URL.Query()
	q := search.Query{
		Text:   v.Get("q"),
		Tags:   v["tag"],
		Date:   v.Get("date"),
		App:    v.Get("app"),
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}
	if q.Date != "" {
		if _, err := time.Parse(activity.DateLayout, q.Date); err != nil {
			return q, errors.New("date must be YYYY-MM-DD")
		}
	}
	for key, dst := range map[string]*time.Time{"from": &q.From, "to": &q.To} {
		raw := v.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, fmt.Errorf("%s must be RFC 3339", key)
		}
		*dst = t
	}
	return q, nil
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= 500 {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
	}
	writeJSON(w, status, ErrorBody{Error: err.Error(), Code: code})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, pipeline.ErrNoActivity):
		return http.StatusNotFound, CodeNoActivity
	case errors.Is(err, pipeline.ErrRecordingDisabled):
		return http.StatusConflict, CodeRecordingDisabled
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden, CodePermissionDenied
	case errors.Is(err, capture.ErrCaptureFailed):
		return http.StatusBadGateway, CodeCaptureFailed
	}
	var extErr *extraction.Error
	if errors.As(err, &extErr) {
		return http.StatusBadGateway, CodeAnalysisFailed
	}
	return http.StatusInternalServerError, CodeInternal
}

// requestLogger logs one line per request at debug level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "invalid JSON body: " + err.Error(), Code: CodeBadRequest})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
