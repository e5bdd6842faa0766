// Package server exposes review runs over HTTP so a waiting run can be
// inspected and resumed from outside the terminal that started it.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jingkaihe/docgate/pkg/assemble"
	"github.com/jingkaihe/docgate/pkg/logger"
	"github.com/jingkaihe/docgate/pkg/presenter"
	"github.com/jingkaihe/docgate/pkg/review"
	"github.com/jingkaihe/docgate/pkg/store"
	"github.com/jingkaihe/docgate/pkg/telemetry"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
	"github.com/jingkaihe/docgate/pkg/version"
)

// Server serves the run API
type Server struct {
	router     *mux.Router
	store      store.Store
	controller *review.Controller
	config     *ServerConfig
	server     *http.Server

	// one writer per run
	locks sync.Map
}

// ServerConfig holds the configuration for the API server
type ServerConfig struct {
	Host string
	Port int
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// RunView is a run as returned after any transition
type RunView struct {
	ID        string                        `json:"id"`
	Skill     string                        `json:"skill"`
	Phase     reviewtypes.Phase             `json:"phase"`
	Round     int                           `json:"round"`
	Summary   reviewtypes.ReviewSummary     `json:"summary"`
	Questions []reviewtypes.GapQuestion     `json:"questions"`
	Accepted  []reviewtypes.AcceptedSection `json:"accepted,omitempty"`
}

// NewServer creates an API server over a run store and a review controller
func NewServer(config *ServerConfig, st store.Store, controller *review.Controller) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server configuration")
	}

	s := &Server{
		router:     mux.NewRouter(),
		store:      st,
		controller: controller,
		config:     config,
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", s.handleVersion).Methods("GET")
	api.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleDeleteRun).Methods("DELETE")
	api.HandleFunc("/runs/{id}/summary", s.handleGetSummary).Methods("GET")
	api.HandleFunc("/runs/{id}/questions", s.handleGetQuestions).Methods("GET")
	api.HandleFunc("/runs/{id}/responses", s.handlePostResponse).Methods("POST")
	api.HandleFunc("/runs/{id}/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/runs/{id}/document", s.handleGetDocument).Methods("GET")

	s.router.Use(s.tracingMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
}

func (s *Server) tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		ctx, span := telemetry.Tracer("docgate.server").Start(r.Context(), "http.request",
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
			))
		defer span.End()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))
		telemetry.SetAttributes(ctx, attribute.Int("http.status_code", rw.statusCode))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		logger.G(r.Context()).WithFields(map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration":    time.Since(start),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) lock(id string) func() {
	m, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Server) view(state *reviewtypes.ReviewState) RunView {
	v := RunView{
		ID:        state.ID,
		Skill:     state.Skill,
		Phase:     state.Phase,
		Round:     state.Round,
		Summary:   s.controller.Summary(state),
		Questions: state.Questions,
	}
	if v.Questions == nil {
		v.Questions = []reviewtypes.GapQuestion{}
	}
	if state.Phase == reviewtypes.PhaseFinalized {
		v.Accepted, _ = review.Accepted(state)
	}
	return v
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	s.writeJSONResponse(w, version.Get())
}

// handleListRuns handles GET /api/runs?skill=&phase=&limit=
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := store.QueryOptions{
		Skill: query.Get("skill"),
		Phase: reviewtypes.Phase(query.Get("phase")),
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			opts.Limit = limit
		}
	}

	runs, err := s.store.List(r.Context(), opts)
	if err != nil {
		s.writeError(r.Context(), w, err, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []reviewtypes.Summary{}
	}
	s.writeJSONResponse(w, map[string]any{"runs": runs})
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) (*reviewtypes.ReviewState, bool) {
	id := mux.Vars(r)["id"]
	state, err := s.store.Load(r.Context(), id)
	if err != nil {
		s.writeError(r.Context(), w, err, "failed to load run")
		return nil, false
	}
	return state, true
}

// handleGetRun handles GET /api/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if state, ok := s.load(w, r); ok {
		s.writeJSONResponse(w, state)
	}
}

// handleDeleteRun handles DELETE /api/runs/{id}
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	defer s.lock(id)()

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeError(r.Context(), w, err, "failed to delete run")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetSummary handles GET /api/runs/{id}/summary
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	if state, ok := s.load(w, r); ok {
		s.writeJSONResponse(w, s.controller.Summary(state))
	}
}

// handleGetQuestions handles GET /api/runs/{id}/questions
func (s *Server) handleGetQuestions(w http.ResponseWriter, r *http.Request) {
	if state, ok := s.load(w, r); ok {
		questions := state.Questions
		if questions == nil {
			questions = []reviewtypes.GapQuestion{}
		}
		s.writeJSONResponse(w, map[string]any{"phase": state.Phase, "questions": questions})
	}
}

// handlePostResponse handles POST /api/runs/{id}/responses. The request
// blocks while failing sections are regenerated and rescored. An empty
// object advances a run that was interrupted mid-pass.
func (s *Server) handlePostResponse(w http.ResponseWriter, r *http.Request) {
	var resp reviewtypes.Response
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		s.writeErrorResponse(r.Context(), w, http.StatusBadRequest, "invalid response body", err)
		return
	}

	id := mux.Vars(r)["id"]
	defer s.lock(id)()

	state, ok := s.load(w, r)
	if !ok {
		return
	}
	if err := s.controller.Resume(r.Context(), state, resp); err != nil {
		s.writeError(r.Context(), w, err, "failed to resume run")
		return
	}
	if err := s.store.Save(r.Context(), state); err != nil {
		s.writeError(r.Context(), w, err, "failed to save run")
		return
	}
	s.writeJSONResponse(w, s.view(state))
}

// handleCancel handles POST /api/runs/{id}/cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	defer s.lock(id)()

	state, ok := s.load(w, r)
	if !ok {
		return
	}
	if err := s.controller.Cancel(r.Context(), state); err != nil {
		s.writeError(r.Context(), w, err, "failed to cancel run")
		return
	}
	if err := s.store.Save(r.Context(), state); err != nil {
		s.writeError(r.Context(), w, err, "failed to save run")
		return
	}
	s.writeJSONResponse(w, s.view(state))
}

// handleGetDocument handles GET /api/runs/{id}/document?format=markdown|html&title=
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	state, ok := s.load(w, r)
	if !ok {
		return
	}

	doc, err := assemble.FromState(state, r.URL.Query().Get("title"))
	if err != nil {
		s.writeError(r.Context(), w, err, "failed to assemble document")
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		fmt.Fprint(w, assemble.Markdown(doc))
	case "html":
		out, err := assemble.HTML(doc)
		if err != nil {
			s.writeError(r.Context(), w, err, "failed to render document")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, out)
	default:
		s.writeErrorResponse(r.Context(), w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format), nil)
	}
}

// statusFor maps review and store errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, review.ErrEmptyResponse), errors.Is(err, reviewtypes.ErrUnknownSection):
		return http.StatusBadRequest
	case errors.Is(err, reviewtypes.ErrInvalidPhase),
		errors.Is(err, reviewtypes.ErrRunFinalized),
		errors.Is(err, reviewtypes.ErrRunCancelled),
		errors.Is(err, reviewtypes.ErrNotFinalized):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error, message string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		telemetry.RecordError(ctx, err)
	} else {
		message = err.Error()
	}
	s.writeErrorResponse(ctx, w, status, message, err)
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.G(context.TODO()).WithError(err).Error("failed to encode JSON response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) writeErrorResponse(ctx context.Context, w http.ResponseWriter, statusCode int, message string, err error) {
	if err != nil {
		logger.G(ctx).WithError(err).Error(message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]any{
		"error":   message,
		"status":  statusCode,
		"success": false,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.G(ctx).WithError(err).Error("failed to encode error response")
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    address,
		Handler: s.router,
	}

	presenter.Info(fmt.Sprintf("Serving review API on http://%s/api", address))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Close stops the HTTP server and closes the store
func (s *Server) Close() error {
	if s.server != nil {
		if err := s.server.Close(); err != nil {
			return err
		}
	}
	return errors.Wrap(s.store.Close(), "failed to close store")
}
