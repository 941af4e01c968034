// Package server exposes the search courier over HTTP next to the health,
// readiness and Prometheus endpoints.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"search-courier/internal/common/errors"
	"search-courier/internal/common/logger"
	"search-courier/internal/common/validation"
	"search-courier/internal/models"
)

const (
	maxBodyBytes = 10 << 20

	// statusClientClosedRequest reports a search aborted by the caller.
	statusClientClosedRequest = 499
)

// Searcher runs one search to completion.
type Searcher interface {
	Execute(ctx context.Context, input *models.SearchInput) (*models.SearchOutput, error)
}

// Settings is the persisted client settings surface.
type Settings interface {
	HivePath(ctx context.Context) (string, error)
	SetHivePath(ctx context.Context, baseURL string) error
	TracePath(ctx context.Context) (string, error)
	Loading(ctx context.Context) (bool, error)
}

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Options configures a Server. Settings and Checks are optional.
type Options struct {
	Searcher      Searcher
	Settings      Settings
	Checks        []Check
	SearchTimeout time.Duration
	Logger        logger.Logger
}

type Server struct {
	searcher      Searcher
	settings      Settings
	checks        []Check
	searchTimeout time.Duration
	logger        logger.Logger
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Server{
		searcher:      opts.Searcher,
		settings:      opts.Settings,
		checks:        opts.Checks,
		searchTimeout: opts.SearchTimeout,
		logger:        log.WithFields(map[string]interface{}{"component": "http"}),
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(metricsMiddleware())

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/courier", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		if s.settings != nil {
			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings/hive-path", s.handlePutHivePath)
		}
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range s.checks {
		if err := c.Probe(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}

	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", map[string]interface{}{"failed": failed})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"failed": failed,
			"time":   time.Now().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, errors.NewInvalidSearchInputError(err.Error()))
		return
	}

	input, err := decodeSearchInput(raw)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The request context ends when the client disconnects, which aborts
	// the in-flight search.
	ctx := r.Context()
	if s.searchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.searchTimeout)
		defer cancel()
	}

	output, err := s.searcher.Execute(ctx, input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}

type settingsResponse struct {
	HivePath  string `json:"hivePath"`
	TracePath string `json:"tracePath"`
	Loading   bool   `json:"loading"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var resp settingsResponse
	var err error

	if resp.HivePath, err = s.settings.HivePath(ctx); err != nil {
		s.writeError(w, err)
		return
	}
	if resp.TracePath, err = s.settings.TracePath(ctx); err != nil {
		s.writeError(w, err)
		return
	}
	if resp.Loading, err = s.settings.Loading(ctx); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutHivePath(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		s.writeError(w, errors.NewInvalidSearchInputError(err.Error()))
		return
	}
	if err := s.settings.SetHivePath(r.Context(), body.URL); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("hive_path updated", map[string]interface{}{"url": body.URL})
	w.WriteHeader(http.StatusNoContent)
}

func decodeSearchInput(raw []byte) (*models.SearchInput, error) {
	result, err := validation.ValidateSearchInputJSON(raw)
	if err != nil {
		return nil, errors.NewInvalidSearchInputError(err.Error())
	}
	if !result.Valid {
		stdErr := errors.NewInvalidSearchInputError("request body does not match the search schema")
		stdErr.Metadata = map[string]interface{}{"errors": result.Errors}
		return nil, stdErr
	}

	var input models.SearchInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, errors.NewInvalidSearchInputError(err.Error())
	}
	return &input, nil
}

type errorResponse struct {
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Details  string                 `json:"details,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Search   *errors.SearchError    `json:"searchError,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	stdErr := errors.Normalize(err)
	resp := errorResponse{
		Code:     string(stdErr.Code),
		Message:  stdErr.Message,
		Details:  stdErr.Details,
		Metadata: stdErr.Metadata,
	}

	status := statusFor(stdErr.Code)
	var searchErr *errors.SearchError
	if stderrors.As(err, &searchErr) {
		resp.Search = searchErr
		if searchErr.Status >= 400 && searchErr.Status < 600 {
			status = searchErr.Status
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", map[string]interface{}{
			"code":  resp.Code,
			"error": err,
		})
	}
	writeJSON(w, status, resp)
}

func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeInvalidSearchInput:
		return http.StatusBadRequest
	case errors.ErrCodeNoViableStrategy:
		return http.StatusNotFound
	case errors.ErrCodeSearchTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeSearchAborted:
		return statusClientClosedRequest
	case errors.ErrCodeSearchQueryFailed, errors.ErrCodeElasticsearchConnectionFailed:
		return http.StatusBadGateway
	case errors.ErrCodeSettingsStoreFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
