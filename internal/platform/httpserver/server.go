package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	recordanchoring "notary/contexts/ledger-anchoring/record-anchoring-service"
	anchoringerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"
	anchoringhttp "notary/contexts/ledger-anchoring/record-anchoring-service/transport/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	_ "notary/internal/platform/httpserver/docs"
)

const maxRecordBodyBytes = 1 << 20

type Server struct {
	router    chi.Router
	http      *http.Server
	logger    *slog.Logger
	addr      string
	anchoring recordanchoring.Module
	swagger   bool
}

type Option func(*Server)

// WithoutSwagger drops the /swagger/ routes.
func WithoutSwagger() Option {
	return func(s *Server) {
		s.swagger = false
	}
}

func New(anchoring recordanchoring.Module, logger *slog.Logger, addr string, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger,
		addr:      addr,
		anchoring: anchoring,
		swagger:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
	)
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.accessLog)

	if s.swagger {
		s.router.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/v1/records", func(r chi.Router) {
		r.Post("/", s.handleCreateRecord)
		r.Get("/", s.handleListRecords)
		r.Get("/{record_id}", s.handleGetRecord)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, anchoringhttp.HealthResponse{Status: "ok"})
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req anchoringhttp.CreateRecordRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecordBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		writeAnchoringError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.anchoring.Handler.CreateRecordHandler(r.Context(), req)
	if err != nil {
		writeAnchoringDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "record_id")
	resp, err := s.anchoring.Handler.GetRecordHandler(r.Context(), recordID)
	if err != nil {
		writeAnchoringDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := anchoringhttp.ListRecordsRequest{
		Status: query.Get("status"),
	}
	if limitRaw := query.Get("limit"); limitRaw != "" {
		limit, err := strconv.Atoi(limitRaw)
		if err != nil {
			writeAnchoringError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		req.Limit = limit
	}

	resp, err := s.anchoring.Handler.ListRecordsHandler(r.Context(), req)
	if err != nil {
		writeAnchoringDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request served",
			"event", "http_request_served",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(startedAt).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeAnchoringDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, anchoringerrors.ErrRecordNotFound):
		writeAnchoringError(w, http.StatusNotFound, "record_not_found", err.Error())
	case errors.Is(err, anchoringerrors.ErrInvalidRecordContent):
		writeAnchoringError(w, http.StatusBadRequest, "invalid_record_content", err.Error())
	case errors.Is(err, anchoringerrors.ErrInvalidListFilter):
		writeAnchoringError(w, http.StatusBadRequest, "invalid_list_filter", err.Error())
	case errors.Is(err, anchoringerrors.ErrRepositoryInvariantBroke):
		writeAnchoringError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, anchoringerrors.ErrStoreUnavailable):
		writeAnchoringError(w, http.StatusServiceUnavailable, "store_unavailable", "record store unavailable")
	default:
		writeAnchoringError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeAnchoringError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, anchoringhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
