package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/neows-etl/internal/adapter/tables"
	"github.com/couchcryptid/neows-etl/internal/domain"
)

// Approach list limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// TableReader answers lookups over the built tables.
type TableReader interface {
	Metadata() (domain.Metadata, bool)
	Object(id string) (domain.ObjectRow, []domain.ApproachRow, bool)
	Approaches(q tables.ApproachQuery) []domain.ApproachRow
}

// Server exposes health, readiness, metrics and read-only table lookups.
type Server struct {
	httpServer *http.Server
	tables     TableReader
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api/v1 table routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, t TableReader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		tables: t,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/v1/metadata", s.handleMetadata)
	mux.HandleFunc("GET /api/v1/objects/{id}", s.handleObject)
	mux.HandleFunc("GET /api/v1/approaches", s.handleApproaches)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleMetadata(w http.ResponseWriter, _ *http.Request) {
	meta, ok := s.tables.Metadata()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "tables not loaded")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, meta)
}

type objectResponse struct {
	Object     domain.ObjectRow     `json:"object"`
	Approaches []domain.ApproachRow `json:"approaches"`
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	obj, approaches, ok := s.tables.Object(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown object "+strconv.Quote(id))
		return
	}
	if approaches == nil {
		approaches = []domain.ApproachRow{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, objectResponse{Object: obj, Approaches: approaches})
}

type approachesResponse struct {
	Count      int                  `json:"count"`
	Approaches []domain.ApproachRow `json:"approaches"`
}

func (s *Server) handleApproaches(w http.ResponseWriter, r *http.Request) {
	q, err := parseApproachQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows := s.tables.Approaches(q)
	s.logger.Debug("approaches served", "object_id", q.ObjectID, "limit", q.Limit, "rows", len(rows))
	sharedobs.WriteJSON(w, http.StatusOK, approachesResponse{Count: len(rows), Approaches: rows})
}

func parseApproachQuery(r *http.Request) (tables.ApproachQuery, error) {
	params := r.URL.Query()
	q := tables.ApproachQuery{ObjectID: params.Get("object_id"), Limit: DefaultLimit}

	if v := params.Get("hazardous"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return q, domain.NewError(domain.KindSchemaValidation, "parse query", "hazardous must be true or false", err)
		}
		q.Hazardous = &b
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxLimit {
			return q, domain.NewError(domain.KindSchemaValidation, "parse query",
				"limit must be an integer between 1 and "+strconv.Itoa(MaxLimit), err)
		}
		q.Limit = n
	}
	return q, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
