package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/acheong08/spr-behavior/internal/aggregate"
	"github.com/acheong08/spr-behavior/internal/behavior"
	"github.com/acheong08/spr-behavior/internal/metrics"
	"github.com/acheong08/spr-behavior/internal/store"
)

// ErrReportNotFound is returned when a report id is neither cached nor stored
var ErrReportNotFound = errors.New("report not found")

// Options configures a Server
type Options struct {
	Logger    *zap.Logger
	Store     *store.DB // optional
	CacheSize int

	// Registry receives the engine metrics; nil disables /metrics
	Registry *prometheus.Registry

	// Handler options applied to every aggregation
	HandlerOptions []behavior.Option
}

// Server exposes the aggregation engine over HTTP and WebSocket
type Server struct {
	logger      *zap.Logger
	store       *store.DB
	cache       *lru.Cache
	metrics     *metrics.Collector
	registry    *prometheus.Registry
	handlerOpts []behavior.Option
	upgrader    websocket.Upgrader
}

// New creates a Server
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create report cache: %w", err)
	}

	s := &Server{
		logger:      logger,
		store:       opts.Store,
		cache:       cache,
		registry:    opts.Registry,
		handlerOpts: opts.HandlerOptions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Reports are not tied to a browser origin
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	if opts.Registry != nil {
		collector, err := metrics.NewCollector(opts.Registry)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		s.metrics = collector
	}

	return s, nil
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /ws", s.serveWs)
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("GET /reports/{id}", s.handleReport)

	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	return mux
}

// newAggregator builds a fresh handler set for one stream
func (s *Server) newAggregator() *aggregate.Aggregator {
	opts := append([]behavior.Option{}, s.handlerOpts...)
	if s.metrics != nil {
		opts = append(opts, behavior.WithRecorder(s.metrics))
	}
	return aggregate.NewAggregator(s.logger, opts...)
}

// publish assigns an id to a result, caches it and persists it when a store
// is configured
func (s *Server) publish(ctx context.Context, result *aggregate.Result) (string, error) {
	id := uuid.NewString()
	s.cache.Add(id, result)

	if s.metrics != nil {
		s.metrics.ReportProduced()
	}

	if s.store != nil {
		err := s.store.SaveSummary(ctx, &store.SummaryRecord{
			ID:         id,
			Collection: result.Collection,
			CreatedAt:  time.Now(),
			Summary:    result.Summary,
		})
		if err != nil {
			return id, fmt.Errorf("failed to persist report: %w", err)
		}
	}

	s.logger.Info("report produced",
		zap.String("id", id),
		zap.String("collection", result.Collection),
		zap.Int("events", result.TotalEvents))
	return id, nil
}

// lookup returns a cached report, falling back to the store
func (s *Server) lookup(ctx context.Context, id string) (*aggregate.Result, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached.(*aggregate.Result), nil
	}
	if s.store == nil {
		return nil, ErrReportNotFound
	}

	rec, err := s.store.LoadSummary(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}

	result := &aggregate.Result{Collection: rec.Collection, Summary: rec.Summary}
	s.cache.Add(id, result)
	return result, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	collection := r.URL.Query().Get("collection")
	if collection == "" {
		collection = "default"
	}
	format := r.URL.Query().Get("format")

	result, err := s.newAggregator().ProcessReader(r.Body, collection, format)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorPayload{Message: err.Error()})
		return
	}

	id, err := s.publish(r.Context(), result)
	if err != nil {
		s.logger.Error("failed to publish report", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorPayload{Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ReportPayload{ID: id, Result: result})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := s.lookup(r.Context(), id)
	if errors.Is(err, ErrReportNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorPayload{Message: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorPayload{Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ReportPayload{ID: id, Result: result})
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := newClient(conn, s)

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
