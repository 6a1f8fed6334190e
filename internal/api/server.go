// Package api provides the HTTP and WebSocket server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/atlas-desktop/risk-sim/internal/metrics"
	"github.com/atlas-desktop/risk-sim/internal/montecarlo"
	"github.com/atlas-desktop/risk-sim/pkg/types"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const evictInterval = time.Minute

// Server is the HTTP/WebSocket API server
type Server struct {
	logger     *zap.Logger
	config     *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	simulator  *montecarlo.Simulator
	metrics    *metrics.Metrics
	hub        *Hub
	runs       *RunRegistry
	limiter    *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
}

// SimulationRequest is the body of run and chart submissions.
type SimulationRequest struct {
	Params      types.StrategyParams `json:"params"`
	Simulations int                  `json:"simulations"`
}

// ErrorResponse is returned for every rejected request.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Kind   string   `json:"kind,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

// NewServer creates a new API server and starts its websocket hub and run
// eviction loop. Call Stop to release them.
func NewServer(logger *zap.Logger, config *types.ServerConfig, simulator *montecarlo.Simulator, m *metrics.Metrics) *Server {
	if config.WebSocketPath == "" {
		config.WebSocketPath = "/ws"
	}
	ctx, cancel := context.WithCancel(context.Background())

	server := &Server{
		logger:    logger,
		config:    config,
		router:    mux.NewRouter(),
		simulator: simulator,
		metrics:   m,
		hub:       NewHub(logger, m),
		runs:      NewRunRegistry(),
		limiter:   rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}

	server.setupRoutes()
	go server.hub.Run(ctx)
	go server.evictLoop(ctx)
	return server
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/simulations", s.handleCreateSimulation).Methods("POST")
	api.HandleFunc("/simulations/{id}", s.handleGetSimulation).Methods("GET")
	api.HandleFunc("/simulations/{id}/cancel", s.handleCancelSimulation).Methods("POST")
	api.HandleFunc("/chart-paths", s.handleChartPaths).Methods("POST")

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)
}

// Router returns the HTTP router.
func (s *Server) Router() *mux.Router { return s.router }

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Runs returns the run registry.
func (s *Server) Runs() *RunRegistry { return s.runs }

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting API server", zap.String("addr", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop cancels running simulations, closes websocket clients and shuts the
// HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.runs.CancelAll()
	s.cancel()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.runs.Evict(now, s.config.RunRetention); n > 0 {
				s.logger.Debug("Evicted finished runs", zap.Int("count", n))
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var vErr *types.ValidationError
	if errors.As(err, &vErr) {
		resp.Fields = vErr.Fields
	}
	if kind := montecarlo.KindOf(err); kind != "" {
		resp.Kind = string(kind)
	}
	writeJSON(w, status, resp)
}

// decodeRequest parses and validates a simulation request body.
func (s *Server) decodeRequest(r *http.Request) (*SimulationRequest, error) {
	var req SimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if req.Simulations < 0 || req.Simulations > s.config.MaxSimulations {
		return nil, fmt.Errorf("simulations must be between 0 and %d, got %d", s.config.MaxSimulations, req.Simulations)
	}
	if err := req.Params.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"time":      time.Now().Unix(),
		"runs":      s.runs.Len(),
		"wsClients": s.hub.ClientCount(),
	})
}

// handleCreateSimulation starts a pooled run in the background.
func (s *Server) handleCreateSimulation(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		s.metrics.RateLimited()
		writeError(w, http.StatusTooManyRequests, errors.New("too many simulation requests"))
		return
	}

	req, err := s.decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	totalBatches := s.simulator.TotalBatches(req.Simulations)
	run := s.runs.Create(req.Params, req.Simulations, totalBatches, cancel)

	s.logger.Info("Simulation submitted",
		zap.String("id", run.ID),
		zap.Int("simulations", req.Simulations),
		zap.Int("totalBatches", totalBatches),
	)

	go s.execute(ctx, cancel, run.ID, req)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":           run.ID,
		"status":       run.Status,
		"totalBatches": totalBatches,
	})
}

// execute runs one submission to completion and publishes its updates.
func (s *Server) execute(ctx context.Context, cancel context.CancelFunc, id string, req *SimulationRequest) {
	defer cancel()
	channel := RunChannel(id)

	result, err := s.simulator.Run(ctx, req.Params, req.Simulations, func(p types.Progress) {
		s.runs.UpdateProgress(id, p)
		s.hub.Publish(channel, MsgTypeProgress, p)
	})
	if err != nil {
		run, ok := s.runs.Fail(id, err)
		if !ok {
			return
		}
		s.logger.Warn("Simulation failed", zap.String("id", id), zap.Error(err))
		s.hub.Publish(channel, MsgTypeFailed, newRunView(run))
		return
	}

	run, ok := s.runs.Complete(id, result)
	if !ok {
		return
	}
	s.logger.Info("Simulation completed",
		zap.String("id", id),
		zap.Float64("median", result.Summary.Median),
	)
	s.hub.Publish(channel, MsgTypeCompleted, newRunView(run))
}

// handleGetSimulation returns a run's status and, once finished, its result.
func (s *Server) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, ok := s.runs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrRunNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newRunView(run))
}

// handleCancelSimulation cancels a running run.
func (s *Server) handleCancelSimulation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	switch err := s.runs.Cancel(id); {
	case errors.Is(err, ErrRunNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ErrRunNotRunning):
		writeError(w, http.StatusConflict, err)
	default:
		s.logger.Info("Simulation cancel requested", zap.String("id", id))
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"id":     id,
			"status": "cancelling",
		})
	}
}

// handleChartPaths samples chart paths synchronously.
func (s *Server) handleChartPaths(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	chart, err := s.simulator.SampleChartPaths(r.Context(), req.Params, req.Simulations)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"paths":  s.simulator.ChartSampleSize(req.Simulations),
		"series": types.ChartSeries,
		"chart":  ChartView(chart),
	})
}

// handleWebSocket upgrades the connection and hands it to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	if !s.hub.Serve(conn) {
		conn.Close()
	}
}
