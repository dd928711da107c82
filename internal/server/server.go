package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ponytojas/go-cr310-ingest/config"
	"github.com/ponytojas/go-cr310-ingest/internal/ingest"
	"github.com/ponytojas/go-cr310-ingest/internal/models"
)

// Server exposes the ingest and query services over HTTP.
type Server struct {
	config   *config.Config
	ingester Ingester
	querier  Querier
	health   Pinger
	logger   *zap.Logger
	router   *gin.Engine
}

// NewServer builds the router. An ingester and a querier are required.
func NewServer(cfg *config.Config, opts ...ConfigOption) (*Server, error) {
	o := &options{gatherer: prometheus.DefaultGatherer}
	for _, option := range opts {
		if err := option(o); err != nil {
			return nil, err
		}
	}
	if o.ingester == nil || o.querier == nil {
		return nil, errors.New("server needs an ingester and a querier")
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(o.logger, cfg.Server.SlowRequest))

	server := &Server{
		config:   cfg,
		ingester: o.ingester,
		querier:  o.querier,
		health:   o.health,
		logger:   o.logger.With(zap.String("component", "http")),
		router:   router,
	}

	server.setupRoutes(o.gatherer)
	return server, nil
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)

	// Metrics endpoint
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API routes
	api := s.router.Group("/api/v1")
	{
		api.POST("/readings", s.handleIngest)
		api.GET("/readings", s.handleQuery)
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{
		Success:   true,
		Message:   "CR310 Datalogger API is running",
		Code:      http.StatusOK,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusServiceUnavailable, APIResponse{
			Success:   false,
			Message:   "Database connection failed",
			Code:      http.StatusServiceUnavailable,
			Timestamp: time.Now().UTC(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.health.Ping(ctx); err != nil {
		s.logger.Error("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, APIResponse{
			Success:   false,
			Message:   "Database connection error",
			Code:      http.StatusServiceUnavailable,
			Timestamp: time.Now().UTC(),
		})
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success:   true,
		Message:   "Service is healthy",
		Code:      http.StatusOK,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleIngest(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil || payload == nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success:   false,
			Message:   "Invalid structure: body must be a JSON object",
			Code:      http.StatusBadRequest,
			Error:     "invalid_json",
			Timestamp: time.Now().UTC(),
		})
		return
	}

	res, err := s.ingester.Ingest(c.Request.Context(), payload)
	if err != nil {
		s.writeError(c, err, "Internal server error while processing reading")
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success:   true,
		Message:   "Reading stored successfully",
		Code:      http.StatusOK,
		ID:        res.Reading.ID,
		Warnings:  res.Warnings,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	params := ingest.QueryParams{
		EquipmentID: c.Query("equipo"),
		StartDate:   c.Query("start_date"),
		EndDate:     c.Query("end_date"),
		Limit:       c.Query("limit"),
		Offset:      c.Query("offset"),
	}

	page, err := s.querier.Query(c.Request.Context(), params)
	if err != nil {
		s.writeError(c, err, "Error retrieving readings from database")
		return
	}

	c.JSON(http.StatusOK, ReadingsListResponse{
		Success:   true,
		Message:   fmt.Sprintf("Retrieved %d of %d readings%s", len(page.Readings), page.Total, describeFilters(params)),
		Count:     len(page.Readings),
		Total:     page.Total,
		Data:      page.Readings,
		Timestamp: time.Now().UTC(),
	})
}

// writeError renders client errors verbatim and hides everything else
// behind fallback.
func (s *Server) writeError(c *gin.Context, err error, fallback string) {
	var ce models.ClientError
	if errors.As(err, &ce) {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success:   false,
			Message:   err.Error(),
			Code:      http.StatusBadRequest,
			Error:     ce.Code(),
			Errors:    ce.Details(),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	s.logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, APIResponse{
		Success:   false,
		Message:   fallback,
		Code:      http.StatusInternalServerError,
		Error:     ingest.OutcomeUnavailable,
		Timestamp: time.Now().UTC(),
	})
}

func describeFilters(p ingest.QueryParams) string {
	var filters []string
	if p.EquipmentID != "" {
		filters = append(filters, "equipo="+p.EquipmentID)
	}
	if p.StartDate != "" {
		filters = append(filters, "from "+p.StartDate)
	}
	if p.EndDate != "" {
		filters = append(filters, "to "+p.EndDate)
	}
	if len(filters) == 0 {
		return ""
	}
	return " with filters: " + strings.Join(filters, ", ")
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.config.GetServerAddr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP shutdown did not complete", zap.Error(err))
		}
	}()

	s.logger.Info("Server starting", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
