// Package server exposes the filing pipeline as a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edgarqa/internal/answer"
	"edgarqa/internal/apperr"
	"edgarqa/internal/domain"
	"edgarqa/internal/logger"
	"edgarqa/internal/metrics"
	"edgarqa/internal/service"
)

const RequestIDHeader = "X-Request-ID"

// Analyzer is the part of the service the API serves.
type Analyzer interface {
	IndexFiling(ctx context.Context, id domain.Identity) (*service.IndexReport, error)
	Ask(ctx context.Context, id domain.Identity, question string) (answer.Answer, error)
	AnalyzeFiling(ctx context.Context, id domain.Identity) (*service.Report, error)
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Server struct {
	engine   *gin.Engine
	analyzer Analyzer
	cfg      Config
}

// New builds the router. Metrics are served from gatherer when non-nil.
func New(analyzer Analyzer, m *metrics.Metrics, gatherer prometheus.Gatherer, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID())
	if m != nil {
		engine.Use(m.Middleware())
	}
	s := &Server{engine: engine, analyzer: analyzer, cfg: cfg}

	engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	v1 := engine.Group("/api/v1")
	{
		v1.POST("/index", s.index)
		v1.POST("/ask", s.ask)
		v1.POST("/analyze", s.analyze)
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "api server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logger.WithRunID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

type filingRequest struct {
	CompanyID  string `json:"company_id" binding:"required"`
	FiscalYear int    `json:"fiscal_year" binding:"required"`
	Split      string `json:"dataset_split" binding:"required"`
}

func (r filingRequest) identity() (domain.Identity, error) {
	split, err := domain.ParseSplit(r.Split)
	if err != nil {
		return domain.Identity{}, err
	}
	id := domain.Identity{CompanyID: r.CompanyID, FiscalYear: r.FiscalYear, Split: split}
	return id, id.Validate()
}

type askRequest struct {
	filingRequest
	Question string `json:"question" binding:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", err, "path", c.FullPath())
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error(), Kind: string(apperr.KindOf(err))})
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		fail(c, apperr.Wrap(err, apperr.KindInvalidInput, "decode request"))
		return false
	}
	return true
}

func (s *Server) index(c *gin.Context) {
	var req filingRequest
	if !bind(c, &req) {
		return
	}
	id, err := req.identity()
	if err != nil {
		fail(c, apperr.Wrap(err, apperr.KindInvalidInput, "decode request"))
		return
	}
	report, err := s.analyzer.IndexFiling(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) ask(c *gin.Context) {
	var req askRequest
	if !bind(c, &req) {
		return
	}
	id, err := req.identity()
	if err != nil {
		fail(c, apperr.Wrap(err, apperr.KindInvalidInput, "decode request"))
		return
	}
	a, err := s.analyzer.Ask(c.Request.Context(), id, req.Question)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) analyze(c *gin.Context) {
	var req filingRequest
	if !bind(c, &req) {
		return
	}
	id, err := req.identity()
	if err != nil {
		fail(c, apperr.Wrap(err, apperr.KindInvalidInput, "decode request"))
		return
	}
	report, err := s.analyzer.AnalyzeFiling(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
