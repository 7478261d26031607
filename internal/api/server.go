package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"combolift/domain/combo"
	"combolift/internal"
	"combolift/internal/errors"
	"combolift/internal/report"
	"combolift/ports"

	"github.com/gin-gonic/gin"
)

// DefaultResultLimit caps result listings when no limit is given
const DefaultResultLimit = 100

// Runner executes one analysis run
type Runner interface {
	Run(ctx context.Context, analysisType combo.AnalysisType) (*combo.RunReport, error)
}

// Server exposes runs, results and reports over HTTP
type Server struct {
	router *gin.Engine
	runner Runner
	repo   ports.PatternRepository
	logger *internal.Logger

	// running holds one entry per analysis type with a run in flight
	running sync.Map
}

// NewServer wires the routes
func NewServer(runner Runner, repo ports.PatternRepository) *Server {
	s := &Server{
		router: gin.New(),
		runner: runner,
		repo:   repo,
		logger: internal.DefaultLogger.With("api"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("%s %s -> %d in %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	})
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	analyses := s.router.Group("/api/analyses")
	analyses.GET("", s.handleListAnalyses)

	typed := analyses.Group("/:type", s.resolveAnalysisType)
	typed.POST("/runs", s.handleStartRun)
	typed.GET("/runs/latest", s.handleLatestRun)
	typed.GET("/results", s.handleListResults)
	typed.GET("/report", s.handleReport)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListAnalyses(c *gin.Context) {
	types := combo.AnalysisTypes()
	out := make([]gin.H, 0, len(types))
	for _, t := range types {
		out = append(out, gin.H{"analysis_type": t, "entity_kind": t.EntityKind()})
	}
	c.JSON(http.StatusOK, gin.H{"analyses": out})
}

// resolveAnalysisType validates the :type path segment for every typed route
func (s *Server) resolveAnalysisType(c *gin.Context) {
	t, err := combo.ParseAnalysisType(c.Param("type"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Set("analysis_type", t)
	c.Next()
}

func analysisType(c *gin.Context) combo.AnalysisType {
	return c.MustGet("analysis_type").(combo.AnalysisType)
}

// handleStartRun runs the analysis synchronously and returns its report.
// A second request for a type whose run is in flight gets 409.
func (s *Server) handleStartRun(c *gin.Context) {
	t := analysisType(c)
	if _, busy := s.running.LoadOrStore(t, struct{}{}); busy {
		c.JSON(http.StatusConflict, gin.H{"error": "a run for " + string(t) + " is already in progress"})
		return
	}
	defer s.running.Delete(t)

	rep, err := s.runner.Run(c.Request.Context(), t)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleLatestRun(c *gin.Context) {
	t := analysisType(c)
	run, err := s.repo.LatestRun(c.Request.Context(), t)
	if err != nil {
		s.writeError(c, errors.DatabaseError("failed to load latest run", err))
		return
	}
	if run == nil {
		s.writeError(c, errors.NotFound("run for "+string(t)))
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleListResults(c *gin.Context) {
	t := analysisType(c)
	limit := DefaultResultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(c, errors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	results, err := s.repo.ListResults(c.Request.Context(), t, limit)
	if err != nil {
		s.writeError(c, errors.DatabaseError("failed to list results", err))
		return
	}
	if results == nil {
		results = []combo.CombinationResult{}
	}
	c.JSON(http.StatusOK, gin.H{"analysis_type": t, "count": len(results), "results": results})
}

// handleReport renders the latest run as markdown, or HTML with ?format=html
func (s *Server) handleReport(c *gin.Context) {
	t := analysisType(c)
	ctx := c.Request.Context()

	run, err := s.repo.LatestRun(ctx, t)
	if err != nil {
		s.writeError(c, errors.DatabaseError("failed to load latest run", err))
		return
	}
	results, err := s.repo.ListResults(ctx, t, report.DefaultTop*5)
	if err != nil {
		s.writeError(c, errors.DatabaseError("failed to list results", err))
		return
	}

	md := report.Markdown(run, results, report.DefaultTop)
	switch c.DefaultQuery("format", "markdown") {
	case "html":
		c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML(md))
	case "markdown", "md":
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
	default:
		s.writeError(c, errors.InvalidInput("format must be markdown or html"))
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func statusFor(code string) int {
	switch code {
	case errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeUpstreamIO:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
