package daemon

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"streamjobs/internal/engine"
	"streamjobs/internal/flow"
	"streamjobs/internal/logger"
	"streamjobs/internal/model"
	"streamjobs/internal/report"
	"streamjobs/internal/repository"
	"streamjobs/internal/scanner"
	"streamjobs/internal/source"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// OwnerHeader carries the account id set by the fronting panel.
const OwnerHeader = "X-Owner-ID"

const ownerKey = "owner"

type Server struct {
	echo     *echo.Echo
	registry *engine.Registry
	flows    *flow.Factory
	sessions *SessionManager
	jobRepo  *repository.JobRepository
	port     int
	stopCh   chan struct{}
}

func NewServer(registry *engine.Registry, flows *flow.Factory, sessions *SessionManager, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		registry: registry,
		flows:    flows,
		sessions: sessions,
		jobRepo:  repository.NewJobRepository(),
		port:     port,
		stopCh:   make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.Use(requireOwner)

	// For the entire daemon
	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/stop", s.handleStop)

	// Jobs, one per owner and kind
	g := s.echo.Group("/jobs")
	g.GET("/history", s.handleHistory)
	g.POST("/:kind/start", s.handleStart)
	g.GET("/:kind/status", s.handleJobStatus)
	g.POST("/:kind/cancel", s.handleCancel)

	// Remote browsing
	f := s.echo.Group("/ftp")
	f.POST("/connect", s.handleConnect)
	f.POST("/list", s.handleList)
	f.POST("/scan-directory", s.handleScan)
	f.POST("/disconnect", s.handleDisconnect)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() {
	go func() {
		addr := ":" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

// Stop closes the listener, then cancels running jobs and waits for them
// within ctx.
func (s *Server) Stop(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.sessions.CloseAll()

	if shutdownErr := s.registry.Shutdown(ctx); shutdownErr != nil {
		err = errors.Join(err, shutdownErr)
	}

	return err
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func requireOwner(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		owner := c.Request().Header.Get(OwnerHeader)
		if owner == "" {
			return c.JSON(http.StatusUnauthorized, map[string]any{
				"success": false,
				"error":   "missing " + OwnerHeader + " header",
			})
		}

		c.Set(ownerKey, owner)
		return next(c)
	}
}

func ownerOf(c echo.Context) string {
	owner, _ := c.Get(ownerKey).(string)
	return owner
}

func unknownKind(c echo.Context, err error) error {
	return c.JSON(http.StatusNotFound, map[string]any{"success": false, "error": err.Error()})
}

func (s *Server) handleStatus(c echo.Context) error {
	owner := ownerOf(c)
	active := s.registry.Active()

	jobs := make([]model.StatusResponse, 0)
	for _, snap := range active {
		if snap.OwnerID == owner {
			jobs = append(jobs, report.Project(snap))
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"jobs":   jobs,
		"active": len(active),
	})
}

func (s *Server) handleStop(c echo.Context) error {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleStart(c echo.Context) error {
	kind, err := model.ParseKind(c.Param("kind"))
	if err != nil {
		return unknownKind(c, err)
	}

	var req flow.StartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": "invalid request body"})
	}

	f, err := s.flows.New(kind, req)
	if err != nil {
		if validationErr, ok := errors.AsType[*flow.ValidationError](err); ok {
			return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": validationErr.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
	}

	job, err := s.registry.Start(c.Request().Context(), ownerOf(c), f)
	if err != nil {
		if errors.Is(err, engine.ErrAlreadyRunning) {
			return c.JSON(http.StatusConflict, map[string]any{"success": false, "alreadyRunning": true})
		}
		if errors.Is(err, engine.ErrShuttingDown) {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"success": false, "error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
	}

	return c.JSON(http.StatusCreated, map[string]any{"success": true, "jobId": job.ID()})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	kind, err := model.ParseKind(c.Param("kind"))
	if err != nil {
		return unknownKind(c, err)
	}

	job, err := s.registry.Get(ownerOf(c), kind)
	if errors.Is(err, engine.ErrJobNotFound) {
		return c.JSON(http.StatusOK, report.Idle(kind))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, report.Project(job.Snapshot()))
}

func (s *Server) handleCancel(c echo.Context) error {
	kind, err := model.ParseKind(c.Param("kind"))
	if err != nil {
		return unknownKind(c, err)
	}

	if err := s.registry.RequestCancel(ownerOf(c), kind); err != nil {
		if errors.Is(err, engine.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, map[string]any{"success": false, "error": "no job to cancel"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

type historyEntry struct {
	model.JobRecord
	Errors []model.ItemError `json:"errors"`
}

func (s *Server) handleHistory(c echo.Context) error {
	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil && parsed > 0 {
			n = parsed
		}
	}

	records, err := s.jobRepo.GetRecent(ownerOf(c), n)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	stats, err := s.jobRepo.GetStats(ownerOf(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	entries := make([]historyEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, historyEntry{JobRecord: r, Errors: repository.DecodeErrors(r)})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"jobs":  entries,
		"stats": stats,
	})
}

type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleConnect(c echo.Context) error {
	var creds source.Credentials
	if err := c.Bind(&creds); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": "invalid request body"})
	}

	entries, err := s.sessions.Connect(c.Request().Context(), ownerOf(c), creds)
	if err != nil {
		return browseError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"path":    source.RootPath(creds),
		"entries": s.scanner().MediaOnly(entries),
	})
}

func (s *Server) handleList(c echo.Context) error {
	var req pathRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": "invalid request body"})
	}

	entries, err := s.sessions.List(c.Request().Context(), ownerOf(c), req.Path)
	if err != nil {
		return browseError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"path":    req.Path,
		"entries": s.scanner().MediaOnly(entries),
	})
}

func (s *Server) handleScan(c echo.Context) error {
	var req pathRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": "invalid request body"})
	}

	result, err := s.sessions.Scan(c.Request().Context(), ownerOf(c), req.Path, s.scanner())
	if err != nil {
		return browseError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"videos":      result.Entries,
		"total":       len(result.Entries),
		"directories": result.Directories,
		"partial":     result.Partial,
		"reason":      result.Reason,
		"failures":    result.Failures,
	})
}

func (s *Server) handleDisconnect(c echo.Context) error {
	if err := s.sessions.Disconnect(ownerOf(c)); err != nil && !errors.Is(err, ErrNoSession) {
		return browseError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) scanner() *scanner.Scanner {
	return scanner.New(s.flows.Deps().Scan)
}

func browseError(c echo.Context, err error) error {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, ErrNoSession):
		status = http.StatusConflict
	case errors.Is(err, source.ErrInvalidCredentials):
		status = http.StatusBadRequest
	case source.IsConnectionError(err):
		status = http.StatusBadGateway
	default:
		if _, ok := errors.AsType[*source.PathError](err); ok {
			status = http.StatusNotFound
		}
	}

	return c.JSON(status, map[string]any{"success": false, "error": err.Error()})
}
