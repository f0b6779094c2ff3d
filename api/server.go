// Package api exposes the runner over HTTP. The surface mirrors the
// library: submit (blocking or not), list with filter and order, get, stop,
// delete.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	scriptrunner "github.com/MaksGolikov/ScriptRunner"
)

// Server serves the script execution API.
type Server struct {
	runner *scriptrunner.Runner
	router *gin.Engine
}

// New builds a server around an existing runner. The caller keeps ownership
// of the runner and closes it after the server shuts down.
func New(runner *scriptrunner.Runner) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	s := &Server{
		runner: runner,
		router: router,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	scripts := s.router.Group("/scripts")
	scripts.POST("/execute", s.execute)
	scripts.GET("", s.list)
	scripts.GET("/:id", s.get)
	scripts.POST("/:id/stop", s.stop)
	scripts.DELETE("/:id", s.remove)
}

// Handler returns the http.Handler, mainly for tests and custom servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

type executeRequest struct {
	Script   string `json:"script"`
	Blocking bool   `json:"blocking"`
	Language string `json:"language"`
}

// execute submits a script. Blocking submissions respond 200 with the
// settled record; non-blocking respond 202 with the freshly queued one.
func (s *Server) execute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	var opts []scriptrunner.SubmitOption
	if req.Language != "" {
		opts = append(opts, scriptrunner.WithLanguage(req.Language))
	}

	if req.Blocking {
		snap, err := s.runner.SubmitWait(c.Request.Context(), req.Script, opts...)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
		return
	}

	snap, err := s.runner.Submit(c.Request.Context(), req.Script, opts...)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, snap)
}

func (s *Server) list(c *gin.Context) {
	snaps := s.runner.List(scriptrunner.ListOptions{
		Status:  c.Query("status"),
		OrderBy: c.Query("orderBy"),
	})
	c.JSON(http.StatusOK, snaps)
}

func (s *Server) get(c *gin.Context) {
	snap, err := s.runner.Get(parseID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) stop(c *gin.Context) {
	snap, err := s.runner.Stop(parseID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) remove(c *gin.Context) {
	if err := s.runner.Delete(parseID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// parseID returns the path id, or zero for garbage so the runner reports
// InvalidArgument through the usual path.
func parseID(c *gin.Context) int64 {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scriptrunner.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, scriptrunner.ErrNotFound):
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
