package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/svcpanel/internal/supervisor"
)

// Router provides embeddable HTTP handlers for the service panel.
// Endpoints:
//
//	GET  {basePath}/services         list configured services
//	GET  {basePath}/status           query: name=... (single) or none (all)
//	GET  {basePath}/log              query: n=... (tail count, optional)
//	POST {basePath}/start            query: name=...
//	POST {basePath}/stop             query: name=...
//	POST {basePath}/start-all        query: auto=1 to restrict to auto-start services
//	POST {basePath}/stop-all
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      *supervisor.Supervisor
	basePath string
}

// NewRouter constructs a Router with configurable basePath.
// Example basePath: "/api" results in /api/start, /api/stop, /api/status.
func NewRouter(sup *supervisor.Supervisor, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/services", r.handleServices)
	group.GET("/status", r.handleStatus)
	group.GET("/log", r.handleLog)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/start-all", r.handleStartAll)
	group.POST("/stop-all", r.handleStopAll)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down via http.Server's Shutdown or Close.
func NewServer(addr, basePath string, sup *supervisor.Supervisor) (*http.Server, error) {
	r := NewRouter(sup, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

func statusCode(err error) int {
	var unknown *supervisor.UnknownServiceError
	if errors.As(err, &unknown) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func (r *Router) handleServices(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Definitions())
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusOK, r.sup.StatusAll())
		return
	}
	st, err := r.sup.StatusOf(name)
	if err != nil {
		writeJSON(c, statusCode(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleLog(c *gin.Context) {
	n := 0
	if s := c.Query("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid n: must be a non-negative integer"})
			return
		}
		n = v
	}
	if n > 0 {
		writeJSON(c, http.StatusOK, r.sup.Activity().Tail(n))
		return
	}
	writeJSON(c, http.StatusOK, r.sup.Activity().Snapshot())
}

func (r *Router) handleStart(c *gin.Context) {
	name := c.Query("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required: allowed [A-Za-z0-9._-]"})
		return
	}
	st, err := r.sup.Start(name)
	if err != nil {
		writeJSON(c, statusCode(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleStop(c *gin.Context) {
	name := c.Query("name")
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required: allowed [A-Za-z0-9._-]"})
		return
	}
	st, err := r.sup.Stop(name)
	if err != nil {
		var timeout *supervisor.TerminationTimeoutError
		if errors.As(err, &timeout) {
			// Forced kill still ends in a stopped service; report it, not a failure.
			writeJSON(c, http.StatusOK, gin.H{"status": st, "warning": err.Error()})
			return
		}
		writeJSON(c, statusCode(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleStartAll(c *gin.Context) {
	autoOnly := c.Query("auto") == "1" || c.Query("auto") == "true"
	writeJSON(c, http.StatusOK, r.sup.StartAll(c.Request.Context(), autoOnly))
}

func (r *Router) handleStopAll(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.StopAll(c.Request.Context()))
}
