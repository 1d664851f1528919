// Package server provides an embeddable HTTP surface over a running
// coordinator: a status view plus local injection of the activation
// calls the bus would normally deliver. It is intended for loopback
// debugging and automation, not for exposure.
package server

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sailfishos-mirror/kdbusaddons/internal/bus"
	"github.com/sailfishos-mirror/kdbusaddons/internal/service"
)

// Router provides embeddable HTTP handlers for a coordinator.
// Endpoints:
//
//	GET  {basePath}/status
//	POST {basePath}/activate      body: {"platform_data": {...}}
//	POST {basePath}/open          body: {"uris": [...], "platform_data": {...}}
//	POST {basePath}/action        body: {"name": "...", "parameter": [...], "platform_data": {...}}
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	svc      *service.Service
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
func NewRouter(svc *service.Service, basePath string) *Router {
	return &Router{svc: svc, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/activate", r.handleActivate)
	group.POST("/open", r.handleOpen)
	group.POST("/action", r.handleAction)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, svc *service.Service) (*http.Server, error) {
	r := NewRouter(svc, basePath)
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

type okResp struct {
	OK bool `json:"ok"`
}

type statusResp struct {
	Service    string `json:"service"`
	State      string `json:"state"`
	Registered bool   `json:"registered"`
	PID        int    `json:"pid"`
	ExitValue  int    `json:"exit_value"`
	Error      string `json:"error,omitempty"`
}

type activateReq struct {
	PlatformData map[string]any `json:"platform_data"`
}

type openReq struct {
	URIs         []string       `json:"uris"`
	PlatformData map[string]any `json:"platform_data"`
}

type actionReq struct {
	Name         string         `json:"name"`
	Parameter    []any          `json:"parameter"`
	PlatformData map[string]any `json:"platform_data"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, statusResp{
		Service:    r.svc.Name(),
		State:      r.svc.State().String(),
		Registered: r.svc.IsRegistered(),
		PID:        os.Getpid(),
		ExitValue:  r.svc.ExitValue(),
		Error:      r.svc.ErrorMessage(),
	})
}

func (r *Router) handleActivate(c *gin.Context) {
	var req activateReq
	if err := bindOptionalJSON(c, &req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	r.svc.BusHandlers().Activate(bus.PlatformData(req.PlatformData))
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleOpen(c *gin.Context) {
	var req openReq
	if err := bindOptionalJSON(c, &req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if len(req.URIs) == 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "uris required"})
		return
	}
	r.svc.BusHandlers().Open(req.URIs, bus.PlatformData(req.PlatformData))
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleAction(c *gin.Context) {
	var req actionReq
	if err := bindOptionalJSON(c, &req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name required"})
		return
	}
	r.svc.BusHandlers().ActivateAction(req.Name, req.Parameter, bus.PlatformData(req.PlatformData))
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
