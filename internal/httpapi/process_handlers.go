package httpapi

import (
	"net/http"
	"os"
	"path/filepath"

	"ledger-config/internal/process"

	"github.com/gin-gonic/gin"
)

type ProcessHandlers struct {
	Processes *process.Service
}

func (h ProcessHandlers) Register(rg *gin.RouterGroup, read gin.HandlerFunc) {
	g := rg.Group("/process-requests")
	g.GET("/:id", read, h.Get)
	g.GET("/:id/log", read, h.Log)
}

func (h ProcessHandlers) Get(c *gin.Context) {
	req, err := h.Processes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, "process request fetched successfully", req)
}

// Log downloads the row log of a run.
func (h ProcessHandlers) Log(c *gin.Context) {
	req, err := h.Processes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	if req.LogFile == "" {
		Fail(c, http.StatusNotFound, "no log file for this process request", nil)
		return
	}
	if _, err := os.Stat(req.LogFile); err != nil {
		Fail(c, http.StatusNotFound, "log file is no longer available", nil)
		return
	}
	c.FileAttachment(req.LogFile, filepath.Base(req.LogFile))
}
