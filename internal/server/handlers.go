package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"volley/internal/runner"
	"volley/internal/storage"
)

func (s *Server) listHistory(c *gin.Context) {
	items, err := s.history.List()
	if err != nil {
		s.internalError(c, "listing history failed", err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// loadHistory hands back a stored config so the client can re-run it.
func (s *Server) loadHistory(c *gin.Context) {
	item, err := s.history.Get(c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Test history not found"})
		return
	}
	if err != nil {
		s.internalError(c, "loading history failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Test configuration loaded",
		"config":  item.Config,
	})
}

func (s *Server) deleteHistory(c *gin.Context) {
	err := s.history.Delete(c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Test history not found"})
		return
	}
	if err != nil {
		s.internalError(c, "deleting history failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Test history deleted"})
}

func (s *Server) clearHistory(c *gin.Context) {
	if err := s.history.Clear(); err != nil {
		s.internalError(c, "clearing history failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All test history cleared"})
}

func (s *Server) listTests(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tests": s.controller.Registry().IDs()})
}

func (s *Server) startTest(c *gin.Context) {
	var cfg runner.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.controller.Start(cfg, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"testId": id})
}

func (s *Server) getTest(c *gin.Context) {
	run, ok := s.controller.Registry().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Test not running"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"testId": run.ID(),
		"state":  run.State().String(),
		"config": run.Config(),
		"stats":  run.Snapshot(),
	})
}

// stopTest always answers 200; stopping an unknown or finished run is a no-op.
func (s *Server) stopTest(c *gin.Context) {
	id := c.Param("id")
	err := s.controller.Stop(id)
	c.JSON(http.StatusOK, gin.H{"testId": id, "stopped": err == nil})
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
