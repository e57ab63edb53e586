// Package server exposes the scheduler over HTTP and WebSocket. The
// HTTP API covers upload, submission, status, cancellation, and
// deletion; the WebSocket endpoint streams per-job progress.
package server

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mediacut/highlightd/internal/config"
	"github.com/mediacut/highlightd/internal/logger"
	"github.com/mediacut/highlightd/internal/types"
)

// JobService is the slice of the scheduler the transport needs.
type JobService interface {
	Submit(payload types.JobPayload) (types.Job, error)
	Cancel(id string) bool
	Status(id string) (types.Job, bool)
	Delete(id string) bool
}

type Server struct {
	cfg  config.Config
	jobs JobService
	hub  *Hub
	log  *logger.Logger
}

func New(cfg config.Config, jobs JobService, hub *Hub, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{cfg: cfg, jobs: jobs, hub: hub, log: log}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	if s.cfg.Mode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type"},
	}))

	r.GET("/api/healthz", s.healthz)
	r.POST("/api/upload", s.upload)
	r.POST("/api/process", s.process)
	r.GET("/api/status/:id", s.status)
	r.POST("/api/cancel/:id", s.cancelJob)
	r.DELETE("/api/jobs/:id", s.deleteJob)
	r.GET("/ws", s.serveWS)
	return r
}

// WSRouter builds a standalone engine carrying only the WebSocket
// endpoint, for deployments that keep push traffic on its own port.
func (s *Server) WSRouter() *gin.Engine {
	if s.cfg.Mode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", s.serveWS)
	return r
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// upload saves one multipart file into the media directory under a
// sanitized name and returns the name the caller should reference in
// a process request.
func (s *Server) upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	name := SanitizeFilename(file.Filename)
	if !s.cfg.SupportedExt(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported video format"})
		return
	}
	dst, err := SafeJoin(s.cfg.MediaDir, name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
		return
	}
	if err := os.MkdirAll(s.cfg.MediaDir, 0o755); err != nil {
		s.log.Error("create media dir failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}
	if err := c.SaveUploadedFile(file, dst); err != nil {
		s.log.Error("save upload failed", "file", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	s.log.Info("file uploaded", "file", name, "size", file.Size)
	c.JSON(http.StatusOK, gin.H{"filename": name})
}

type processRequest struct {
	Videos          []string `json:"videos" binding:"required"`
	Text            string   `json:"text"`
	CaptionEnabled  bool     `json:"captionEnabled"`
	TransferEnabled bool     `json:"transferEnabled"`
}

// process submits a job over previously uploaded files. Video names are
// resolved against the media directory; a name that escapes it or does
// not exist rejects the whole request.
func (s *Server) process(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload, err := s.resolvePayload(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.jobs.Submit(payload)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskId": job.ID, "status": job.Status})
}

func (s *Server) resolvePayload(req processRequest) (types.JobPayload, error) {
	payload := types.JobPayload{
		Text:            req.Text,
		CaptionEnabled:  req.CaptionEnabled,
		TransferEnabled: req.TransferEnabled,
	}
	for _, raw := range req.Videos {
		name := SanitizeFilename(raw)
		path, err := SafeJoin(s.cfg.MediaDir, name)
		if err != nil {
			return types.JobPayload{}, err
		}
		if _, err := os.Stat(path); err != nil {
			return types.JobPayload{}, &notFoundError{name: name}
		}
		payload.Videos = append(payload.Videos, types.VideoRef{Filename: name, Path: path})
	}
	return payload, nil
}

type notFoundError struct{ name string }

func (e *notFoundError) Error() string { return "video not uploaded: " + e.name }

func (s *Server) status(c *gin.Context) {
	job, ok := s.jobs.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) cancelJob(c *gin.Context) {
	if !s.jobs.Cancel(c.Param("id")) {
		c.JSON(http.StatusConflict, gin.H{"error": "job is not cancellable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (s *Server) deleteJob(c *gin.Context) {
	id := c.Param("id")
	job, ok := s.jobs.Status(id)
	if !s.jobs.Delete(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "job is still running"})
		return
	}
	// artifacts go with the record
	if ok && job.OutputDir != "" {
		if IsWithinAllowed(mustAbs(s.cfg.OutputDir), mustAbs(job.OutputDir)) {
			if err := os.RemoveAll(job.OutputDir); err != nil {
				s.log.Warn("remove output dir failed", "job", id, "error", err)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func mustAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
