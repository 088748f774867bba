// Package fileserver implements the Remote File Server (spec.md §4.2):
// the HTTP surface a storage.Remote client talks to, backing the "remote"
// artifact-store backend with a plain local directory. Adapted from the
// donor's pkg/fileserver/handler.go, which serves an abstract Storage
// interface; this version serves the canonical artifact layout directly
// and adds the upload side the donor's read-only handler never needed.
package fileserver

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jonchurch/gnv-city-meetings/internal/artifact"
	"github.com/jonchurch/gnv-city-meetings/internal/metrics"
)

// Handler serves artifacts out of root, the same local directory a
// storage.Local backend would use, so a fileserver process and a
// storage.Local-backed process agree on layout without any translation.
type Handler struct {
	root      string
	log       *logrus.Logger
	startedAt time.Time
}

func New(root string, log *logrus.Logger) *Handler {
	return &Handler{root: root, log: log, startedAt: time.Now()}
}

var meetingIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// RegisterRoutes wires every route this server exposes onto router, in the
// same style as the donor's handlers.Handler.RegisterRoutes.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/files/*path", h.serveFile)
	router.HEAD("/files/*path", h.serveFile)
	router.POST("/upload/:kind/:meetingId", h.upload)
	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// serveFile serves a file by its relative path under root. gin's wildcard
// route param includes the leading slash; clean it before joining so a
// request cannot escape root via "../" segments.
func (h *Handler) serveFile(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("path"), "/")
	clean := filepath.Clean(rel)
	if clean == "." {
		metrics.FileServerRequests.WithLabelValues("files", "400").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
		return
	}
	if strings.HasPrefix(clean, "..") {
		metrics.FileServerRequests.WithLabelValues("files", "403").Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "path escapes storage root"})
		return
	}

	full := filepath.Join(h.root, clean)
	if !strings.HasPrefix(full, filepath.Clean(h.root)+string(filepath.Separator)) {
		metrics.FileServerRequests.WithLabelValues("files", "403").Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "path escapes storage root"})
		return
	}

	if _, err := filepath.Abs(full); err != nil {
		metrics.FileServerRequests.WithLabelValues("files", "500").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	// http.ServeFile (invoked via gin's File helper) handles Range
	// requests, Content-Type sniffing, and 404s for us.
	c.File(full)
	metrics.FileServerRequests.WithLabelValues("files", fmt.Sprintf("%d", c.Writer.Status())).Inc()
}

// upload accepts a multipart file for the artifact named by :kind and
// :meetingId, writing it to the canonical path artifact.PathFor computes
// rather than any path the client supplies — the kind/meetingId pair is
// the only client-controlled input that reaches the filesystem.
func (h *Handler) upload(c *gin.Context) {
	kind, ok := artifact.ParseKind(c.Param("kind"))
	if !ok {
		metrics.FileServerRequests.WithLabelValues("upload", "400").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown artifact kind"})
		return
	}

	meetingID := c.Param("meetingId")
	if !meetingIDPattern.MatchString(meetingID) {
		metrics.FileServerRequests.WithLabelValues("upload", "400").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid meeting id"})
		return
	}

	relPath, err := artifact.PathFor(kind, meetingID)
	if err != nil {
		metrics.FileServerRequests.WithLabelValues("upload", "400").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		metrics.FileServerRequests.WithLabelValues("upload", "400").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	dest := filepath.Join(h.root, relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{"meetingId": meetingID, "kind": kind}).
			Error("failed to create artifact directory")
		metrics.FileServerRequests.WithLabelValues("upload", "500").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file"})
		return
	}
	if err := c.SaveUploadedFile(fileHeader, dest); err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{"meetingId": meetingID, "kind": kind}).
			Error("failed to save uploaded artifact")
		metrics.FileServerRequests.WithLabelValues("upload", "500").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file"})
		return
	}

	metrics.FileServerRequests.WithLabelValues("upload", "200").Inc()
	c.JSON(http.StatusOK, gin.H{"success": true, "path": relPath})
}

func (h *Handler) health(c *gin.Context) {
	metrics.FileServerRequests.WithLabelValues("health", "200").Inc()
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"storage_root":   h.root,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}
