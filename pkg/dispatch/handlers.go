package dispatch

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/SERDSDDAM/SurpadClone/pkg/pipeline"
	"github.com/SERDSDDAM/SurpadClone/pkg/queue"
	"github.com/SERDSDDAM/SurpadClone/pkg/store"
)

// NewLayerID mints the default layer id for uploads that do not name
// one: a unix timestamp plus a short random suffix, readable in bucket
// listings while still collision-safe.
func NewLayerID() string {
	return fmt.Sprintf("layer_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
}

type enqueueResponse struct {
	JobID   string `json:"job_id"`
	LayerID string `json:"layer_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// enqueue accepts a multipart upload and hands it to the queue. The
// file kind is checked before anything durable happens, so a rejected
// upload leaves no rows and no files behind.
func (s *Server) enqueue(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file", "detail": "multipart field 'file' is required"})
		return
	}

	taskType, ok := queue.TaskTypeForFilename(fh.Filename)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  pipeline.ReasonUnsupportedKind,
			"detail": fmt.Sprintf("unsupported file type %q, expected .tif, .tiff or .zip", filepath.Ext(fh.Filename)),
		})
		return
	}

	jobID := uuid.NewString()
	layerID := strings.TrimSpace(c.PostForm("layer_id"))
	if layerID == "" {
		layerID = NewLayerID()
	}
	highPriority := c.PostForm("priority") == "high"
	allowMissingCRS := c.PostForm("allow_missing_crs") == "true"

	dst := filepath.Join(s.uploadDir, fmt.Sprintf("%s_%s", jobID, filepath.Base(fh.Filename)))
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		s.log.Error().Err(err).Msg("failed saving upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		return
	}

	ctx := c.Request.Context()
	meta := store.Metadata{
		"original_filename": fh.Filename,
		"size_bytes":        fh.Size,
		"task_type":         taskType,
	}
	if err := s.store.CreateJobWithLayer(ctx, jobID, layerID, fh.Filename, meta); err != nil {
		os.Remove(dst)
		s.log.Error().Err(err).Str("job_id", jobID).Msg("failed recording job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failed"})
		return
	}

	payload := queue.ProcessPayload{
		JobID:            jobID,
		LayerID:          layerID,
		Path:             dst,
		OriginalFilename: fh.Filename,
		AllowMissingCRS:  allowMissingCRS,
	}
	if err := s.enqueuer.EnqueueProcess(ctx, taskType, payload, highPriority); err != nil {
		// The row exists but the broker never saw the job. Fail the row
		// so status polling does not hang on a job that will never run.
		s.log.Error().Err(err).Str("job_id", jobID).Msg("failed enqueueing job")
		if _, ferr := s.store.FailJob(ctx, jobID, pipeline.KindTransient, store.Metadata{"error": "enqueue failed"}); ferr != nil {
			s.log.Error().Err(ferr).Str("job_id", jobID).Msg("failed failing unpublished job")
		}
		os.Remove(dst)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "queue_unavailable"})
		return
	}

	c.JSON(http.StatusOK, enqueueResponse{
		JobID:   jobID,
		LayerID: layerID,
		Status:  string(pipeline.JobQueued),
		Message: "file uploaded and queued for processing",
	})
}

func (s *Server) jobStatus(c *gin.Context) {
	job, err := s.store.GetJob(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("failed reading job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failed"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// cancelJob revokes the queued task and moves the row to cancelled.
// The row guard is the arbiter: revocation is best effort, but only
// jobs still queued or processing accept the state change.
func (s *Server) cancelJob(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("id")

	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		s.log.Error().Err(err).Msg("failed reading job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failed"})
		return
	}

	if err := s.inspector.Revoke(jobID); err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Msg("failed revoking task")
	}

	ok, err := s.store.CancelJob(ctx, jobID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed cancelling job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failed"})
		return
	}
	if !ok {
		job, err := s.store.GetJob(ctx, jobID)
		status := ""
		if err == nil {
			status = string(job.Status)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "not_cancellable", "status": status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("job %s cancelled", jobID)})
}

func (s *Server) layerStatus(c *gin.Context) {
	layer, err := s.store.GetLayer(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("failed reading layer")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failed"})
		return
	}
	c.JSON(http.StatusOK, layer)
}

// queueStatus reports broker depth, running tasks and the last day of
// job outcomes in one payload.
func (s *Server) queueStatus(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := s.inspector.Stats()
	if err != nil {
		s.log.Error().Err(err).Msg("failed inspecting queues")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue_unavailable"})
		return
	}
	active, err := s.inspector.ActiveTasks()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed listing active tasks")
		active = nil
	}
	counts, err := s.store.JobCounts(ctx, 24*time.Hour)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed counting jobs")
		counts = map[string]int{}
	}

	c.JSON(http.StatusOK, gin.H{
		"queue_stats": gin.H{
			"worker_stats":   stats,
			"active_tasks":   len(active),
			"job_counts_24h": counts,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// health is a pure liveness probe; it touches no dependency.
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "processing-dispatcher"})
}
