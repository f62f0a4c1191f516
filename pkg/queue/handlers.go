package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/SERDSDDAM/SurpadClone/pkg/objstore"
	"github.com/SERDSDDAM/SurpadClone/pkg/pipeline"
	"github.com/SERDSDDAM/SurpadClone/pkg/raster"
	"github.com/SERDSDDAM/SurpadClone/pkg/store"
)

// JobRetention is how long completed and failed job rows are kept
// before the periodic cleanup removes them.
const JobRetention = 7 * 24 * time.Hour

// Handlers executes pipeline tasks. One instance serves the whole
// worker process.
type Handlers struct {
	Store   *store.Store
	Objects *objstore.Store
	Pub     *Publisher

	// UploadDir holds dispatcher uploads; cleanup scrubs strays here.
	UploadDir string

	// WebhookURL, when set, receives terminal-state notifications.
	WebhookURL string

	Log zerolog.Logger
}

// dropTask marks err terminal for the queue runtime so the task is
// never redelivered, while keeping its kind visible to IsFailure and
// the error handler.
func dropTask(err error) error {
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

// HandleProcessGeoTIFF ingests a bare GeoTIFF upload.
func (h *Handlers) HandleProcessGeoTIFF(ctx context.Context, t *asynq.Task) error {
	p := ProcessPayload{}
	if err := DecodePayload(t.Payload(), &p); err != nil {
		return fmt.Errorf("undecodable payload: %v: %w", err, asynq.SkipRetry)
	}
	return h.runJob(ctx, t, p, p.Path)
}

// HandleProcessZip ingests a zip archive by extracting its largest
// raster and running the GeoTIFF path on it.
func (h *Handlers) HandleProcessZip(ctx context.Context, t *asynq.Task) error {
	p := ProcessPayload{}
	if err := DecodePayload(t.Payload(), &p); err != nil {
		return fmt.Errorf("undecodable payload: %v: %w", err, asynq.SkipRetry)
	}

	extractDir, err := os.MkdirTemp("", "surpad-extract-")
	if err != nil {
		return h.finish(ctx, t, p, pipeline.Fatal(err, "failed creating extraction dir"))
	}
	defer os.RemoveAll(extractDir)

	rasterPath, err := raster.ExtractLargestRaster(p.Path, extractDir)
	if err != nil {
		return h.finish(ctx, t, p, err)
	}
	return h.runJob(ctx, t, p, rasterPath)
}

// runJob drives one ingestion end to end: progress milestones, raster
// conversion, artifact upload, and the terminal row writes.
func (h *Handlers) runJob(ctx context.Context, t *asynq.Task, p ProcessPayload, rasterPath string) error {
	log := h.Log.With().Str("job_id", p.JobID).Str("layer_id", p.LayerID).Logger()

	ok, err := h.Store.MarkProcessing(ctx, p.JobID, 10)
	if err != nil {
		return pipeline.Transient(err, "failed claiming job")
	}
	if !ok {
		// Row is already terminal. The job was cancelled or completed
		// elsewhere; silently drop the task.
		log.Info().Msg("job no longer claimable, dropping")
		return dropTask(pipeline.Cancelled())
	}

	workDir, err := os.MkdirTemp("", "surpad-work-")
	if err != nil {
		return h.finish(ctx, t, p, pipeline.Fatal(err, "failed creating work dir"))
	}
	defer os.RemoveAll(workDir)

	res, err := raster.Process(ctx, rasterPath, workDir, raster.Options{AllowMissingCRS: p.AllowMissingCRS},
		func(pct int) bool {
			if ctx.Err() != nil {
				return false
			}
			claimed, err := h.Store.MarkProcessing(ctx, p.JobID, pct)
			if err != nil {
				log.Warn().Err(err).Int("progress", pct).Msg("progress update failed")
				return true
			}
			return claimed
		})
	if err != nil {
		return h.finish(ctx, t, p, err)
	}

	manifest, err := h.uploadArtifacts(ctx, p, res)
	if err != nil {
		return h.finish(ctx, t, p, err)
	}

	meta, err := manifest.AsMap()
	if err != nil {
		return h.finish(ctx, t, p, pipeline.Fatal(err, "failed flattening manifest"))
	}
	completed, err := h.Store.CompleteJob(ctx, p.JobID, meta)
	if err != nil {
		return h.finish(ctx, t, p, pipeline.Transient(err, "failed completing job"))
	}
	if !completed {
		// Cancelled between upload and completion. The uploaded objects
		// are orphans now; drop them so cancelled layers leave nothing
		// behind.
		if n, err := h.Objects.DeletePrefix(ctx, objstore.ObjectName(p.LayerID, "")); err != nil {
			log.Warn().Err(err).Msg("failed removing orphaned artifacts")
		} else {
			log.Info().Int("objects", n).Msg("removed orphaned artifacts after late cancel")
		}
		return dropTask(pipeline.Cancelled())
	}

	if err := h.Store.MarkLayerProcessed(ctx, p.LayerID, store.LayerArtifacts{
		ImageURL: manifest.PNGURL,
		COGURL:   manifest.COGURL,
		Bounds:   res.Bounds.Leaflet(),
		Width:    res.Width,
		Height:   res.Height,
		CRS:      res.CRS,
		Manifest: meta,
	}); err != nil {
		return pipeline.Transient(err, "failed recording layer artifacts")
	}

	os.Remove(p.Path)
	h.notify(ctx, p, string(pipeline.JobCompleted), nil)
	log.Info().Msg("job completed")
	return nil
}

// uploadArtifacts pushes the COG, preview and sidecars concurrently,
// then the manifest last so a manifest never references a missing
// object.
func (h *Handlers) uploadArtifacts(ctx context.Context, p ProcessPayload, res *raster.Result) (*raster.Manifest, error) {
	manifest := raster.NewManifest(p.JobID, p.LayerID, p.OriginalFilename, res.Bounds, res.Width, res.Height, res.CRS)

	uploads := []struct {
		local string
		name  string
		dst   *string
	}{
		{res.COGPath, objstore.ObjectName(p.LayerID, p.LayerID+".tif"), &manifest.COGURL},
		{res.PNGPath, objstore.ObjectName(p.LayerID, p.LayerID+".png"), &manifest.PNGURL},
		{res.WorldPath, objstore.ObjectName(p.LayerID, p.LayerID+".pgw"), nil},
		{res.ProjPath, objstore.ObjectName(p.LayerID, p.LayerID+".prj"), nil},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range uploads {
		u := u
		g.Go(func() error {
			url, err := h.Objects.Put(gctx, u.local, u.name)
			if err != nil {
				return pipeline.Transient(err, "failed uploading artifact")
			}
			if u.dst != nil {
				*u.dst = url
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	metaName := objstore.ObjectName(p.LayerID, "metadata.json")
	manifest.MetadataURL = h.Objects.URL(metaName)
	metaPath := filepath.Join(filepath.Dir(res.COGPath), "metadata.json")
	if err := manifest.Write(metaPath); err != nil {
		return nil, pipeline.Fatal(err, "failed writing manifest")
	}
	if _, err := h.Objects.Put(ctx, metaPath, metaName); err != nil {
		return nil, pipeline.Transient(err, "failed uploading manifest")
	}
	return &manifest, nil
}

// finish classifies err and decides between retry and terminal failure.
// Transient errors propagate so the runtime redelivers them; the
// terminal rows are only written on the last attempt. Everything else
// fails the job immediately and skips retry.
func (h *Handlers) finish(ctx context.Context, t *asynq.Task, p ProcessPayload, err error) error {
	kind := pipeline.KindOf(err)

	// A dead handler context reads as a cancellation or an unclassified
	// error inside the engine; tell the hard time limit apart.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) &&
		(kind == pipeline.KindCancelled || kind == pipeline.KindInternal) {
		kind = pipeline.KindTimeout
	}
	log := h.Log.With().Str("job_id", p.JobID).Str("error_kind", string(kind)).Logger()

	// The handler context dies at the hard time limit or on
	// cancellation; the row writes below must survive that.
	bg, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch kind {
	case pipeline.KindCancelled:
		// The dispatcher already moved the row; nothing to record.
		log.Info().Msg("job cancelled mid-flight")
		return dropTask(err)
	case pipeline.KindTransient:
		retried, _ := asynq.GetRetryCount(ctx)
		max, _ := asynq.GetMaxRetry(ctx)
		if retried < max {
			log.Warn().Err(err).Int("attempt", retried+1).Msg("transient failure, will retry")
			return err
		}
	}

	detail := store.Metadata{"error": err.Error()}
	if reason := pipeline.ReasonOf(err); reason != "" {
		detail["reason"] = reason
	}
	if _, ferr := h.Store.FailJob(bg, p.JobID, kind, detail); ferr != nil {
		log.Error().Err(ferr).Msg("failed recording job failure")
	}
	if lerr := h.Store.MarkLayerError(bg, p.LayerID, err.Error()); lerr != nil {
		log.Error().Err(lerr).Msg("failed recording layer failure")
	}
	os.Remove(p.Path)
	h.notify(bg, p, string(pipeline.JobFailed), detail)
	log.Error().Err(err).Msg("job failed")

	if kind == pipeline.KindTransient {
		return err
	}
	return dropTask(err)
}

// notify best-effort enqueues a terminal-state webhook.
func (h *Handlers) notify(ctx context.Context, p ProcessPayload, status string, detail store.Metadata) {
	if h.WebhookURL == "" || h.Pub == nil {
		return
	}
	err := h.Pub.EnqueueNotification(ctx, NotifyPayload{
		JobID:   p.JobID,
		LayerID: p.LayerID,
		Status:  status,
		Detail:  detail,
	})
	if err != nil {
		h.Log.Warn().Err(err).Str("job_id", p.JobID).Msg("failed enqueueing notification")
	}
}

// HandleCleanup removes expired job rows and stray upload files.
func (h *Handlers) HandleCleanup(ctx context.Context, t *asynq.Task) error {
	n, err := h.Store.DeleteOldJobs(ctx, JobRetention)
	if err != nil {
		return err
	}
	files := h.scrubUploads()
	h.Log.Info().Int64("jobs_deleted", n).Int("files_deleted", files).Msg("cleanup pass done")
	return nil
}

// scrubUploads deletes upload files older than the retention window.
// Normal jobs remove their upload on completion; this catches crashes.
func (h *Handlers) scrubUploads() int {
	if h.UploadDir == "" {
		return 0
	}
	entries, err := os.ReadDir(h.UploadDir)
	if err != nil {
		return 0
	}
	deleted := 0
	cutoff := time.Now().Add(-JobRetention)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(filepath.Join(h.UploadDir, e.Name())) == nil {
				deleted++
			}
		}
	}
	return deleted
}

// HandleStatistics logs the 24 hour per-status aggregates.
func (h *Handlers) HandleStatistics(ctx context.Context, t *asynq.Task) error {
	stats, err := h.Store.Statistics(ctx)
	if err != nil {
		return err
	}
	for _, s := range stats {
		ev := h.Log.Info().Str("status", s.Status).Int("count", s.Count)
		if s.AvgDuration.Valid {
			ev = ev.Float64("avg_duration_s", s.AvgDuration.Float64)
		}
		ev.Msg("job statistics")
	}
	return nil
}

// HandleNotify delivers one terminal-state webhook. Delivery uses a
// retrying client on top of the queue-level retries, so flaky receivers
// get a fair number of chances without blocking the worker for long.
func (h *Handlers) HandleNotify(ctx context.Context, t *asynq.Task) error {
	p := NotifyPayload{}
	if err := DecodePayload(t.Payload(), &p); err != nil {
		return fmt.Errorf("undecodable payload: %v: %w", err, asynq.SkipRetry)
	}
	if h.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("unmarshalable notification: %v: %w", err, asynq.SkipRetry)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", h.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed building webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed delivering webhook for job %s", p.JobID)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return errors.Errorf("webhook for job %s rejected with status %d", p.JobID, resp.StatusCode)
	}
	return nil
}
