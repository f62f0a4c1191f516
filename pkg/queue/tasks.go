// Package queue carries jobs between the HTTP dispatcher and the
// worker over Redis. Task payloads are gzip-compressed JSON; the task
// id is the job id so a job can be revoked by id alone.
package queue

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Task type names. The prefix groups them under one namespace in
// queue tooling.
const (
	TypeProcessGeoTIFF = "tasks:process_geotiff"
	TypeProcessZip     = "tasks:process_zip_archive"
	TypeCleanup        = "tasks:cleanup_old_jobs"
	TypeStatistics     = "tasks:update_processing_statistics"
	TypeNotify         = "tasks:send_notification"
)

// Queue names, highest priority first.
const (
	QueueHighPriority  = "high_priority"
	QueueProcessing    = "processing"
	QueueDefault       = "default"
	QueueValidation    = "validation"
	QueueCleanup       = "cleanup"
	QueueNotifications = "notifications"
)

// Priorities assigns the relative weight of each queue. Processing
// dominates but never starves housekeeping.
var Priorities = map[string]int{
	QueueHighPriority:  6,
	QueueProcessing:    5,
	QueueDefault:       3,
	QueueValidation:    2,
	QueueCleanup:       1,
	QueueNotifications: 1,
}

// ProcessPayload describes one raster ingestion job.
type ProcessPayload struct {
	JobID            string `json:"job_id"`
	LayerID          string `json:"layer_id"`
	Path             string `json:"path"`
	OriginalFilename string `json:"original_filename"`
	AllowMissingCRS  bool   `json:"allow_missing_crs,omitempty"`
}

// NotifyPayload describes a terminal-state webhook delivery.
type NotifyPayload struct {
	JobID   string                 `json:"job_id"`
	LayerID string                 `json:"layer_id"`
	Status  string                 `json:"status"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
}

// TaskTypeForFilename routes an upload to the task that can process
// it. The second return is false for unsupported file kinds.
func TaskTypeForFilename(name string) (string, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tif", ".tiff":
		return TypeProcessGeoTIFF, true
	case ".zip":
		return TypeProcessZip, true
	}
	return "", false
}

// EncodePayload serializes v as gzipped JSON.
func EncodePayload(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed marshaling task payload")
	}
	buf := bytes.Buffer{}
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, errors.Wrap(err, "failed compressing task payload")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed compressing task payload")
	}
	return buf.Bytes(), nil
}

// DecodePayload reverses EncodePayload into v.
func DecodePayload(data []byte, v interface{}) error {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "failed decompressing task payload")
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return errors.Wrap(err, "failed decompressing task payload")
	}
	return errors.Wrap(json.Unmarshal(raw, v), "failed unmarshaling task payload")
}
