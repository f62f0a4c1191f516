package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/SERDSDDAM/SurpadClone/pkg/pipeline"
)

// CreateJobWithLayer writes the job row and upserts the layer row in
// one transaction. The durable rows always precede queue publication so
// an acknowledged enqueue can never be lost. Concurrent enqueues for
// the same layer id land on the ON CONFLICT arm and produce exactly one
// layer row.
func (s *Store) CreateJobWithLayer(ctx context.Context, jobID, layerID, filename string, meta Metadata) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed beginning enqueue transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO processing_jobs (id, layer_id, status, progress, metadata)
		VALUES ($1, $2, 'queued', 0, $3)`,
		jobID, layerID, meta,
	); err != nil {
		return errors.Wrap(err, "failed inserting job row")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO gis_layers (id, filename, status)
		VALUES ($1, $2, 'processing')
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			status = 'processing',
			updated_at = NOW()`,
		layerID, filename,
	); err != nil {
		return errors.Wrap(err, "failed upserting layer row")
	}

	return errors.Wrap(tx.Commit(), "failed committing enqueue transaction")
}

// GetJob returns the job row or ErrNotFound.
func (s *Store) GetJob(ctx context.Context, jobID string) (*Job, error) {
	j := Job{}
	err := s.db.GetContext(ctx, &j, `
		SELECT id, COALESCE(layer_id, '') AS layer_id, status, progress,
		       COALESCE(metadata, '{}'::jsonb) AS metadata, created_at, updated_at
		FROM processing_jobs WHERE id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed querying job")
	}
	return &j, nil
}

// MarkProcessing moves a job to processing with the given progress
// milestone. Progress can only grow; the status guard makes terminal
// rows win any race with a late worker. The returned bool is false when
// the guard rejected the write, which the worker must treat as an abort
// signal (the job was cancelled or finished elsewhere).
func (s *Store) MarkProcessing(ctx context.Context, jobID string, progress int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = 'processing', progress = GREATEST(progress, $2), updated_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'processing')`,
		jobID, progress)
	if err != nil {
		return false, errors.Wrap(err, "failed updating job progress")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "failed reading affected rows")
}

// CompleteJob moves a job to its completed terminal state, pinning
// progress at 100 and merging the manifest into the job metadata.
func (s *Store) CompleteJob(ctx context.Context, jobID string, manifest Metadata) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = 'completed', progress = 100,
		    metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'processing')`,
		jobID, manifest)
	if err != nil {
		return false, errors.Wrap(err, "failed completing job")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "failed reading affected rows")
}

// FailJob moves a job to failed, recording the error kind and detail in
// metadata. Progress resets to zero so failed rows read as not-started.
func (s *Store) FailJob(ctx context.Context, jobID string, kind pipeline.Kind, detail Metadata) (bool, error) {
	if detail == nil {
		detail = Metadata{}
	}
	detail["error_kind"] = string(kind)
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = 'failed', progress = 0,
		    metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'processing')`,
		jobID, detail)
	if err != nil {
		return false, errors.Wrap(err, "failed failing job")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "failed reading affected rows")
}

// CancelJob moves a job to cancelled. Only queued and processing jobs
// qualify; a false return means the row was already terminal.
func (s *Store) CancelJob(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'processing')`,
		jobID)
	if err != nil {
		return false, errors.Wrap(err, "failed cancelling job")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "failed reading affected rows")
}
