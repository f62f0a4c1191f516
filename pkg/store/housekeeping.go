package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// StatusCount is one bucket of the 24 hour job count aggregation.
type StatusCount struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
}

// StatusStat adds the mean job duration to a status bucket.
type StatusStat struct {
	Status      string          `db:"status"`
	Count       int             `db:"count"`
	AvgDuration sql.NullFloat64 `db:"avg_duration"`
}

// DeleteOldJobs removes completed and failed jobs whose last update is
// older than the retention window. Cancelled rows are kept so users can
// still see what they cancelled.
func (s *Store) DeleteOldJobs(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM processing_jobs
		WHERE status IN ('completed', 'failed')
		AND updated_at < NOW() - make_interval(secs => $1)`,
		retention.Seconds())
	if err != nil {
		return 0, errors.Wrap(err, "failed deleting old jobs")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "failed reading deleted row count")
}

// JobCounts returns per-status job counts over the trailing window.
func (s *Store) JobCounts(ctx context.Context, window time.Duration) (map[string]int, error) {
	rows := []StatusCount{}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS count
		FROM processing_jobs
		WHERE created_at > NOW() - make_interval(secs => $1)
		GROUP BY status`,
		window.Seconds()); err != nil {
		return nil, errors.Wrap(err, "failed counting jobs")
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// Statistics aggregates per-status counts and mean durations over the
// last 24 hours, for the periodic statistics refresh.
func (s *Store) Statistics(ctx context.Context) ([]StatusStat, error) {
	stats := []StatusStat{}
	if err := s.db.SelectContext(ctx, &stats, `
		SELECT status, COUNT(*) AS count,
		       AVG(EXTRACT(EPOCH FROM (updated_at - created_at))) AS avg_duration
		FROM processing_jobs
		WHERE created_at > NOW() - INTERVAL '24 hours'
		GROUP BY status`); err != nil {
		return nil, errors.Wrap(err, "failed aggregating job statistics")
	}
	return stats, nil
}
