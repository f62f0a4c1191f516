// Package store persists processing jobs and GIS layers in Postgres.
//
// Status transitions are guarded at the update site: every UPDATE
// carries a WHERE clause listing the legal predecessor states, so a
// zero row count tells the caller it lost a race and must honor the
// row's current value. Terminal states are sticky by construction.
package store

import (
	"database/sql/driver"
	"embed"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/SERDSDDAM/SurpadClone/pkg/pipeline"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store wraps the Postgres connection pool.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres and verifies the connection.
func Open(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed connecting to postgres")
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate() error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "failed selecting goose dialect")
	}
	if err := goose.Up(s.db.DB, "migrations"); err != nil {
		return errors.Wrap(err, "failed applying migrations")
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies connectivity for startup checks and the health
// endpoint.
func (s *Store) Ping() error { return s.db.Ping() }

// ErrNotFound is returned when a job or layer id has no row.
var ErrNotFound = errors.New("not found")

// Metadata is the free-form job/layer metadata column.
type Metadata map[string]interface{}

// Value implements driver.Valuer for JSONB columns.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB columns.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.Errorf("cannot scan %T into Metadata", value)
	}
	return json.Unmarshal(b, m)
}

// Job is one row of processing_jobs.
type Job struct {
	ID        string             `db:"id" json:"job_id"`
	LayerID   string             `db:"layer_id" json:"layer_id"`
	Status    pipeline.JobStatus `db:"status" json:"status"`
	Progress  int                `db:"progress" json:"progress"`
	Metadata  Metadata           `db:"metadata" json:"metadata"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// Layer is one row of gis_layers.
type Layer struct {
	ID        string               `db:"id" json:"layer_id"`
	Filename  string               `db:"filename" json:"filename"`
	Status    pipeline.LayerStatus `db:"status" json:"status"`
	ImageURL  *string              `db:"image_url" json:"image_url,omitempty"`
	COGURL    *string              `db:"cog_url" json:"cog_url,omitempty"`
	Bounds    Metadata             `db:"bounds_wgs84" json:"bounds_wgs84,omitempty"`
	Width     *int                 `db:"width" json:"width,omitempty"`
	Height    *int                 `db:"height" json:"height,omitempty"`
	CRS       *string              `db:"crs" json:"crs,omitempty"`
	Metadata  Metadata             `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt time.Time            `db:"updated_at" json:"updated_at"`
}
