package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// LayerArtifacts is what a successful job hands the layer row.
type LayerArtifacts struct {
	ImageURL string
	COGURL   string
	// Bounds is the Leaflet-style [[south, west], [north, east]] box in
	// EPSG:4326, stored verbatim in bounds_wgs84.
	Bounds [2][2]float64
	Width  int
	Height int
	CRS    string
	// Manifest is the full metadata.json content, kept on the layer row
	// for map-viewer consumption.
	Manifest Metadata
}

// GetLayer returns the layer row or ErrNotFound.
func (s *Store) GetLayer(ctx context.Context, layerID string) (*Layer, error) {
	l := Layer{}
	err := s.db.GetContext(ctx, &l, `
		SELECT id, COALESCE(filename, '') AS filename, status, image_url, cog_url,
		       COALESCE(bounds_wgs84, '{}'::jsonb) AS bounds_wgs84,
		       width, height, crs,
		       COALESCE(metadata, '{}'::jsonb) AS metadata, created_at, updated_at
		FROM gis_layers WHERE id = $1`, layerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed querying layer")
	}
	return &l, nil
}

// MarkLayerProcessed records the artifact set on the layer row. Every
// URL written here points at an object that already exists in the
// store; uploads happen before this call.
func (s *Store) MarkLayerProcessed(ctx context.Context, layerID string, a LayerArtifacts) error {
	bounds := Metadata{"bounds": a.Bounds}
	_, err := s.db.ExecContext(ctx, `
		UPDATE gis_layers
		SET status = 'processed', image_url = $2, cog_url = $3,
		    bounds_wgs84 = $4, width = $5, height = $6, crs = $7,
		    metadata = COALESCE(metadata, '{}'::jsonb) || $8::jsonb,
		    updated_at = NOW()
		WHERE id = $1`,
		layerID, a.ImageURL, a.COGURL, bounds, a.Width, a.Height, a.CRS, a.Manifest)
	return errors.Wrap(err, "failed marking layer processed")
}

// MarkLayerError records a terminal processing failure on the layer row.
func (s *Store) MarkLayerError(ctx context.Context, layerID string, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE gis_layers
		SET status = 'error',
		    metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb,
		    updated_at = NOW()
		WHERE id = $1`,
		layerID, Metadata{"error": detail})
	return errors.Wrap(err, "failed marking layer errored")
}
