package raster

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
)

// PreviewFileName is the imageFile value map viewers key on.
const PreviewFileName = "processed.png"

// Manifest is the canonical metadata.json written next to every
// successful artifact set. Bounds are always EPSG:4326; bbox is
// [west, south, east, north] and leaflet_bounds the matching
// [[south, west], [north, east]] rectangle.
type Manifest struct {
	Success          bool          `json:"success"`
	LayerID          string        `json:"layer_id"`
	OriginalFilename string        `json:"original_filename"`
	ImageFile        string        `json:"imageFile"`
	PNGURL           string        `json:"png_url"`
	COGURL           string        `json:"cog_url"`
	MetadataURL      string        `json:"metadata_url,omitempty"`
	BBox             [4]float64    `json:"bbox"`
	LeafletBounds    [2][2]float64 `json:"leaflet_bounds"`
	Width            int           `json:"width"`
	Height           int           `json:"height"`
	CRS              string        `json:"crs"`
	ProcessedAt      string        `json:"processed_at"`
	JobID            string        `json:"job_id"`
}

// NewManifest assembles a manifest for a finished artifact set. Width
// and height are those of the artifact, not the source.
func NewManifest(jobID, layerID, originalFilename string, b Bounds, width, height int, crs string) Manifest {
	return Manifest{
		Success:          true,
		LayerID:          layerID,
		OriginalFilename: originalFilename,
		ImageFile:        PreviewFileName,
		BBox:             b.BBox(),
		LeafletBounds:    b.Leaflet(),
		Width:            width,
		Height:           height,
		CRS:              crs,
		ProcessedAt:      time.Now().UTC().Format(time.RFC3339),
		JobID:            jobID,
	}
}

// Write writes the manifest as indented JSON.
func (m Manifest) Write(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed marshaling manifest")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0644), "failed writing manifest %s", path)
}

// AsMap flattens the manifest into the free-form metadata merged onto
// the completed job row.
func (m Manifest) AsMap() (map[string]interface{}, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed marshaling manifest")
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "failed unmarshaling manifest")
	}
	return out, nil
}
