// Package raster turns uploaded GeoTIFFs into the artifact set the map
// viewer consumes: a tiled COG, a contrast-stretched PNG preview with
// world-file and projection sidecars, and a metadata manifest. All
// outputs are EPSG:4326.
package raster

import (
	"context"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"

	"github.com/SERDSDDAM/SurpadClone/pkg/pipeline"
)

// Register initializes the GDAL drivers. Call once per process before
// any Process call.
func Register() {
	godal.RegisterAll()
}

// ProgressFunc receives coarse progress milestones. Returning false
// aborts the run; Process then returns a cancellation error.
type ProgressFunc func(pct int) bool

// Options tweak a single Process run.
type Options struct {
	// AllowMissingCRS treats a raster with no projection as already
	// being in EPSG:4326 instead of rejecting it.
	AllowMissingCRS bool
}

// Result locates the artifacts of a successful run and carries the
// georeferencing recorded on the layer row. Width and Height are the
// preview dimensions.
type Result struct {
	COGPath   string
	PNGPath   string
	WorldPath string
	ProjPath  string

	Bounds Bounds
	Width  int
	Height int
	CRS    string
}

var cogSwitches = []string{
	"-of", "GTiff",
	"-co", "TILED=YES",
	"-co", "BLOCKXSIZE=512",
	"-co", "BLOCKYSIZE=512",
	"-co", "COMPRESS=DEFLATE",
	"-co", "BIGTIFF=IF_SAFER",
}

// Process converts the GeoTIFF at srcPath into the full artifact set
// under workDir. Milestones fire at 25 (validated and reprojected), 50
// (COG written) and 75 (preview and sidecars written); the caller owns
// 10 and 100.
func Process(ctx context.Context, srcPath, workDir string, opts Options, progress ProgressFunc) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, pipeline.Cancelled()
	}

	fi, err := os.Stat(srcPath)
	if err != nil {
		return nil, pipeline.Fatal(err, "failed inspecting source raster")
	}
	if fi.Size() == 0 {
		return nil, pipeline.Validation(pipeline.ReasonEmptyFile)
	}

	src, err := godal.Open(srcPath, godal.RasterOnly())
	if err != nil {
		return nil, pipeline.Fatal(err, "failed opening source raster")
	}
	defer src.Close()

	if n := len(src.Bands()); n == 0 || n == 2 {
		return nil, pipeline.Validation(pipeline.ReasonUnsupportedBands)
	}

	missingCRS := src.Projection() == ""
	if missingCRS && !opts.AllowMissingCRS {
		return nil, pipeline.Validation(pipeline.ReasonMissingCRS)
	}

	// The warped dataset becomes the working dataset for everything
	// downstream. A raster already in geographic WGS84, or one with no
	// CRS at all, is used as-is.
	work := src
	if !missingCRS {
		same, err := isWGS84(src)
		if err != nil {
			return nil, err
		}
		if !same {
			warped, err := src.Warp(filepath.Join(workDir, "warped.tif"),
				[]string{"-t_srs", "EPSG:4326", "-r", "bilinear", "-of", "GTiff"})
			if err != nil {
				return nil, pipeline.Fatal(err, "failed reprojecting raster")
			}
			defer warped.Close()
			work = warped
		}
	}
	if !progress(25) {
		return nil, pipeline.Cancelled()
	}

	// Bounds come from transforming the source extent, not from the
	// warped grid, so collar pixels the warp introduces never widen the
	// advertised footprint.
	bounds, err := datasetBounds(src, missingCRS)
	if err != nil {
		return nil, err
	}

	cogPath := filepath.Join(workDir, "cog.tif")
	if err := writeCOG(work, cogPath); err != nil {
		return nil, err
	}
	if !progress(50) {
		return nil, pipeline.Cancelled()
	}

	pngPath := filepath.Join(workDir, PreviewFileName)
	pw, ph, err := renderPreview(work, pngPath)
	if err != nil {
		return nil, err
	}

	worldPath := filepath.Join(workDir, "processed.pgw")
	if err := NewWorldFile(bounds, pw, ph).Write(worldPath); err != nil {
		return nil, pipeline.Fatal(err, "failed writing world file")
	}
	projPath := filepath.Join(workDir, "processed.prj")
	if err := WriteProjection(projPath, WGS84WKT); err != nil {
		return nil, pipeline.Fatal(err, "failed writing projection file")
	}
	if !progress(75) {
		return nil, pipeline.Cancelled()
	}

	return &Result{
		COGPath:   cogPath,
		PNGPath:   pngPath,
		WorldPath: worldPath,
		ProjPath:  projPath,
		Bounds:    bounds,
		Width:     pw,
		Height:    ph,
		CRS:       "EPSG:4326",
	}, nil
}

func isWGS84(ds *godal.Dataset) (bool, error) {
	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return false, pipeline.Fatal(err, "failed constructing EPSG:4326 reference")
	}
	defer wgs84.Close()
	sr := ds.SpatialRef()
	if sr == nil {
		return false, nil
	}
	return sr.IsSame(wgs84), nil
}

// datasetBounds returns the dataset extent in EPSG:4326. When the CRS
// was missing and overridden, the raw geotransform extent is used.
func datasetBounds(ds *godal.Dataset, missingCRS bool) (Bounds, error) {
	if missingCRS {
		gt, err := ds.GeoTransform()
		if err != nil {
			return Bounds{}, pipeline.Fatal(err, "failed reading geotransform")
		}
		st := ds.Structure()
		return boundsFromGeoTransform(gt, st.SizeX, st.SizeY), nil
	}
	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return Bounds{}, pipeline.Fatal(err, "failed constructing EPSG:4326 reference")
	}
	defer wgs84.Close()
	ext, err := ds.Bounds(wgs84)
	if err != nil {
		return Bounds{}, pipeline.Fatal(err, "failed computing geographic bounds")
	}
	return BoundsFromExtent(ext), nil
}

// boundsFromGeoTransform covers north-up rasters; the skew terms of a
// rotated transform are folded in so the box still encloses the raster.
func boundsFromGeoTransform(gt [6]float64, w, h int) Bounds {
	x0, y0 := gt[0], gt[3]
	x1 := gt[0] + gt[1]*float64(w) + gt[2]*float64(h)
	y1 := gt[3] + gt[4]*float64(w) + gt[5]*float64(h)
	b := Bounds{West: x0, South: y1, East: x1, North: y0}
	if b.West > b.East {
		b.West, b.East = b.East, b.West
	}
	if b.South > b.North {
		b.South, b.North = b.North, b.South
	}
	return b
}

// writeCOG translates the working dataset into a tiled, deflated
// GeoTIFF and builds averaged overviews on it.
func writeCOG(work *godal.Dataset, path string) error {
	cog, err := work.Translate(path, cogSwitches)
	if err != nil {
		return pipeline.Fatal(err, "failed writing cloud optimized geotiff")
	}
	defer cog.Close()

	if err := cog.BuildOverviews(godal.Levels(2, 4, 8, 16), godal.Resampling(godal.Average)); err != nil {
		return pipeline.Fatal(err, "failed building overviews")
	}
	if err := cog.SetMetadata("OVR_RESAMPLING_ALG", "AVERAGE"); err != nil {
		return pipeline.Fatal(err, "failed tagging overview resampling")
	}
	return nil
}
