package raster

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/SERDSDDAM/SurpadClone/pkg/pipeline"
)

// ExtractLargestRaster unpacks the archive at zipPath into destDir and
// returns the path of the largest GeoTIFF it contained. Archives from
// the field routinely carry several rasters plus sidecars; the largest
// one is treated as the payload. An archive with no raster at all is a
// validation failure, not an io error.
func ExtractLargestRaster(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", pipeline.Fatal(err, "failed opening archive")
	}
	defer r.Close()

	var best string
	var bestSize uint64
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !isRasterName(f.Name) {
			continue
		}
		out, err := extractOne(f, destDir)
		if err != nil {
			return "", err
		}
		if f.UncompressedSize64 >= bestSize {
			best = out
			bestSize = f.UncompressedSize64
		}
	}
	if best == "" {
		return "", pipeline.Validation(pipeline.ReasonNoRaster)
	}
	return best, nil
}

func isRasterName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tif", ".tiff":
		return true
	}
	return false
}

// extractOne writes a single archive entry under destDir, flattening
// directories and refusing names that would escape it.
func extractOne(f *zip.File, destDir string) (string, error) {
	name := filepath.Base(filepath.Clean(f.Name))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", pipeline.Validationf("archive entry %q has no usable name", f.Name)
	}
	dest := filepath.Join(destDir, name)
	if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(filepath.Separator)) {
		return "", pipeline.Validationf("archive entry %q escapes extraction directory", f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return "", pipeline.Fatal(err, "failed opening archive entry")
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", pipeline.Fatal(err, "failed creating extracted file")
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return "", pipeline.Fatal(err, "failed extracting archive entry")
	}
	return dest, nil
}
