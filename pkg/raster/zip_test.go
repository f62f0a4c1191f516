package raster

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/SERDSDDAM/SurpadClone/pkg/pipeline"
)

func writeZip(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtractLargestRaster(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "upload.zip")
	writeZip(t, zipPath, map[string][]byte{
		"small.tif":          make([]byte, 64),
		"survey/big.tiff":    make([]byte, 4096),
		"readme.txt":         []byte("notes"),
		"survey/sidecar.prj": []byte("wkt"),
	})

	out, err := ExtractLargestRaster(zipPath, dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(out) != "big.tiff" {
		t.Fatalf("extracted %s, want big.tiff", out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
}

func TestExtractNoRaster(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "upload.zip")
	writeZip(t, zipPath, map[string][]byte{
		"readme.txt": []byte("no rasters here"),
	})

	_, err := ExtractLargestRaster(zipPath, dir)
	if err == nil {
		t.Fatal("expected error for archive without rasters")
	}
	if kind := pipeline.KindOf(err); kind != pipeline.KindValidation {
		t.Fatalf("error kind = %s, want %s", kind, pipeline.KindValidation)
	}
	if reason := pipeline.ReasonOf(err); reason != pipeline.ReasonNoRaster {
		t.Fatalf("error reason = %s, want %s", reason, pipeline.ReasonNoRaster)
	}
}

func TestExtractFlattensPaths(t *testing.T) {
	// Entry names with traversal components must not escape the
	// extraction directory.
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "upload.zip")
	writeZip(t, zipPath, map[string][]byte{
		"../escape.tif": make([]byte, 128),
	})

	extractTo := filepath.Join(dir, "out")
	if err := os.Mkdir(extractTo, 0755); err != nil {
		t.Fatal(err)
	}
	out, err := ExtractLargestRaster(zipPath, extractTo)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(out) != extractTo {
		t.Fatalf("extracted outside target dir: %s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.tif")); err == nil {
		t.Fatal("traversal entry escaped the extraction directory")
	}
}

func TestBadZip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "corrupt.zip")
	if err := os.WriteFile(zipPath, []byte("not a zip archive"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := ExtractLargestRaster(zipPath, dir)
	if err == nil {
		t.Fatal("expected error for corrupt archive")
	}
	if kind := pipeline.KindOf(err); kind != pipeline.KindFatal {
		t.Fatalf("error kind = %s, want %s", kind, pipeline.KindFatal)
	}
}
