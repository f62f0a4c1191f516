package raster

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBoundsConversions(t *testing.T) {
	b := BoundsFromExtent([4]float64{44.1, 15.2, 44.9, 15.8})

	if diff := cmp.Diff([4]float64{44.1, 15.2, 44.9, 15.8}, b.BBox()); diff != "" {
		t.Fatalf("bbox mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([2][2]float64{{15.2, 44.1}, {15.8, 44.9}}, b.Leaflet()); diff != "" {
		t.Fatalf("leaflet bounds mismatch:\n%s", diff)
	}
}

func TestManifestJSONShape(t *testing.T) {
	m := NewManifest("job-1", "layer_1700000000_abcd1234", "site.tif",
		Bounds{West: 44.1, South: 15.2, East: 44.9, North: 15.8}, 2048, 1536, "EPSG:4326")
	m.PNGURL = "http://minio/binaa-layers/layers/l/l.png"
	m.COGURL = "http://minio/binaa-layers/layers/l/l.tif"

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]interface{}{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}

	// The viewer reads these keys verbatim; renaming any of them is a
	// breaking change.
	for _, key := range []string{
		"success", "layer_id", "original_filename", "imageFile",
		"png_url", "cog_url", "bbox", "leaflet_bounds",
		"width", "height", "crs", "processed_at", "job_id",
	} {
		if _, ok := got[key]; !ok {
			t.Errorf("manifest missing key %q", key)
		}
	}
	if got["imageFile"] != "processed.png" {
		t.Errorf("imageFile = %v, want processed.png", got["imageFile"])
	}
	if got["success"] != true {
		t.Errorf("success = %v, want true", got["success"])
	}

	// bbox and leaflet_bounds must describe the same rectangle.
	bbox := got["bbox"].([]interface{})
	leaflet := got["leaflet_bounds"].([]interface{})
	sw := leaflet[0].([]interface{})
	ne := leaflet[1].([]interface{})
	if sw[0] != bbox[1] || sw[1] != bbox[0] || ne[0] != bbox[3] || ne[1] != bbox[2] {
		t.Fatalf("bbox %v and leaflet_bounds %v disagree", bbox, leaflet)
	}
}

func TestManifestAsMap(t *testing.T) {
	m := NewManifest("job-2", "layer-2", "a.tif", Bounds{}, 10, 10, "EPSG:4326")
	meta, err := m.AsMap()
	if err != nil {
		t.Fatal(err)
	}
	if meta["job_id"] != "job-2" {
		t.Fatalf("job_id = %v, want job-2", meta["job_id"])
	}
	if meta["layer_id"] != "layer-2" {
		t.Fatalf("layer_id = %v, want layer-2", meta["layer_id"])
	}
}
