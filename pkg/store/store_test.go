package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMetadataValuer(t *testing.T) {
	m := Metadata{"original_filename": "site.tif", "size_bytes": float64(1024)}
	v, err := m.Value()
	if err != nil {
		t.Fatal(err)
	}

	out := Metadata{}
	if err := out.Scan(v); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m, out); diff != "" {
		t.Fatalf("metadata round trip mismatch:\n%s", diff)
	}
}

func TestMetadataNilValue(t *testing.T) {
	var m Metadata
	v, err := m.Value()
	if err != nil {
		t.Fatal(err)
	}
	if string(v.([]byte)) != "{}" {
		t.Fatalf("nil metadata = %s, want {}", v)
	}
}

func TestMetadataScanNull(t *testing.T) {
	m := Metadata{"stale": true}
	if err := m.Scan(nil); err != nil {
		t.Fatal(err)
	}
	if len(m) != 0 {
		t.Fatalf("scanning NULL should reset, got %v", m)
	}
}
