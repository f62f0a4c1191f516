package queue

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPayloadCodec(t *testing.T) {
	in := ProcessPayload{
		JobID:            "8c41e8e2-6f0e-4d1a-b7f4-2f2b7f4c9a10",
		LayerID:          "layer_1700000000_abcd1234",
		Path:             "/app/uploads/8c41e8e2_site.tif",
		OriginalFilename: "site.tif",
		AllowMissingCRS:  true,
	}
	data, err := EncodePayload(in)
	if err != nil {
		t.Fatal(err)
	}
	out := ProcessPayload{}
	if err := DecodePayload(data, &out); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("payload round trip mismatch:\n%s", diff)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if err := DecodePayload([]byte("not gzip"), &ProcessPayload{}); err == nil {
		t.Fatal("expected error decoding garbage payload")
	}
}

func TestTaskTypeForFilename(t *testing.T) {
	tests := []struct {
		filename string
		taskType string
		ok       bool
	}{
		{"site.tif", TypeProcessGeoTIFF, true},
		{"SITE.TIFF", TypeProcessGeoTIFF, true},
		{"bundle.zip", TypeProcessZip, true},
		{"bundle.ZIP", TypeProcessZip, true},
		{"parcels.shp", "", false},
		{"noext", "", false},
		{"archive.tar.gz", "", false},
	}
	for _, tt := range tests {
		got, ok := TaskTypeForFilename(tt.filename)
		if got != tt.taskType || ok != tt.ok {
			t.Errorf("TaskTypeForFilename(%q) = (%q, %v), want (%q, %v)",
				tt.filename, got, ok, tt.taskType, tt.ok)
		}
	}
}

func TestQueuePriorities(t *testing.T) {
	// Processing work must outrank housekeeping or a cleanup backlog
	// could starve ingestion.
	if Priorities[QueueHighPriority] <= Priorities[QueueProcessing] {
		t.Fatal("high_priority must outrank processing")
	}
	if Priorities[QueueProcessing] <= Priorities[QueueCleanup] {
		t.Fatal("processing must outrank cleanup")
	}
	for _, q := range []string{QueueDefault, QueueValidation, QueueCleanup, QueueNotifications} {
		if Priorities[q] <= 0 {
			t.Fatalf("queue %s has no weight and would never run", q)
		}
	}
}
