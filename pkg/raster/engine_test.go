package raster

import (
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/google/go-cmp/cmp"
)

// datasetBounds hands the target reference straight to Dataset.Bounds;
// the spatial reference is the only projection-bearing bounds option.
var _ godal.BoundsOption = (*godal.SpatialRef)(nil)

func TestBoundsFromGeoTransform(t *testing.T) {
	tests := []struct {
		name string
		gt   [6]float64
		w, h int
		want Bounds
	}{
		{
			name: "north-up",
			gt:   [6]float64{44.0, 0.001, 0, 15.512, 0, -0.001},
			w:    512,
			h:    512,
			want: Bounds{West: 44.0, South: 15.0, East: 44.512, North: 15.512},
		},
		{
			name: "south-up still yields ordered box",
			gt:   [6]float64{44.0, 0.001, 0, 15.0, 0, 0.001},
			w:    512,
			h:    512,
			want: Bounds{West: 44.0, South: 15.0, East: 44.512, North: 15.512},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := boundsFromGeoTransform(tt.gt, tt.w, tt.h)
			if diff := cmp.Diff(tt.want, got, cmp.Comparer(func(a, b float64) bool {
				d := a - b
				return d < 1e-9 && d > -1e-9
			})); diff != "" {
				t.Fatalf("bounds mismatch:\n%s", diff)
			}
		})
	}
}
