package raster

import "testing"

func TestStretchToByte(t *testing.T) {
	// A linear ramp stretches to near the full byte range with the top
	// and bottom two percent clipped.
	samples := make([]float64, 100)
	mask := make([]bool, 100)
	for i := range samples {
		samples[i] = float64(i + 1)
		mask[i] = true
	}
	out := stretchToByte(samples, mask)
	if out[0] != 0 {
		t.Errorf("low tail = %d, want 0", out[0])
	}
	if out[99] != 255 {
		t.Errorf("high tail = %d, want 255", out[99])
	}
	if out[49] < 100 || out[49] > 155 {
		t.Errorf("midpoint = %d, want near 128", out[49])
	}

	// Monotone input stays monotone.
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Fatalf("stretch not monotone at %d: %d < %d", i, out[i], out[i-1])
		}
	}
}

func TestStretchFlatBand(t *testing.T) {
	samples := []float64{7, 7, 7, 7}
	mask := []bool{true, true, true, true}
	for i, b := range stretchToByte(samples, mask) {
		if b != 0 {
			t.Fatalf("flat band pixel %d = %d, want 0", i, b)
		}
	}
}

func TestStretchMaskedPixelsStayZero(t *testing.T) {
	samples := []float64{0, 50, 100, 0, 200}
	mask := []bool{false, true, true, false, true}
	out := stretchToByte(samples, mask)
	if out[0] != 0 || out[3] != 0 {
		t.Fatalf("masked pixels leaked: %v", out)
	}
	if out[4] != 255 {
		t.Fatalf("max valid pixel = %d, want 255", out[4])
	}
}

func TestStretchAllMasked(t *testing.T) {
	samples := []float64{1, 2, 3}
	mask := []bool{false, false, false}
	for i, b := range stretchToByte(samples, mask) {
		if b != 0 {
			t.Fatalf("pixel %d = %d, want 0", i, b)
		}
	}
}

func TestValidMask(t *testing.T) {
	tests := []struct {
		name      string
		samples   []float64
		nodata    float64
		hasNodata bool
		want      []bool
	}{
		{
			name:      "explicit sentinel",
			samples:   []float64{-9999, 0, 12, -9999},
			nodata:    -9999,
			hasNodata: true,
			want:      []bool{false, true, true, false},
		},
		{
			name:    "no sentinel drops non-positive",
			samples: []float64{0, -5, 12, 1},
			want:    []bool{false, false, true, true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validMask(tt.samples, tt.nodata, tt.hasNodata)
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("pixel %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 10},
		{50, 30},
		{100, 50},
		{25, 20},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}
