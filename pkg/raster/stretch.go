package raster

import "sort"

// percentiles of the contrast stretch applied to previews.
const (
	stretchLow  = 2.0
	stretchHigh = 98.0
)

// validMask marks the pixels that carry data. When the band declares a
// nodata sentinel, pixels equal to it are masked out; without a
// sentinel only strictly positive pixels count, which drops the black
// collars warping introduces.
func validMask(samples []float64, nodata float64, hasNodata bool) []bool {
	mask := make([]bool, len(samples))
	for i, v := range samples {
		if hasNodata {
			mask[i] = v != nodata
		} else {
			mask[i] = v > 0
		}
	}
	return mask
}

// stretchToByte rescales samples to 0..255 using a percentile contrast
// stretch over the unmasked pixels. Masked pixels come out 0. A flat
// band (max == min) renders all zeros rather than dividing by zero.
func stretchToByte(samples []float64, mask []bool) []uint8 {
	valid := make([]float64, 0, len(samples))
	for i, v := range samples {
		if mask[i] {
			valid = append(valid, v)
		}
	}

	out := make([]uint8, len(samples))
	if len(valid) == 0 {
		return out
	}

	sort.Float64s(valid)
	lo := percentile(valid, stretchLow)
	hi := percentile(valid, stretchHigh)
	if hi <= lo {
		return out
	}

	scale := 255 / (hi - lo)
	for i, v := range samples {
		if !mask[i] {
			continue
		}
		b := (v - lo) * scale
		if b < 0 {
			b = 0
		} else if b > 255 {
			b = 255
		}
		out[i] = uint8(b)
	}
	return out
}

// percentile returns the p-th percentile of sorted by linear
// interpolation between the two nearest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}
