package raster

// Bounds is a rectangular extent in geographic coordinates.
type Bounds struct {
	West, South, East, North float64
}

// BoundsFromExtent converts a GDAL-style [minx, miny, maxx, maxy]
// extent into Bounds.
func BoundsFromExtent(ext [4]float64) Bounds {
	return Bounds{West: ext[0], South: ext[1], East: ext[2], North: ext[3]}
}

// BBox returns [west, south, east, north].
func (b Bounds) BBox() [4]float64 {
	return [4]float64{b.West, b.South, b.East, b.North}
}

// Leaflet returns the same rectangle as [[south, west], [north, east]],
// the corner ordering Leaflet map viewers expect.
func (b Bounds) Leaflet() [2][2]float64 {
	return [2][2]float64{{b.South, b.West}, {b.North, b.East}}
}
