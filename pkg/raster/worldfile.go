package raster

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// WGS84WKT is the well-known text of EPSG:4326, written to .prj sidecars.
const WGS84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`

// WorldFile is the six-parameter affine transform of a preview image,
// in world-file order: A and E are the pixel sizes (E negative for
// north-up), D and B the skew terms, C and F the map coordinates of the
// center of the upper-left pixel. Centers, not corners.
type WorldFile struct {
	A, D, B, E, C, F float64
}

// NewWorldFile derives the world file for a north-up, axis-aligned
// artifact of the given pixel dimensions covering bounds.
func NewWorldFile(b Bounds, width, height int) WorldFile {
	a := (b.East - b.West) / float64(width)
	e := -(b.North - b.South) / float64(height)
	return WorldFile{
		A: a,
		E: e,
		C: b.West + a/2,
		F: b.North + e/2,
	}
}

// String renders the six lines in a, d, b, e, c, f order.
func (w WorldFile) String() string {
	sb := strings.Builder{}
	for _, v := range []float64{w.A, w.D, w.B, w.E, w.C, w.F} {
		fmt.Fprintf(&sb, "%.10f\n", v)
	}
	return sb.String()
}

// Write writes the .pgw sidecar.
func (w WorldFile) Write(path string) error {
	return errors.Wrapf(os.WriteFile(path, []byte(w.String()), 0644), "failed writing world file %s", path)
}

// WriteProjection writes the .prj sidecar holding the artifact CRS WKT.
func WriteProjection(path, wkt string) error {
	return errors.Wrapf(os.WriteFile(path, []byte(wkt), 0644), "failed writing projection file %s", path)
}
