package raster

import (
	"image"

	"github.com/airbusgeo/godal"
	"github.com/disintegration/imaging"

	"github.com/SERDSDDAM/SurpadClone/pkg/pipeline"
)

// previewMaxDim bounds the long edge of the PNG preview.
const previewMaxDim = 2048

// renderPreview reads the dataset bands, contrast-stretches them to
// bytes and writes a PNG preview at path. Single-band rasters are
// replicated to gray RGB so viewers get the same channel layout either
// way. Returns the preview pixel dimensions.
func renderPreview(ds *godal.Dataset, path string) (int, int, error) {
	st := ds.Structure()
	w, h := st.SizeX, st.SizeY
	bands := ds.Bands()

	var red, green, blue []uint8
	switch {
	case len(bands) >= 3:
		mask, err := readMask(bands[0], w, h)
		if err != nil {
			return 0, 0, err
		}
		channels := [3][]uint8{}
		for i := 0; i < 3; i++ {
			samples, err := readBand(bands[i], w, h)
			if err != nil {
				return 0, 0, err
			}
			channels[i] = stretchToByte(samples, mask)
		}
		red, green, blue = channels[0], channels[1], channels[2]
	case len(bands) == 1:
		samples, err := readBand(bands[0], w, h)
		if err != nil {
			return 0, 0, err
		}
		nodata, ok := bands[0].NoData()
		gray := stretchToByte(samples, validMask(samples, nodata, ok))
		red, green, blue = gray, gray, gray
	default:
		return 0, 0, pipeline.Validation(pipeline.ReasonUnsupportedBands)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		o := i * 4
		img.Pix[o] = red[i]
		img.Pix[o+1] = green[i]
		img.Pix[o+2] = blue[i]
		img.Pix[o+3] = 255
	}

	fitted := imaging.Fit(img, previewMaxDim, previewMaxDim, imaging.Lanczos)
	if err := imaging.Save(fitted, path); err != nil {
		return 0, 0, pipeline.Fatal(err, "failed writing preview png")
	}
	b := fitted.Bounds()
	return b.Dx(), b.Dy(), nil
}

// readMask computes the valid-pixel mask from the first band. The same
// mask applies to every band so partially-nodata pixels do not bleed
// single channels through.
func readMask(band godal.Band, w, h int) ([]bool, error) {
	samples, err := readBand(band, w, h)
	if err != nil {
		return nil, err
	}
	nodata, ok := band.NoData()
	return validMask(samples, nodata, ok), nil
}

func readBand(band godal.Band, w, h int) ([]float64, error) {
	buf := make([]float64, w*h)
	if err := band.Read(0, 0, buf, w, h); err != nil {
		return nil, pipeline.Fatal(err, "failed reading band")
	}
	return buf, nil
}
