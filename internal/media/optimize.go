package media

import (
	"bytes"

	"github.com/disintegration/imaging"
	"github.com/rotisserie/eris"
)

const (
	defaultMaxDimension = 1600
	defaultJPEGQuality  = 82
)

// Optimizer shrinks images to fit within MaxDimension and re-encodes them as
// JPEG.
type Optimizer struct {
	MaxDimension int
	Quality      int
}

// Optimize decodes data (JPEG, PNG, GIF, TIFF or BMP), applies EXIF
// orientation, fits it into a MaxDimension square and returns JPEG bytes.
// Images already small enough are re-encoded without resizing.
func (o Optimizer) Optimize(data []byte) ([]byte, error) {
	maxDim := o.MaxDimension
	if maxDim <= 0 {
		maxDim = defaultMaxDimension
	}
	quality := o.Quality
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, eris.Wrap(err, "media: decode image")
	}

	b := img.Bounds()
	if b.Dx() > maxDim || b.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, eris.Wrap(err, "media: encode jpeg")
	}
	return buf.Bytes(), nil
}
