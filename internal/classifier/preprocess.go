package classifier

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
)

// ErrImagePreprocessing is returned for empty, corrupt or non-image payloads.
var ErrImagePreprocessing = errors.New("image preprocessing failed")

// decodable lists the formats whose headers are verified before upload to
// the model server. Other accepted formats are checked by signature only.
var decodable = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

var accepted = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// Image is an uploaded photo that passed the preprocessing gate.
type Image struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Preprocess sniffs the payload and rejects anything the classifier could
// not decode.
func Preprocess(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty payload", ErrImagePreprocessing)
	}

	mime := mimetype.Detect(data).String()
	if !accepted[mime] {
		return Image{}, fmt.Errorf("%w: unsupported content type %s", ErrImagePreprocessing, mime)
	}

	img := Image{Data: data, MIME: mime}
	if decodable[mime] {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return Image{}, fmt.Errorf("%w: %w", ErrImagePreprocessing, err)
		}
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return Image{}, fmt.Errorf("%w: empty image %dx%d", ErrImagePreprocessing, cfg.Width, cfg.Height)
		}
		img.Width, img.Height = cfg.Width, cfg.Height
	}
	return img, nil
}
