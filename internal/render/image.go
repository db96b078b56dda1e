package render

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	// Register decoders for dimension sniffing.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// imageInfo returns pixel dimensions and the gofpdf image-type tag for an
// encoded image.
func imageInfo(data []byte) (w, h int, typ string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("decode image: %w", err)
	}
	switch format {
	case "jpeg":
		typ = "JPG"
	case "png":
		typ = "PNG"
	case "gif":
		typ = "GIF"
	default:
		return 0, 0, "", fmt.Errorf("unsupported image format %q", format)
	}
	return cfg.Width, cfg.Height, typ, nil
}

// recompress re-encodes an image as JPEG at the given quality. Images that
// fail to decode are passed through untouched.
func recompress(data []byte, quality int) ([]byte, string) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return data, ""
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return data, ""
	}
	return buf.Bytes(), "JPG"
}
