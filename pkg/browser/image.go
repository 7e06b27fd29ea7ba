package browser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

const pngDataURLPrefix = "data:image/png;base64,"

// ImageToPNGBase64 encodes img as a base64 PNG, optionally as a data URL.
func ImageToPNGBase64(img image.Image, dataURL bool) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	s := base64.StdEncoding.EncodeToString(buf.Bytes())
	if dataURL {
		return pngDataURLPrefix + s, nil
	}
	return s, nil
}

// PNGBase64ToImage decodes a base64 image, with or without a data URL prefix.
func PNGBase64ToImage(s string) (image.Image, error) {
	if strings.HasPrefix(s, "data:image") {
		_, rest, ok := strings.Cut(s, ",")
		if !ok {
			return nil, fmt.Errorf("malformed data URL")
		}
		s = rest
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Thumbnail shrinks a PNG so neither side exceeds maxSide. Images that
// already fit, and maxSide <= 0, return the input unchanged.
func Thumbnail(png []byte, maxSide int) ([]byte, error) {
	if maxSide <= 0 || len(png) == 0 {
		return png, nil
	}
	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	b := img.Bounds()
	if b.Dx() <= maxSide && b.Dy() <= maxSide {
		return png, nil
	}

	img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// ThumbnailBase64 is Thumbnail for base64-encoded screenshots, as carried by
// observations.
func ThumbnailBase64(screenshot string, maxSide int) (string, error) {
	if screenshot == "" || maxSide <= 0 {
		return screenshot, nil
	}
	data, err := base64.StdEncoding.DecodeString(screenshot)
	if err != nil {
		return "", fmt.Errorf("decode screenshot: %w", err)
	}
	small, err := Thumbnail(data, maxSide)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(small), nil
}
