package service

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"strings"

	"giftpool/internal/models"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// photoTypes maps the decoder's format name to the media type it implies.
var photoTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// mediaType lower-cases ct, drops parameters and folds the image/jpg alias.
func mediaType(ct string) string {
	if parsed, _, err := mime.ParseMediaType(ct); err == nil {
		ct = parsed
	}
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}

func isPhotoType(ct string) bool {
	for _, t := range photoTypes {
		if t == ct {
			return true
		}
	}
	return false
}

// decodePhoto sniffs and decodes an upload. A declared image/* type must agree with
// what the bytes turn out to be; other declared types are ignored.
func decodePhoto(content []byte, declared string) (image.Image, error) {
	if !isPhotoType(mediaType(http.DetectContentType(content))) {
		return nil, models.NewValidationError("Invalid image type")
	}
	img, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	if d := mediaType(declared); strings.HasPrefix(d, "image/") && d != photoTypes[format] {
		return nil, models.NewValidationError("Image content type mismatch")
	}
	return img, nil
}

// toWebP shrinks img to fit a maxSide square, keeping its aspect ratio, and encodes
// it as lossy WebP. Smaller images keep their size.
func toWebP(img image.Image, maxSide, quality int) ([]byte, error) {
	b := img.Bounds()
	if w, h := b.Dx(), b.Dy(); w > maxSide || h > maxSide {
		scale := float64(maxSide) / float64(max(w, h))
		dst := image.NewRGBA(image.Rect(0, 0, max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
