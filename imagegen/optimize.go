package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Web delivery target for feature images.
const (
	TargetWidth  = 1200
	TargetHeight = 675
	JPEGQuality  = 80
)

// Optimize decodes a PNG, JPEG or WebP image, crops it to the target aspect
// ratio around the centre, scales it to TargetWidth x TargetHeight and
// re-encodes it as JPEG.
func Optimize(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, TargetWidth, TargetHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, coverRect(src.Bounds(), TargetWidth, TargetHeight), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// coverRect is the largest centred sub-rectangle of b with aspect w:h.
func coverRect(b image.Rectangle, w, h int) image.Rectangle {
	bw, bh := b.Dx(), b.Dy()
	if bw*h > bh*w {
		cw := bh * w / h
		x0 := b.Min.X + (bw-cw)/2
		return image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	}
	ch := bw * h / w
	y0 := b.Min.Y + (bh-ch)/2
	return image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
}
