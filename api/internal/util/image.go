package util

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ResizeJPEG decodes data, scales it down to maxWidth (never up) and
// re-encodes it as JPEG.
func ResizeJPEG(data []byte, maxWidth, quality int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("empty image")
	}

	var out image.Image = src
	if maxWidth > 0 && w > maxWidth {
		nh := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
		if nh < 1 {
			nh = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, nh))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		out = dst
	}
	return encodeJPEG(out, quality)
}

// StackVertical glues pages top to bottom on a white canvas, centred, and
// scales the result down when it exceeds maxPixels.
func StackVertical(images [][]byte, maxPixels, quality int) ([]byte, error) {
	if len(images) == 0 {
		return nil, errors.New("no images")
	}
	decoded := make([]image.Image, 0, len(images))
	maxW, sumH := 0, 0
	for i, data := range images {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode page %d: %w", i+1, err)
		}
		b := img.Bounds()
		if b.Dx() > maxW {
			maxW = b.Dx()
		}
		sumH += b.Dy()
		decoded = append(decoded, img)
	}
	if maxW == 0 || sumH == 0 {
		return nil, errors.New("empty images")
	}

	canvas := image.NewRGBA(image.Rect(0, 0, maxW, sumH))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	y := 0
	for _, img := range decoded {
		b := img.Bounds()
		x := (maxW - b.Dx()) / 2
		draw.Draw(canvas, image.Rect(x, y, x+b.Dx(), y+b.Dy()), img, b.Min, draw.Over)
		y += b.Dy()
	}

	var final image.Image = canvas
	if total := maxW * sumH; maxPixels > 0 && total > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(total))
		nw := max(1, int(float64(maxW)*scale+0.5))
		nh := max(1, int(float64(sumH)*scale+0.5))
		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)
		final = dst
	}
	return encodeJPEG(final, quality)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
