package detector

import (
	"image"

	"golang.org/x/image/draw"
)

// Resize scales img to exactly width x height.
func Resize(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)

	return dst
}

// FitWithin resizes img to width x height only when it is larger in either dimension.
func FitWithin(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= width && bounds.Dy() <= height {
		return img
	}

	return Resize(img, width, height)
}
