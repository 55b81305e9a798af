package processing

import (
	"image"
)

// Fixed-point luma weights matching OpenCV's BGR2GRAY conversion.
const (
	grayShift = 14
	grayR     = 4899
	grayG     = 9617
	grayB     = 1868
	grayRound = 1 << (grayShift - 1)
)

func luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*grayR + uint32(g)*grayG + uint32(b)*grayB + grayRound) >> grayShift)
}

// ToGray derives a single-channel intensity image from img. Alpha is ignored
// and the result always starts at the origin.
func (p *Processor) ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+w], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			si := src.PixOffset(b.Min.X, b.Min.Y+y)
			di := y * dst.Stride
			for x := 0; x < w; x++ {
				dst.Pix[di+x] = luma(src.Pix[si], src.Pix[si+1], src.Pix[si+2])
				si += 4
			}
		}
	case *image.RGBA:
		for y := 0; y < h; y++ {
			si := src.PixOffset(b.Min.X, b.Min.Y+y)
			di := y * dst.Stride
			for x := 0; x < w; x++ {
				dst.Pix[di+x] = luma(src.Pix[si], src.Pix[si+1], src.Pix[si+2])
				si += 4
			}
		}
	default:
		for y := 0; y < h; y++ {
			di := y * dst.Stride
			for x := 0; x < w; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				dst.Pix[di+x] = luma(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			}
		}
	}
	return dst
}
