// Package opencv implements stitcher.Stitcher on top of the OpenCV panorama
// stitching module through gocv.
package opencv

/*
#cgo !windows pkg-config: opencv4
#cgo CXXFLAGS: --std=c++11 -DNDEBUG
#include <stdlib.h>
#include "stitcher.h"
*/
import "C"

import (
	"context"
	"image"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/menta2k/panostitch/pkg/stitcher"
)

// Mode selects the OpenCV stitching model
type Mode int

const (
	// ModePanorama assumes a camera rotating around its optical centre
	ModePanorama Mode = iota
	// ModeScans assumes an affine model suited to flat documents
	ModeScans
)

// code is the value the native shim expects for cv::Stitcher::Mode
func (m Mode) code() int {
	if m == ModeScans {
		return 1
	}
	return 0
}

// Stitcher runs OpenCV's high level stitching pipeline. A zero value is ready
// to use in panorama mode.
type Stitcher struct {
	mode   Mode
	logger zerolog.Logger
}

// New creates an OpenCV backed stitcher in panorama mode
func New() *Stitcher {
	return &Stitcher{mode: ModePanorama, logger: zerolog.Nop()}
}

// NewWithMode creates an OpenCV backed stitcher using the given model
func NewWithMode(mode Mode) *Stitcher {
	return &Stitcher{mode: mode, logger: zerolog.Nop()}
}

// SetLogger sets the logger used for stitch diagnostics
func (s *Stitcher) SetLogger(logger zerolog.Logger) {
	s.logger = logger.With().Str("component", "opencv").Logger()
}

// Stitch composites images, in order, into one canvas. Inputs are
// converted to 8-bit BGR matrices and released before returning.
func (s *Stitcher) Stitch(ctx context.Context, images []image.Image) (image.Image, error) {
	if len(images) < stitcher.MinImages {
		return nil, stitcher.NewStatusError(stitcher.StatusNeedMoreImages, len(images))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mats := make([]gocv.Mat, 0, len(images))
	defer func() {
		for i := range mats {
			mats[i].Close()
		}
	}()
	for i, img := range images {
		if img == nil {
			return nil, errors.Newf("input %d is nil", i)
		}
		mat, err := ImageToMat(img)
		if err != nil {
			return nil, errors.Wrapf(err, "convert input %d", i)
		}
		mats = append(mats, mat)
	}

	pano := gocv.NewMat()
	defer pano.Close()

	start := time.Now()
	status := stitcher.StatusFromCode(stitchMats(s.mode, mats, &pano))
	s.logger.Debug().
		Int("images", len(mats)).
		Str("status", status.String()).
		Dur("elapsed", time.Since(start)).
		Msg("opencv stitch finished")

	if status != stitcher.StatusOK {
		return nil, stitcher.NewStatusError(status, len(mats))
	}
	if pano.Empty() {
		return nil, stitcher.NewStatusError(stitcher.StatusUnknown, len(mats))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return MatToImage(pano)
}

// stitchMats hands the matrix handles to cv::Stitcher and returns its raw
// status code.
func stitchMats(mode Mode, mats []gocv.Mat, pano *gocv.Mat) int {
	n := len(mats)
	ptr := C.malloc(C.size_t(n) * C.size_t(unsafe.Sizeof(uintptr(0))))
	defer C.free(ptr)

	handles := unsafe.Slice((*unsafe.Pointer)(ptr), n)
	for i := range mats {
		handles[i] = unsafe.Pointer(mats[i].Ptr())
	}
	return int(C.Panostitch_Stitch(C.int(mode.code()), (*unsafe.Pointer)(ptr), C.int(n), unsafe.Pointer(pano.Ptr())))
}

// ImageToMat converts a Go image into an 8-bit 3-channel BGR matrix. Alpha is
// dropped.
func ImageToMat(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return gocv.Mat{}, errors.New("empty image")
	}

	buf := make([]byte, w*h*3)
	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			si := src.PixOffset(b.Min.X, b.Min.Y+y)
			di := y * w * 3
			for x := 0; x < w; x++ {
				buf[di], buf[di+1], buf[di+2] = src.Pix[si+2], src.Pix[si+1], src.Pix[si]
				si += 4
				di += 3
			}
		}
	default:
		di := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				buf[di], buf[di+1], buf[di+2] = uint8(bl>>8), uint8(g>>8), uint8(r>>8)
				di += 3
			}
		}
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, buf)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "create matrix")
	}
	return mat, nil
}

// MatToImage converts an 8-bit BGR, BGRA or single-channel matrix into an
// origin based NRGBA image.
func MatToImage(mat gocv.Mat) (image.Image, error) {
	rows, cols, channels := mat.Rows(), mat.Cols(), mat.Channels()
	if rows <= 0 || cols <= 0 {
		return nil, errors.New("empty matrix")
	}
	if channels != 1 && channels != 3 && channels != 4 {
		return nil, errors.Newf("unsupported channel count: %d", channels)
	}

	data := mat.ToBytes()
	if len(data) < rows*cols*channels {
		return nil, errors.Newf("matrix holds %d bytes, want %d", len(data), rows*cols*channels)
	}

	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	si := 0
	for i := 0; i < rows*cols; i++ {
		di := i * 4
		switch channels {
		case 1:
			v := data[si]
			img.Pix[di], img.Pix[di+1], img.Pix[di+2], img.Pix[di+3] = v, v, v, 255
		case 3:
			img.Pix[di], img.Pix[di+1], img.Pix[di+2], img.Pix[di+3] = data[si+2], data[si+1], data[si], 255
		case 4:
			img.Pix[di], img.Pix[di+1], img.Pix[di+2], img.Pix[di+3] = data[si+2], data[si+1], data[si], data[si+3]
		}
		si += channels
	}
	return img, nil
}

// Version reports the OpenCV library version linked into the binary
func Version() string {
	return gocv.OpenCVVersion()
}

// BindingVersion reports the gocv binding version
func BindingVersion() string {
	return gocv.Version()
}
