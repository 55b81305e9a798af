// Package stitcher defines the batch panorama stitching capability consumed by
// the pipeline, together with its closed set of failure categories.
//
// The compositing itself (feature matching, homography estimation, camera
// adjustment, warping and blending) is delegated to an implementation such as
// the OpenCV binding in the opencv subpackage.
package stitcher

import (
	"context"
	"fmt"
	"image"

	"github.com/cockroachdb/errors"
)

// Status is the outcome reported by a stitcher
type Status int

const (
	StatusOK Status = iota
	StatusNeedMoreImages
	StatusHomographyEstFail
	StatusCameraParamsAdjustFail
	// StatusUnknown covers any code the stitcher reports that is not listed above
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNeedMoreImages:
		return "need more images"
	case StatusHomographyEstFail:
		return "homography estimation failed"
	case StatusCameraParamsAdjustFail:
		return "camera parameters adjustment failed"
	default:
		return "unknown stitching error"
	}
}

// StatusFromCode maps a raw stitcher status code onto a Status
func StatusFromCode(code int) Status {
	if code < int(StatusOK) || code >= int(StatusUnknown) {
		return StatusUnknown
	}
	return Status(code)
}

var (
	// ErrStitchFailed is the root of every stitching failure
	ErrStitchFailed = errors.New("stitch failed")

	// ErrInsufficientInput means fewer than two images were supplied
	ErrInsufficientInput = errors.Wrap(ErrStitchFailed, "insufficient input images")
)

// MinImages is the smallest batch that can form a panorama
const MinImages = 2

// StatusError is returned when a stitcher reports a non-OK status
type StatusError struct {
	Status Status
	Images int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stitch failed: %s (%d images)", e.Status, e.Images)
}

// Unwrap ties the error to ErrInsufficientInput or ErrStitchFailed
func (e *StatusError) Unwrap() error {
	if e.Status == StatusNeedMoreImages {
		return ErrInsufficientInput
	}
	return ErrStitchFailed
}

// NewStatusError builds the error for a failed stitch
func NewStatusError(status Status, images int) error {
	err := error(&StatusError{Status: status, Images: images})
	switch status {
	case StatusNeedMoreImages:
		err = errors.WithHint(err, "add more overlapping photographs to the sequence")
	case StatusHomographyEstFail:
		err = errors.WithHint(err, "make sure neighbouring photographs overlap by roughly a third")
	case StatusCameraParamsAdjustFail:
		err = errors.WithHint(err, "try a smaller maximum width or photographs taken from one position")
	}
	return err
}

// StatusOf returns the stitch status carried by err, or StatusUnknown when
// err is a stitch failure without one. It returns StatusOK for nil.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	if errors.Is(err, ErrInsufficientInput) {
		return StatusNeedMoreImages
	}
	return StatusUnknown
}

// Stitcher composites an ordered batch of overlapping images into one canvas.
// A failed stitch returns an error carrying a *StatusError.
type Stitcher interface {
	Stitch(ctx context.Context, images []image.Image) (image.Image, error)
}

// Func adapts a plain function into a Stitcher
type Func func(ctx context.Context, images []image.Image) (image.Image, error)

// Stitch calls f
func (f Func) Stitch(ctx context.Context, images []image.Image) (image.Image, error) {
	return f(ctx, images)
}
