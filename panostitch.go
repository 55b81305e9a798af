// Package panostitch turns an ordered set of overlapping photographs into one
// panorama file and trims the black border that compositing leaves behind.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		"github.com/menta2k/panostitch"
//	)
//
//	func main() {
//		ps := panostitch.New()
//
//		result, err := ps.Stitch(context.Background(),
//			[]string{"left.jpg", "middle.jpg", "right.jpg"},
//			"panorama.jpg", 1080, true)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		fmt.Printf("Panorama %s written as %s\n", result.Panorama, result.ROI)
//	}
//
// The package consists of these components:
//
// 1. Processing (pkg/processing): decoding, encoding, width bounding and grayscale
// 2. Stitcher (pkg/stitcher): the stitching contract and its OpenCV binding
// 3. Cropper (pkg/cropper): the largest populated rectangle search
// 4. Pipeline (pkg/pipeline): sequencing of the stages above
//
// The border search starts from the full canvas and moves every border that
// holds more than 0.1% pure black pixels one pixel inward per step, until all
// four borders are populated or the region collapses. A collapsed search is
// not an error: the uncropped panorama is written instead.
package panostitch

import (
	"context"
	"image"

	"github.com/rs/zerolog"

	"github.com/menta2k/panostitch/pkg/cropper"
	"github.com/menta2k/panostitch/pkg/pipeline"
	"github.com/menta2k/panostitch/pkg/processing"
	"github.com/menta2k/panostitch/pkg/stitcher"
	"github.com/menta2k/panostitch/pkg/stitcher/opencv"
)

// Version of the panostitch library
const Version = "1.0.0"

// DefaultMaxWidth is the input width bound used by the command line tool
const DefaultMaxWidth = 1080

// Error categories, re-exported for callers that only import this package
var (
	ErrStitchFailed      = stitcher.ErrStitchFailed
	ErrInsufficientInput = stitcher.ErrInsufficientInput
	ErrDecode            = pipeline.ErrDecode
	ErrEncode            = pipeline.ErrEncode
	ErrInvalidRequest    = pipeline.ErrInvalidRequest
)

// PanoStitcher provides a high-level interface for stitching and border cropping
type PanoStitcher struct {
	processor    *processing.Processor
	cropper      *cropper.BorderCropper
	stitcher     stitcher.Stitcher
	orchestrator *pipeline.Orchestrator
}

// New creates a new PanoStitcher with default configuration, backed by OpenCV
func New() *PanoStitcher {
	return NewWithConfig(processing.Config{}, cropper.CropConfig{}, nil)
}

// NewWithConfig creates a new PanoStitcher with custom configuration. A nil
// stitcher selects the OpenCV binding.
func NewWithConfig(processingConfig processing.Config, cropConfig cropper.CropConfig, st stitcher.Stitcher) *PanoStitcher {
	if st == nil {
		st = opencv.New()
	}
	processor := processing.NewProcessorWithConfig(processingConfig)
	borderCropper := cropper.NewWithConfig(cropConfig)

	return &PanoStitcher{
		processor:    processor,
		cropper:      borderCropper,
		stitcher:     st,
		orchestrator: pipeline.New(processor, st, borderCropper),
	}
}

// SetLogger routes diagnostics of every component to logger
func (ps *PanoStitcher) SetLogger(logger zerolog.Logger) {
	ps.orchestrator.SetLogger(logger)
	ps.cropper.SetLogger(logger)
	if l, ok := ps.stitcher.(interface{ SetLogger(zerolog.Logger) }); ok {
		l.SetLogger(logger)
	}
}

// Stitch stitches the images at paths, in order, into one panorama written
// to out. Inputs wider than maxWidth are scaled down first. With crop set,
// the black border is trimmed before writing.
func (ps *PanoStitcher) Stitch(ctx context.Context, paths []string, out string, maxWidth int, crop bool) (pipeline.Result, error) {
	return ps.orchestrator.Stitch(ctx, pipeline.Request{
		ImagePaths: paths,
		OutputPath: out,
		MaxWidth:   maxWidth,
		Crop:       crop,
	})
}

// StitchOK is Stitch reduced to success or failure
func (ps *PanoStitcher) StitchOK(ctx context.Context, paths []string, out string, maxWidth int, crop bool) bool {
	_, err := ps.Stitch(ctx, paths, out, maxWidth, crop)
	return err == nil
}

// CropBorder trims the black border from an already stitched canvas
func (ps *PanoStitcher) CropBorder(img image.Image) (cropper.CropResult, error) {
	return ps.cropper.Crop(img, ps.processor.ToGray(img))
}

// LoadImage loads an image from file
func (ps *PanoStitcher) LoadImage(path string) (image.Image, error) {
	return ps.processor.LoadImage(path)
}

// SaveImage saves an image to file
func (ps *PanoStitcher) SaveImage(img image.Image, path string) error {
	return ps.processor.SaveImage(img, path)
}

// OpenCVVersion reports the linked OpenCV version as "opencv:<version>"
func OpenCVVersion() string {
	return "opencv:" + opencv.Version()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
