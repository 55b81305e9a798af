// Package pipeline sequences panorama finishing: decode the inputs, bound
// their width, stitch them, optionally trim the black border and write the
// result.
package pipeline

import (
	"context"
	"image"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/menta2k/panostitch/pkg/cropper"
	"github.com/menta2k/panostitch/pkg/processing"
	"github.com/menta2k/panostitch/pkg/stitcher"
	"github.com/menta2k/panostitch/pkg/types"
)

// Codec reads input images and writes the output panorama.
// processing.Processor is the production implementation.
type Codec interface {
	LoadImage(path string) (image.Image, error)
	SaveImage(img image.Image, path string) error
}

// outputChecker is implemented by codecs that can reject an output path
// before any input is decoded
type outputChecker interface {
	CheckOutput(path string) error
}

// Request describes one stitch job
type Request struct {
	// ImagePaths are the overlapping photographs, in sequence order
	ImagePaths []string
	// OutputPath receives the finished panorama
	OutputPath string
	// MaxWidth bounds the width of every input before stitching
	MaxWidth int
	// Crop trims the black border from the stitched canvas
	Crop bool
}

// InputInfo records how one input was normalized
type InputInfo struct {
	Path     string     `json:"path"`
	Original types.Size `json:"original"`
	Scaled   types.Size `json:"scaled"`
	Resized  bool       `json:"resized"`
}

// Result describes a finished stitch job
type Result struct {
	OutputPath string `json:"output_path"`
	// Panorama is the size of the stitched canvas before cropping
	Panorama types.Size `json:"panorama"`
	// ROI is the region written, relative to the stitched canvas
	ROI     types.ROI     `json:"roi"`
	Cropped bool          `json:"cropped"`
	Steps   int           `json:"steps"`
	Inputs  []InputInfo   `json:"inputs"`
	Elapsed time.Duration `json:"elapsed"`
}

// Orchestrator runs stitch jobs against a codec, a stitcher and a border
// cropper. It holds no per-job state and may be reused sequentially.
type Orchestrator struct {
	codec     Codec
	stitcher  stitcher.Stitcher
	cropper   *cropper.BorderCropper
	processor *processing.Processor
	logger    zerolog.Logger
}

// New creates an Orchestrator. A nil cropper selects the default threshold.
func New(codec Codec, st stitcher.Stitcher, crop *cropper.BorderCropper) *Orchestrator {
	if crop == nil {
		crop = cropper.New()
	}
	return &Orchestrator{
		codec:     codec,
		stitcher:  st,
		cropper:   crop,
		processor: processing.NewProcessor(),
		logger:    zerolog.Nop(),
	}
}

// SetLogger sets the logger used for stage diagnostics
func (o *Orchestrator) SetLogger(logger zerolog.Logger) {
	o.logger = logger.With().Str("component", "pipeline").Logger()
}

// Stitch runs one job. The output file is written only when every stage
// succeeds. A border search that finds no populated region is not an error:
// the uncropped canvas is written and Result.Cropped is false.
func (o *Orchestrator) Stitch(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	result := Result{OutputPath: req.OutputPath}

	if err := o.validate(req); err != nil {
		return result, err
	}

	images, err := o.load(ctx, req, &result)
	if err != nil {
		return result, err
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	stitchStart := time.Now()
	pano, err := o.stitcher.Stitch(ctx, images)
	if err != nil {
		if ctx.Err() != nil {
			return result, err
		}
		if !errors.Is(err, stitcher.ErrStitchFailed) {
			err = errors.Mark(err, stitcher.ErrStitchFailed)
		}
		o.logger.Error().
			Int("images", len(images)).
			Str("status", stitcher.StatusOf(err).String()).
			Err(err).
			Msg("stitch failed")
		return result, errors.Wrap(err, "stitch")
	}
	if isNilImage(pano) || pano.Bounds().Empty() {
		return result, stitcher.NewStatusError(stitcher.StatusUnknown, len(images))
	}

	result.Panorama = types.SizeOf(pano)
	result.ROI = types.FromRect(image.Rect(0, 0, result.Panorama.Width, result.Panorama.Height))
	o.logger.Info().
		Str("panorama", result.Panorama.String()).
		Dur("elapsed", time.Since(stitchStart)).
		Msg("stitched")

	if err := ctx.Err(); err != nil {
		return result, err
	}

	out := pano
	if req.Crop {
		out, err = o.crop(pano, &result)
		if err != nil {
			return result, err
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	writeStart := time.Now()
	if err := o.codec.SaveImage(out, req.OutputPath); err != nil {
		return result, errors.Mark(errors.Wrapf(err, "write %s", req.OutputPath), ErrEncode)
	}

	result.Elapsed = time.Since(start)
	o.logger.Info().
		Str("output", req.OutputPath).
		Str("size", types.SizeOf(out).String()).
		Bool("cropped", result.Cropped).
		Dur("write", time.Since(writeStart)).
		Dur("elapsed", result.Elapsed).
		Msg("panorama written")
	return result, nil
}

func (o *Orchestrator) validate(req Request) error {
	if req.OutputPath == "" {
		return errors.WithHint(
			errors.Mark(errors.New("output path is empty"), ErrInvalidRequest),
			"pass the file the panorama should be written to")
	}
	if req.MaxWidth <= 0 {
		return errors.Mark(errors.Newf("max width must be positive, got %d", req.MaxWidth), ErrInvalidRequest)
	}
	if oc, ok := o.codec.(outputChecker); ok {
		if err := oc.CheckOutput(req.OutputPath); err != nil {
			err = errors.Wrapf(err, "output %s", req.OutputPath)
			return errors.Mark(errors.Mark(err, ErrInvalidRequest), ErrEncode)
		}
	}
	if len(req.ImagePaths) < stitcher.MinImages {
		return stitcher.NewStatusError(stitcher.StatusNeedMoreImages, len(req.ImagePaths))
	}
	return nil
}

// isNilImage reports whether img is nil or a nil pointer held in the
// interface
func isNilImage(img image.Image) bool {
	if img == nil {
		return true
	}
	v := reflect.ValueOf(img)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// load decodes every input in order and bounds its width
func (o *Orchestrator) load(ctx context.Context, req Request, result *Result) ([]image.Image, error) {
	images := make([]image.Image, 0, len(req.ImagePaths))
	result.Inputs = make([]InputInfo, 0, len(req.ImagePaths))

	for i, path := range req.ImagePaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := o.codec.LoadImage(path)
		if err != nil {
			return nil, errors.WithHint(
				errors.Mark(errors.Wrapf(err, "decode input %d (%s)", i, path), ErrDecode),
				"check that every input is a readable jpg, png, webp, tif or bmp file")
		}

		info := InputInfo{Path: path, Original: types.SizeOf(img)}
		img, info.Resized = o.processor.ScaleToWidth(img, req.MaxWidth)
		info.Scaled = types.SizeOf(img)

		o.logger.Debug().
			Int("index", i).
			Str("path", path).
			Str("original", info.Original.String()).
			Str("scaled", info.Scaled.String()).
			Bool("resized", info.Resized).
			Msg("input loaded")

		images = append(images, img)
		result.Inputs = append(result.Inputs, info)
	}
	return images, nil
}

// crop trims the black border from pano, falling back to pano itself when
// the search finds no populated region.
func (o *Orchestrator) crop(pano image.Image, result *Result) (image.Image, error) {
	cropStart := time.Now()
	gray := o.processor.ToGray(pano)

	res, err := o.cropper.Crop(pano, gray)
	result.Steps = res.Steps
	if errors.Is(err, cropper.ErrSearchExhausted) {
		o.logger.Warn().
			Str("panorama", result.Panorama.String()).
			Int("steps", res.Steps).
			Msg("no populated region found, writing uncropped panorama")
		return pano, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "crop")
	}

	result.ROI = res.ROI
	result.Cropped = true
	o.logger.Info().
		Str("roi", res.ROI.String()).
		Int("steps", res.Steps).
		Dur("elapsed", time.Since(cropStart)).
		Msg("border cropped")
	return res.Image, nil
}
