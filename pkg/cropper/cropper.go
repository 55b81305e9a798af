package cropper

import (
	"image"

	"github.com/cockroachdb/errors"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/menta2k/panostitch/pkg/types"
)

// DefaultBlackThreshold is the largest fraction of pure black pixels a
// border line may hold and still count as populated.
const DefaultBlackThreshold = 0.001

var (
	// ErrSearchExhausted means the search shrank the region to nothing
	// without finding four populated borders.
	ErrSearchExhausted = errors.New("crop search exhausted")

	// ErrInvalidROI means the starting region is degenerate or lies outside
	// the image.
	ErrInvalidROI = errors.New("invalid starting region")
)

// BorderCropper trims the black border left around a composited panorama
type BorderCropper struct {
	config CropConfig
	logger zerolog.Logger
}

// CropConfig holds configuration for border cropping
type CropConfig struct {
	// BlackThreshold overrides DefaultBlackThreshold when positive
	BlackThreshold float64
}

// CropResult contains the result of a cropping operation
type CropResult struct {
	Image image.Image
	ROI   types.ROI
	Steps int
}

// New creates a new BorderCropper with default configuration
func New() *BorderCropper {
	return NewWithConfig(CropConfig{BlackThreshold: DefaultBlackThreshold})
}

// NewWithConfig creates a new BorderCropper with custom configuration
func NewWithConfig(config CropConfig) *BorderCropper {
	if config.BlackThreshold <= 0 {
		config.BlackThreshold = DefaultBlackThreshold
	}
	return &BorderCropper{
		config: config,
		logger: zerolog.Nop(),
	}
}

// SetLogger sets the logger used for search diagnostics
func (c *BorderCropper) SetLogger(logger zerolog.Logger) {
	c.logger = logger.With().Str("component", "cropper").Logger()
}

// Threshold returns the black-pixel threshold in effect
func (c *BorderCropper) Threshold() float64 {
	return c.config.BlackThreshold
}

// FindLargestROI runs the border search from start using the configured threshold
func (c *BorderCropper) FindLargestROI(gray *image.Gray, start types.ROI) (types.ROI, int, error) {
	roi, steps, err := FindLargestROI(gray, start, c.config.BlackThreshold)
	if err != nil {
		c.logger.Debug().
			Str("start", start.String()).
			Int("steps", steps).
			Err(err).
			Msg("crop search failed")
		return roi, steps, err
	}
	c.logger.Debug().
		Str("start", start.String()).
		Str("roi", roi.String()).
		Int("steps", steps).
		Msg("crop search converged")
	return roi, steps, nil
}

// Crop searches the full extent of gray and crops img to the region found.
// gray is only used for evaluation and must have the same size as img.
func (c *BorderCropper) Crop(img image.Image, gray *image.Gray) (CropResult, error) {
	if img == nil || gray == nil {
		return CropResult{}, errors.New("crop requires both a color and a gray image")
	}
	ib, gb := img.Bounds(), gray.Bounds()
	if ib.Dx() != gb.Dx() || ib.Dy() != gb.Dy() {
		return CropResult{}, errors.Newf("image size %dx%d does not match gray size %dx%d",
			ib.Dx(), ib.Dy(), gb.Dx(), gb.Dy())
	}

	roi, steps, err := c.FindLargestROI(gray, types.FromRect(gb))
	if err != nil {
		return CropResult{Steps: steps}, err
	}

	// Translate from gray coordinates onto the color image.
	rect := roi.Rect().Add(ib.Min.Sub(gb.Min))
	return CropResult{
		Image: imaging.Crop(img, rect),
		ROI:   roi,
		Steps: steps,
	}, nil
}

// FindLargestROI shrinks start inward one pixel per failing border until all
// four borders are populated. All failing borders move in the same step.
// It returns the region, the number of shrink steps taken, and
// ErrSearchExhausted once the region degenerates.
func FindLargestROI(gray *image.Gray, start types.ROI, threshold float64) (types.ROI, int, error) {
	if gray == nil {
		return types.ROI{}, 0, errors.Wrap(ErrInvalidROI, "nil gray image")
	}
	if !start.Within(gray.Bounds()) {
		return types.ROI{}, 0, errors.Wrapf(ErrInvalidROI, "%s outside %v", start, gray.Bounds())
	}

	roi := start
	for steps := 0; ; steps++ {
		topOK := EdgeOK(gray, roi, types.Row, 0, threshold)
		leftOK := EdgeOK(gray, roi, types.Column, 0, threshold)
		bottomOK := EdgeOK(gray, roi, types.Row, roi.Height-1, threshold)
		rightOK := EdgeOK(gray, roi, types.Column, roi.Width-1, threshold)
		if topOK && leftOK && bottomOK && rightOK {
			return roi, steps, nil
		}

		next := roi
		if !leftOK {
			next.X++
			next.Width--
		}
		if !topOK {
			next.Y++
			next.Height--
		}
		if !rightOK {
			next.Width--
		}
		if !bottomOK {
			next.Height--
		}
		if next.Degenerate() {
			return types.ROI{}, steps + 1, ErrSearchExhausted
		}
		roi = next
	}
}

// EdgeOK reports whether the line at pos along axis, in roi-local
// coordinates, has a black-pixel ratio at or below threshold.
// Lines outside roi are never acceptable.
func EdgeOK(gray *image.Gray, roi types.ROI, axis types.Axis, pos int, threshold float64) bool {
	if gray == nil || !roi.Within(gray.Bounds()) {
		return false
	}

	var length, black int
	switch axis {
	case types.Row:
		if pos < 0 || pos >= roi.Height {
			return false
		}
		length = roi.Width
		off := gray.PixOffset(roi.X, roi.Y+pos)
		for _, v := range gray.Pix[off : off+length] {
			if v == 0 {
				black++
			}
		}
	case types.Column:
		if pos < 0 || pos >= roi.Width {
			return false
		}
		length = roi.Height
		off := gray.PixOffset(roi.X+pos, roi.Y)
		for i := 0; i < length; i++ {
			if gray.Pix[off+i*gray.Stride] == 0 {
				black++
			}
		}
	default:
		return false
	}

	return float64(black)/float64(length) <= threshold
}
