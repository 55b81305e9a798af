package processing

import (
	"bytes"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/cockroachdb/errors"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Processor handles image decoding, encoding and normalization
type Processor struct {
	config Config
}

// Config holds output encoding settings
type Config struct {
	// Quality is used for JPEG and lossy WebP output (1-100)
	Quality int
	// Lossless selects lossless WebP output
	Lossless bool
	// Format overrides the format derived from the output extension
	Format string
	// CreateDirs creates missing parent directories of the output path
	// when the image is written
	CreateDirs bool
}

// DefaultQuality is the JPEG/WebP quality used when none is configured
const DefaultQuality = 95

// NewProcessor creates a new image processor with default settings
func NewProcessor() *Processor {
	return NewProcessorWithConfig(Config{Quality: DefaultQuality})
}

// NewProcessorWithConfig creates a new image processor with custom settings
func NewProcessorWithConfig(config Config) *Processor {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = DefaultQuality
	}
	return &Processor{config: config}
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders, EXIF orientation applied)
	if img, err := imaging.Open(path, imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	img, err := p.decodeImageFromBytes(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return img, nil
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func (p *Processor) decodeImageFromBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, errors.New("image: unknown or unsupported format")
}

// SaveImage encodes img to path, picking the format from the configured
// override or the file extension. The file is written to a temporary name
// in the same directory and renamed into place, so path never holds a
// partial image.
func (p *Processor) SaveImage(img image.Image, path string) error {
	if img == nil {
		return errors.New("no image to save")
	}
	format, err := p.outputFormat(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if p.config.CreateDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create output directory %s", dir)
		}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "create temporary file in %s", dir)
	}
	tmpName := tmp.Name()

	if err := p.Encode(tmp, img, format); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "encode %s", format)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temporary file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "set output permissions")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "move output into %s", path)
	}
	return nil
}

// Encode writes img to w in the given format (jpg, png, webp, gif, tif, bmp)
func (p *Processor) Encode(w io.Writer, img image.Image, format string) error {
	switch strings.ToLower(format) {
	case "webp":
		opts := &webp.Options{Lossless: p.config.Lossless, Quality: float32(p.config.Quality)}
		return webp.Encode(w, img, opts)
	default:
		f, err := imaging.FormatFromExtension(format)
		if err != nil {
			return errors.Wrapf(err, "unsupported output format %q", format)
		}
		return imaging.Encode(w, img, f, imaging.JPEGQuality(p.config.Quality))
	}
}

// CheckOutput reports whether SaveImage can encode to path, without touching
// the filesystem.
func (p *Processor) CheckOutput(path string) error {
	_, err := p.outputFormat(path)
	return err
}

func (p *Processor) outputFormat(path string) (string, error) {
	format := p.config.Format
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	format = strings.ToLower(format)
	if err := CheckFormat(format); err != nil {
		return "", err
	}
	return format, nil
}

// CheckFormat reports whether format names a supported output encoding
func CheckFormat(format string) error {
	format = strings.ToLower(format)
	if format == "webp" {
		return nil
	}
	if _, err := imaging.FormatFromExtension(format); err != nil {
		return errors.WithHint(
			errors.Newf("unsupported output format %q", format),
			"use one of jpg, png, webp, tif, bmp or gif")
	}
	return nil
}

// ScaleToWidth shrinks img to exactly maxWidth pixels wide when it is wider,
// keeping the aspect ratio. The height is rounded toward zero. It reports
// whether the image was scaled.
func (p *Processor) ScaleToWidth(img image.Image, maxWidth int) (image.Image, bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxWidth <= 0 || w <= maxWidth {
		return img, false
	}
	newH := h * maxWidth / w
	if newH < 1 {
		newH = 1
	}
	return imaging.Resize(img, maxWidth, newH, imaging.Linear), true
}
