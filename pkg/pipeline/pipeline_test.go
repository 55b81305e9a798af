package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/panostitch/pkg/cropper"
	"github.com/menta2k/panostitch/pkg/processing"
	"github.com/menta2k/panostitch/pkg/stitcher"
	"github.com/menta2k/panostitch/pkg/types"
)

// createTestImage creates a populated image with no pure black pixels
func createTestImage(width, height int, shade uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(50 + x%100), uint8(60 + y%100), shade, 255})
		}
	}
	return img
}

// writeInputs saves one PNG per size into dir and returns their paths
func writeInputs(t *testing.T, dir string, sizes ...types.Size) []string {
	t.Helper()
	p := processing.NewProcessor()
	paths := make([]string, 0, len(sizes))
	for i, s := range sizes {
		path := filepath.Join(dir, fmt.Sprintf("tile_%02d.png", i))
		require.NoError(t, p.SaveImage(createTestImage(s.Width, s.Height, uint8(80+i*40)), path))
		paths = append(paths, path)
	}
	return paths
}

// framedStitcher places its inputs side by side on a black canvas with a
// pad pixel frame, the way a compositor leaves unfilled margins.
type framedStitcher struct {
	pad    int
	calls  int
	seen   []types.Size
	canvas *image.NRGBA
}

func (f *framedStitcher) Stitch(_ context.Context, images []image.Image) (image.Image, error) {
	f.calls++
	f.seen = f.seen[:0]
	width, height := 0, 0
	for _, img := range images {
		s := types.SizeOf(img)
		f.seen = append(f.seen, s)
		width += s.Width
		if s.Height > height {
			height = s.Height
		}
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, width+2*f.pad, height+2*f.pad))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.NRGBA{0, 0, 0, 255}), image.Point{}, draw.Src)
	x := f.pad
	for _, img := range images {
		b := img.Bounds()
		draw.Draw(canvas, image.Rect(x, f.pad, x+b.Dx(), f.pad+b.Dy()), img, b.Min, draw.Src)
		x += b.Dx()
	}
	f.canvas = canvas
	return canvas, nil
}

func newOrchestrator(st stitcher.Stitcher) *Orchestrator {
	return New(processing.NewProcessor(), st, cropper.New())
}

func assertNoFile(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected no file at %s", path)
}

func TestStitchCropsBlackBorder(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 30, Height: 20}, types.Size{Width: 30, Height: 20})
	out := filepath.Join(dir, "pano.png")
	st := &framedStitcher{pad: 5}

	res, err := newOrchestrator(st).Stitch(context.Background(), Request{
		ImagePaths: paths, OutputPath: out, MaxWidth: 1080, Crop: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, st.calls)
	assert.True(t, res.Cropped)
	assert.Equal(t, types.Size{Width: 70, Height: 30}, res.Panorama)
	assert.Equal(t, types.ROI{X: 5, Y: 5, Width: 60, Height: 20}, res.ROI)
	assert.Equal(t, 5, res.Steps)
	assert.Equal(t, out, res.OutputPath)
	require.Len(t, res.Inputs, 2)
	assert.False(t, res.Inputs[0].Resized)

	written, err := processing.NewProcessor().LoadImage(out)
	require.NoError(t, err)
	assert.Equal(t, 60, written.Bounds().Dx())
	assert.Equal(t, 20, written.Bounds().Dy())
	assert.Less(t, written.Bounds().Dx()*written.Bounds().Dy(), res.Panorama.Width*res.Panorama.Height)

	want := color.NRGBAModel.Convert(st.canvas.At(5, 5))
	assert.Equal(t, want, color.NRGBAModel.Convert(written.At(0, 0)))
}

func TestStitchWithoutCropWritesCanvas(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 24, Height: 16}, types.Size{Width: 18, Height: 16})
	out := filepath.Join(dir, "pano.png")
	st := &framedStitcher{pad: 3}

	res, err := newOrchestrator(st).Stitch(context.Background(), Request{
		ImagePaths: paths, OutputPath: out, MaxWidth: 1080, Crop: false,
	})
	require.NoError(t, err)
	assert.False(t, res.Cropped)
	assert.Equal(t, 0, res.Steps)
	assert.Equal(t, types.ROI{X: 0, Y: 0, Width: 48, Height: 22}, res.ROI)

	written, err := processing.NewProcessor().LoadImage(out)
	require.NoError(t, err)
	require.Equal(t, st.canvas.Bounds().Size(), written.Bounds().Size())
	for y := 0; y < 22; y++ {
		for x := 0; x < 48; x++ {
			want := color.NRGBAModel.Convert(st.canvas.At(x, y))
			got := color.NRGBAModel.Convert(written.At(x, y))
			if want != got {
				t.Fatalf("pixel (%d,%d): want %v, got %v", x, y, want, got)
			}
		}
	}
}

func TestStitchSingleImage(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 10, Height: 10})
	out := filepath.Join(dir, "pano.png")
	st := &framedStitcher{}

	_, err := newOrchestrator(st).Stitch(context.Background(), Request{
		ImagePaths: paths, OutputPath: out, MaxWidth: 1080, Crop: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, stitcher.ErrInsufficientInput))
	assert.True(t, errors.Is(err, stitcher.ErrStitchFailed))
	assert.Equal(t, stitcher.StatusNeedMoreImages, stitcher.StatusOf(err))
	assert.Equal(t, 0, st.calls)
	assertNoFile(t, out)
}

func TestStitchDecodeError(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 10, Height: 10})
	paths = append(paths, filepath.Join(dir, "missing.jpg"))
	out := filepath.Join(dir, "pano.png")
	st := &framedStitcher{}

	_, err := newOrchestrator(st).Stitch(context.Background(), Request{
		ImagePaths: paths, OutputPath: out, MaxWidth: 1080, Crop: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
	assert.False(t, errors.Is(err, stitcher.ErrStitchFailed))
	assert.Contains(t, err.Error(), "missing.jpg")
	assert.Equal(t, 0, st.calls)
	assertNoFile(t, out)
}

func TestStitchFailureCategory(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 10, Height: 10}, types.Size{Width: 10, Height: 10})
	out := filepath.Join(dir, "pano.png")

	st := stitcher.Func(func(_ context.Context, images []image.Image) (image.Image, error) {
		return nil, stitcher.NewStatusError(stitcher.StatusHomographyEstFail, len(images))
	})
	_, err := newOrchestrator(st).Stitch(context.Background(), Request{
		ImagePaths: paths, OutputPath: out, MaxWidth: 1080, Crop: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, stitcher.ErrStitchFailed))
	assert.Equal(t, stitcher.StatusHomographyEstFail, stitcher.StatusOf(err))
	assertNoFile(t, out)
}

func TestStitchPlainErrorIsStitchFailure(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 10, Height: 10}, types.Size{Width: 10, Height: 10})

	st := stitcher.Func(func(context.Context, []image.Image) (image.Image, error) {
		return nil, errors.New("engine exploded")
	})
	_, err := newOrchestrator(st).Stitch(context.Background(), Request{
		ImagePaths: paths, OutputPath: filepath.Join(dir, "pano.png"), MaxWidth: 1080,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, stitcher.ErrStitchFailed))
	assert.Equal(t, stitcher.StatusUnknown, stitcher.StatusOf(err))
}

func TestStitchEmptyCanvas(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 10, Height: 10}, types.Size{Width: 10, Height: 10})

	st := stitcher.Func(func(context.Context, []image.Image) (image.Image, error) {
		return nil, nil
	})
	_, err := newOrchestrator(st).Stitch(context.Background(), Request{
		ImagePaths: paths, OutputPath: filepath.Join(dir, "pano.png"), MaxWidth: 1080,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, stitcher.ErrStitchFailed))
}

func TestStitchAllBlackFallsBackToUncropped(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 10, Height: 10}, types.Size{Width: 10, Height: 10})
	out := filepath.Join(dir, "pano.png")

	st := stitcher.Func(func(context.Context, []image.Image) (image.Image, error) {
		canvas := image.NewNRGBA(image.Rect(0, 0, 20, 10))
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.NRGBA{0, 0, 0, 255}), image.Point{}, draw.Src)
		return canvas, nil
	})
	res, err := newOrchestrator(st).Stitch(context.Background(), Request{
		ImagePaths: paths, OutputPath: out, MaxWidth: 1080, Crop: true,
	})
	require.NoError(t, err)
	assert.False(t, res.Cropped)
	assert.Positive(t, res.Steps)
	assert.Equal(t, types.ROI{X: 0, Y: 0, Width: 20, Height: 10}, res.ROI)

	written, err := processing.NewProcessor().LoadImage(out)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 10), written.Bounds().Size())
}

func TestStitchScalesWideInputs(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir,
		types.Size{Width: 200, Height: 100},
		types.Size{Width: 150, Height: 100},
		types.Size{Width: 80, Height: 40},
	)
	st := &framedStitcher{}

	res, err := newOrchestrator(st).Stitch(context.Background(), Request{
		ImagePaths: paths, OutputPath: filepath.Join(dir, "pano.png"), MaxWidth: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, []types.Size{
		{Width: 100, Height: 50},
		{Width: 100, Height: 66},
		{Width: 80, Height: 40},
	}, st.seen)

	require.Len(t, res.Inputs, 3)
	assert.True(t, res.Inputs[0].Resized)
	assert.Equal(t, types.Size{Width: 200, Height: 100}, res.Inputs[0].Original)
	assert.Equal(t, types.Size{Width: 100, Height: 66}, res.Inputs[1].Scaled)
	assert.False(t, res.Inputs[2].Resized)
	assert.Equal(t, paths[2], res.Inputs[2].Path)
}

func TestStitchEncodeError(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 10, Height: 10}, types.Size{Width: 10, Height: 10})
	out := filepath.Join(dir, "pano.unknown")
	st := &framedStitcher{pad: 1}

	_, err := newOrchestrator(st).Stitch(context.Background(), Request{
		ImagePaths: paths, OutputPath: out, MaxWidth: 1080, Crop: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncode))
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	assert.Equal(t, 0, st.calls, "unsupported output must be rejected before stitching")
	assertNoFile(t, out)
	assert.NotEmpty(t, errors.GetAllHints(err))
}

// failingCodec decodes normally but cannot write
type failingCodec struct {
	*processing.Processor
}

func (failingCodec) SaveImage(image.Image, string) error {
	return errors.New("disk full")
}

func TestStitchWriteFailureAfterStitch(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 10, Height: 10}, types.Size{Width: 10, Height: 10})
	out := filepath.Join(dir, "pano.png")
	st := &framedStitcher{pad: 1}

	_, err := New(failingCodec{processing.NewProcessor()}, st, nil).Stitch(context.Background(), Request{
		ImagePaths: paths, OutputPath: out, MaxWidth: 1080, Crop: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncode))
	assert.False(t, errors.Is(err, ErrInvalidRequest))
	assert.Equal(t, 1, st.calls)
	assertNoFile(t, out)
}

func TestStitchTypedNilCanvas(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 10, Height: 10}, types.Size{Width: 10, Height: 10})
	out := filepath.Join(dir, "pano.png")

	st := stitcher.Func(func(context.Context, []image.Image) (image.Image, error) {
		var canvas *image.NRGBA
		return canvas, nil
	})
	var err error
	require.NotPanics(t, func() {
		_, err = newOrchestrator(st).Stitch(context.Background(), Request{
			ImagePaths: paths, OutputPath: out, MaxWidth: 1080, Crop: true,
		})
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, stitcher.ErrStitchFailed))
	assert.Equal(t, stitcher.StatusUnknown, stitcher.StatusOf(err))
	assertNoFile(t, out)
}

func TestStitchCreatesOutputDirectory(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 10, Height: 10}, types.Size{Width: 10, Height: 10})
	codec := processing.NewProcessorWithConfig(processing.Config{CreateDirs: true})
	o := New(codec, &framedStitcher{pad: 1}, nil)

	out := filepath.Join(dir, "nested", "deeper", "pano.png")
	_, err := o.Stitch(context.Background(), Request{ImagePaths: paths, OutputPath: out, MaxWidth: 1080, Crop: true})
	require.NoError(t, err)
	assert.FileExists(t, out)

	failing := New(codec, stitcher.Func(func(context.Context, []image.Image) (image.Image, error) {
		return nil, stitcher.NewStatusError(stitcher.StatusHomographyEstFail, 2)
	}), nil)
	missing := filepath.Join(dir, "never")
	_, err = failing.Stitch(context.Background(), Request{
		ImagePaths: paths, OutputPath: filepath.Join(missing, "pano.png"), MaxWidth: 1080,
	})
	require.Error(t, err)
	assertNoFile(t, missing)
}

func TestStitchInvalidRequest(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 10, Height: 10}, types.Size{Width: 10, Height: 10})
	o := newOrchestrator(&framedStitcher{})

	_, err := o.Stitch(context.Background(), Request{ImagePaths: paths, MaxWidth: 1080})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = o.Stitch(context.Background(), Request{ImagePaths: paths, OutputPath: filepath.Join(dir, "p.png")})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestStitchCancelledBeforeStart(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 10, Height: 10}, types.Size{Width: 10, Height: 10})
	out := filepath.Join(dir, "pano.png")
	st := &framedStitcher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newOrchestrator(st).Stitch(ctx, Request{ImagePaths: paths, OutputPath: out, MaxWidth: 1080})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, st.calls)
	assertNoFile(t, out)
}

func TestStitchCancelledDuringStitch(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 10, Height: 10}, types.Size{Width: 10, Height: 10})
	out := filepath.Join(dir, "pano.png")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inner := &framedStitcher{pad: 2}
	st := stitcher.Func(func(ctx context.Context, images []image.Image) (image.Image, error) {
		cancel()
		return inner.Stitch(ctx, images)
	})

	_, err := newOrchestrator(st).Stitch(ctx, Request{ImagePaths: paths, OutputPath: out, MaxWidth: 1080, Crop: true})
	assert.ErrorIs(t, err, context.Canceled)
	assertNoFile(t, out)
}

func TestOrchestratorReuse(t *testing.T) {
	dir := t.TempDir()
	paths := writeInputs(t, dir, types.Size{Width: 12, Height: 8}, types.Size{Width: 12, Height: 8})
	o := newOrchestrator(&framedStitcher{pad: 2})

	for i := 0; i < 3; i++ {
		res, err := o.Stitch(context.Background(), Request{
			ImagePaths: paths, OutputPath: filepath.Join(dir, fmt.Sprintf("pano_%d.png", i)), MaxWidth: 1080, Crop: true,
		})
		require.NoError(t, err)
		assert.Equal(t, types.ROI{X: 2, Y: 2, Width: 24, Height: 8}, res.ROI)
	}
}
