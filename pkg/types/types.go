package types

import (
	"fmt"
	"image"
)

// ROI is an axis-aligned region of interest, relative to a fixed reference image
type ROI struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FromRect converts an image.Rectangle into an ROI
func FromRect(r image.Rectangle) ROI {
	return ROI{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Rect returns the ROI as an image.Rectangle
func (r ROI) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Degenerate reports whether the ROI has no positive area
func (r ROI) Degenerate() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Within reports whether the ROI is non-degenerate and fully inside bounds
func (r ROI) Within(bounds image.Rectangle) bool {
	return !r.Degenerate() && r.Rect().In(bounds)
}

// Area returns the area of the ROI, zero when degenerate
func (r ROI) Area() int {
	if r.Degenerate() {
		return 0
	}
	return r.Width * r.Height
}

func (r ROI) String() string {
	return fmt.Sprintf("%dx%d@%d,%d", r.Width, r.Height, r.X, r.Y)
}

// Axis selects which kind of border line is evaluated
type Axis int

const (
	// Row is a horizontal line scanned across all columns
	Row Axis = iota
	// Column is a vertical line scanned across all rows
	Column
)

func (a Axis) String() string {
	switch a {
	case Row:
		return "row"
	case Column:
		return "column"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Size is a width/height pair in pixels
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SizeOf returns the pixel dimensions of an image
func SizeOf(img image.Image) Size {
	b := img.Bounds()
	return Size{Width: b.Dx(), Height: b.Dy()}
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}
