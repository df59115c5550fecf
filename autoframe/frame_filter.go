package autoframe

import (
	"math"

	"github.com/pkg/errors"
)

// Measurement noise of frame filters. Only process noise follows stability.
const frameMeasurementNoise = 1.0

// minFrameDimension guards emitted rectangles against zero area
const minFrameDimension = 1.0

// FrameFilter smooths raw frame and fits it into the source with target aspect ratio
type FrameFilter struct {
	stability float64
	q         float64

	posX  Kalman1D
	posY  Kalman1D
	sizeX Kalman1D
	sizeY Kalman1D
	// Filters are seeded with the full source on the first tick
	seeded bool

	// Target width/height, 0 means source aspect
	aspect float64
}

// NewFrameFilter creates filter with given stability [0,1]
func NewFrameFilter(stability float64) *FrameFilter {
	ff := &FrameFilter{}
	ff.stability = clampFloat64(stability, 0, 1)
	ff.q, _ = kalmanNoise(ff.stability)
	return ff
}

// SetStability changes filter response keeping current estimates
func (ff *FrameFilter) SetStability(stability float64) {
	stability = clampFloat64(stability, 0, 1)
	if stability == ff.stability {
		return
	}
	ff.stability = stability
	ff.q, _ = kalmanNoise(stability)
	ff.posX.Reseed(ff.q, frameMeasurementNoise)
	ff.posY.Reseed(ff.q, frameMeasurementNoise)
	ff.sizeX.Reseed(ff.q, frameMeasurementNoise)
	ff.sizeY.Reseed(ff.q, frameMeasurementNoise)
}

// SetAspectRatio sets target width/height; 0 means source aspect
func (ff *FrameFilter) SetAspectRatio(aspect float64) {
	ff.aspect = aspect
}

// Reset makes next Apply start over from the full source
func (ff *FrameFilter) Reset() {
	ff.seeded = false
}

func (ff *FrameFilter) seed(source Size) {
	center := source.Center()
	ff.posX = NewKalman1D(ff.q, frameMeasurementNoise, center.X)
	ff.posY = NewKalman1D(ff.q, frameMeasurementNoise, center.Y)
	ff.sizeX = NewKalman1D(ff.q, frameMeasurementNoise, source.Width)
	ff.sizeY = NewKalman1D(ff.q, frameMeasurementNoise, source.Height)
	ff.seeded = true
}

// checkSource rejects zero-area source
func checkSource(source Size) error {
	if source.IsDegenerate() {
		return errors.Wrapf(ErrDegenerateGeometry, "source %vx%v", source.Width, source.Height)
	}
	return nil
}

// Apply feeds raw frame and returns final crop rectangle in source pixels.
// Solo aggregates update position filters but are emitted unfiltered.
func (ff *FrameFilter) Apply(agg Aggregate, source Size) Rectangle {
	if checkSource(source) != nil {
		return NewRect(0, 0, minFrameDimension, minFrameDimension)
	}
	if !ff.seeded {
		ff.seed(source)
	}

	var center Point
	var size Size
	switch agg.Kind {
	case AggregateSolo:
		ff.posX.Filter(agg.Center.X)
		ff.posY.Filter(agg.Center.Y)
		center = agg.Center
		size = agg.Size
	default:
		ff.posX.Filter(agg.Center.X)
		ff.posY.Filter(agg.Center.Y)
		ff.sizeX.Filter(agg.Size.Width)
		ff.sizeY.Filter(agg.Size.Height)
		center = NewPoint(ff.posX.Get(), ff.posY.Get())
		size = NewSize(ff.sizeX.Get(), ff.sizeY.Get())
	}

	aspect := ff.aspect
	if aspect <= 0 {
		aspect = source.Aspect()
	}
	return fitFrame(center, size, aspect, source)
}

// fitFrame runs three phase correction:
// grow to aspect so that content stays contained, clip edges to source, shrink to aspect inside clipped area.
func fitFrame(center Point, size Size, aspect float64, source Size) Rectangle {
	// 1. Contain
	if aspect < size.Width/size.Height {
		size.Height = size.Width / aspect
	} else {
		size.Width = size.Height * aspect
	}

	// 2. Clip. Moves the center when the frame crosses source edges.
	left := clampFloat64(center.X-size.Width/2.0, 0, source.Width)
	right := clampFloat64(center.X+size.Width/2.0, 0, source.Width)
	top := clampFloat64(center.Y-size.Height/2.0, 0, source.Height)
	bottom := clampFloat64(center.Y+size.Height/2.0, 0, source.Height)
	center = NewPoint((left+right)/2.0, (top+bottom)/2.0)
	size = NewSize(right-left, bottom-top)

	// 3. Re-correct
	if aspect < size.Width/size.Height {
		size.Width = size.Height * aspect
	} else {
		size.Height = size.Width / aspect
	}

	return clampDegenerate(NewRectCentered(center, size), source)
}

// clampDegenerate keeps at least one pixel per axis inside the source
func clampDegenerate(rect Rectangle, source Size) Rectangle {
	if math.IsNaN(rect.Width) || rect.Width < minFrameDimension {
		rect.Width = minFrameDimension
	}
	if math.IsNaN(rect.Height) || rect.Height < minFrameDimension {
		rect.Height = minFrameDimension
	}
	if math.IsNaN(rect.X) {
		rect.X = 0
	}
	if math.IsNaN(rect.Y) {
		rect.Y = 0
	}
	rect.X = clampFloat64(rect.X, 0, maxFloat64(source.Width-rect.Width, 0))
	rect.Y = clampFloat64(rect.Y, 0, maxFloat64(source.Height-rect.Height, 0))
	return rect
}

// OutputSize returns dimensions of the rendered crop. The longer source axis is kept, the other one follows aspect.
// Debug output keeps source dimensions. Every dimension is at least 1.
func OutputSize(source Size, aspect float64, debug bool) (int, int) {
	width, height := source.Width, source.Height
	if !debug && aspect > 0 {
		if width > height {
			width = math.Round(height * aspect)
		} else {
			height = math.Round(width / aspect)
		}
	}
	return int(maxFloat64(width, minFrameDimension)), int(maxFloat64(height, minFrameDimension))
}
