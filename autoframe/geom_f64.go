package autoframe

import (
	"image"
	"math"
)

// Rectangle is an axis-aligned box given by its top-left corner and size
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func NewRect(x, y, width, height float64) Rectangle {
	return Rectangle{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

func NewRectFrom(rect image.Rectangle) Rectangle {
	return Rectangle{
		X:      float64(rect.Min.X),
		Y:      float64(rect.Min.Y),
		Width:  float64(rect.Dx()),
		Height: float64(rect.Dy()),
	}
}

// NewRectCentered builds rectangle from its center and size
func NewRectCentered(center Point, size Size) Rectangle {
	return Rectangle{
		X:      center.X - size.Width/2.0,
		Y:      center.Y - size.Height/2.0,
		Width:  size.Width,
		Height: size.Height,
	}
}

// Center returns center of the rectangle
func (r Rectangle) Center() Point {
	return Point{
		X: r.X + r.Width/2.0,
		Y: r.Y + r.Height/2.0,
	}
}

// Size returns dimensions of the rectangle
func (r Rectangle) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

func NewPointFrom(point image.Point) Point {
	return Point{
		X: float64(point.X),
		Y: float64(point.Y),
	}
}

func (p Point) Add(other Point) Point {
	return Point{X: p.X + other.X, Y: p.Y + other.Y}
}

func (p Point) Sub(other Point) Point {
	return Point{X: p.X - other.X, Y: p.Y - other.Y}
}

func (p Point) Scale(f float64) Point {
	return Point{X: p.X * f, Y: p.Y * f}
}

// Size is width/height pair. Also used for per-axis quantities like padding
type Size struct {
	Width  float64
	Height float64
}

func NewSize(width, height float64) Size {
	return Size{
		Width:  width,
		Height: height,
	}
}

// Diagonal returns length of the diagonal
func (s Size) Diagonal() float64 {
	return math.Sqrt(s.Width*s.Width + s.Height*s.Height)
}

// Aspect returns width/height. Zero for zero height
func (s Size) Aspect() float64 {
	if s.Height == 0 {
		return 0
	}
	return s.Width / s.Height
}

// Center returns center point of the [0,0]-[Width,Height] area
func (s Size) Center() Point {
	return Point{X: s.Width / 2.0, Y: s.Height / 2.0}
}

func (s Size) IsDegenerate() bool {
	return s.Width <= 0 || s.Height <= 0
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Sqrt(math.Pow(float64(p1.X-p2.X), 2) + math.Pow(float64(p1.Y-p2.Y), 2))
}
