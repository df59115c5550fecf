package autoframe

import (
	"image"
	"math"
	"testing"
)

const (
	eps = 0.00001
)

func TestEuclideanDistance(t *testing.T) {
	p1 := Point{X: 341, Y: 264}
	p2 := Point{X: 421, Y: 427}
	correnctAnswer := 181.57367
	answer := euclideanDistance(p1, p2)
	if math.Abs(answer-correnctAnswer) > eps {
		t.Errorf("Wrong answer: %v, correct answer: %v", answer, correnctAnswer)
	}
}

func TestRectCentered(t *testing.T) {
	rect := NewRectCentered(NewPoint(100, 50), NewSize(40, 20))
	if rect != NewRect(80, 40, 40, 20) {
		t.Errorf("Wrong rectangle: %+v", rect)
	}
	if rect.Center() != NewPoint(100, 50) {
		t.Errorf("Wrong center: %+v", rect.Center())
	}
	if rect.Size() != NewSize(40, 20) {
		t.Errorf("Wrong size: %+v", rect.Size())
	}
}

func TestRectFrom(t *testing.T) {
	rect := NewRectFrom(image.Rect(10, 20, 110, 70))
	if rect != NewRect(10, 20, 100, 50) {
		t.Errorf("Wrong rectangle: %+v", rect)
	}
}

func TestSize(t *testing.T) {
	size := NewSize(640, 480)
	if math.Abs(size.Diagonal()-800) > eps {
		t.Errorf("Wrong diagonal: %v", size.Diagonal())
	}
	if math.Abs(size.Aspect()-4.0/3.0) > eps {
		t.Errorf("Wrong aspect: %v", size.Aspect())
	}
	if size.Center() != NewPoint(320, 240) {
		t.Errorf("Wrong center: %+v", size.Center())
	}
	if NewSize(640, 0).Aspect() != 0 {
		t.Errorf("Aspect of zero height must be 0")
	}
	if !NewSize(0, 10).IsDegenerate() || size.IsDegenerate() {
		t.Errorf("Wrong degenerate check")
	}
}
