package autoframe

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const defaultMaxTrailLen = 60

// TrackedElement is a single real-world object followed across ticks.
// Position is the center of the last matched detection.
type TrackedElement struct {
	ID uuid.UUID
	// Creation order within the associator; earlier elements have smaller numbers
	Seq        uint64
	Position   Point
	Size       Size
	Velocity   Point
	Age        float64
	Confidence float64

	trail       []Point
	maxTrailLen int
	// Constant velocity bbox estimator. Exported through diagnostics only, framing does not depend on it.
	estimator *kalman_filter.KalmanBBox
}

func newTrackedElement(seq uint64, detection candidate) *TrackedElement {
	// Kalman filter props
	dt := 1.0
	uCx := 1.0
	uCy := 1.0
	uW := 0.0
	uH := 0.0
	stdDevA := 2.0
	stdDevMCx := 0.1
	stdDevMCy := 0.1
	stdDevMW := 0.1
	stdDevMH := 0.1
	kf := kalman_filter.NewKalmanBBox(
		dt, uCx, uCy, uW, uH,
		stdDevA, stdDevMCx, stdDevMCy, stdDevMW, stdDevMH,
		kalman_filter.WithStateBBox(detection.position.X, detection.position.Y, detection.size.Width, detection.size.Height),
	)
	el := TrackedElement{
		ID:          uuid.New(),
		Seq:         seq,
		Position:    detection.position,
		Size:        detection.size,
		Confidence:  detection.confidence,
		trail:       make([]Point, 0, defaultMaxTrailLen),
		maxTrailLen: defaultMaxTrailLen,
		estimator:   kf,
	}
	el.trail = append(el.trail, detection.position)
	return &el
}

// match replaces observation with matched detection
func (el *TrackedElement) match(detection candidate) error {
	el.Velocity = el.Position.Sub(detection.position)
	el.Position = detection.position
	el.Size = detection.size
	el.Age = 0
	el.Confidence = detection.confidence

	el.estimator.Predict()
	err := el.estimator.Update(detection.position.X, detection.position.Y, detection.size.Width, detection.size.Height)
	if err != nil {
		return errors.Wrap(err, "Can't update velocity estimator")
	}

	el.trail = append(el.trail, detection.position)
	if len(el.trail) > el.maxTrailLen {
		el.trail = el.trail[1:]
	}
	return nil
}

// Box returns raw bounding box
func (el *TrackedElement) Box() Rectangle {
	return NewRectCentered(el.Position, el.Size)
}

// EstimatedVelocity returns per-sample center velocity estimated by bbox Kalman filter
func (el *TrackedElement) EstimatedVelocity() Point {
	vx, vy, _, _ := el.estimator.GetVelocity()
	return NewPoint(vx, vy)
}

// Trail returns copy of recent matched centers, oldest first
func (el *TrackedElement) Trail() []Point {
	return append([]Point(nil), el.trail...)
}

// PredictedElement is motion extrapolated and smoothed form of a TrackedElement
type PredictedElement struct {
	filterPosX  Kalman1D
	filterPosY  Kalman1D
	filterSizeX Kalman1D
	filterSizeY Kalman1D

	MotionPredictedPosition Point
	OffsetPosition          Point
	PaddedSize              Size
	AspectedSize            Size
}

func newPredictedElement(el *TrackedElement, q, r float64) *PredictedElement {
	return &PredictedElement{
		filterPosX:              NewKalman1D(q, r, el.Position.X),
		filterPosY:              NewKalman1D(q, r, el.Position.Y),
		filterSizeX:             NewKalman1D(q, r, el.Size.Width),
		filterSizeY:             NewKalman1D(q, r, el.Size.Height),
		MotionPredictedPosition: el.Position,
		OffsetPosition:          el.Position,
		PaddedSize:              el.Size,
		AspectedSize:            el.Size,
	}
}

// reseed replaces noise parameters of every filter keeping estimates
func (pred *PredictedElement) reseed(q, r float64) {
	pred.filterPosX.Reseed(q, r)
	pred.filterPosY.Reseed(q, r)
	pred.filterSizeX.Reseed(q, r)
	pred.filterSizeY.Reseed(q, r)
}

// FilteredPosition returns smoothed center
func (pred *PredictedElement) FilteredPosition() Point {
	return NewPoint(pred.filterPosX.Get(), pred.filterPosY.Get())
}

// FilteredSize returns smoothed size
func (pred *PredictedElement) FilteredSize() Size {
	return NewSize(pred.filterSizeX.Get(), pred.filterSizeY.Get())
}

// Region returns the box this element contributes to the frame
func (pred *PredictedElement) Region() Rectangle {
	return NewRectCentered(pred.OffsetPosition, pred.AspectedSize)
}
