package autoframe

import (
	"math"

	"github.com/LdDl/autoframe-go/provider"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// Detections below this confidence never reach the tracker
	defaultConfidenceThreshold = 0.5
	// Fraction of the source diagonal an element may travel between samples
	defaultMaxTravel = 0.667
	// Seconds an element survives without a match, before interval compensation
	defaultMaxAge = 0.5
	// Upper bound of the interval used for compensation. Keeps 1/(1-interval) finite.
	maxCompensatedInterval = 0.95
)

// candidate is a detection prepared for matching
type candidate struct {
	position   Point
	size       Size
	confidence float64
}

func newCandidate(detection provider.Detection) candidate {
	return candidate{
		position:   NewPoint(detection.Rect.X+detection.Rect.Width/2.0, detection.Rect.Y+detection.Rect.Height/2.0),
		size:       NewSize(detection.Rect.Width, detection.Rect.Height),
		confidence: minFloat64(detection.Confidence, 1.0),
	}
}

// intervalCompensation returns 1/(1-interval) with interval clamped to [0, 0.95]
func intervalCompensation(interval float64) float64 {
	return 1.0 / (1.0 - clampFloat64(interval, 0, maxCompensatedInterval))
}

// EvictionAge returns age (seconds) at which element without matches is dropped
func EvictionAge(interval float64) float64 {
	return defaultMaxAge * intervalCompensation(interval)
}

// MaxMatchDistance returns the largest center travel accepted as the same element
func MaxMatchDistance(source Size, interval float64) float64 {
	return defaultMaxTravel * source.Diagonal() * intervalCompensation(interval)
}

// TrackAssociator matches detections to tracked elements and ages unmatched ones.
// It owns every TrackedElement together with its PredictedElement.
type TrackAssociator struct {
	// Main storage, creation order
	elements    []*TrackedElement
	predictions map[uuid.UUID]*PredictedElement
	nextSeq     uint64
	// Seconds between detection samples
	interval            float64
	confidenceThreshold float64
}

// NewTrackAssociator creates empty associator for given sampling interval (seconds)
func NewTrackAssociator(interval float64) *TrackAssociator {
	return &TrackAssociator{
		elements:            make([]*TrackedElement, 0),
		predictions:         make(map[uuid.UUID]*PredictedElement),
		interval:            interval,
		confidenceThreshold: defaultConfidenceThreshold,
	}
}

// SetInterval changes sampling interval used for distance and age compensation
func (ta *TrackAssociator) SetInterval(interval float64) {
	ta.interval = interval
}

// Associate runs one tick. Pass sampled=false on ticks without detection: every element is then unmatched.
// Matched elements get age 0, others age by elapsed seconds and are evicted when too old.
func (ta *TrackAssociator) Associate(detections []provider.Detection, sampled bool, elapsed float64, source Size) error {
	matched := make(map[uuid.UUID]struct{}, len(ta.elements))
	if sampled {
		if err := ta.matchDetections(detections, source, matched); err != nil {
			return err
		}
	}

	threshold := EvictionAge(ta.interval)
	kept := ta.elements[:0]
	for _, el := range ta.elements {
		if _, ok := matched[el.ID]; !ok {
			el.Age += elapsed
		}
		if el.Age >= threshold {
			delete(ta.predictions, el.ID)
			continue
		}
		kept = append(kept, el)
	}
	for i := len(kept); i < len(ta.elements); i++ {
		ta.elements[i] = nil
	}
	ta.elements = kept
	return nil
}

func (ta *TrackAssociator) matchDetections(detections []provider.Detection, source Size, matched map[uuid.UUID]struct{}) error {
	pool := make([]candidate, 0, len(detections))
	for _, detection := range detections {
		// Skip elements that have not enough confidence
		if detection.Confidence < ta.confidenceThreshold {
			continue
		}
		pool = append(pool, newCandidate(detection))
	}
	if len(pool) == 0 {
		return nil
	}

	maxDistance := MaxMatchDistance(source, ta.interval)
	for _, el := range ta.elements {
		minIdx := -1
		minDistance := math.MaxFloat64
		for i := range pool {
			dist := euclideanDistance(pool[i].position, el.Position)
			if dist < minDistance && dist < maxDistance {
				minDistance = dist
				minIdx = i
			}
		}
		if minIdx < 0 {
			continue
		}
		if err := el.match(pool[minIdx]); err != nil {
			return errors.Wrapf(err, "Can't update element with id %s", el.ID)
		}
		matched[el.ID] = struct{}{}
		pool = append(pool[:minIdx], pool[minIdx+1:]...)
	}

	// Register remaining detections as new elements
	for _, c := range pool {
		el := newTrackedElement(ta.nextSeq, c)
		ta.nextSeq++
		ta.elements = append(ta.elements, el)
		matched[el.ID] = struct{}{}
	}
	return nil
}

// Elements returns tracked elements in creation order. Slice is a copy, elements are not.
func (ta *TrackAssociator) Elements() []*TrackedElement {
	return append([]*TrackedElement(nil), ta.elements...)
}

// Len returns number of tracked elements
func (ta *TrackAssociator) Len() int {
	return len(ta.elements)
}

// Prediction returns PredictedElement paired with element id, if it was created already
func (ta *TrackAssociator) Prediction(id uuid.UUID) (*PredictedElement, bool) {
	pred, ok := ta.predictions[id]
	return pred, ok
}

// attachPrediction pairs element with its PredictedElement
func (ta *TrackAssociator) attachPrediction(id uuid.UUID, pred *PredictedElement) {
	ta.predictions[id] = pred
}

// forEachPrediction visits existing predictions in element creation order
func (ta *TrackAssociator) forEachPrediction(fn func(el *TrackedElement, pred *PredictedElement)) {
	for _, el := range ta.elements {
		if pred, ok := ta.predictions[el.ID]; ok {
			fn(el, pred)
		}
	}
}

// Reset drops every element and prediction
func (ta *TrackAssociator) Reset() {
	ta.elements = ta.elements[:0]
	ta.predictions = make(map[uuid.UUID]*PredictedElement)
}
