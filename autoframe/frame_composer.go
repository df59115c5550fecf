package autoframe

import (
	"gonum.org/v1/gonum/floats"
)

// AggregateKind tells which branch produced the raw frame
type AggregateKind int

const (
	// AggregateEmpty means no element was tracked: raw frame is the whole source
	AggregateEmpty AggregateKind = iota
	// AggregateSolo means raw frame is a single element region
	AggregateSolo
	// AggregateGroup means raw frame is the bounding union of every element region
	AggregateGroup
)

func (kind AggregateKind) String() string {
	switch kind {
	case AggregateEmpty:
		return "empty"
	case AggregateSolo:
		return "solo"
	case AggregateGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Aggregate is raw (unfiltered, uncorrected) frame
type Aggregate struct {
	Kind   AggregateKind
	Center Point
	Size   Size
	// Selected element in solo mode, nil otherwise
	Element *TrackedElement
}

// FrameComposer turns predictions into padded, offset, aspect adjusted regions and aggregates them
type FrameComposer struct {
	paddingX Measure
	paddingY Measure
	offsetX  Measure
	offsetY  Measure
	// Target width/height, 0 disables per-element adjustment
	aspect float64
}

// NewFrameComposer creates composer without padding, offset or aspect adjustment
func NewFrameComposer() *FrameComposer {
	return &FrameComposer{}
}

// SetPadding sets per-axis padding
func (fc *FrameComposer) SetPadding(x, y Measure) {
	fc.paddingX = x
	fc.paddingY = y
}

// SetOffset sets per-axis offset of the element center
func (fc *FrameComposer) SetOffset(x, y Measure) {
	fc.offsetX = x
	fc.offsetY = y
}

// SetAspectRatio sets target width/height; 0 keeps padded size as is
func (fc *FrameComposer) SetAspectRatio(aspect float64) {
	fc.aspect = aspect
}

// Shape computes offset position, padded and aspected size of every prediction
func (fc *FrameComposer) Shape(associator *TrackAssociator) {
	associator.forEachPrediction(func(el *TrackedElement, pred *PredictedElement) {
		filteredSize := pred.FilteredSize()

		pred.OffsetPosition = pred.FilteredPosition()
		pred.OffsetPosition.X += fc.offsetX.Resolve(filteredSize.Width)
		pred.OffsetPosition.Y += fc.offsetY.Resolve(filteredSize.Height)

		pred.PaddedSize = el.Size
		pred.PaddedSize.Width += fc.paddingX.Resolve(filteredSize.Width) * 2.0
		pred.PaddedSize.Height += fc.paddingY.Resolve(filteredSize.Height) * 2.0

		pred.AspectedSize = growToAspect(pred.PaddedSize, fc.aspect)
	})
}

// Compose aggregates shaped predictions into raw frame
func (fc *FrameComposer) Compose(associator *TrackAssociator, mode TrackingMode, source Size) Aggregate {
	if len(associator.predictions) == 0 {
		return Aggregate{
			Kind:   AggregateEmpty,
			Center: source.Center(),
			Size:   source,
		}
	}
	if mode == TrackingModeSolo {
		el, pred := selectSolo(associator)
		return Aggregate{
			Kind:    AggregateSolo,
			Center:  pred.OffsetPosition,
			Size:    pred.AspectedSize,
			Element: el,
		}
	}
	return groupUnion(associator)
}

// selectSolo picks element with the highest confidence, the earliest created one on ties
func selectSolo(associator *TrackAssociator) (*TrackedElement, *PredictedElement) {
	var bestEl *TrackedElement
	var bestPred *PredictedElement
	associator.forEachPrediction(func(el *TrackedElement, pred *PredictedElement) {
		if bestEl == nil || el.Confidence > bestEl.Confidence || (el.Confidence == bestEl.Confidence && el.Seq < bestEl.Seq) {
			bestEl = el
			bestPred = pred
		}
	})
	return bestEl, bestPred
}

// groupUnion returns bounding union of every element region
func groupUnion(associator *TrackAssociator) Aggregate {
	n := len(associator.predictions)
	lowX := make([]float64, 0, n)
	lowY := make([]float64, 0, n)
	highX := make([]float64, 0, n)
	highY := make([]float64, 0, n)
	associator.forEachPrediction(func(_ *TrackedElement, pred *PredictedElement) {
		half := NewPoint(pred.AspectedSize.Width/2.0, pred.AspectedSize.Height/2.0)
		low := pred.OffsetPosition.Sub(half)
		high := pred.OffsetPosition.Add(half)
		lowX = append(lowX, low.X)
		lowY = append(lowY, low.Y)
		highX = append(highX, high.X)
		highY = append(highY, high.Y)
	})
	lo := NewPoint(floats.Min(lowX), floats.Min(lowY))
	hi := NewPoint(floats.Max(highX), floats.Max(highY))
	return Aggregate{
		Kind:   AggregateGroup,
		Center: lo.Add(hi).Scale(0.5),
		Size:   NewSize(hi.X-lo.X, hi.Y-lo.Y),
	}
}

// growToAspect grows deficient axis until width/height equals aspect. Non-positive aspect is a no-op.
func growToAspect(size Size, aspect float64) Size {
	if aspect <= 0 {
		return size
	}
	if size.Width/size.Height >= aspect {
		size.Height = size.Width / aspect
	} else {
		size.Width = size.Height * aspect
	}
	return size
}
