package autoframe

// MotionPredictor extrapolates tracked elements by their velocity and smooths them.
// Smoothing and prediction are fractions: 0.33 means 33%.
type MotionPredictor struct {
	smoothing  float64
	prediction float64
	q          float64
	r          float64
}

// NewMotionPredictor creates predictor with given smoothing [0,1] and prediction factor
func NewMotionPredictor(smoothing, prediction float64) *MotionPredictor {
	mp := &MotionPredictor{prediction: prediction}
	mp.smoothing = clampFloat64(smoothing, 0, 1)
	mp.q, mp.r = kalmanNoise(mp.smoothing)
	return mp
}

// SetSmoothing changes filter response and reseeds every existing prediction in place
func (mp *MotionPredictor) SetSmoothing(smoothing float64, associator *TrackAssociator) {
	smoothing = clampFloat64(smoothing, 0, 1)
	if smoothing == mp.smoothing {
		return
	}
	mp.smoothing = smoothing
	mp.q, mp.r = kalmanNoise(smoothing)
	if associator == nil {
		return
	}
	associator.forEachPrediction(func(_ *TrackedElement, pred *PredictedElement) {
		pred.reseed(mp.q, mp.r)
	})
}

// SetPrediction changes velocity multiplier
func (mp *MotionPredictor) SetPrediction(prediction float64) {
	mp.prediction = prediction
}

// Noise returns current process/measurement noise covariances
func (mp *MotionPredictor) Noise() (q, r float64) {
	return mp.q, mp.r
}

// Update advances prediction of every tracked element by elapsed seconds.
// Missing predictions are created seeded with raw observation.
func (mp *MotionPredictor) Update(associator *TrackAssociator, elapsed float64) {
	for _, el := range associator.elements {
		pred, ok := associator.Prediction(el.ID)
		if !ok {
			pred = newPredictedElement(el, mp.q, mp.r)
			associator.attachPrediction(el.ID, pred)
		}
		contribution := el.Velocity.Scale(mp.prediction * elapsed)

		// Elements observed this tick restart from the observation
		base := el.Position
		if el.Age > 0 {
			base = pred.MotionPredictedPosition
		}
		pred.MotionPredictedPosition = base.Add(contribution)

		pred.filterPosX.Filter(pred.MotionPredictedPosition.X)
		pred.filterPosY.Filter(pred.MotionPredictedPosition.Y)
		pred.filterSizeX.Filter(el.Size.Width)
		pred.filterSizeY.Filter(el.Size.Height)
	}
}
