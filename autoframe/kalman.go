package autoframe

// defaultEstimationErrorCovariance is the initial p of every scalar filter
const defaultEstimationErrorCovariance = 1.0

// Kalman1D is a scalar recursive estimator (random-walk model).
// Zero value is not usable, create it via NewKalman1D.
type Kalman1D struct {
	// Process noise covariance
	q float64
	// Measurement noise covariance
	r float64
	// Estimation error covariance
	p float64
	// Current estimate
	x float64
}

// NewKalman1D creates filter seeded with initial estimate
func NewKalman1D(q, r, estimate float64) Kalman1D {
	return Kalman1D{
		q: q,
		r: r,
		p: defaultEstimationErrorCovariance,
		x: estimate,
	}
}

// Filter feeds new measurement and returns updated estimate
func (kf *Kalman1D) Filter(measurement float64) float64 {
	// Prediction step
	kf.p = kf.p + kf.q

	// Kalman gain calculation
	k := kf.p / (kf.p + kf.r)

	// Correction step
	kf.x = kf.x + k*(measurement-kf.x)
	kf.p = (1 - k) * kf.p

	return kf.x
}

// Get returns current estimate
func (kf *Kalman1D) Get() float64 {
	return kf.x
}

// Reseed replaces noise parameters keeping current estimate. Error covariance starts over.
func (kf *Kalman1D) Reseed(q, r float64) {
	*kf = NewKalman1D(q, r, kf.x)
}

// Reset replaces the estimate keeping noise parameters
func (kf *Kalman1D) Reset(estimate float64) {
	*kf = NewKalman1D(kf.q, kf.r, estimate)
}
