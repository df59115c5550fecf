package autoframe

// lerp interpolates linearly between a and b by t
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// kalmanNoise maps a [0,1] damping dial to process/measurement noise covariances.
// Low values respond fast, high values damp heavily.
func kalmanNoise(s float64) (q, r float64) {
	s = clampFloat64(s, 0, 1)
	return lerp(1.0, 0.00001, s), lerp(0.001, 1000.0, s)
}

func maxFloat64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clampFloat64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
