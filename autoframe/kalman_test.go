package autoframe

import (
	"math"
	"testing"
)

func TestKalman1DConvergence(t *testing.T) {
	measurement := 10.0
	for _, smoothing := range []float64{0.0, 0.33333, 0.5, 0.9} {
		q, r := kalmanNoise(smoothing)
		kf := NewKalman1D(q, r, 0.0)
		prevDiff := math.Abs(kf.Get() - measurement)
		converged := false
		for i := 0; i < 100000; i++ {
			kf.Filter(measurement)
			diff := math.Abs(kf.Get() - measurement)
			if diff >= prevDiff {
				t.Errorf("Smoothing %v: error didn't decrease on step %d: %v -> %v", smoothing, i, prevDiff, diff)
				return
			}
			prevDiff = diff
			if diff < eps {
				converged = true
				break
			}
		}
		if !converged {
			t.Errorf("Smoothing %v: filter didn't converge, error %v", smoothing, prevDiff)
		}
	}
}

func TestKalman1DGetIsReadOnly(t *testing.T) {
	kf := NewKalman1D(1.0, 1.0, 5.0)
	before := kf
	for i := 0; i < 3; i++ {
		if kf.Get() != 5.0 {
			t.Errorf("Wrong estimate: %v", kf.Get())
		}
	}
	if kf != before {
		t.Errorf("Get mutated filter: %+v -> %+v", before, kf)
	}
}

func TestKalman1DStep(t *testing.T) {
	kf := NewKalman1D(1.0, 1.0, 0.0)
	// p = 1 + 1 = 2, k = 2 / 3
	answer := kf.Filter(3.0)
	if math.Abs(answer-2.0) > eps {
		t.Errorf("Wrong estimate: %v, correct answer: %v", answer, 2.0)
	}
	// p = (1 - 2/3) * 2 = 2/3
	if math.Abs(kf.p-2.0/3.0) > eps {
		t.Errorf("Wrong covariance: %v", kf.p)
	}
}

func TestKalman1DReseed(t *testing.T) {
	kf := NewKalman1D(1.0, 1.0, 0.0)
	kf.Filter(3.0)
	estimate := kf.Get()
	kf.Reseed(0.5, 100.0)
	if kf.Get() != estimate {
		t.Errorf("Reseed changed estimate: %v -> %v", estimate, kf.Get())
	}
	if kf.q != 0.5 || kf.r != 100.0 || kf.p != defaultEstimationErrorCovariance {
		t.Errorf("Wrong parameters after reseed: %+v", kf)
	}
	kf.Reset(42.0)
	if kf.Get() != 42.0 || kf.q != 0.5 {
		t.Errorf("Wrong state after reset: %+v", kf)
	}
}

func TestKalmanNoise(t *testing.T) {
	q, r := kalmanNoise(0)
	if q != 1.0 || r != 0.001 {
		t.Errorf("Wrong noise for 0: %v %v", q, r)
	}
	q, r = kalmanNoise(1)
	if math.Abs(q-0.00001) > 1e-12 || math.Abs(r-1000.0) > eps {
		t.Errorf("Wrong noise for 1: %v %v", q, r)
	}
	q, r = kalmanNoise(7)
	if math.Abs(q-0.00001) > 1e-12 || math.Abs(r-1000.0) > eps {
		t.Errorf("Noise must be clamped: %v %v", q, r)
	}
}
