package provider

import (
	"image"
	"strings"

	"github.com/pkg/errors"
)

// ID identifies detection backend
type ID uint16

const (
	// Invalid means "no backend": the session is never ready for detection
	Invalid ID = iota
	// Automatic is resolved through Registry into the first available backend
	Automatic
	// PigoFaceDetection is pure-Go face detector (pixel intensity comparison cascades)
	PigoFaceDetection
	// Replay plays back detections pushed by the host
	Replay
)

// String returns human readable name of the backend
func (id ID) String() string {
	switch id {
	case Invalid:
		return "N/A"
	case Automatic:
		return "Automatic"
	case PigoFaceDetection:
		return "Pigo Face Detection"
	case Replay:
		return "Replay"
	default:
		return "Unknown"
	}
}

// ParseID parses backend identifier as used in settings documents
func ParseID(text string) (ID, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "", "automatic", "auto":
		return Automatic, nil
	case "none", "invalid":
		return Invalid, nil
	case "pigo", "pigo_facedetection":
		return PigoFaceDetection, nil
	case "replay":
		return Replay, nil
	default:
		return Invalid, errors.Errorf("unknown provider %q", text)
	}
}

// Rect is detection box in source pixels: top-left corner and size
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Detection is a single raw observation for current frame
type Detection struct {
	Rect       Rect
	Confidence float64
}

// DetectionProvider is capability of an external detection backend.
// Calls are serialized by Lifecycle; implementations do not need own locking.
type DetectionProvider interface {
	// Load acquires backend resources (models, devices). May be slow.
	Load() error
	// Unload releases everything acquired by Load
	Unload() error
	// Process runs detection on the frame. May block.
	Process(frame image.Image) error
	// DetectionCount returns number of detections produced by last Process call
	DetectionCount() int
	// DetectionAt returns box and confidence of i-th detection. Confidence may exceed 1 for some backends.
	DetectionAt(index int) (Rect, float64)
	// SetTrackingLimit caps number of reported objects
	SetTrackingLimit(n int)
	// TrackingLimitRange returns allowed [min, max] for SetTrackingLimit
	TrackingLimitRange() (int, int)
	// IsTemporal reports whether backend keeps identity of objects across calls
	IsTemporal() bool
}

// Collect reads all detections of last Process call
func Collect(p DetectionProvider) []Detection {
	n := p.DetectionCount()
	detections := make([]Detection, 0, n)
	for i := 0; i < n; i++ {
		rect, confidence := p.DetectionAt(i)
		detections = append(detections, Detection{Rect: rect, Confidence: confidence})
	}
	return detections
}
