package provider

import (
	"image"
	"os"
	"sort"

	pigo "github.com/esimov/pigo/core"
	"github.com/pkg/errors"
)

const (
	// Pigo detection parameters
	pigoMinSize      = 20   // Minimum face size (pixels)
	pigoMaxSize      = 1000 // Maximum face size (pixels)
	pigoShiftFactor  = 0.1  // Shift factor for detection window
	pigoScaleFactor  = 1.1  // Scale factor for image pyramid
	pigoIoUThreshold = 0.2  // IoU threshold for clustering
	// Quality mapped to confidence 1.0. Strong faces go above it.
	pigoQualityReference = 10.0
	pigoMaxTrackingLimit = 32
)

// PigoProvider detects faces with pigo cascade. It has no notion of identity across frames.
type PigoProvider struct {
	cascadePath string
	classifier  *pigo.Pigo
	limit       int
	detections  []pigo.Detection
	gray        []uint8
}

// NewPigoProvider creates provider reading cascade from given file on Load
func NewPigoProvider(cascadePath string) *PigoProvider {
	return &PigoProvider{
		cascadePath: cascadePath,
		limit:       pigoMaxTrackingLimit,
	}
}

// ProbePigo checks that cascade file is readable and unpacks
func ProbePigo(cascadePath string) Probe {
	return func() error {
		_, err := unpackCascade(cascadePath)
		return err
	}
}

// RegisterPigo adds pigo backend to registry
func RegisterPigo(registry *Registry, cascadePath string) {
	registry.Register(PigoFaceDetection, func() (DetectionProvider, error) {
		return NewPigoProvider(cascadePath), nil
	}, ProbePigo(cascadePath))
}

func unpackCascade(cascadePath string) (*pigo.Pigo, error) {
	cascadeFile, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, errors.Wrap(err, "Can't read cascade file")
	}
	classifier, err := pigo.NewPigo().Unpack(cascadeFile)
	if err != nil {
		return nil, errors.Wrap(err, "Can't unpack cascade")
	}
	return classifier, nil
}

// Load unpacks cascade
func (p *PigoProvider) Load() error {
	classifier, err := unpackCascade(p.cascadePath)
	if err != nil {
		return err
	}
	p.classifier = classifier
	return nil
}

// Unload releases cascade and buffers
func (p *PigoProvider) Unload() error {
	p.classifier = nil
	p.detections = nil
	p.gray = nil
	return nil
}

// Process runs cascade on the frame. Detections are ordered by quality, best first, and capped by tracking limit.
func (p *PigoProvider) Process(frame image.Image) error {
	if p.classifier == nil {
		return errors.New("pigo cascade is not loaded")
	}
	if frame == nil {
		return errors.New("no frame to process")
	}
	bounds := frame.Bounds()
	p.gray = toGrayscale(frame, p.gray)

	cParams := pigo.CascadeParams{
		MinSize:     pigoMinSize,
		MaxSize:     pigoMaxSize,
		ShiftFactor: pigoShiftFactor,
		ScaleFactor: pigoScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: p.gray,
			Rows:   bounds.Dy(),
			Cols:   bounds.Dx(),
			Dim:    bounds.Dx(),
		},
	}

	// Run cascade detection (0.0 = detect all), then cluster duplicates
	dets := p.classifier.RunCascade(cParams, 0.0)
	dets = p.classifier.ClusterDetections(dets, pigoIoUThreshold)

	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Q > dets[j].Q
	})
	if len(dets) > p.limit {
		dets = dets[:p.limit]
	}
	p.detections = dets
	return nil
}

// DetectionCount returns number of faces found by last Process call
func (p *PigoProvider) DetectionCount() int {
	return len(p.detections)
}

// DetectionAt returns face box and confidence. Confidence exceeds 1 for strong detections.
func (p *PigoProvider) DetectionAt(index int) (Rect, float64) {
	det := p.detections[index]
	// Row/Col is the center and Scale is the side of a square box
	size := float64(det.Scale)
	rect := Rect{
		X:      float64(det.Col) - size/2.0,
		Y:      float64(det.Row) - size/2.0,
		Width:  size,
		Height: size,
	}
	return rect, float64(det.Q) / pigoQualityReference
}

// SetTrackingLimit caps number of reported faces
func (p *PigoProvider) SetTrackingLimit(n int) {
	if n < 1 {
		n = 1
	}
	if n > pigoMaxTrackingLimit {
		n = pigoMaxTrackingLimit
	}
	p.limit = n
}

// TrackingLimitRange returns allowed limits
func (p *PigoProvider) TrackingLimitRange() (int, int) {
	return 1, pigoMaxTrackingLimit
}

// IsTemporal is always false: every frame is detected from scratch
func (p *PigoProvider) IsTemporal() bool {
	return false
}

// toGrayscale converts image to grayscale pixel array, reusing buffer when it is large enough
func toGrayscale(img image.Image, buf []uint8) []uint8 {
	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy()
	if cap(buf) < n {
		buf = make([]uint8, n)
	}
	gray := buf[:n]
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := (y - bounds.Min.Y) * bounds.Dx()
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// Standard grayscale conversion formula
			gray[row+x-bounds.Min.X] = uint8((r*299 + g*587 + b*114) / 1000 >> 8)
		}
	}
	return gray
}
