package provider

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	pigo "github.com/esimov/pigo/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToGrayscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(2, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	img.Set(3, 2, color.RGBA{R: 255, A: 255})

	// Sub image keeps absolute coordinates in its bounds
	sub := img.SubImage(image.Rect(1, 1, 4, 3))
	gray := toGrayscale(sub, nil)
	require.Len(t, gray, 6)
	assert.Equal(t, uint8(255), gray[1])
	assert.Equal(t, uint8(76), gray[5])
	assert.Equal(t, uint8(0), gray[0])

	// Large enough buffer is reused
	buf := make([]uint8, 0, 16)
	gray = toGrayscale(sub, buf)
	assert.Equal(t, 16, cap(gray))
}

func TestPigoDetectionAt(t *testing.T) {
	p := NewPigoProvider("")
	p.detections = []pigo.Detection{
		{Row: 100, Col: 200, Scale: 60, Q: 5},
		{Row: 50, Col: 50, Scale: 20, Q: 25},
	}
	require.Equal(t, 2, p.DetectionCount())

	rect, confidence := p.DetectionAt(0)
	assert.Equal(t, Rect{X: 170, Y: 70, Width: 60, Height: 60}, rect)
	assert.InDelta(t, 0.5, confidence, 1e-6)

	// Strong faces go above 1
	_, confidence = p.DetectionAt(1)
	assert.InDelta(t, 2.5, confidence, 1e-6)
}

func TestPigoLimitsAndErrors(t *testing.T) {
	p := NewPigoProvider(filepath.Join(t.TempDir(), "missing.cascade"))
	assert.False(t, p.IsTemporal())

	p.SetTrackingLimit(-3)
	assert.Equal(t, 1, p.limit)
	p.SetTrackingLimit(100)
	_, max := p.TrackingLimitRange()
	assert.Equal(t, max, p.limit)

	assert.Error(t, p.Process(image.NewGray(image.Rect(0, 0, 8, 8))), "process before load must fail")
	assert.Error(t, p.Load())
	assert.Error(t, ProbePigo(p.cascadePath)())

	registry := NewRegistry(WithRegistryLogger(quietLogger()))
	RegisterPigo(registry, p.cascadePath)
	assert.Error(t, registry.Initialize())
	assert.False(t, registry.IsAvailable(PigoFaceDetection))
	require.NoError(t, p.Unload())
}
