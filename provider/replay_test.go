package provider

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replayBatch(n int) []Detection {
	batch := make([]Detection, n)
	for i := range batch {
		batch[i] = Detection{
			Rect:       Rect{X: float64(10 * i), Y: 5, Width: 20, Height: 20},
			Confidence: 0.5,
		}
	}
	return batch
}

func TestReplayProcess(t *testing.T) {
	p := NewReplayProvider()
	assert.Error(t, p.Process(nil), "process before load must fail")

	require.NoError(t, p.Load())
	p.Push(replayBatch(1))
	p.Push(replayBatch(3))
	assert.Equal(t, 2, p.Pending())

	require.NoError(t, p.Process(nil))
	assert.Equal(t, 1, p.DetectionCount())

	require.NoError(t, p.Process(nil))
	require.Equal(t, 3, p.DetectionCount())
	rect, confidence := p.DetectionAt(2)
	assert.Equal(t, Rect{X: 20, Y: 5, Width: 20, Height: 20}, rect)
	assert.Equal(t, 0.5, confidence)

	// Nothing queued: nothing detected
	require.NoError(t, p.Process(nil))
	assert.Equal(t, 0, p.DetectionCount())
}

func TestReplayLatestOnly(t *testing.T) {
	p := NewReplayProvider(WithLatestOnly(true))
	require.NoError(t, p.Load())
	p.Push(replayBatch(1))
	p.Push(replayBatch(2))
	assert.Equal(t, 1, p.Pending())
	require.NoError(t, p.Process(nil))
	assert.Equal(t, 2, p.DetectionCount())
}

func TestReplayTrackingLimit(t *testing.T) {
	p := NewReplayProvider()
	require.NoError(t, p.Load())

	p.SetTrackingLimit(0)
	p.Push(replayBatch(3))
	require.NoError(t, p.Process(nil))
	assert.Equal(t, 1, p.DetectionCount())

	p.SetTrackingLimit(1000)
	_, max := p.TrackingLimitRange()
	p.Push(replayBatch(max + 5))
	require.NoError(t, p.Process(nil))
	assert.Equal(t, max, p.DetectionCount())
}

func TestReplayHooks(t *testing.T) {
	failure := errors.New("camera busy")
	p := NewReplayProvider(WithLoadHook(func() error { return failure }))
	assert.Equal(t, failure, p.Load())
	assert.Error(t, p.Process(nil))

	p = NewReplayProvider(WithTemporal(true), WithUnloadHook(func() error { return nil }))
	assert.True(t, p.IsTemporal())
	require.NoError(t, p.Load())
	p.Push(replayBatch(2))
	require.NoError(t, p.Unload())
	assert.Equal(t, 0, p.Pending())
}
