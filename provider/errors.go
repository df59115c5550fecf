package provider

import (
	"github.com/pkg/errors"
)

var (
	// ErrProviderLoadFailed is recorded when backend can't be loaded. Session stays not ready.
	ErrProviderLoadFailed = errors.New("provider load failed")
	// ErrProviderUnloadFailed is recorded when previous backend can't release its resources
	ErrProviderUnloadFailed = errors.New("provider unload failed")
	// ErrProviderUnavailable is returned by Registry for backends which failed probing
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrPoolClosed is returned when submitting to closed Pool
	ErrPoolClosed = errors.New("pool closed")
)
