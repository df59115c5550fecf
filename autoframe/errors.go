package autoframe

import (
	"github.com/pkg/errors"
)

var (
	// ErrConfigParse is returned when a textual setting (frequency, padding, offset, aspect ratio) is malformed
	ErrConfigParse = errors.New("can't parse setting")
	// ErrDegenerateGeometry marks zero-area source or frame
	ErrDegenerateGeometry = errors.New("degenerate geometry")
)
