package autoframe

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Measure is a per-axis framing quantity: either pixels or a fraction of the tracked size.
//
// Percentages are stored sign-flipped: "10 %" is kept as Value = -0.1 with Percent = true.
// Consumers multiply the tracked size by -Value, so the configured sign is what reaches the frame.
type Measure struct {
	Value   float64
	Percent bool
}

// Pixels creates literal pixel measure
func Pixels(v float64) Measure {
	return Measure{Value: v}
}

// Percent creates measure from percentage as the user would type it (10 means 10%)
func Percent(v float64) Measure {
	return Measure{Value: -(v / 100.0), Percent: true}
}

// Resolve converts measure to pixels for given reference length
func (m Measure) Resolve(reference float64) float64 {
	if m.Percent {
		return reference * (-m.Value)
	}
	return m.Value
}

// ParseMeasure parses "12", "12px", "-7.5 %" and similar forms
func ParseMeasure(text string) (Measure, error) {
	s := strings.TrimSpace(text)
	percent := false
	switch {
	case strings.HasSuffix(s, "%"):
		percent = true
		s = strings.TrimSuffix(s, "%")
	case strings.HasSuffix(strings.ToLower(s), "px"):
		s = s[:len(s)-2]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Measure{}, errors.Wrapf(ErrConfigParse, "size %q", text)
	}
	if percent {
		return Percent(v), nil
	}
	return Pixels(v), nil
}

// ParseFrequency converts "20 Hz" (or bare "20") into seconds between samples.
// Values suffixed with "s" ("0.25 s") are taken as seconds directly.
func ParseFrequency(text string) (float64, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	seconds := false
	switch {
	case strings.HasSuffix(s, "hz"):
		s = strings.TrimSuffix(s, "hz")
	case strings.HasSuffix(s, "ms"):
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "ms")), 64)
		if err != nil || v < 0 {
			return 0, errors.Wrapf(ErrConfigParse, "frequency %q", text)
		}
		return v / 1000.0, nil
	case strings.HasSuffix(s, "s"):
		seconds = true
		s = strings.TrimSuffix(s, "s")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.Wrapf(ErrConfigParse, "frequency %q", text)
	}
	if seconds {
		if v < 0 {
			return 0, errors.Wrapf(ErrConfigParse, "frequency %q: negative interval", text)
		}
		return v, nil
	}
	if v <= 0 {
		return 0, errors.Wrapf(ErrConfigParse, "frequency %q: must be positive", text)
	}
	return 1.0 / v, nil
}

// ParseAspectRatio parses "16:9", "1.7778" or "" (use source aspect, returned as 0)
func ParseAspectRatio(text string) (float64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, nil
	}
	if left, right, found := strings.Cut(s, ":"); found {
		w, errW := strconv.ParseFloat(strings.TrimSpace(left), 64)
		h, errH := strconv.ParseFloat(strings.TrimSpace(right), 64)
		if errW != nil || errH != nil || w <= 0 || h <= 0 {
			return 0, errors.Wrapf(ErrConfigParse, "aspect ratio %q", text)
		}
		return w / h, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, errors.Wrapf(ErrConfigParse, "aspect ratio %q", text)
	}
	return v, nil
}

// ParseTrackingMode accepts "solo" and "group" in any case
func ParseTrackingMode(text string) (TrackingMode, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "solo":
		return TrackingModeSolo, nil
	case "group":
		return TrackingModeGroup, nil
	default:
		return TrackingModeSolo, errors.Wrapf(ErrConfigParse, "tracking mode %q", text)
	}
}
