package autoframe

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/LdDl/autoframe-go/provider"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TrackingMode selects how tracked elements are aggregated into a frame
type TrackingMode int

const (
	// TrackingModeSolo frames exactly one element
	TrackingModeSolo TrackingMode = iota
	// TrackingModeGroup frames the bounding union of every element
	TrackingModeGroup
)

func (mode TrackingMode) String() string {
	switch mode {
	case TrackingModeSolo:
		return "solo"
	case TrackingModeGroup:
		return "group"
	default:
		return "unknown"
	}
}

const (
	DefaultTrackingMode      = "solo"
	DefaultTrackingFrequency = "20 Hz"
	DefaultMotionPrediction  = 200.0
	DefaultMotionSmoothing   = 33.333
	DefaultFrameStability    = 10.0
	DefaultPadding           = "33.333 %"
	DefaultOffsetX           = " 0.00 %"
	DefaultOffsetY           = "-7.50 %"
	DefaultAspectRatio       = ""
	DefaultProvider          = "automatic"

	maxMotionPrediction = 500.0
	maxPercent          = 100.0
	maxSettingsFileSize = 1 * 1024 * 1024
)

// Settings is user-facing configuration document.
// Every field is optional: nil means "use default".
type Settings struct {
	TrackingMode      *string  `json:"tracking_mode,omitempty"`      // "solo" or "group"
	TrackingFrequency *string  `json:"tracking_frequency,omitempty"` // "20 Hz", "0.05 s"
	MotionPrediction  *float64 `json:"motion_prediction,omitempty"`  // percent, [0, 500]
	MotionSmoothing   *float64 `json:"motion_smoothing,omitempty"`   // percent, [0, 100]
	FrameStability    *float64 `json:"frame_stability,omitempty"`    // percent, [0, 100]
	PaddingX          *string  `json:"padding_x,omitempty"`          // "12" pixels or "33.3 %"
	PaddingY          *string  `json:"padding_y,omitempty"`
	OffsetX           *string  `json:"offset_x,omitempty"`
	OffsetY           *string  `json:"offset_y,omitempty"`
	AspectRatio       *string  `json:"aspect_ratio,omitempty"` // "16:9", "1.7778" or "" for source aspect
	Provider          *string  `json:"provider,omitempty"`     // "automatic", "pigo", "replay", "none"
	Debug             *bool    `json:"debug,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrBool(v bool) *bool          { return &v }

// DefaultSettings returns document with every field set to its default
func DefaultSettings() *Settings {
	return &Settings{
		TrackingMode:      ptrString(DefaultTrackingMode),
		TrackingFrequency: ptrString(DefaultTrackingFrequency),
		MotionPrediction:  ptrFloat64(DefaultMotionPrediction),
		MotionSmoothing:   ptrFloat64(DefaultMotionSmoothing),
		FrameStability:    ptrFloat64(DefaultFrameStability),
		PaddingX:          ptrString(DefaultPadding),
		PaddingY:          ptrString(DefaultPadding),
		OffsetX:           ptrString(DefaultOffsetX),
		OffsetY:           ptrString(DefaultOffsetY),
		AspectRatio:       ptrString(DefaultAspectRatio),
		Provider:          ptrString(DefaultProvider),
		Debug:             ptrBool(false),
	}
}

// LoadSettings reads JSON document. Path must have .json extension and the file must not exceed 1MB.
// Omitted fields stay nil and resolve to defaults.
func LoadSettings(path string) (*Settings, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errors.Errorf("settings file must have .json extension, got %q", ext)
	}
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "Can't stat settings file")
	}
	if fileInfo.Size() > maxSettingsFileSize {
		return nil, errors.Errorf("settings file too large: %d bytes (max %d)", fileInfo.Size(), maxSettingsFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "Can't read settings file")
	}
	settings := &Settings{}
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, errors.Wrap(err, "Can't parse settings file")
	}
	return settings, nil
}

// Validate checks every set field. Returned error wraps ErrConfigParse.
func (s *Settings) Validate() error {
	if s.TrackingMode != nil {
		if _, err := ParseTrackingMode(*s.TrackingMode); err != nil {
			return err
		}
	}
	if s.TrackingFrequency != nil {
		if _, err := ParseFrequency(*s.TrackingFrequency); err != nil {
			return err
		}
	}
	if s.MotionPrediction != nil && (*s.MotionPrediction < 0 || *s.MotionPrediction > maxMotionPrediction) {
		return errors.Wrapf(ErrConfigParse, "motion_prediction %v out of [0, %v]", *s.MotionPrediction, maxMotionPrediction)
	}
	if s.MotionSmoothing != nil && (*s.MotionSmoothing < 0 || *s.MotionSmoothing > maxPercent) {
		return errors.Wrapf(ErrConfigParse, "motion_smoothing %v out of [0, %v]", *s.MotionSmoothing, maxPercent)
	}
	if s.FrameStability != nil && (*s.FrameStability < 0 || *s.FrameStability > maxPercent) {
		return errors.Wrapf(ErrConfigParse, "frame_stability %v out of [0, %v]", *s.FrameStability, maxPercent)
	}
	for _, text := range []*string{s.PaddingX, s.PaddingY, s.OffsetX, s.OffsetY} {
		if text == nil {
			continue
		}
		if _, err := ParseMeasure(*text); err != nil {
			return err
		}
	}
	if s.AspectRatio != nil {
		if _, err := ParseAspectRatio(*s.AspectRatio); err != nil {
			return err
		}
	}
	if s.Provider != nil {
		if _, err := provider.ParseID(*s.Provider); err != nil {
			return errors.Wrapf(ErrConfigParse, "%v", err)
		}
	}
	return nil
}

// GetTrackingMode returns tracking mode text or default
func (s *Settings) GetTrackingMode() string {
	if s.TrackingMode != nil {
		return *s.TrackingMode
	}
	return DefaultTrackingMode
}

// GetTrackingFrequency returns tracking frequency text or default
func (s *Settings) GetTrackingFrequency() string {
	if s.TrackingFrequency != nil {
		return *s.TrackingFrequency
	}
	return DefaultTrackingFrequency
}

// GetMotionPrediction returns motion prediction percent or default
func (s *Settings) GetMotionPrediction() float64 {
	if s.MotionPrediction != nil {
		return *s.MotionPrediction
	}
	return DefaultMotionPrediction
}

// GetMotionSmoothing returns motion smoothing percent or default
func (s *Settings) GetMotionSmoothing() float64 {
	if s.MotionSmoothing != nil {
		return *s.MotionSmoothing
	}
	return DefaultMotionSmoothing
}

// GetFrameStability returns frame stability percent or default
func (s *Settings) GetFrameStability() float64 {
	if s.FrameStability != nil {
		return *s.FrameStability
	}
	return DefaultFrameStability
}

// GetPaddingX returns horizontal padding text or default
func (s *Settings) GetPaddingX() string {
	if s.PaddingX != nil {
		return *s.PaddingX
	}
	return DefaultPadding
}

// GetPaddingY returns vertical padding text or default
func (s *Settings) GetPaddingY() string {
	if s.PaddingY != nil {
		return *s.PaddingY
	}
	return DefaultPadding
}

// GetOffsetX returns horizontal offset text or default
func (s *Settings) GetOffsetX() string {
	if s.OffsetX != nil {
		return *s.OffsetX
	}
	return DefaultOffsetX
}

// GetOffsetY returns vertical offset text or default
func (s *Settings) GetOffsetY() string {
	if s.OffsetY != nil {
		return *s.OffsetY
	}
	return DefaultOffsetY
}

// GetAspectRatio returns aspect ratio text or default
func (s *Settings) GetAspectRatio() string {
	if s.AspectRatio != nil {
		return *s.AspectRatio
	}
	return DefaultAspectRatio
}

// GetProvider returns provider name or default
func (s *Settings) GetProvider() string {
	if s.Provider != nil {
		return *s.Provider
	}
	return DefaultProvider
}

// GetDebug returns debug flag or default
func (s *Settings) GetDebug() bool {
	if s.Debug != nil {
		return *s.Debug
	}
	return false
}

// config is parsed form of Settings consumed by the engine
type config struct {
	mode       TrackingMode
	interval   float64 // seconds between detection samples
	prediction float64 // velocity multiplier
	smoothing  float64 // [0, 1]
	stability  float64 // [0, 1]
	paddingX   Measure
	paddingY   Measure
	offsetX    Measure
	offsetY    Measure
	aspect     float64 // 0 means source aspect
	provider   provider.ID
	debug      bool
}

func defaultConfig() config {
	return DefaultSettings().compile(config{}, logrus.New())
}

// compile parses settings. Malformed or out of range values keep previous one and are reported at warn level.
func (s *Settings) compile(previous config, logger logrus.FieldLogger) config {
	cfg := previous

	if mode, err := ParseTrackingMode(s.GetTrackingMode()); err != nil {
		logger.WithError(err).Warnf("Keeping tracking mode '%s'", previous.mode)
	} else {
		cfg.mode = mode
	}

	if interval, err := ParseFrequency(s.GetTrackingFrequency()); err != nil {
		logger.WithError(err).Warnf("Keeping tracking interval %.4fs", previous.interval)
	} else {
		cfg.interval = interval
	}

	cfg.prediction = percentSetting(logger, "motion_prediction", s.GetMotionPrediction(), maxMotionPrediction, previous.prediction)
	cfg.smoothing = percentSetting(logger, "motion_smoothing", s.GetMotionSmoothing(), maxPercent, previous.smoothing)
	cfg.stability = percentSetting(logger, "frame_stability", s.GetFrameStability(), maxPercent, previous.stability)

	cfg.paddingX = measureSetting(logger, "padding_x", s.GetPaddingX(), previous.paddingX)
	cfg.paddingY = measureSetting(logger, "padding_y", s.GetPaddingY(), previous.paddingY)
	cfg.offsetX = measureSetting(logger, "offset_x", s.GetOffsetX(), previous.offsetX)
	cfg.offsetY = measureSetting(logger, "offset_y", s.GetOffsetY(), previous.offsetY)

	if aspect, err := ParseAspectRatio(s.GetAspectRatio()); err != nil {
		logger.WithError(err).Warnf("Keeping aspect ratio %.4f", previous.aspect)
	} else {
		cfg.aspect = aspect
	}

	if id, err := provider.ParseID(s.GetProvider()); err != nil {
		logger.WithError(err).Warnf("Keeping provider '%s'", previous.provider)
	} else {
		cfg.provider = id
	}

	cfg.debug = s.GetDebug()
	return cfg
}

func percentSetting(logger logrus.FieldLogger, name string, value, limit, previous float64) float64 {
	if value < 0 || value > limit {
		logger.Warnf("Setting '%s' = %v is out of [0, %v], keeping %v%%", name, value, limit, previous*100.0)
		return previous
	}
	return value / 100.0
}

func measureSetting(logger logrus.FieldLogger, name, text string, previous Measure) Measure {
	m, err := ParseMeasure(text)
	if err != nil {
		logger.WithError(err).Warnf("Keeping '%s'", name)
		return previous
	}
	return m
}
