package autoframe

import (
	"image"
	"sync"

	"github.com/LdDl/autoframe-go/provider"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TrackDiagnostics is full state of one tracked element for debug visualization
type TrackDiagnostics struct {
	ID         uuid.UUID
	Confidence float64
	Age        float64
	// Boxes are centered on the respective position of each stage
	Raw       Rectangle
	Predicted Rectangle
	Filtered  Rectangle
	Offset    Rectangle
	Padded    Rectangle
	Aspected  Rectangle
	Velocity  Point
	// Per-sample center velocity of bbox Kalman filter
	EstimatedVelocity Point
	Trail             []Point
}

type engineOptions struct {
	logger logrus.FieldLogger
	pool   *provider.Pool
}

// EngineOption configures Engine
type EngineOption func(*engineOptions)

// WithLogger sets logger for engine and its provider lifecycle
func WithLogger(logger logrus.FieldLogger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithPool runs provider switches on shared pool
func WithPool(pool *provider.Pool) EngineOption {
	return func(o *engineOptions) {
		o.pool = pool
	}
}

// Engine produces one crop rectangle per tick from detections of the current provider.
// Tick is expected to be called from a single goroutine; Update may be called from any.
type Engine struct {
	mu     sync.Mutex
	logger logrus.FieldLogger

	lifecycle  *provider.Lifecycle
	cfg        config
	associator *TrackAssociator
	predictor  *MotionPredictor
	composer   *FrameComposer
	filter     *FrameFilter

	// Seconds since last detection sample
	sampleCounter float64
	lastAggregate Aggregate
	lastFrame     Rectangle
}

// NewEngine creates engine bound to registry and applies settings (nil means defaults).
// Provider switch requested by the settings runs in background; the engine is usable immediately.
func NewEngine(registry *provider.Registry, settings *Settings, options ...EngineOption) (*Engine, error) {
	opts := engineOptions{
		logger: logrus.StandardLogger(),
	}
	for _, option := range options {
		option(&opts)
	}

	lifecycleOptions := []provider.LifecycleOption{provider.WithLifecycleLogger(opts.logger)}
	if opts.pool != nil {
		lifecycleOptions = append(lifecycleOptions, provider.WithPool(opts.pool))
	}

	cfg := defaultConfig()
	engine := &Engine{
		logger:     opts.logger.WithField("component", "autoframe-engine"),
		lifecycle:  provider.NewLifecycle(registry, lifecycleOptions...),
		cfg:        cfg,
		associator: NewTrackAssociator(cfg.interval),
		predictor:  NewMotionPredictor(cfg.smoothing, cfg.prediction),
		composer:   NewFrameComposer(),
		filter:     NewFrameFilter(cfg.stability),
	}
	engine.sampleCounter = cfg.interval
	if settings == nil {
		settings = DefaultSettings()
	}
	if err := engine.Update(settings); err != nil {
		return nil, errors.Wrap(err, "Can't apply initial settings")
	}
	return engine, nil
}

// Update applies settings. Malformed values keep previous ones (logged at warn level).
// Provider change is scheduled in background and never waited for by Tick.
func (engine *Engine) Update(settings *Settings) error {
	engine.mu.Lock()
	cfg := settings.compile(engine.cfg, engine.logger)
	engine.cfg = cfg
	engine.associator.SetInterval(cfg.interval)
	engine.predictor.SetSmoothing(cfg.smoothing, engine.associator)
	engine.predictor.SetPrediction(cfg.prediction)
	engine.composer.SetPadding(cfg.paddingX, cfg.paddingY)
	engine.composer.SetOffset(cfg.offsetX, cfg.offsetY)
	engine.composer.SetAspectRatio(cfg.aspect)
	engine.filter.SetStability(cfg.stability)
	engine.filter.SetAspectRatio(cfg.aspect)
	engine.mu.Unlock()

	engine.logger.WithFields(logrus.Fields{
		"mode":       cfg.mode,
		"interval":   cfg.interval,
		"prediction": cfg.prediction,
		"smoothing":  cfg.smoothing,
		"stability":  cfg.stability,
		"aspect":     cfg.aspect,
		"provider":   cfg.provider,
	}).Debug("Settings applied")

	// Mode first: a switch below re-applies it after load
	engine.lifecycle.ApplyMode(cfg.mode == TrackingModeSolo)
	if _, err := engine.lifecycle.Switch(cfg.provider); err != nil {
		return errors.Wrap(err, "Can't switch provider")
	}
	return nil
}

// Lifecycle exposes provider session
func (engine *Engine) Lifecycle() *provider.Lifecycle {
	return engine.lifecycle
}

// Mode returns tracking mode in effect. Solo needs a temporal backend, group is used otherwise.
func (engine *Engine) Mode() TrackingMode {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return engine.effectiveMode()
}

func (engine *Engine) effectiveMode() TrackingMode {
	if engine.cfg.mode == TrackingModeSolo && !engine.lifecycle.IsTemporal() {
		return TrackingModeGroup
	}
	return engine.cfg.mode
}

// Tick advances the engine by elapsed seconds and returns crop rectangle in source pixels.
// Frame is handed to the provider on sampling ticks; it may be nil for providers which don't look at pixels.
func (engine *Engine) Tick(elapsed float64, source Size, frame image.Image) Rectangle {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	if elapsed < 0 {
		elapsed = 0
	}

	var detections []provider.Detection
	sampled := false
	if err := checkSource(source); err != nil {
		engine.logger.WithError(err).Debug("Detection skipped")
	} else if engine.sampleCounter >= engine.cfg.interval {
		if detections, sampled = engine.lifecycle.Detect(frame); sampled {
			engine.sampleCounter = 0
		}
	}

	if err := engine.associator.Associate(detections, sampled, elapsed, source); err != nil {
		engine.logger.WithError(err).Warn("Failed to associate detections")
	}
	engine.predictor.Update(engine.associator, elapsed)
	engine.composer.Shape(engine.associator)

	engine.lastAggregate = engine.composer.Compose(engine.associator, engine.effectiveMode(), source)
	engine.lastFrame = engine.filter.Apply(engine.lastAggregate, source)
	engine.sampleCounter += elapsed

	if logger, ok := engine.logger.(*logrus.Entry); ok && logger.Logger.IsLevelEnabled(logrus.TraceLevel) {
		logger.WithFields(logrus.Fields{
			"sampled":    sampled,
			"detections": len(detections),
			"tracks":     engine.associator.Len(),
			"aggregate":  engine.lastAggregate.Kind,
		}).Tracef("Frame %+v", engine.lastFrame)
	}
	return engine.lastFrame
}

// LastAggregate returns raw frame of the last tick before filtering and correction
func (engine *Engine) LastAggregate() Aggregate {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return engine.lastAggregate
}

// OutputSize returns dimensions of the rendered crop for given source
func (engine *Engine) OutputSize(source Size) (int, int) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return OutputSize(source, engine.cfg.aspect, engine.cfg.debug)
}

// Diagnostics returns state of every tracked element in creation order
func (engine *Engine) Diagnostics() []TrackDiagnostics {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	result := make([]TrackDiagnostics, 0, engine.associator.Len())
	for _, el := range engine.associator.elements {
		diag := TrackDiagnostics{
			ID:                el.ID,
			Confidence:        el.Confidence,
			Age:               el.Age,
			Raw:               el.Box(),
			Velocity:          el.Velocity,
			EstimatedVelocity: el.EstimatedVelocity(),
			Trail:             el.Trail(),
		}
		if pred, ok := engine.associator.Prediction(el.ID); ok {
			filteredSize := pred.FilteredSize()
			diag.Predicted = NewRectCentered(pred.MotionPredictedPosition, el.Size)
			diag.Filtered = NewRectCentered(pred.FilteredPosition(), filteredSize)
			diag.Offset = NewRectCentered(pred.OffsetPosition, filteredSize)
			diag.Padded = NewRectCentered(pred.OffsetPosition, pred.PaddedSize)
			diag.Aspected = pred.Region()
		}
		result = append(result, diag)
	}
	return result
}

// Reset forgets every tracked element and restarts frame smoothing from the full source
func (engine *Engine) Reset() {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.associator.Reset()
	engine.filter.Reset()
	engine.sampleCounter = engine.cfg.interval
}

// Close waits for pending provider switch and unloads the provider
func (engine *Engine) Close() error {
	return engine.lifecycle.Close()
}
