package main

import (
	"bufio"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/LdDl/autoframe-go/autoframe"
	"github.com/LdDl/autoframe-go/provider"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	settingsPath = flag.String("settings", "", "Path to JSON settings document")
	providerName = flag.String("provider", "", "Provider override: automatic, pigo, replay or none")
	cascadePath  = flag.String("cascade", "", "Path to pigo face cascade. Enables pigo provider")
	temporal     = flag.Bool("temporal", true, "Treat replayed detections as identity preserving")
	diagnostics  = flag.Bool("diagnostics", false, "Attach per-track state to every output line")
	logLevel     = flag.String("log", "info", "Log level")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(level)
	}

	settings := autoframe.DefaultSettings()
	if *settingsPath != "" {
		loaded, err := autoframe.LoadSettings(*settingsPath)
		if err != nil {
			logger.WithError(err).Fatal("Can't load settings")
		}
		if err := loaded.Validate(); err != nil {
			logger.WithError(err).Warn("Settings contain invalid values, previous values will be kept for them")
		}
		settings = loaded
	}
	if *providerName != "" {
		settings.Provider = providerName
	} else if *settingsPath == "" {
		replayName := "replay"
		settings.Provider = &replayName
	}

	registry := provider.NewRegistry(
		provider.WithRegistryLogger(logger),
		provider.WithPriority(provider.PigoFaceDetection, provider.Replay),
	)
	replay := provider.NewReplayProvider(provider.WithTemporal(*temporal), provider.WithLatestOnly(true))
	provider.RegisterReplay(registry, replay)
	if *cascadePath != "" {
		provider.RegisterPigo(registry, *cascadePath)
	}
	if err := registry.Initialize(); err != nil {
		logger.WithError(err).Fatal("Can't initialize providers")
	}
	defer registry.Finalize()

	engine, err := autoframe.NewEngine(registry, settings, autoframe.WithLogger(logger))
	if err != nil {
		logger.WithError(err).Fatal("Can't create engine")
	}
	defer engine.Close()
	engine.Lifecycle().Await()
	if err := engine.Lifecycle().LastError(); err != nil {
		logger.WithError(err).Fatal("Provider is not usable")
	}

	s := bufio.NewScanner(os.Stdin)
	bufsize := 10 << 20
	buf := make([]byte, bufsize)
	s.Buffer(buf, bufsize)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	for s.Scan() {
		response, err := processLine(engine, replay, s.Bytes(), *diagnostics)
		if err != nil {
			logger.WithError(err).Warn("Skipping line")
			continue
		}
		fmt.Fprintln(out, response)
	}
	if err := s.Err(); err != nil {
		logger.WithError(err).Error("Can't read input")
	}
}

// processLine runs one engine tick for JSON line:
//
//	{"elapsed": 0.05, "width": 640, "height": 480, "detections": [{"bbox": [x, y, w, h], "confidence": 0.9}], "image": "frame.png"}
//
// and returns the same line extended with "crop" and "output" objects.
func processLine(engine *autoframe.Engine, replay *provider.ReplayProvider, line []byte, withDiagnostics bool) (string, error) {
	if !gjson.ValidBytes(line) {
		return "", errors.New("line is not valid JSON")
	}
	req := gjson.ParseBytes(line)
	source := autoframe.NewSize(req.Get("width").Float(), req.Get("height").Float())
	elapsed := req.Get("elapsed").Float()

	var frame image.Image
	if path := req.Get("image"); path.Exists() {
		img, err := decodeImage(path.String())
		if err != nil {
			return "", err
		}
		frame = img
		if source.IsDegenerate() {
			source = autoframe.NewSize(float64(img.Bounds().Dx()), float64(img.Bounds().Dy()))
		}
	}

	if items := req.Get("detections"); items.Exists() && engine.Lifecycle().Current() == provider.Replay {
		batch := make([]provider.Detection, 0, len(items.Array()))
		items.ForEach(func(_, item gjson.Result) bool {
			bbox := []float64{}
			item.Get("bbox").ForEach(func(_, value gjson.Result) bool {
				bbox = append(bbox, value.Float())
				return true
			})
			if len(bbox) != 4 {
				return true
			}
			batch = append(batch, provider.Detection{
				Rect:       provider.Rect{X: bbox[0], Y: bbox[1], Width: bbox[2], Height: bbox[3]},
				Confidence: item.Get("confidence").Float(),
			})
			return true
		})
		replay.Push(batch)
	}

	crop := engine.Tick(elapsed, source, frame)
	outWidth, outHeight := engine.OutputSize(source)

	response := string(line)
	var err error
	response, err = sjson.Set(response, "crop", map[string]float64{
		"x":      crop.X,
		"y":      crop.Y,
		"width":  crop.Width,
		"height": crop.Height,
	})
	if err != nil {
		return "", errors.Wrap(err, "Can't set crop")
	}
	response, err = sjson.Set(response, "output", map[string]int{
		"width":  outWidth,
		"height": outHeight,
	})
	if err != nil {
		return "", errors.Wrap(err, "Can't set output size")
	}
	if withDiagnostics {
		tracks := make([]map[string]interface{}, 0)
		for _, diag := range engine.Diagnostics() {
			tracks = append(tracks, map[string]interface{}{
				"id":         diag.ID.String(),
				"confidence": diag.Confidence,
				"age":        diag.Age,
				"raw":        []float64{diag.Raw.X, diag.Raw.Y, diag.Raw.Width, diag.Raw.Height},
				"aspected":   []float64{diag.Aspected.X, diag.Aspected.Y, diag.Aspected.Width, diag.Aspected.Height},
				"velocity":   []float64{diag.Velocity.X, diag.Velocity.Y},
			})
		}
		response, err = sjson.Set(response, "tracks", tracks)
		if err != nil {
			return "", errors.Wrap(err, "Can't set tracks")
		}
	}
	return response, nil
}

func decodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open image")
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, errors.Wrap(err, "Can't decode image")
	}
	return img, nil
}
