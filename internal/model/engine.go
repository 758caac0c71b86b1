package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"
)

// Fallback confidence band, in percent.
const (
	fallbackMinConfidence = 70.0
	fallbackMaxConfidence = 99.0
)

// RandSource is the subset of *rand.Rand used by fallback predictions.
type RandSource interface {
	IntN(n int) int
	Float64() float64
}

// Engine maps uploaded images to predictions. It is built once at startup
// and is safe for concurrent use; its mode never changes afterwards.
type Engine struct {
	classifier Classifier
	classNames []string
	rng        RandSource
	maxPixels  int64
	logger     *zap.Logger
}

type Option func(*Engine)

// sharedRand draws from the goroutine-safe top-level generator.
type sharedRand struct{}

func (sharedRand) IntN(n int) int   { return rand.IntN(n) }
func (sharedRand) Float64() float64 { return rand.Float64() }

// WithRand replaces the random source used in fallback mode. The source must
// be safe for concurrent use if the engine serves parallel requests.
func WithRand(r RandSource) Option {
	return func(e *Engine) {
		e.rng = r
	}
}

// WithMaxPixels caps the area of accepted images. Zero or less keeps
// DefaultMaxPixels.
func WithMaxPixels(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPixels = n
		}
	}
}

func NewEngine(a *Artifact, logger *zap.Logger, opts ...Option) *Engine {
	names := a.ClassNames
	if len(names) == 0 {
		names = DefaultClassNames
	}

	e := &Engine{
		classifier: a.Classifier,
		classNames: append([]string(nil), names...),
		rng:        sharedRand{},
		maxPixels:  DefaultMaxPixels,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}

	logger.Info("inference engine ready",
		zap.Stringer("mode", e.Mode()), zap.Strings("classes", e.classNames))
	return e
}

func (e *Engine) Mode() Mode {
	if e.classifier == nil {
		return FallbackMode
	}
	return ModelLoaded
}

func (e *Engine) ClassNames() []string {
	return append([]string(nil), e.classNames...)
}

// Classify returns a prediction for raw image bytes. The only error it
// returns wraps ErrInvalidImage; every other failure degrades to the
// unknown/0 result.
func (e *Engine) Classify(data []byte) (p Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("prediction panicked", zap.Any("panic", r))
			p, err = Prediction{PredictedClass: UnknownClass, Confidence: 0}, nil
		}
	}()

	tensor, err := preprocess(data, e.maxPixels)
	if err != nil {
		return Prediction{}, err
	}

	p, err = e.predict(tensor)
	if err != nil {
		e.logger.Error("prediction failed", zap.Error(err))
		return Prediction{PredictedClass: UnknownClass, Confidence: 0}, nil
	}
	return p, nil
}

func (e *Engine) predict(t *Tensor) (Prediction, error) {
	if e.classifier == nil {
		return e.simulate(), nil
	}

	probs, err := e.classifier.Predict(t)
	if err != nil {
		return Prediction{}, err
	}
	if len(probs) != len(e.classNames) {
		return Prediction{}, fmt.Errorf("classifier returned %d probabilities for %d classes", len(probs), len(e.classNames))
	}

	idx := argmax(probs)
	confidence := roundConfidence(float64(probs[idx]) * 100)
	if math.IsNaN(confidence) {
		return Prediction{}, errors.New("classifier returned NaN probability")
	}

	return Prediction{
		PredictedClass: e.classNames[idx],
		Confidence:     math.Min(math.Max(confidence, 0), 100),
	}, nil
}

func (e *Engine) simulate() Prediction {
	idx := e.rng.IntN(len(e.classNames))
	confidence := fallbackMinConfidence + e.rng.Float64()*(fallbackMaxConfidence-fallbackMinConfidence)

	p := Prediction{
		PredictedClass: e.classNames[idx],
		Confidence:     roundConfidence(confidence),
	}
	e.logger.Debug("simulated prediction",
		zap.String("mode", FallbackMode.String()),
		zap.String("class", p.PredictedClass),
		zap.Float64("confidence", p.Confidence))
	return p
}

// argmax returns the first index holding the largest value.
func argmax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// roundConfidence rounds half away from zero to one decimal place.
func roundConfidence(v float64) float64 {
	return math.Round(v*10) / 10
}
