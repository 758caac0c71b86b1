package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"
)

// Paths locates the persisted artifact. Both files are optional.
type Paths struct {
	Model      string
	ClassNames string
}

// Artifact is the trained classifier together with its label ordering.
// Classifier is nil when no usable model was found.
type Artifact struct {
	Classifier Classifier
	ClassNames []string
}

// OpenFunc deserializes a model file into a classifier producing numClasses outputs.
type OpenFunc func(modelPath string, numClasses int) (Classifier, error)

// ONNXOpener returns an OpenFunc backed by ONNX Runtime.
func ONNXOpener(opts ONNXOptions) OpenFunc {
	return func(modelPath string, numClasses int) (Classifier, error) {
		c, err := NewONNXClassifier(modelPath, numClasses, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// LoadArtifact never fails: anything missing or broken leaves the artifact
// without a classifier, which puts the engine into fallback mode.
func LoadArtifact(paths Paths, open OpenFunc, logger *zap.Logger) *Artifact {
	a := &Artifact{ClassNames: loadClassNames(paths.ClassNames, logger)}

	if _, err := os.Stat(paths.Model); err != nil {
		logger.Info("model file not found, using simulated predictions",
			zap.String("path", paths.Model))
		return a
	}

	c, err := open(paths.Model, len(a.ClassNames))
	if err != nil {
		logger.Error("failed to load model, using simulated predictions",
			zap.String("path", paths.Model), zap.Error(err))
		return a
	}

	logger.Info("model loaded", zap.String("path", paths.Model))
	a.Classifier = c
	return a
}

func loadClassNames(path string, logger *zap.Logger) []string {
	names, err := readClassNames(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("class names file not found, using defaults",
			zap.String("path", path), zap.Strings("classes", DefaultClassNames))
		return DefaultClassNames
	case err != nil:
		logger.Error("failed to read class names, using defaults",
			zap.String("path", path), zap.Error(err))
		return DefaultClassNames
	}

	logger.Info("class names loaded", zap.Strings("classes", names))
	return names
}

func readClassNames(path string) ([]string, error) {
	if path == "" {
		return nil, fs.ErrNotExist
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("failed to parse class names: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("class names file is empty")
	}
	return names, nil
}

// Close releases the classifier if it holds native resources.
func (a *Artifact) Close() {
	if c, ok := a.Classifier.(interface{ Close() }); ok {
		c.Close()
	}
}
