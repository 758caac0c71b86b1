package model

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

type ONNXOptions struct {
	// SharedLibrary points at libonnxruntime; empty uses the platform default.
	SharedLibrary string
	InputName     string
	OutputName    string
}

// ONNXClassifier runs the exported leaf CNN through ONNX Runtime. Tensors are
// allocated per call so a single classifier can serve concurrent requests.
type ONNXClassifier struct {
	session    *ort.DynamicAdvancedSession
	numClasses int
}

// NewONNXClassifier opens the model at modelPath and checks that its output
// width matches numClasses.
func NewONNXClassifier(modelPath string, numClasses int, opts ONNXOptions) (*ONNXClassifier, error) {
	if opts.SharedLibrary != "" {
		ort.SetSharedLibraryPath(opts.SharedLibrary)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model: %w", err)
	}

	inputName, err := pickName(inputs, opts.InputName)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	outputName, err := pickName(outputs, opts.OutputName)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	for _, info := range outputs {
		if info.Name != outputName {
			continue
		}
		dims := info.Dimensions
		if len(dims) == 0 {
			continue
		}
		// A negative width is a symbolic dimension and is checked per call.
		if width := dims[len(dims)-1]; width > 0 && int(width) != numClasses {
			return nil, fmt.Errorf("model outputs %d classes, class list has %d", width, numClasses)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inputName}, []string{outputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXClassifier{
		session:    session,
		numClasses: numClasses,
	}, nil
}

func pickName(infos []ort.InputOutputInfo, want string) (string, error) {
	if len(infos) == 0 {
		return "", fmt.Errorf("model declares none")
	}
	if want == "" {
		return infos[0].Name, nil
	}
	for _, info := range infos {
		if info.Name == want {
			return want, nil
		}
	}
	return "", fmt.Errorf("model has no tensor named %q", want)
}

func (c *ONNXClassifier) Predict(t *Tensor) ([]float32, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(t.Shape...), t.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(c.numClasses)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := c.session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := make([]float32, c.numClasses)
	copy(out, outputTensor.GetData())
	return out, nil
}

func (c *ONNXClassifier) Close() {
	if c.session != nil {
		c.session.Destroy()
	}
	ort.DestroyEnvironment()
}
