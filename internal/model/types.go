package model

// Input geometry of the leaf classifier. The network was trained on
// 224x224 RGB images in NHWC layout.
const (
	ImageSize = 224
	Channels  = 3
)

// UnknownClass is reported when inference fails on an otherwise valid image.
const UnknownClass = "unknown"

// DefaultClassNames is used when no class-name file accompanies the model.
var DefaultClassNames = []string{"healthy", "early_blight", "late_blight", "rust"}

type Mode int

const (
	FallbackMode Mode = iota
	ModelLoaded
)

func (m Mode) String() string {
	if m == ModelLoaded {
		return "model"
	}
	return "fallback"
}

// Tensor is a single preprocessed image, shape (1, 224, 224, 3).
type Tensor struct {
	Shape []int64
	Data  []float32
}

type Prediction struct {
	PredictedClass string  `json:"predicted_class"`
	Confidence     float64 `json:"confidence"`
}

// Classifier runs a forward pass and returns one probability per class.
type Classifier interface {
	Predict(t *Tensor) ([]float32, error)
}
