package diseasepack

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Empty is served when no catalogue could be loaded.
var Empty = json.RawMessage(`{"packs":[]}`)

// Catalogue is the disease-pack document, loaded once and served verbatim.
type Catalogue struct {
	doc json.RawMessage
}

// Load reads the catalogue from path. Missing or malformed files yield the
// empty catalogue and a log line, never an error.
func Load(path string, logger *zap.Logger) *Catalogue {
	doc, err := read(path)
	if err != nil {
		logger.Warn("failed to load disease packs, serving empty catalogue",
			zap.String("path", path), zap.Error(err))
		return &Catalogue{doc: Empty}
	}

	logger.Info("disease packs loaded", zap.String("path", path), zap.Int("bytes", len(doc)))
	return &Catalogue{doc: doc}
}

func read(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON in %s", path)
	}
	return json.RawMessage(data), nil
}

func (c *Catalogue) JSON() json.RawMessage {
	return c.doc
}
