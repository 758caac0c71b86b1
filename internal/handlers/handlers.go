package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"github.com/deltadevelopers/leafsense-api/internal/chat"
	"github.com/deltadevelopers/leafsense-api/internal/model"
)

// Upload field names. The web client sends "file"; "image" is accepted too.
var uploadFields = []string{"file", "image"}

// Predictor is the inference engine as seen by the HTTP layer.
type Predictor interface {
	Classify(data []byte) (model.Prediction, error)
	Mode() model.Mode
}

// Catalogue serves the pre-loaded disease-pack document.
type Catalogue interface {
	JSON() json.RawMessage
}

type Handler struct {
	engine         Predictor
	responder      chat.Responder
	packs          Catalogue
	logger         *zap.Logger
	metrics        *Metrics
	maxUploadBytes int64
}

func NewHandler(engine Predictor, responder chat.Responder, packs Catalogue, logger *zap.Logger, maxUploadBytes int64) *Handler {
	return &Handler{
		engine:         engine,
		responder:      responder,
		packs:          packs,
		logger:         logger,
		metrics:        NewMetrics(),
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes wires every endpoint behind the CORS, request-id and access-log
// middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/predict", h.Predict)
	mux.HandleFunc("/chat", h.Chat)
	mux.HandleFunc("/disease-packs", h.DiseasePacks)
	mux.Handle("/metrics", h.metrics.Handler())

	return enableCORS(h.withRequestLog(mux))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload exceeds %d bytes", h.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	file, header, err := formFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image file provided. Use 'file' as the form field name")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	log := h.logger.With(zap.String("request_id", requestID(r.Context())))
	log.Debug("received file", zap.String("filename", header.Filename), zap.Int("bytes", len(data)))

	result, err := h.engine.Classify(data)
	if errors.Is(err, model.ErrInvalidImage) {
		log.Info("rejected upload", zap.String("filename", header.Filename), zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid image format. Supported: JPEG, PNG, GIF, BMP, TIFF, WebP")
		return
	}
	if err != nil {
		// Classify only reports invalid images; anything else is a bug.
		log.Error("unexpected prediction error", zap.Error(err))
		result = model.Prediction{PredictedClass: model.UnknownClass}
	}

	mode := h.engine.Mode()
	h.metrics.observePrediction(mode, result.PredictedClass)
	log.Info("prediction",
		zap.Stringer("mode", mode),
		zap.String("class", result.PredictedClass),
		zap.Float64("confidence", result.Confidence))

	writeJSON(w, http.StatusOK, result)
}

func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	var err error
	for _, field := range uploadFields {
		var (
			file   multipart.File
			header *multipart.FileHeader
		)
		file, header, err = r.FormFile(field)
		if err == nil {
			return file, header, nil
		}
	}
	return nil, nil, err
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req chat.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Disease == "" || req.Question == "" {
		writeError(w, http.StatusUnprocessableEntity, "Both 'disease' and 'question' are required")
		return
	}

	writeJSON(w, http.StatusOK, chat.Response{Answer: h.responder.Answer(req.Disease, req.Question)})
}

func (h *Handler) DiseasePacks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.packs.JSON())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
