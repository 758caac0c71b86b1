package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deltadevelopers/leafsense-api/internal/chat"
	"github.com/deltadevelopers/leafsense-api/internal/diseasepack"
	"github.com/deltadevelopers/leafsense-api/internal/model"
)

type stubClassifier struct {
	probs []float32
	err   error
}

func (s stubClassifier) Predict(*model.Tensor) ([]float32, error) {
	return s.probs, s.err
}

type staticPacks string

func (s staticPacks) JSON() json.RawMessage { return json.RawMessage(s) }

func newTestServer(t *testing.T, c model.Classifier, names []string) http.Handler {
	t.Helper()
	engine := model.NewEngine(&model.Artifact{Classifier: c, ClassNames: names}, zap.NewNop(),
		model.WithRand(rand.New(rand.NewPCG(7, 11))))
	h := NewHandler(engine, chat.NewRuleResponder(), staticPacks(`{"packs":[{"crop":"Tomato"}]}`), zap.NewNop(), 1<<20)
	return h.Routes()
}

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		copy(img.Pix[i:], []byte{34, 139, 34, 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodePrediction(t *testing.T, rec *httptest.ResponseRecorder) model.Prediction {
	t.Helper()
	var p model.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := serve(srv, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestPredictFallbackMode(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	img := solidPNG(t, 10, 10)

	for i := 0; i < 100; i++ {
		rec := serve(srv, uploadRequest(t, "file", "leaf.png", img))
		require.Equal(t, http.StatusOK, rec.Code)

		p := decodePrediction(t, rec)
		assert.Contains(t, model.DefaultClassNames, p.PredictedClass)
		assert.GreaterOrEqual(t, p.Confidence, 70.0)
		assert.LessOrEqual(t, p.Confidence, 99.0)
	}
}

func TestPredictWithModel(t *testing.T) {
	srv := newTestServer(t, stubClassifier{probs: []float32{0.1, 0.1, 0.7, 0.1}}, model.DefaultClassNames)

	rec := serve(srv, uploadRequest(t, "file", "leaf.png", solidPNG(t, 300, 200)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"predicted_class":"late_blight","confidence":70}`, rec.Body.String())
}

func TestPredictAcceptsImageField(t *testing.T) {
	srv := newTestServer(t, stubClassifier{probs: []float32{1, 0, 0, 0}}, model.DefaultClassNames)

	rec := serve(srv, uploadRequest(t, "image", "leaf.png", solidPNG(t, 10, 10)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.Prediction{PredictedClass: "healthy", Confidence: 100}, decodePrediction(t, rec))
}

func TestPredictDegradesOnInferenceFailure(t *testing.T) {
	srv := newTestServer(t, stubClassifier{err: errors.New("session closed")}, model.DefaultClassNames)

	rec := serve(srv, uploadRequest(t, "file", "leaf.png", solidPNG(t, 10, 10)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"predicted_class":"unknown","confidence":0}`, rec.Body.String())
}

func TestPredictRejectsNonImages(t *testing.T) {
	for name, c := range map[string]model.Classifier{
		"fallback": nil,
		"model":    stubClassifier{probs: []float32{1, 0, 0, 0}},
	} {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, c, nil)

			rec := serve(srv, uploadRequest(t, "file", "notes.txt", []byte("just some plain text")))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
			assert.NotContains(t, rec.Body.String(), "predicted_class")
		})
	}
}

func TestPredictBadRequests(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	t.Run("wrong field", func(t *testing.T) {
		rec := serve(srv, uploadRequest(t, "photo", "leaf.png", solidPNG(t, 10, 10)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("hello"))
		req.Header.Set("Content-Type", "text/plain")
		rec := serve(srv, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/predict", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		rec := serve(srv, uploadRequest(t, "file", "big.bin", bytes.Repeat([]byte{0}, 2<<20)))
		assert.Contains(t, []int{http.StatusBadRequest, http.StatusRequestEntityTooLarge}, rec.Code)
	})
}

func TestChat(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	tests := []struct {
		name   string
		body   string
		status int
		answer string
	}{
		{"treatment", `{"disease":"late_blight","question":"What is the treatment?"}`, http.StatusOK, "For blight:"},
		{"healthy", `{"disease":"healthy","question":"anything?"}`, http.StatusOK, "Great news!"},
		{"bad json", `{"disease":`, http.StatusBadRequest, ""},
		{"missing question", `{"disease":"rust"}`, http.StatusUnprocessableEntity, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := serve(srv, req)
			require.Equal(t, tt.status, rec.Code)

			if tt.answer == "" {
				return
			}
			var resp chat.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.True(t, strings.HasPrefix(resp.Answer, tt.answer), resp.Answer)
		})
	}
}

func TestDiseasePacks(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/disease-packs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"packs":[{"crop":"Tomato"}]}`, rec.Body.String())
}

func TestDiseasePacksEmptyCatalogue(t *testing.T) {
	engine := model.NewEngine(&model.Artifact{}, zap.NewNop())
	packs := diseasepack.Load("does-not-exist.json", zap.NewNop())
	srv := NewHandler(engine, chat.NewRuleResponder(), packs, zap.NewNop(), 1<<20).Routes()

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/disease-packs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"packs":[]}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := serve(srv, httptest.NewRequest(http.MethodOptions, "/predict", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	serve(srv, uploadRequest(t, "file", "leaf.png", solidPNG(t, 10, 10)))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `leafsense_predictions_total{class=`)
	assert.Contains(t, string(body), `mode="fallback"`)
	assert.Contains(t, string(body), `leafsense_http_requests_total{method="POST",path="/predict",status="200"} 1`)
}

func TestMetricsCollapseUnknownRoutes(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	for _, target := range []string{"/wp-login.php", "/.env", "/health/extra", "/predict?x=1"} {
		serve(srv, httptest.NewRequest(http.MethodGet, target, nil))
	}
	serve(srv, httptest.NewRequest("PROPFIND", "/health", nil))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, `leafsense_http_requests_total{method="GET",path="other",status="404"} 3`)
	assert.Contains(t, body, `leafsense_http_requests_total{method="GET",path="/predict",status="405"} 1`)
	assert.Contains(t, body, `leafsense_http_requests_total{method="other",path="/health",status="405"} 1`)
	assert.NotContains(t, body, "wp-login")
	assert.NotContains(t, body, ".env")
	assert.NotContains(t, body, "PROPFIND")
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"/health", "/health"},
		{"/predict", "/predict"},
		{"/chat", "/chat"},
		{"/disease-packs", "/disease-packs"},
		{"/metrics", "/metrics"},
		{"/", "other"},
		{"/wp-login.php", "other"},
		{"/predict/", "other"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, routeLabel(tt.path), tt.path)
	}
}
