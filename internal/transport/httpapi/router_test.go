package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/smarthealth/internal/diagnosis"
	"github.com/Skufu/smarthealth/internal/health"
	"github.com/Skufu/smarthealth/internal/model"
	"github.com/Skufu/smarthealth/internal/predictor"
	"github.com/Skufu/smarthealth/internal/store"
	"github.com/Skufu/smarthealth/internal/symptom"
)

type fakeDB struct {
	err error
}

func (f fakeDB) Ping(ctx context.Context) error {
	return f.err
}

type flakyClassifier struct {
	err error
}

func (f *flakyClassifier) Predict([]float32) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}
func (f *flakyClassifier) NumFeatures() int { return 0 }
func (f *flakyClassifier) Classes() []int   { return nil }
func (f *flakyClassifier) Close() error     { return nil }

type fakeTallies struct {
	tallies []store.Tally
	err     error
}

func (f fakeTallies) Tallies(context.Context) ([]store.Tally, error) {
	return f.tallies, f.err
}

func treeService(t *testing.T) *predictor.Service {
	t.Helper()
	clf, err := model.Load(model.KindTree, filepath.Join("..", "..", "..", "models", "smarthealth-tree.json"), model.Options{})
	require.NoError(t, err)
	svc, err := predictor.New(symptom.Default(), diagnosis.Default(), clf)
	require.NoError(t, err)
	return svc
}

func newTestRouter(t *testing.T, svc *predictor.Service, db health.Checker, opts Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	checks := map[string]health.Checker{"database": nil}
	if db != nil {
		checks["database"] = db
	}
	return NewRouter(svc, health.New(checks), opts)
}

func do(router http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestRouterHealthz(t *testing.T) {
	router := newTestRouter(t, treeService(t), fakeDB{}, Options{})

	w := do(router, "GET", "/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestRouterReadyz(t *testing.T) {
	t.Run("db disabled", func(t *testing.T) {
		router := newTestRouter(t, treeService(t), nil, Options{})
		w := do(router, "GET", "/readyz", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"database":"disabled"`)
	})

	t.Run("db down", func(t *testing.T) {
		router := newTestRouter(t, treeService(t), fakeDB{err: errors.New("refused")}, Options{})
		w := do(router, "GET", "/readyz", "", "")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	})
}

// Ensure limitBodySize middleware allows small payloads and blocks large ones.
func TestLimitBodySize(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(limitBodySize(10))
	router.POST("/echo", func(c *gin.Context) {
		_, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too large"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	t.Run("within limit", func(t *testing.T) {
		w := do(router, "POST", "/echo", "", "12345")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	})

	t.Run("over limit", func(t *testing.T) {
		w := do(router, "POST", "/echo", "", "01234567890")
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", w.Code)
		}
	})
}

func TestAPIPredict(t *testing.T) {
	router := newTestRouter(t, treeService(t), nil, Options{})

	w := do(router, "POST", "/api/predict", "application/json", `{
		"patient_id": "p-1",
		"answers": {"chest_pain": "present", "fever": "absent", "Dizziness": true, "toothache": "yes"}
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp predictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Heart Disease", resp.Diagnosis)
	assert.Equal(t, 4, resp.Index)
	require.Len(t, resp.Vector, 26)
	assert.Equal(t, float32(1), resp.Vector[9])
	assert.Equal(t, float32(1), resp.Vector[25])
	assert.NotEmpty(t, resp.ID)
	assert.NotEmpty(t, resp.Disclaimer)
}

func TestAPIPredictEmptyAnswers(t *testing.T) {
	router := newTestRouter(t, treeService(t), nil, Options{})

	w := do(router, "POST", "/api/predict", "application/json", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"diagnosis":"Hypertension"`)
}

func TestDiagnosticsValidation(t *testing.T) {
	router := newTestRouter(t, treeService(t), nil, Options{})

	w := do(router, "POST", "/api/predict", "application/json", `{
		"patient_id": "",
		"answers": {"fever": "maybe", "cough": 2, "wheezing": ["yes"]}
	}`)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for validation failure, got %d", w.Code)
	}
	body := strings.ToLower(w.Body.String())
	if !strings.Contains(body, "validation_failed") || !strings.Contains(body, "answers.fever") {
		t.Fatalf("expected validation error response, got %s", w.Body.String())
	}
	assert.Contains(t, body, "answers.cough")
	assert.Contains(t, body, "answers.wheezing")
}

func TestAPIPredictDuplicateNormalizedKeys(t *testing.T) {
	router := newTestRouter(t, treeService(t), nil, Options{})

	for i := 0; i < 5; i++ {
		w := do(router, "POST", "/api/predict", "application/json",
			`{"answers":{"Chest Pain":true,"chest_pain":false}}`)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), `"field":"answers.chest_pain"`)
		assert.Contains(t, w.Body.String(), "duplicate answer for chest_pain")
	}
}

func TestAPIPredictUnprintablePatientID(t *testing.T) {
	router := newTestRouter(t, treeService(t), nil, Options{})

	w := do(router, "POST", "/api/report", "application/json", `{"patient_id":"张伟","answers":{}}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"patient_id"`)

	w = do(router, "POST", "/api/report", "application/json", `{"patient_id":"José","answers":{}}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIPredictMalformed(t *testing.T) {
	router := newTestRouter(t, treeService(t), nil, Options{})

	w := do(router, "POST", "/api/predict", "application/json", `{"answers":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, "POST", "/api/predict", "application/json",
		`{"patient_id":"`+strings.Repeat("x", 129)+`"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAPIPredictTooLarge(t *testing.T) {
	router := newTestRouter(t, treeService(t), nil, Options{MaxBodyBytes: 32})

	w := do(router, "POST", "/api/predict", "application/json",
		`{"answers":{"chest_pain":"present","fever":"present"}}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAPIPredictClassifierFailureIsSoft(t *testing.T) {
	clf := &flakyClassifier{err: errors.New("model file corrupted")}
	svc, err := predictor.New(symptom.Default(), diagnosis.Default(), clf)
	require.NoError(t, err)
	router := newTestRouter(t, svc, nil, Options{})

	w := do(router, "POST", "/api/predict", "application/json", `{"answers":{"fever":"present"}}`)
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "Prediction failed: model file corrupted")

	clf.err = nil
	w = do(router, "POST", "/api/predict", "application/json", `{"answers":{"fever":"present"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"diagnosis":"Diabetes"`)
}

func TestAPIReport(t *testing.T) {
	router := newTestRouter(t, treeService(t), nil, Options{})

	w := do(router, "POST", "/api/report", "application/json", `{"patient_id":"p-9","answers":{"wheezing":"yes"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "smarthealth-report-")
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF-"))
}

func TestSymptomsAndLabels(t *testing.T) {
	router := newTestRouter(t, treeService(t), nil, Options{})

	w := do(router, "GET", "/api/symptoms", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var symptoms struct {
		Symptoms []symptom.Symptom `json:"symptoms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &symptoms))
	require.Len(t, symptoms.Symptoms, 26)
	assert.Equal(t, "irregular_heartbeat", symptoms.Symptoms[0].ID)

	w = do(router, "GET", "/api/labels", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"label":"Liver Disease"`)
}

func TestStats(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		router := newTestRouter(t, treeService(t), nil, Options{})
		w := do(router, "GET", "/api/stats", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("enabled", func(t *testing.T) {
		router := newTestRouter(t, treeService(t), nil, Options{Tallies: fakeTallies{
			tallies: []store.Tally{{Diagnosis: "Asthma", Count: 3, UpdatedAt: time.Now()}},
		}})
		w := do(router, "GET", "/api/stats", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"diagnosis":"Asthma"`)
	})

	t.Run("query error", func(t *testing.T) {
		router := newTestRouter(t, treeService(t), nil, Options{Tallies: fakeTallies{err: errors.New("boom")}})
		w := do(router, "GET", "/api/stats", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestFormRoundTrip(t *testing.T) {
	router := newTestRouter(t, treeService(t), nil, Options{})

	w := do(router, "GET", "/", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="chest_pain"`)
	assert.Contains(t, w.Body.String(), "Cardiovascular")

	form := url.Values{"patient_id": {"p-7"}, "jaundice": {"Yes"}, "fever": {"No"}}
	w = do(router, "POST", "/predict", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Predicted Diagnosis: <strong>Liver Disease</strong>")
	assert.Contains(t, w.Body.String(), `value="p-7"`)
}

func TestFormReport(t *testing.T) {
	router := newTestRouter(t, treeService(t), nil, Options{})

	form := url.Values{"patient_id": {"p-7"}, "loss_of_taste": {"Yes"}}
	w := do(router, "POST", "/report", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
}

func TestFormInvalidAnswer(t *testing.T) {
	router := newTestRouter(t, treeService(t), nil, Options{})

	form := url.Values{"fever": {"sometimes"}}
	w := do(router, "POST", "/predict", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Fever")
}

func TestFormClassifierFailureIsSoft(t *testing.T) {
	svc, err := predictor.New(symptom.Default(), diagnosis.Default(), &flakyClassifier{err: errors.New("unavailable")})
	require.NoError(t, err)
	router := newTestRouter(t, svc, nil, Options{})

	w := do(router, "POST", "/predict", "application/x-www-form-urlencoded", "fever=Yes")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Prediction failed: unavailable")
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, treeService(t), nil, Options{})
	do(router, "POST", "/api/predict", "application/json", `{}`)

	w := do(router, "GET", "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "smarthealth_predictions_total")
}
