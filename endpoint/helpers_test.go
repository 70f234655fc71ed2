package endpoint

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ariebrainware/lis-backend/admission"
	"github.com/ariebrainware/lis-backend/config"
	"github.com/ariebrainware/lis-backend/middleware"
	"github.com/ariebrainware/lis-backend/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// march2024 is the clock every endpoint test runs on unless it says otherwise.
var march2024 = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	gen    *admission.Generator
}

type apiResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// setupEndpointTestDB connects to a fresh in-memory database with every model migrated.
func setupEndpointTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	t.Setenv("APPENV", "test")
	config.ResetConfigForTest()
	t.Cleanup(config.ResetConfigForTest)

	db, err := config.ConnectDatabase()
	require.NoError(t, err)
	require.NoError(t, model.Migrate(db))

	t.Cleanup(func() {
		for _, m := range model.AllModels {
			_ = db.Migrator().DropTable(m)
		}
	})
	return db
}

func setupEndpointTestWith(t *testing.T, seq admission.Sequencer, now time.Time, maxAttempts int) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupEndpointTestDB(t)
	gen := admission.NewGenerator(seq, admission.WithClock(func() time.Time { return now }))

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.DatabaseMiddleware(db))
	opts := RouteOptions{Generator: gen, MaxAttempts: maxAttempts}
	RegisterRoutes(r, opts)
	RegisterRoutes(r.Group("/api"), opts)

	return testEnv{router: r, db: db, gen: gen}
}

func setupEndpointTest(t *testing.T) testEnv {
	t.Helper()
	return setupEndpointTestWith(t, admission.CounterSequencer{}, march2024, 3)
}

func (e testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func decodeData(t *testing.T, resp apiResponse, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, dest))
}

func patientPayload(document string) map[string]interface{} {
	return map[string]interface{}{
		"document":   document,
		"first_name": "Ana",
		"last_name":  "Gomez",
		"address":    "Calle 10 # 20-30",
		"phone":      "3001234567",
	}
}

func (e testEnv) createPatient(t *testing.T, document string) model.Patient {
	t.Helper()
	w, resp := e.do(t, http.MethodPost, "/patients", patientPayload(document))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p model.Patient
	decodeData(t, resp, &p)
	return p
}

func (e testEnv) createSpecialist(t *testing.T, code, title string) model.LabSpecialistResponse {
	t.Helper()
	w, resp := e.do(t, http.MethodPost, "/specialists", map[string]interface{}{
		"internal_code": code,
		"name":          "Laura Perez",
		"title":         title,
		"phone":         "3109876543",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var s model.LabSpecialistResponse
	decodeData(t, resp, &s)
	return s
}

func resultPayload(patientID, specialistID uint) map[string]interface{} {
	return map[string]interface{}{
		"patient":           patientID,
		"specialist":        specialistID,
		"total_cholesterol": 190.5,
		"hdl_cholesterol":   55,
		"ldl_cholesterol":   110.2,
		"triglycerides":     140,
	}
}

func (e testEnv) createResult(t *testing.T, patientID, specialistID uint) model.LabResult {
	t.Helper()
	w, resp := e.do(t, http.MethodPost, "/results", resultPayload(patientID, specialistID))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var r model.LabResult
	decodeData(t, resp, &r)
	return r
}
