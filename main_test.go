package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ariebrainware/lis-backend/admission"
	"github.com/ariebrainware/lis-backend/config"
	"github.com/ariebrainware/lis-backend/model"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T, token string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("APPENV", "test")
	t.Setenv("APITOKEN", token)
	config.ResetConfigForTest()
	config.SetRedisClientForTest(nil)
	t.Cleanup(config.ResetConfigForTest)

	cfg := config.LoadConfig()
	db, err := config.ConnectDatabase()
	require.NoError(t, err)
	require.NoError(t, model.Migrate(db))

	gen, err := newGenerator(cfg, nil)
	require.NoError(t, err)
	return newRouter(cfg, db, gen)
}

func serve(r *gin.Engine, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	r := setupRouter(t, "")

	w := serve(r, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Welcome to lis-backend!")

	w = serve(r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sequencer":"counter"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestRouter_AdmitsPatientUnderBothPrefixes(t *testing.T) {
	r := setupRouter(t, "")
	body, _ := json.Marshal(map[string]string{
		"document": "1", "first_name": "Ana", "last_name": "Gomez", "address": "A", "phone": "1",
	})
	prefix := "ADM" + time.Now().UTC().Format("200601")

	var codes []string
	for _, path := range []string{"/patients", "/api/patients/"} {
		w := serve(r, http.MethodPost, path, "", body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var resp struct {
			Data model.Patient `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		codes = append(codes, resp.Data.AdmissionCode)
	}
	assert.Equal(t, []string{prefix + "0001", prefix + "0002"}, codes)
}

func TestRouter_APIToken(t *testing.T) {
	r := setupRouter(t, "s3cret")

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/patients", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/specialists", "wrong", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/results", "s3cret", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/healthz", "", nil).Code, "health check is public")
}

func TestNewGenerator(t *testing.T) {
	gen, err := newGenerator(&config.Config{AdmissionSequencer: "count", AdmissionTZ: "UTC"}, nil)
	require.NoError(t, err)
	assert.Equal(t, admission.KindCount, gen.SequencerName())

	_, err = newGenerator(&config.Config{AdmissionSequencer: "redis", AdmissionTZ: "UTC"}, nil)
	assert.Error(t, err, "redis sequencer without a client")

	_, err = newGenerator(&config.Config{AdmissionSequencer: "counter", AdmissionTZ: "Nowhere/Land"}, nil)
	assert.Error(t, err)

	_, err = newGenerator(&config.Config{AdmissionSequencer: "uuid", AdmissionTZ: "UTC"}, nil)
	assert.Error(t, err)
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
	assert.True(t, names["next-code"])
	assert.True(t, names["ratelimit-reset"])
}

func TestMigrateCommand(t *testing.T) {
	t.Setenv("APPENV", "test")
	config.ResetConfigForTest()
	t.Cleanup(config.ResetConfigForTest)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate"})
	assert.NoError(t, cmd.Execute())
}

func TestRateLimitResetCommand(t *testing.T) {
	t.Setenv("APPENV", "test")
	config.ResetConfigForTest()
	t.Cleanup(config.ResetConfigForTest)

	config.SetRedisClientForTest(nil)
	cmd := newRootCmd()
	cmd.SetArgs([]string{"ratelimit-reset", "--ip", "10.0.0.7", "--route", "/patients"})
	assert.Error(t, cmd.Execute(), "redis is required")

	rdb, mock := redismock.NewClientMock()
	config.SetRedisClientForTest(rdb)
	t.Cleanup(func() {
		config.SetRedisClientForTest(nil)
		_ = rdb.Close()
	})
	mock.ExpectDel("ratelimit:/patients:10.0.0.7").SetVal(1)

	cmd = newRootCmd()
	cmd.SetArgs([]string{"ratelimit-reset", "--ip", "10.0.0.7", "--route", "/patients"})
	require.NoError(t, cmd.Execute())
	assert.NoError(t, mock.ExpectationsWereMet())

	cmd = newRootCmd()
	cmd.SetArgs([]string{"ratelimit-reset", "--ip", "10.0.0.7"})
	assert.Error(t, cmd.Execute(), "route flag is required")
}
