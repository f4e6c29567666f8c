package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	active int32
}

func (f *fakeSource) ActiveConnectionCount() int32 {
	return f.active
}

func TestHealthz(t *testing.T) {
	srv := NewServer(Config{Port: 0, Version: "test"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	srv := NewServer(Config{
		Port:       0,
		Version:    "1.2.3",
		MountPoint: "/srv/files",
		Source:     &fakeSource{active: 3},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "1.2.3", status.Version)
	assert.Equal(t, "/srv/files", status.MountPoint)
	assert.EqualValues(t, 3, status.ActiveConnections)
}

func TestMetricsEndpointExposed(t *testing.T) {
	srv := NewServer(Config{Port: 0})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
