package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusProvider struct {
	status    string
	rebooting bool
}

func (f fakeStatusProvider) Status() string    { return f.status }
func (f fakeStatusProvider) Rebooting() bool   { return f.rebooting }

func TestHealthz(t *testing.T) {
	r := NewRouter(fakeStatusProvider{status: "ready"}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetrics(t *testing.T) {
	r := NewRouter(fakeStatusProvider{status: "ready"}, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDebugStatus(t *testing.T) {
	r := NewRouter(fakeStatusProvider{status: "busy", rebooting: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/debug/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "busy")
	assert.Contains(t, w.Body.String(), "true")
}

func TestNewRouter_OmitsTxnRouteWhenEndpointsNil(t *testing.T) {
	r := NewRouter(fakeStatusProvider{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/txn/whatever", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
