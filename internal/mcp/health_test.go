package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) Health(ctx context.Context) error { return f(ctx) }

func healthy(context.Context) error   { return nil }
func unhealthy(context.Context) error { return errors.New("connection refused") }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthChecker
		wantCode   int
		wantStatus string
		wantComps  map[string]string
	}{
		{
			name:       "all healthy",
			checks:     map[string]HealthChecker{"qdrant": checkerFunc(healthy), "records": checkerFunc(healthy)},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
			wantComps:  map[string]string{"qdrant": "connected", "records": "connected"},
		},
		{
			name:       "qdrant down",
			checks:     map[string]HealthChecker{"qdrant": checkerFunc(unhealthy), "records": checkerFunc(healthy)},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantComps:  map[string]string{"qdrant": "disconnected", "records": "connected"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.checks)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantComps, resp.Components)
			assert.NotEmpty(t, resp.Timestamp)
		})
	}
}

func TestNewMux(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("rag_documents_total 1"))
	})
	mux := NewMux(Routes{
		Health:  NewHealthHandler(map[string]HealthChecker{"qdrant": checkerFunc(healthy)}),
		Metrics: metrics,
	})

	for path, want := range map[string]int{
		"/":        http.StatusOK,
		"/health":  http.StatusOK,
		"/metrics": http.StatusOK,
		"/nope":    http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "Motor Documents MCP Server")
}
