package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	err error
}

func (f *fakeChecker) HealthCheck(ctx context.Context) error { return f.err }

func doHealth(t *testing.T, handler *HealthHandler) map[string]interface{} {
	t.Helper()
	router := gin.New()
	router.GET("/health", handler.Health)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealth_AllHealthy(t *testing.T) {
	resp := doHealth(t, NewHealthHandler(&fakeChecker{}, &fakeChecker{}))

	assert.Equal(t, "healthy", resp["status"])
	checks := resp["checks"].(map[string]interface{})
	assert.Equal(t, "healthy", checks["database"])
	assert.Equal(t, "healthy", checks["redis"])
}

func TestHealth_DegradedDependency(t *testing.T) {
	resp := doHealth(t, NewHealthHandler(&fakeChecker{}, &fakeChecker{err: errors.New("connection refused")}))

	assert.Equal(t, "degraded", resp["status"])
	checks := resp["checks"].(map[string]interface{})
	assert.Contains(t, checks["redis"], "unhealthy")
}

func TestHealth_DisabledDependency(t *testing.T) {
	resp := doHealth(t, NewHealthHandler(&fakeChecker{}, nil))

	assert.Equal(t, "healthy", resp["status"])
	checks := resp["checks"].(map[string]interface{})
	assert.Equal(t, "disabled", checks["redis"])
}
