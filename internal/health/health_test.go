package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubDependency struct{ err error }

func (s stubDependency) Health() error { return s.err }

func TestHealthChecker(t *testing.T) {
	t.Run("依赖正常", func(t *testing.T) {
		hc := NewHealthChecker(zap.NewNop())
		hc.AddDependency("members", stubDependency{})
		hc.AddFlag("mail", true)

		rec := httptest.NewRecorder()
		hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		results := hc.CheckHealth()
		assert.Equal(t, "OK", results["members"])
		assert.Equal(t, "OK", results["mail"])
		assert.NotEmpty(t, results["timestamp"])
	})

	t.Run("依赖失败", func(t *testing.T) {
		hc := NewHealthChecker(nil)
		hc.AddDependency("members", stubDependency{err: errors.New("connection refused")})
		hc.AddFlag("mail", false)
		hc.AddDependency("ignored", nil)

		rec := httptest.NewRecorder()
		hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		rec = httptest.NewRecorder()
		hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code, "就绪失败不影响存活")

		results := hc.CheckHealth()
		assert.Equal(t, "ERROR: connection refused", results["members"])
		assert.Equal(t, "ERROR: mail not configured", results["mail"])
		_, present := results["ignored"]
		assert.False(t, present)
	})
}
