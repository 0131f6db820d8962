package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerStoresScopedLoggerOnContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	var sawScoped bool
	handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scoped := FromRequest(r, zap.NewNop())
		_, sawScoped = FromContext(r.Context())
		scoped.Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants", nil))

	require.True(t, sawScoped)

	served := logs.FilterMessage("http request served").All()
	require.Len(t, served, 1)
	fields := served[0].ContextMap()
	require.Equal(t, "GET", fields["method"])
	require.Equal(t, "/tenants", fields["path"])
	require.EqualValues(t, http.StatusTeapot, fields["status"])

	inner := logs.FilterMessage("inside handler").All()
	require.Len(t, inner, 1)
	require.Equal(t, "/tenants", inner[0].ContextMap()["path"])
}

func TestFromRequestFallsBackWithoutMiddleware(t *testing.T) {
	fallback := zap.NewNop()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	require.Same(t, fallback, FromRequest(r, fallback))
}
