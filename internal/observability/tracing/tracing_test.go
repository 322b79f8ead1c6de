package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/datalake/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestSafeAttributes(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/clients"),
		attribute.String("password", "secret"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeError(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(errors.New("disk full")), "disk full")
	assert.EqualError(t, SafeError(errors.New("invalid clave for user")), "redacted error")
}

func TestNewProviderDisabled(t *testing.T) {
	provider, err := NewProvider(nil, Config{Enabled: false}, nil)
	require.NoError(t, err)
	_, ok := provider.(noop.TracerProvider)
	assert.True(t, ok)
}

func TestGinMiddlewarePassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(GinMiddleware())
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnnotateResultWithoutSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		AnnotateResult(context.Background(), "success", "01HRUN", 0)
	})
}

func TestWithRequestBaggage(t *testing.T) {
	ctx := withRequestBaggage(context.Background())
	assert.Equal(t, 0, baggage.FromContext(ctx).Len())

	ctx = withRequestBaggage(obscontext.WithRequestID(context.Background(), "req-1"))
	assert.Equal(t, "req-1", baggage.FromContext(ctx).Member("request_id").Value())
}
