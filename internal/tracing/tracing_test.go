package tracing

import (
	"context"
	"errors"
	"testing"

	"resume-match-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("a"))
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "王*明", MaskPII("王小明"))
	assert.Equal(t, "ja************om", MaskPII("jane@example.com"))
}

func TestSafeAttributeValue(t *testing.T) {
	assert.Equal(t, "ja************om", SafeAttributeValue("resume.email", "jane@example.com", 100))
	assert.Equal(t, "abc", SafeAttributeValue("job.title", "abc", 10))
	assert.Equal(t, "ab...yz", SafeAttributeValue("job.title", "abcdefghijklmnopqrstuvwxyz", 7))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
	assert.Equal(t, "简历...内容", TruncateString("简历里有很多很多内容", 7))
}

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	_, span := tp.Tracer("test").Start(context.Background(), "op")

	RecordError(span, errors.New("boom"), ErrorTypeRedis, attribute.String("redis.key", "k"))
	RecordError(span, nil, ErrorTypeRedis)
	RecordError(nil, errors.New("ignored"), ErrorTypeRedis)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("error.type", "redis"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("redis.key", "k"))
}

func TestRecordHTTPErrorCategory(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	for status, category := range map[int]string{0: "network_error", 404: "client_error", 503: "server_error"} {
		_, span := tp.Tracer("test").Start(context.Background(), "fetch")
		RecordHTTPError(span, errors.New("failed"), status)
		span.End()
		ended := recorder.Ended()
		assert.Contains(t, ended[len(ended)-1].Attributes(), attribute.String("error.category", category))
	}
}

func TestInitProviderDisabled(t *testing.T) {
	shutdown, err := InitProvider(context.Background(), config.TracingConfig{Enabled: false}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
