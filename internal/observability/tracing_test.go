package observability

import (
	"context"
	"errors"
	"testing"

	"giftpool/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := Tracer
	Tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)).Tracer("test")
	t.Cleanup(func() { Tracer = prev })
	return rec
}

func TestSpan_Finish(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus codes.Code
		wantEvent  string
	}{
		{"success", nil, codes.Unset, ""},
		{"rejected contribution", models.NewValidationError("amount exceeds remaining goal"), codes.Unset, "rejected"},
		{"forbidden", models.NewForbiddenError("not yours"), codes.Unset, "rejected"},
		{"internal", models.NewInternalError(errors.New("db down")), codes.Error, ""},
		{"plain error", errors.New("boom"), codes.Error, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := recordSpans(t)

			func() (err error) {
				span, _ := NewSpan(context.Background(), "contribution.add", attribute.String("gift.id", "g1"))
				defer span.Finish(&err)
				return tt.err
			}()

			spans := rec.Ended()
			require.Len(t, spans, 1)
			s := spans[0]
			assert.Equal(t, "contribution.add", s.Name())
			assert.Contains(t, s.Attributes(), attribute.String("gift.id", "g1"))
			assert.Equal(t, tt.wantStatus, s.Status().Code)

			if tt.wantEvent == "" {
				for _, ev := range s.Events() {
					assert.NotEqual(t, "rejected", ev.Name)
				}
				return
			}
			require.NotEmpty(t, s.Events())
			assert.Equal(t, tt.wantEvent, s.Events()[0].Name)
		})
	}
}

func TestInitTracing(t *testing.T) {
	prev := Tracer
	t.Cleanup(func() { Tracer = prev })

	shutdown, err := InitTracing(TracingConfig{ServiceName: "giftpool-test"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, err = InitTracing(TracingConfig{ServiceName: "giftpool-test", Enabled: true, Exporter: "zipkin"})
	assert.ErrorContains(t, err, "zipkin")
}

func TestNewSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), newSampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), newSampler(0).Description())
	assert.Contains(t, newSampler(0.1).Description(), "ParentBased")
}
