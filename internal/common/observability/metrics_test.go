package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap/zaptest"
)

func TestObservability(t *testing.T) {
	obs := New("search-courier-test", zaptest.NewLogger(t))
	defer obs.Shutdown()

	ctx, span := obs.StartSpan(context.Background(), "courier.search", attribute.String("route", "merged"))
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.IsRecording())
	span.End()

	assert.NotPanics(t, func() {
		obs.RecordSearch(ctx, "merged", "success", 12*time.Millisecond)
	})
}

func TestObservability_NilReceiver(t *testing.T) {
	var obs *Observability

	ctx, span := obs.StartSpan(context.Background(), "courier.search")
	assert.NotNil(t, ctx)
	assert.False(t, span.IsRecording())

	assert.NotPanics(t, func() {
		obs.RecordSearch(ctx, "primary", "success", time.Millisecond)
		obs.Shutdown()
	})
}
