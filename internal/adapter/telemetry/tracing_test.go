package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestInit_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	p, err := Init(ctx, "", "test")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NoError(t, p.Shutdown(ctx))
}

func TestSpans(t *testing.T) {
	ctx, parent := StartSpan(context.Background(), "guard.check", attribute.String("tool", "Write"))
	require.NotNil(t, parent)

	_, child := StartClientSpan(ctx, "vectorstore.query")
	RecordError(child, nil)
	RecordError(child, errors.New("connection refused"))
	child.End()
	parent.End()
}
