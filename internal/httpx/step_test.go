package httpx

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/panoroam/internal/ctxkeys"
)

func TestTagRequest(t *testing.T) {
	ctx := ctxkeys.WithStepIndex(ctxkeys.WithRunID(context.Background(), "run-9"), 3)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)

	TagRequest(req)
	assert.Equal(t, "run-9", req.Header.Get(HeaderRunID))
	assert.Equal(t, "3", req.Header.Get(HeaderStepIndex))
	assert.Len(t, StepFields(ctx), 2)
}

func TestTagRequest_OutsideStep(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)

	TagRequest(req)
	assert.Empty(t, req.Header.Get(HeaderRunID))
	assert.Empty(t, req.Header.Get(HeaderStepIndex))
	assert.Empty(t, StepFields(req.Context()))
}
