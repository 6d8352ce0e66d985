package httpx

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/panoroam/internal/ctxkeys"
)

// Headers carrying the exploration step an outbound call belongs to.
const (
	HeaderRunID     = "X-Panoroam-Run-ID"
	HeaderStepIndex = "X-Panoroam-Step"
)

// TagRequest copies the run id and step index from the request context into
// headers. Requests made outside a step are left untouched.
func TagRequest(req *http.Request) {
	ctx := req.Context()
	if id, ok := ctxkeys.RunID(ctx); ok {
		req.Header.Set(HeaderRunID, id)
	}
	if n, ok := ctxkeys.StepIndex(ctx); ok {
		req.Header.Set(HeaderStepIndex, strconv.Itoa(n))
	}
}

// StepFields returns log fields for the step carried by ctx.
func StepFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id, ok := ctxkeys.RunID(ctx); ok {
		fields = append(fields, zap.String("run_id", id))
	}
	if n, ok := ctxkeys.StepIndex(ctx); ok {
		fields = append(fields, zap.Int("step", n))
	}
	return fields
}
