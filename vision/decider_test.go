package vision

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/panoroam/observe"
	"github.com/BaSui01/panoroam/types"
)

type scripted struct {
	replies []string
	errs    []error
	budgets []int
	calls   int
}

func (s *scripted) Complete(_ context.Context, req CompletionRequest) (string, error) {
	i := s.calls
	s.calls++
	s.budgets = append(s.budgets, req.MaxTokens)
	var reply string
	var err error
	if i < len(s.replies) {
		reply = s.replies[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return reply, err
}

func testRequest() Request {
	return Request{
		CurrentID: "cur",
		Candidates: []Candidate{
			{NodeID: "seen", Heading: 0, Visited: true, VisitCount: 2},
			{NodeID: "new1", Heading: 90},
			{NodeID: "new2", Heading: 180},
		},
		RecentHistory: []string{"a", "cur"},
	}
}

func newTestDecider(p Provider) *Decider {
	return NewDecider(p, Config{MaxAttempts: 3, InitialMaxTokens: 600, MaxTokensCap: 2400}, nil)
}

var (
	errRate   = types.NewError(types.ErrRateLimited, "slow down").WithRetryable(true)
	errAuth   = types.NewError(types.ErrUnauthorized, "bad key")
	errTrunc  = types.NewError(types.ErrTruncatedVisionReply, "length")
	errServer = types.NewError(types.ErrUpstreamError, "502").WithRetryable(true)
)

func TestDecide_FirstAttempt(t *testing.T) {
	p := &scripted{replies: []string{`{"index": 2, "rationale": "open road"}`}}
	d := newTestDecider(p).Decide(context.Background(), testRequest())

	assert.Equal(t, 2, d.Index)
	assert.Equal(t, "open road", d.Rationale)
	assert.False(t, d.Fallback)
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, 1, p.calls)
}

func TestDecide_RecoversFencedReply(t *testing.T) {
	p := &scripted{replies: []string{"Sure!\n```json\n{\"choice\": 1, \"reason\": \"park\"}\n```"}}
	d := newTestDecider(p).Decide(context.Background(), testRequest())
	assert.Equal(t, 1, d.Index)
	assert.Equal(t, "park", d.Rationale)
	assert.False(t, d.Fallback)
}

func TestDecide_MalformedEscalatesBudget(t *testing.T) {
	p := &scripted{replies: []string{"I think the second one", `{"index": 1}`}}
	d := newTestDecider(p).Decide(context.Background(), testRequest())

	assert.Equal(t, 1, d.Index)
	assert.Equal(t, 2, d.Attempts)
	assert.Equal(t, []int{600, 1200}, p.budgets)
	assert.Equal(t, 1200, d.MaxTokens)
}

func TestDecide_TruncationCappedThenFallback(t *testing.T) {
	p := &scripted{errs: []error{errTrunc, errTrunc, errTrunc}}
	d := newTestDecider(p).Decide(context.Background(), testRequest())

	assert.True(t, d.Fallback)
	assert.Equal(t, "truncated_reply", d.FallbackCause)
	assert.Equal(t, 1, d.Index, "first unvisited candidate")
	assert.Equal(t, []int{600, 1200, 2400}, p.budgets)
}

func TestDecide_NonRetryableAbortsImmediately(t *testing.T) {
	p := &scripted{errs: []error{errAuth}}
	d := newTestDecider(p).Decide(context.Background(), testRequest())

	assert.True(t, d.Fallback)
	assert.Equal(t, "auth", d.FallbackCause)
	assert.Equal(t, 1, p.calls)
}

func TestDecide_RetryableExhausts(t *testing.T) {
	p := &scripted{errs: []error{errRate, errServer, errRate}}
	d := newTestDecider(p).Decide(context.Background(), testRequest())

	assert.True(t, d.Fallback)
	assert.Equal(t, "rate_limited", d.FallbackCause)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []int{600, 600, 600}, p.budgets, "transport failures keep the budget")
}

func TestDecide_RetryThenSuccess(t *testing.T) {
	p := &scripted{
		errs:    []error{errServer, nil},
		replies: []string{"", `{"index": 0, "rationale": "back"}`},
	}
	d := newTestDecider(p).Decide(context.Background(), testRequest())
	assert.False(t, d.Fallback)
	assert.Equal(t, 0, d.Index)
	assert.Equal(t, 2, d.Attempts)
}

func TestDecide_MissingIndexIsNotMalformed(t *testing.T) {
	p := &scripted{replies: []string{`{"rationale": "hmm"}`}}
	d := newTestDecider(p).Decide(context.Background(), testRequest())
	assert.Equal(t, -1, d.Index)
	assert.False(t, d.Fallback)
	assert.Equal(t, 1, p.calls)
}

func TestDecide_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := ProviderFunc(func(ctx context.Context, _ CompletionRequest) (string, error) {
		cancel()
		return "", ctx.Err()
	})
	d := newTestDecider(p).Decide(ctx, testRequest())
	assert.True(t, d.Fallback)
	assert.Equal(t, "cancelled", d.FallbackCause)
}

func TestDecide_Degenerate(t *testing.T) {
	d := newTestDecider(&scripted{}).Decide(context.Background(), Request{})
	assert.Equal(t, -1, d.Index)
	assert.True(t, d.Fallback)

	d = NewDecider(nil, DefaultConfig(), nil).Decide(context.Background(), testRequest())
	assert.Equal(t, "no_provider", d.FallbackCause)
	assert.Equal(t, 1, d.Index)
}

func TestDecide_AllVisitedFallsBackToFirst(t *testing.T) {
	req := testRequest()
	for i := range req.Candidates {
		req.Candidates[i].Visited = true
	}
	d := newTestDecider(&scripted{errs: []error{errAuth}}).Decide(context.Background(), req)
	assert.Equal(t, 0, d.Index)
}

func TestDecide_SendsImages(t *testing.T) {
	var got CompletionRequest
	p := ProviderFunc(func(_ context.Context, req CompletionRequest) (string, error) {
		got = req
		return `{"index":1}`, nil
	})
	req := testRequest()
	req.Candidates[1].Observation = observe.Observation{Ref: "o1", MIMEType: "image/jpeg", Image: []byte{0xff}}
	newTestDecider(p).Decide(context.Background(), req)

	require.Len(t, got.Images, 1)
	assert.Equal(t, "image/jpeg", got.Images[0].MIMEType)
	assert.Contains(t, got.Prompt, "[1] heading 90°, unvisited (image 1)")
	assert.Contains(t, got.Prompt, "[0] heading 0°, visited 2 times")
	assert.Contains(t, got.Prompt, "a -> cur")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want FailureKind
	}{
		{nil, FailureNone},
		{errRate, FailureRateLimited},
		{errServer, FailureServer},
		{types.NewError(types.ErrModelOverloaded, ""), FailureServer},
		{types.NewError(types.ErrUpstreamTimeout, ""), FailureTimeout},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), FailureTimeout},
		{types.NewError(types.ErrMalformedVisionReply, ""), FailureMalformed},
		{errTrunc, FailureTruncated},
		{errAuth, FailureAuth},
		{types.NewError(types.ErrForbidden, ""), FailureAuth},
		{types.NewError(types.ErrInvalidRequest, ""), FailureFatal},
		{types.NewError(types.ErrInternalError, "").WithRetryable(true), FailureServer},
		{errors.New("mystery"), FailureFatal},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestNextBudget(t *testing.T) {
	assert.Equal(t, 1200, NextBudget(600, FailureMalformed, 2400))
	assert.Equal(t, 2400, NextBudget(1200, FailureTruncated, 2400))
	assert.Equal(t, 2400, NextBudget(2400, FailureTruncated, 2400))
	assert.Equal(t, 2400, NextBudget(1500, FailureMalformed, 2400))
	assert.Equal(t, 600, NextBudget(600, FailureRateLimited, 2400))
	assert.Equal(t, 600, NextBudget(600, FailureAuth, 2400))
}
