// Package vision asks an external multimodal model to pick one of several
// candidate directions. The model may fail, be slow or return garbage; the
// Decider owns the retry, token-budget and fallback contract and always
// returns a Decision.
package vision

import (
	"context"

	"github.com/BaSui01/panoroam/coverage"
	"github.com/BaSui01/panoroam/geo"
	"github.com/BaSui01/panoroam/observe"
)

// Candidate is one direction the explorer could take.
type Candidate struct {
	NodeID      string              `json:"node_id"`
	Heading     float64             `json:"heading"`
	Description string              `json:"description,omitempty"`
	Visited     bool                `json:"visited"`
	VisitCount  int                 `json:"visit_count"`
	Observation observe.Observation `json:"observation"`
}

// Request is the context handed to the model.
type Request struct {
	CurrentID     string         `json:"current_id"`
	Position      geo.LatLng     `json:"position"`
	Candidates    []Candidate    `json:"candidates"`
	RecentHistory []string       `json:"recent_history"`
	Coverage      coverage.Stats `json:"coverage"`
}

// Decision is the model's choice, or the fallback standing in for it.
// Index is not validated against the candidate list; callers do that.
type Decision struct {
	Index         int    `json:"index"`
	Rationale     string `json:"rationale"`
	Fallback      bool   `json:"fallback"`
	FallbackCause string `json:"fallback_cause,omitempty"`
	Attempts      int    `json:"attempts"`
	MaxTokens     int    `json:"max_tokens"`
}

// Image is an inline image attached to a completion.
type Image struct {
	MIMEType string
	Data     []byte
}

// CompletionRequest is a single multimodal prompt.
type CompletionRequest struct {
	Prompt    string
	Images    []Image
	MaxTokens int
}

// Provider is a multimodal completion endpoint. Implementations report
// failures as *types.Error so that Classify can tell them apart.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req CompletionRequest) (string, error)

// Complete implements Provider.
func (f ProviderFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}
