// Package observe produces visual samples of the current panorama facing a
// given heading. The explorer captures one observation per candidate link
// before consulting the vision service.
package observe

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/panoroam/geo"
)

// Request identifies the view to capture.
type Request struct {
	NodeID   string
	Position geo.LatLng
	Heading  float64
}

// Observation is one captured view. Ref is an opaque handle that step
// records carry instead of the image bytes.
type Observation struct {
	Ref        string    `json:"ref"`
	NodeID     string    `json:"node_id"`
	Heading    float64   `json:"heading"`
	MIMEType   string    `json:"mime_type,omitempty"`
	Image      []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
}

// HasImage reports whether the observation carries image bytes.
func (o Observation) HasImage() bool { return len(o.Image) > 0 }

// Capturer captures observations.
type Capturer interface {
	Capture(ctx context.Context, req Request) (Observation, error)
}

// CapturerFunc adapts a function to Capturer.
type CapturerFunc func(ctx context.Context, req Request) (Observation, error)

// Capture implements Capturer.
func (f CapturerFunc) Capture(ctx context.Context, req Request) (Observation, error) {
	return f(ctx, req)
}

// Noop returns image-less observations. The vision service then decides from
// link headings and descriptions alone.
type Noop struct{}

// Capture implements Capturer.
func (Noop) Capture(_ context.Context, req Request) (Observation, error) {
	return Observation{
		Ref:        fmt.Sprintf("noop:%s@%03.0f", req.NodeID, geo.NormalizeHeading(req.Heading)),
		NodeID:     req.NodeID,
		Heading:    req.Heading,
		CapturedAt: time.Now(),
	}, nil
}
