package vision

import (
	"fmt"
	"strings"
)

const promptHeader = `You are steering a street-level explorer through panoramic imagery.
Goal: cover as much new ground as possible. Prefer unvisited directions, open
roads and intersections over dead ends, and avoid going back where you came from.`

const promptFooter = `Reply with a single JSON object and nothing else:
{"index": <candidate number>, "rationale": "<one short sentence>"}`

// BuildPrompt renders the text part of the request. Candidate images, when
// present, are attached in candidate order and referenced by number.
func BuildPrompt(req Request) (string, []Image) {
	var b strings.Builder
	var images []Image

	b.WriteString(promptHeader)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Current node: %s at %s\n", req.CurrentID, req.Position)
	fmt.Fprintf(&b, "Coverage: %d nodes visited, %d known unvisited, %d cells, %.0f m travelled\n",
		req.Coverage.Visited, req.Coverage.Frontier, req.Coverage.Cells, req.Coverage.DistanceMeters)
	if len(req.RecentHistory) > 0 {
		fmt.Fprintf(&b, "Recent path (oldest first): %s\n", strings.Join(req.RecentHistory, " -> "))
	}

	b.WriteString("\nCandidates:\n")
	for i, c := range req.Candidates {
		status := "unvisited"
		if c.Visited {
			status = fmt.Sprintf("visited %d times", c.VisitCount)
		}
		fmt.Fprintf(&b, "[%d] heading %.0f°, %s", i, c.Heading, status)
		if c.Description != "" {
			fmt.Fprintf(&b, ", %s", c.Description)
		}
		if c.Observation.HasImage() {
			images = append(images, Image{MIMEType: c.Observation.MIMEType, Data: c.Observation.Image})
			fmt.Fprintf(&b, " (image %d)", len(images))
		}
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(promptFooter)
	return b.String(), images
}
