package vision

import (
	"encoding/json"
	"strings"

	"github.com/BaSui01/panoroam/types"
)

// Choice is the parsed model reply.
type Choice struct {
	Index     int
	Rationale string
}

type replyDoc struct {
	Index     *int   `json:"index"`
	Choice    *int   `json:"choice"`
	Rationale string `json:"rationale"`
	Reason    string `json:"reason"`
}

// ExtractJSON recovers a JSON object from a model reply: markdown fences are
// stripped, and if the remainder still is not valid JSON the outermost
// brace-delimited substring is used.
func ExtractJSON(reply string) (string, bool) {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			// drop the language tag line
			s = s[nl+1:]
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	if json.Valid([]byte(s)) {
		return s, true
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	s = s[start : end+1]
	return s, json.Valid([]byte(s))
}

// ParseReply decodes a model reply. A reply without an index yields -1, which
// callers treat as an invalid selection rather than a malformed reply.
func ParseReply(reply string) (Choice, error) {
	raw, ok := ExtractJSON(reply)
	if !ok {
		return Choice{}, types.NewError(types.ErrMalformedVisionReply, "no JSON object in reply")
	}
	var doc replyDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Choice{}, types.NewError(types.ErrMalformedVisionReply, "reply is not an object").WithCause(err)
	}
	c := Choice{Index: -1, Rationale: strings.TrimSpace(doc.Rationale)}
	if c.Rationale == "" {
		c.Rationale = strings.TrimSpace(doc.Reason)
	}
	switch {
	case doc.Index != nil:
		c.Index = *doc.Index
	case doc.Choice != nil:
		c.Index = *doc.Choice
	}
	return c, nil
}
