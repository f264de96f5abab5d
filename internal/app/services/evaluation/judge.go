package evaluation

import (
	"context"

	"github.com/Inscribe-Network/archive_layer/internal/app/services/redundancy"
)

// Request carries everything the scoring oracle needs to judge a candidate:
// the content itself, the similarity context derived from the full archive,
// and the evaluation rubric.
type Request struct {
	ContributionID  string                `json:"contribution_id"`
	Content         string                `json:"content"`
	CategoryHint    string                `json:"category_hint,omitempty"`
	SimilarityScore float64               `json:"similarity_score"`
	Neighbors       []redundancy.Neighbor `json:"neighbors,omitempty"`
	Rubric          string                `json:"rubric"`
}

// DefaultRubric is sent to the oracle when no rubric override is configured.
const DefaultRubric = `Judge the candidate on coherence (internal consistency and argument quality) and density (novel information per unit of text), each on a 0-10000 scale. Estimate redundancy against the provided neighbour context on the same scale. Reply with prose as you see fit, but include exactly one JSON object with the fields "coherence", "density", "redundancy_estimate" and optionally "tags".`

// Judge is the narrow boundary to the external scoring oracle. The raw
// response is free-form text; parsing and validation stay on our side so
// the oracle can be swapped for recorded fixtures in tests.
type Judge interface {
	Judge(ctx context.Context, req Request) (raw string, err error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, req Request) (string, error)

func (f JudgeFunc) Judge(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
