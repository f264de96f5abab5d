package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedVerdict is returned when no usable structured block can be
// extracted from the oracle's response.
var ErrMalformedVerdict = errors.New("malformed oracle verdict")

// Verdict is the structured judgement embedded in the oracle's free-form
// response.
type Verdict struct {
	Coherence       int
	Density         int
	RedundancyGuess int
	Tags            []string
}

type rawVerdict struct {
	Coherence          *float64 `json:"coherence"`
	Density            *float64 `json:"density"`
	RedundancyEstimate *float64 `json:"redundancy_estimate"`
	Tags               []string `json:"tags"`
}

// ParseVerdict extracts the structured score block from oracle output. The
// oracle is untrusted: arbitrary prose may surround the block, so we scan
// for candidate JSON objects and accept the first one carrying every
// required field. A response with no such block is rejected, never patched
// up with invented scores.
func ParseVerdict(raw string) (Verdict, error) {
	for start := 0; start < len(raw); {
		open := strings.IndexByte(raw[start:], '{')
		if open < 0 {
			break
		}
		open += start

		end, ok := matchBrace(raw, open)
		if !ok {
			start = open + 1
			continue
		}

		var rv rawVerdict
		if err := json.Unmarshal([]byte(raw[open:end+1]), &rv); err == nil {
			if rv.Coherence != nil && rv.Density != nil && rv.RedundancyEstimate != nil {
				return Verdict{
					Coherence:       clampScore(int(*rv.Coherence)),
					Density:         clampScore(int(*rv.Density)),
					RedundancyGuess: clampScore(int(*rv.RedundancyEstimate)),
					Tags:            normalizeTags(rv.Tags),
				}, nil
			}
		}
		start = open + 1
	}
	return Verdict{}, fmt.Errorf("%w: no block with coherence, density and redundancy_estimate", ErrMalformedVerdict)
}

// matchBrace finds the closing brace balancing raw[open], honouring JSON
// string escapes.
func matchBrace(raw string, open int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 10000 {
		return 10000
	}
	return v
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		duplicate := false
		for _, seen := range out {
			if seen == t {
				duplicate = true
				break
			}
		}
		if !duplicate {
			out = append(out, t)
		}
	}
	return out
}
