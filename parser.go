package linkhub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zombar/linkhub/models"
)

// ParseAnalysis extracts the JSON payload embedded in raw model output and
// decodes it into an AnalysisResult.
//
// Models often wrap their JSON in prose ("Sure! Here you go: {...} Thanks!"),
// so the payload is taken from the first '{' to the last '}' inclusive rather
// than treating the whole reply as a JSON document. Do not tighten this: it is
// a deliberate defense against non-conforming replies.
func ParseAnalysis(raw string) (*models.AnalysisResult, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return nil, ErrNoJSON
	}
	payload := raw[start : end+1]

	// suggestedCategory is decoded separately: the model occasionally emits a
	// quoted number or a category name there, and a bad category must not void
	// the rest of the analysis.
	var wire struct {
		Title             string          `json:"title"`
		Description       string          `json:"description"`
		Tags              []string        `json:"tags"`
		SuggestedCategory json.RawMessage `json:"suggestedCategory"`
	}
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: %v", ErrSchema, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	result := &models.AnalysisResult{
		Title:       wire.Title,
		Description: wire.Description,
		Tags:        wire.Tags,
	}
	if id, ok := decodeCategoryID(wire.SuggestedCategory); ok {
		result.SuggestedCategory = &id
	}
	return result, nil
}

// decodeCategoryID accepts a JSON number or a numeric string. Anything else
// leaves the suggestion absent; the caller validates the id against the
// catalog anyway.
func decodeCategoryID(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return id, true
		}
	}
	return 0, false
}
