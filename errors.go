package linkhub

import (
	"errors"
	"fmt"
)

// Stage identifies which pipeline step produced a failure.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StagePrompt Stage = "prompt"
	StageLLM    Stage = "llm"
	StageParse  Stage = "parse"
)

// StageError wraps the first failure of an analysis with the stage that
// produced it. The orchestrator never recovers from one; the caller gets the
// whole analysis as failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("analysis failed at %s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Fetch failures.
var (
	ErrFetchTimeout = errors.New("page fetch timed out")
	ErrEmptyBody    = errors.New("page body is empty")
)

// HTTPStatusError reports a non-2xx response from the fetched site.
type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
}

// Parse failures.
var (
	ErrNoJSON      = errors.New("no JSON object in model output")
	ErrInvalidJSON = errors.New("invalid JSON in model output")
	ErrSchema      = errors.New("model output does not match the expected schema")
)
