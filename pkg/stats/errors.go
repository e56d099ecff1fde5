// Package stats holds the statistical collaborators used by the workflow
// steps: metrics, assumption tests, models and column transformations.
package stats

import "errors"

var (
	// ErrInvalidData marks a data-validity failure, e.g. a log transform on
	// non-positive values. Callers surface it to the user instead of aborting.
	ErrInvalidData = errors.New("invalid data")

	ErrUnknownMetric         = errors.New("unknown metric")
	ErrUnknownModel          = errors.New("unknown model")
	ErrUnknownTransformation = errors.New("unknown transformation")
)
