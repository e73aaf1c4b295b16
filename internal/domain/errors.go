package domain

import "errors"

var (
	// ErrNotFound is returned when a single-entity lookup matches no row
	ErrNotFound = errors.New("not found")

	// ErrConfiguration marks a template/engine mismatch, e.g. a chart template
	// without a "table" data source or a metric keyword with no expression.
	ErrConfiguration = errors.New("configuration error")
)
