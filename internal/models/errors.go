package models

import "errors"

var (
	// ErrInvalidPeriod is returned for a history period outside the accepted set.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrNoRows is returned when a source answered but produced nothing usable.
	ErrNoRows = errors.New("no usable rows")
)
