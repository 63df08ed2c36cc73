package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is returned when a bearer token could not be acquired
	ErrAuth = errors.New("authentication failed")

	// ErrFetch is returned when a query page could not be retrieved or decoded
	ErrFetch = errors.New("fetch failed")

	// ErrPageLimitExceeded is returned when a continuation chain exceeds the page ceiling or loops
	ErrPageLimitExceeded = fmt.Errorf("%w: page limit exceeded", ErrFetch)

	// ErrMalformedRecord is returned when a record lacks the metadata or nested structure expected while stripping
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUnsupportedShape is returned when a record holds a value the flattener cannot express (lists)
	ErrUnsupportedShape = errors.New("unsupported record shape")

	// ErrInvalidReference is returned when the reference table cannot be read or lacks required columns
	ErrInvalidReference = errors.New("invalid reference table")

	// ErrInvalidConfig is returned when required configuration is missing
	ErrInvalidConfig = errors.New("invalid configuration")
)
