// Package fetch acquires MIDI files and instrument patches by location.
package fetch

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a location does not exist.
var ErrNotFound = errors.New("fetch: not found")

// Fetcher retrieves the bytes behind a location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Func adapts a function to Fetcher.
type Func func(ctx context.Context, location string) ([]byte, error)

func (f Func) Fetch(ctx context.Context, location string) ([]byte, error) {
	return f(ctx, location)
}

// StatusError is a non-success HTTP response.
type StatusError struct {
	Location string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Status code: %d.", e.Code)
}

// Is lets a 404 match ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == 404
}
