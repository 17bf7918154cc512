package models

import (
	"errors"
	"fmt"
)

var (
	ErrLeaseUnavailable = errors.New("series lease unavailable")
	ErrNoSeries         = errors.New("canonical series is empty")
	ErrLeaseLost        = errors.New("series lease lost during run")
)

// FetchError is a failure talking to the market-data provider.
type FetchError struct {
	Status    int
	Retryable bool
	Err       error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch failed: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TimestampParseError rejects a whole snapshot whose source name has no valid timestamp token.
type TimestampParseError struct {
	Source string
	Err    error
}

func (e *TimestampParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no recording timestamp in %q: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("no recording timestamp in %q", e.Source)
}

func (e *TimestampParseError) Unwrap() error { return e.Err }

// SchemaCastError rejects one asset row (or the whole body when Asset is empty).
type SchemaCastError struct {
	Source string
	Asset  string
	Field  string
	Value  string
	Err    error
}

func (e *SchemaCastError) Error() string {
	switch {
	case e.Asset == "":
		return fmt.Sprintf("snapshot %q: malformed body: %v", e.Source, e.Err)
	case e.Field == "":
		return fmt.Sprintf("snapshot %q asset %s: %v", e.Source, e.Asset, e.Err)
	default:
		return fmt.Sprintf("snapshot %q asset %s field %s=%q: %v", e.Source, e.Asset, e.Field, e.Value, e.Err)
	}
}

func (e *SchemaCastError) Unwrap() error { return e.Err }

// MergeConflictError means the series changed between read and write.
type MergeConflictError struct {
	Location string
	Expected string
	Actual   string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict at %s: expected version %q, found %q", e.Location, e.Expected, e.Actual)
}

// PublishError is a failed Gold write; the previous table is left in place.
type PublishError struct {
	Location string
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Location, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsRetryable reports whether a failed run may be retried wholesale.
// Data errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var (
		tpe *TimestampParseError
		sce *SchemaCastError
		fe  *FetchError
		mce *MergeConflictError
	)
	switch {
	case errors.As(err, &tpe), errors.As(err, &sce):
		return false
	case errors.As(err, &fe):
		return fe.Retryable
	case errors.As(err, &mce):
		return true
	case errors.Is(err, ErrLeaseUnavailable), errors.Is(err, ErrLeaseLost):
		return true
	}
	return true
}
