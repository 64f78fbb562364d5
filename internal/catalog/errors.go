package catalog

import (
	"errors"
	"fmt"
)

// ErrEmptyIndexPage signals a catalog page that yielded zero record links.
// The source system treats this as a run-level anomaly rather than a normal
// end-of-catalog, and that behavior is retained here.
var ErrEmptyIndexPage = errors.New("index page yielded no record links")

// ErrRunActive is returned when a crawl run is requested while another run
// on the same runner has not finished.
var ErrRunActive = errors.New("a crawl run is already active")

// PermanentFetchError marks a fetch that must not be retried, such as a
// resource that no longer exists.
type PermanentFetchError struct {
	URL        string
	StatusCode int
}

func (e *PermanentFetchError) Error() string {
	return fmt.Sprintf("permanent fetch failure for %s (status %d)", e.URL, e.StatusCode)
}

// TransientFetchError marks a fetch that failed after exhausting its retry
// budget. Cause holds the last underlying failure.
type TransientFetchError struct {
	URL      string
	Attempts int
	Cause    error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("fetch failed for %s after %d attempts: %v", e.URL, e.Attempts, e.Cause)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Cause
}

// ParseError marks content that was fetched but could not be recognized.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failure for %s: %s", e.URL, e.Reason)
}

// IsPermanentFetch reports whether err classifies as a permanent fetch
// failure.
func IsPermanentFetch(err error) bool {
	var pe *PermanentFetchError
	return errors.As(err, &pe)
}

// IsTransientFetch reports whether err classifies as an exhausted transient
// fetch failure.
func IsTransientFetch(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te)
}

// IsParseError reports whether err classifies as a parse failure.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
