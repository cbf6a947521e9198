package racebot

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelClosed indicates the consumer of a seed roll's update channel
	// went away. Nothing is waiting for the seed anymore.
	ErrChannelClosed = errors.New("nothing is waiting for this seed anymore")

	// ErrPatchHeader indicates the web API did not respond with the expected
	// patch file header.
	ErrPatchHeader = errors.New("seed API did not respond with expected patch file header")

	// ErrPatchPath indicates the generator did not report where it wrote the
	// patch file.
	ErrPatchPath = errors.New("generator did not report patch location")

	// ErrSpoilerLogPath indicates the generator did not report where it wrote
	// the spoiler log.
	ErrSpoilerLogPath = errors.New("generator did not report spoiler log location")

	// ErrRandomSettingsWeb indicates an attempt to roll a random settings
	// seed on web for a branch that has no hidden-settings web variant.
	ErrRandomSettingsWeb = errors.New("this branch is not available with hidden settings on web")

	// ErrSeedPageURL indicates the third-party generator redirected to an
	// unexpected URL.
	ErrSeedPageURL = errors.New("third-party generator returned unexpected URL")

	// ErrSeedPageHash indicates fewer than 5 hash icons were found on the
	// third-party seed page.
	ErrSeedPageHash = errors.New("did not find 5 hash icons on the seed page")

	// ErrShuttingDown indicates a clean shutdown is in progress and no new
	// race rooms are being accepted.
	ErrShuttingDown = errors.New("shutting down, not handling new race rooms")
)

// RetryError is returned when a roll keeps failing past the bounded attempt
// count and the deadline. NumRetries is surfaced to race participants
// verbatim; LastError links the last failed attempt for diagnostics.
type RetryError struct {
	NumRetries int
	LastError  string
}

func (e *RetryError) Error() string {
	if e.LastError == "" {
		return fmt.Sprintf("max retries exceeded (%d attempts)", e.NumRetries)
	}
	return fmt.Sprintf("max retries exceeded (%d attempts), last error: %s", e.NumRetries, e.LastError)
}

// SeedStatusError is returned when the seed status endpoint reports a value
// outside the documented set.
type SeedStatusError struct {
	Status int
}

func (e *SeedStatusError) Error() string {
	return fmt.Sprintf("seed status endpoint returned unknown value %d", e.Status)
}

// HTTPError carries a non-2xx response from the seed web API, with as much
// of the body as was read for diagnostics.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}
