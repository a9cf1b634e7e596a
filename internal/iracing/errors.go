package iracing

import "errors"

var (
	// ErrAuthFailure means login/refresh was exhausted; the current
	// ingestion pass for the category aborts.
	ErrAuthFailure = errors.New("iracing: authentication failed")

	// ErrUpstreamUnavailable means a network or 5xx error survived all
	// retry attempts.
	ErrUpstreamUnavailable = errors.New("iracing: upstream unavailable")

	// ErrMissingLink means the category stats endpoint returned no CSV
	// link; handled the same as ErrUpstreamUnavailable.
	ErrMissingLink = errors.New("iracing: missing CSV link in response")
)
