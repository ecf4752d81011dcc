package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCompletionUnavailable wraps any failure of the text-completion provider.
	ErrCompletionUnavailable = errors.New("completion unavailable")

	// ErrEmbeddingUnavailable wraps any failure of the embedding provider.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrFatalAPI marks provider errors that retrying will not fix
	// (exhausted credit, quota, bad credentials).
	ErrFatalAPI = errors.New("fatal provider error")
)

var fatalMarkers = []string{
	"credit",
	"rate limit",
	"quota",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

// isFatalAPIError reports whether err looks like a non-retryable provider failure.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// wrapFatalError tags fatal provider errors with ErrFatalAPI and passes others through.
func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}

// IsFatal reports whether err was classified as a fatal provider error.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalAPI)
}
