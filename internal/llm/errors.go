package llm

import (
	"errors"
	"fmt"
)

// Failure classes reported by providers; test them with errors.Is. The
// provider's own error stays in the chain for errors.As.
var (
	ErrRateLimit           = errors.New("LLM rate limited")
	ErrProviderUnavailable = errors.New("LLM provider unavailable")
	ErrInvalidResponse     = errors.New("invalid LLM response")
)

// providerError classifies an SDK error.
func providerError(err error, rateLimited bool) error {
	if rateLimited {
		return fmt.Errorf("%w: %w", ErrRateLimit, err)
	}
	return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
}

// invalidResponse formats a message under ErrInvalidResponse.
func invalidResponse(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidResponse}, args...)...)
}
