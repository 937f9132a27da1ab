package llm

import "fmt"

// ConfigurationError indicates a provider cannot be used because required
// credentials or endpoints are absent. Fatal to the current call, not to
// the session.
type ConfigurationError struct {
	Provider string
	Reason   string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("provider %s not configured: %s", e.Provider, e.Reason)
}

// ProviderError indicates the remote model call failed or returned no
// usable choice. Surfaced to the caller; the session stays active so a
// retry is possible.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}
