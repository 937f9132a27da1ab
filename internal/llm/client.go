package llm

import "context"

// Client is the interface every provider implements.
type Client interface {
	// Chat sends one completion request and returns the full response.
	// Retry policy, if any, belongs to the caller.
	Chat(ctx context.Context, req *Request) (*Response, error)

	// Ping checks if the provider is reachable with the configured credentials.
	Ping(ctx context.Context) error
}
