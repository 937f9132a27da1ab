package llm

// Registry maps provider names to clients. Providers are a closed set:
// adding one means adding a Client implementation and registering it here,
// never branching inside the execution loop.
type Registry struct {
	clients map[string]Client
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a client under a provider name.
func (r *Registry) Register(name string, client Client) {
	r.clients[name] = client
}

// Get returns the client for a provider name, or a ConfigurationError
// if no such provider is registered.
func (r *Registry) Get(name string) (Client, error) {
	client, ok := r.clients[name]
	if !ok {
		return nil, &ConfigurationError{Provider: name, Reason: "no client registered"}
	}
	return client, nil
}

// Providers returns the registered provider names.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}
