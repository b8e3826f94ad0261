package chat

import (
	"context"
	"errors"
	"sync"
)

// Sender posts messages into rooms of one chat server.
type Sender interface {
	// Send posts text into room. One attempt; delivery retries are not
	// this layer's business.
	Send(ctx context.Context, room int, text string) error

	// Close logs the client out. Called once per run.
	Close(ctx context.Context) error
}

// Factory builds the Sender for one server.
type Factory func(server string) (Sender, error)

// Registry hands out one memoized Sender per chat server. Clients are
// created lazily on first use and never implicitly recreated mid-run.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	senders map[string]Sender
}

// NewRegistry returns a Registry backed by factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{factory: factory, senders: make(map[string]Sender)}
}

// For returns the Sender for server, creating it on first use.
func (r *Registry) For(server string) (Sender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.senders[server]; ok {
		return s, nil
	}
	s, err := r.factory(server)
	if err != nil {
		return nil, err
	}
	r.senders[server] = s
	return s, nil
}

// Close tears down every client created during the run.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for server, s := range r.senders {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		delete(r.senders, server)
	}
	return errors.Join(errs...)
}
