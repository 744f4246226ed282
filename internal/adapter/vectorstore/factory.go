package vectorstore

import (
	"fmt"

	"dupguard/config"
	"dupguard/internal/domain"
	"dupguard/internal/port"
)

// NewBackend builds the backend selected by store.transport.
func NewBackend(cfg config.StoreConfig) (port.VectorBackend, error) {
	switch cfg.Transport {
	case "", "http":
		return NewRESTBackend(fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port), cfg.APIKey), nil
	case "grpc":
		return NewGRPCBackend(cfg.Host, cfg.Port, cfg.APIKey)
	case "memory":
		return NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("%w: unknown store transport %q", domain.ErrConfiguration, cfg.Transport)
}

// Open builds the configured backend wrapped in a retrying Client.
func Open(cfg config.StoreConfig) (*Client, error) {
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(backend, cfg), nil
}
