package cmd

import (
	"github.com/livetrack/livetrack/internal/config"
	"github.com/livetrack/livetrack/internal/core/backend"
)

// newBackendWriter builds the persistence writer from configuration.
func newBackendWriter(cfg config.BackendConfig) (*backend.Writer, error) {
	client, err := backend.NewHTTPClient(backend.ClientOptions{
		Timeout: cfg.Timeout,
		HTTP2:   cfg.HTTP2,
	})
	if err != nil {
		return nil, err
	}
	return &backend.Writer{
		CollectionURL: cfg.URL,
		Credential:    cfg.Credential,
		Columns: backend.Columns{
			Identity: cfg.IdentityColumn,
			Active:   cfg.ActiveColumn,
			Link:     cfg.LinkColumn,
		},
		OnConflict: cfg.OnConflict,
		Client:     client,
	}, nil
}
