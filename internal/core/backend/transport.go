package backend

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = 10 * time.Second

// ClientOptions configures the backend HTTP client.
type ClientOptions struct {
	Timeout time.Duration
	// HTTP2 negotiates HTTP/2 over TLS when the backend offers it.
	HTTP2 bool
}

// NewHTTPClient builds the client used by Writer.
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: timeout}, nil
	}
	transport := base.Clone()

	if opts.HTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("configure http2 transport: %w", err)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
