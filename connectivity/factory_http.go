package connectivity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/coursesync/horosafe"
)

// maxHTTPResponseBody caps remote response reads (10 MiB).
const maxHTTPResponseBody int64 = 10 << 20

type httpFactoryOptions struct {
	allowPrivate bool
	client       *http.Client
}

// HTTPOption configures HTTPFactory.
type HTTPOption func(*httpFactoryOptions)

// WithAllowPrivate accepts endpoints on private and loopback addresses.
// Processing boxes usually live on the internal network.
func WithAllowPrivate() HTTPOption {
	return func(o *httpFactoryOptions) { o.allowPrivate = true }
}

// WithHTTPClient sets the base client. Its Timeout is overridden per route.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(o *httpFactoryOptions) { o.client = c }
}

// HTTPFactory creates Handlers that POST the payload to the route endpoint.
// The route config supplies timeout_ms, content_type (default
// application/json) and an optional bearer_token. Non-2xx answers become
// an ErrRemoteStatus *Error carrying the body.
//
//	router.RegisterTransport("http", connectivity.HTTPFactory(connectivity.WithAllowPrivate()))
func HTTPFactory(opts ...HTTPOption) TransportFactory {
	var o httpFactoryOptions
	for _, fn := range opts {
		fn(&o)
	}
	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		if o.allowPrivate {
			if _, err := horosafe.ValidateScheme(endpoint); err != nil {
				return nil, nil, fmt.Errorf("connectivity/http: %w", err)
			}
		} else if err := horosafe.ValidateURL(endpoint); err != nil {
			return nil, nil, fmt.Errorf("connectivity/http: %w", err)
		}

		cfg := ParseRouteConfig(config)
		contentType := "application/json"
		if cfg.ContentType != "" {
			contentType = cfg.ContentType
		}

		client := &http.Client{Timeout: cfg.Timeout(5 * time.Minute)}
		if o.client != nil {
			client.Transport = o.client.Transport
		}

		handler := func(ctx context.Context, payload []byte) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: create request: %w", err)
			}
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("Accept", "application/json")
			if cfg.BearerToken != "" {
				req.Header.Set("Authorization", "Bearer "+cfg.BearerToken)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: do request: %w", err)
			}
			defer resp.Body.Close()

			body, err := horosafe.LimitedReadAll(resp.Body, maxHTTPResponseBody)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: read response: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, &Error{Kind: ErrRemoteStatus, Endpoint: endpoint, Status: resp.StatusCode, Body: string(body)}
			}
			return body, nil
		}

		return handler, client.CloseIdleConnections, nil
	}
}
