package connectivity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/coursesync/horosafe"
)

var mcpClientImpl = &mcp.Implementation{Name: "coursesync-router", Version: "1.0.0"}

// MCPFactory creates Handlers that invoke an MCP tool over streamable HTTP.
// The payload is sent as the tool arguments and the tool's text content is
// returned as the response. Route config must name the tool:
//
//	{"tool_name": "video_transcode", "timeout_ms": 600000}
//
// The session is opened lazily on first call and reopened after a
// transport failure.
func MCPFactory(opts ...HTTPOption) TransportFactory {
	var o httpFactoryOptions
	for _, fn := range opts {
		fn(&o)
	}
	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		if o.allowPrivate {
			if _, err := horosafe.ValidateScheme(endpoint); err != nil {
				return nil, nil, fmt.Errorf("connectivity/mcp: %w", err)
			}
		} else if err := horosafe.ValidateURL(endpoint); err != nil {
			return nil, nil, fmt.Errorf("connectivity/mcp: %w", err)
		}
		cfg := ParseRouteConfig(config)
		if cfg.ToolName == "" {
			return nil, nil, fmt.Errorf("connectivity/mcp: tool_name required in config")
		}

		httpClient := o.client
		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		c := &mcpCaller{endpoint: endpoint, tool: cfg.ToolName, httpClient: httpClient}
		return c.call, c.close, nil
	}
}

type mcpCaller struct {
	endpoint   string
	tool       string
	httpClient *http.Client

	mu      sync.Mutex
	session *mcp.ClientSession
}

func (c *mcpCaller) connect(ctx context.Context) (*mcp.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session, nil
	}
	client := mcp.NewClient(mcpClientImpl, nil)
	s, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:   c.endpoint,
		HTTPClient: c.httpClient,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("connectivity/mcp: connect to %s: %w", c.endpoint, err)
	}
	c.session = s
	return s, nil
}

func (c *mcpCaller) drop(s *mcp.ClientSession) {
	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
	s.Close()
}

func (c *mcpCaller) call(ctx context.Context, payload []byte) ([]byte, error) {
	var args map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, fmt.Errorf("connectivity/mcp: unmarshal args: %w", err)
		}
	}

	s, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.CallTool(ctx, &mcp.CallToolParams{Name: c.tool, Arguments: args})
	if err != nil {
		c.drop(s)
		return nil, fmt.Errorf("connectivity/mcp: call %s: %w", c.tool, err)
	}

	var text strings.Builder
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			text.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return nil, fmt.Errorf("connectivity/mcp: tool %s: %s", c.tool, text.String())
	}
	return []byte(text.String()), nil
}

func (c *mcpCaller) close() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()
	if s != nil {
		s.Close()
	}
}
