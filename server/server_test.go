package server

import (
	"context"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scalvert/playwright-mcp-evals/model"
)

// MockMCPClient mocks the MCP client. Only the calls the eval harness
// makes are wired; the rest of the interface panics if reached.
type MockMCPClient struct {
	mock.Mock
}

func (m *MockMCPClient) Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mcp.InitializeResult), args.Error(1)
}

func (m *MockMCPClient) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mcp.ListToolsResult), args.Error(1)
}

func (m *MockMCPClient) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mcp.CallToolResult), args.Error(1)
}

func (m *MockMCPClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockMCPClient) Ping(ctx context.Context) error {
	panic("not wired")
}

func (m *MockMCPClient) ListResourcesByPage(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	panic("not wired")
}

func (m *MockMCPClient) ListResources(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	panic("not wired")
}

func (m *MockMCPClient) ListResourceTemplatesByPage(ctx context.Context, request mcp.ListResourceTemplatesRequest) (*mcp.ListResourceTemplatesResult, error) {
	panic("not wired")
}

func (m *MockMCPClient) ListResourceTemplates(ctx context.Context, request mcp.ListResourceTemplatesRequest) (*mcp.ListResourceTemplatesResult, error) {
	panic("not wired")
}

func (m *MockMCPClient) ReadResource(ctx context.Context, request mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	panic("not wired")
}

func (m *MockMCPClient) Subscribe(ctx context.Context, request mcp.SubscribeRequest) error {
	panic("not wired")
}

func (m *MockMCPClient) Unsubscribe(ctx context.Context, request mcp.UnsubscribeRequest) error {
	panic("not wired")
}

func (m *MockMCPClient) ListPromptsByPage(ctx context.Context, request mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error) {
	panic("not wired")
}

func (m *MockMCPClient) ListPrompts(ctx context.Context, request mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error) {
	panic("not wired")
}

func (m *MockMCPClient) GetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	panic("not wired")
}

func (m *MockMCPClient) ListToolsByPage(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	panic("not wired")
}

func (m *MockMCPClient) SetLevel(ctx context.Context, request mcp.SetLevelRequest) error {
	panic("not wired")
}

func (m *MockMCPClient) Complete(ctx context.Context, request mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	panic("not wired")
}

func (m *MockMCPClient) OnNotification(handler func(notification mcp.JSONRPCNotification)) {
	panic("not wired")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		server  MCPServer
		wantErr string
	}{
		{
			name:    "empty name",
			server:  MCPServer{},
			wantErr: "server name cannot be empty",
		},
		{
			name:    "stdio without command",
			server:  MCPServer{Name: "s", Type: model.Stdio},
			wantErr: "command is required",
		},
		{
			name:    "stdio whitespace command",
			server:  MCPServer{Name: "s", Type: model.Stdio, Command: "   "},
			wantErr: "whitespace",
		},
		{
			name:   "stdio with command",
			server: MCPServer{Name: "s", Type: model.Stdio, Command: "npx weather-mcp --stdio"},
		},
		{
			name:    "sse without url",
			server:  MCPServer{Name: "s", Type: model.SSE},
			wantErr: "URL is required",
		},
		{
			name:    "sse with bad scheme",
			server:  MCPServer{Name: "s", Type: model.SSE, URL: "ftp://example.com"},
			wantErr: "invalid URL format",
		},
		{
			name:    "sse with padded url",
			server:  MCPServer{Name: "s", Type: model.SSE, URL: " http://example.com"},
			wantErr: "whitespace",
		},
		{
			name:   "sse valid",
			server: MCPServer{Name: "s", Type: model.SSE, URL: "https://example.com/sse"},
		},
		{
			name:    "sse malformed header",
			server:  MCPServer{Name: "s", Type: model.SSE, URL: "https://example.com", Headers: []string{"no-separator"}},
			wantErr: "':' separator",
		},
		{
			name:   "http valid",
			server: MCPServer{Name: "s", Type: model.Http, URL: "http://localhost:8080/mcp"},
		},
		{
			name:    "unsupported type",
			server:  MCPServer{Name: "s", Type: "carrier-pigeon"},
			wantErr: "unsupported server type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.server.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestStreamableHTTPOptions(t *testing.T) {
	t.Run("configured headers reach the transport options", func(t *testing.T) {
		s := &MCPServer{
			Name:    "s",
			Type:    model.Http,
			URL:     "https://example.com/mcp",
			Headers: []string{"Authorization: Bearer token"},
		}
		assert.Len(t, s.streamableHTTPOptions(), 1)
	})

	t.Run("no headers yields no options", func(t *testing.T) {
		s := &MCPServer{Name: "s", Type: model.Http, URL: "https://example.com/mcp"}
		assert.Empty(t, s.streamableHTTPOptions())
	})

	t.Run("only malformed headers yields no options", func(t *testing.T) {
		s := &MCPServer{
			Name:    "s",
			Type:    model.Http,
			URL:     "https://example.com/mcp",
			Headers: []string{": empty-key"},
		}
		assert.Empty(t, s.streamableHTTPOptions())
	})
}

func TestParseHeaders(t *testing.T) {
	t.Run("no headers", func(t *testing.T) {
		assert.Nil(t, parseHeaders("s", nil))
	})

	t.Run("valid headers are trimmed", func(t *testing.T) {
		out := parseHeaders("s", []string{"Authorization: Bearer token", "X-Env:prod "})
		require.NotNil(t, out)
		assert.Equal(t, "Bearer token", out["Authorization"])
		assert.Equal(t, "prod", out["X-Env"])
	})

	t.Run("malformed entries are skipped", func(t *testing.T) {
		out := parseHeaders("s", []string{"broken", ": empty-key", "Good: yes"})
		require.NotNil(t, out)
		assert.Len(t, out, 1)
		assert.Equal(t, "yes", out["Good"])
	})

	t.Run("nothing valid yields nil", func(t *testing.T) {
		assert.Nil(t, parseHeaders("s", []string{"broken"}))
	})
}

func TestCallTool(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		s := &MCPServer{Name: "s", ToolTimeout: DefaultToolTimeout}
		_, err := s.CallTool(context.Background(), "tool", nil)
		assert.ErrorContains(t, err, "not connected")
	})

	t.Run("forwards name and arguments", func(t *testing.T) {
		cli := &MockMCPClient{}
		cli.On("CallTool", mock.Anything, mock.MatchedBy(func(req mcp.CallToolRequest) bool {
			args, ok := req.Params.Arguments.(map[string]any)
			return req.Params.Name == "get_weather" && ok && args["city"] == "London"
		})).Return(&mcp.CallToolResult{
			Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "20°C"}},
		}, nil)

		s := &MCPServer{Name: "s", Client: cli, ToolTimeout: DefaultToolTimeout}
		res, err := s.CallTool(context.Background(), "get_weather", map[string]any{"city": "London"})
		require.NoError(t, err)
		require.NotNil(t, res)
		cli.AssertExpectations(t)
	})

	t.Run("nil args become an empty map", func(t *testing.T) {
		cli := &MockMCPClient{}
		cli.On("CallTool", mock.Anything, mock.MatchedBy(func(req mcp.CallToolRequest) bool {
			args, ok := req.Params.Arguments.(map[string]any)
			return ok && args != nil
		})).Return(&mcp.CallToolResult{}, nil)

		s := &MCPServer{Name: "s", Client: cli, ToolTimeout: DefaultToolTimeout}
		_, err := s.CallTool(context.Background(), "tool", nil)
		require.NoError(t, err)
	})

	t.Run("transport failure is wrapped", func(t *testing.T) {
		cli := &MockMCPClient{}
		cli.On("CallTool", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("broken pipe"))

		s := &MCPServer{Name: "s", Client: cli, ToolTimeout: DefaultToolTimeout}
		_, err := s.CallTool(context.Background(), "tool", nil)
		assert.ErrorContains(t, err, "tool call 'tool' failed")
		assert.ErrorContains(t, err, "broken pipe")
	})
}

func TestListTools(t *testing.T) {
	t.Run("returns advertised tools", func(t *testing.T) {
		cli := &MockMCPClient{}
		cli.On("ListTools", mock.Anything, mock.Anything).Return(&mcp.ListToolsResult{
			Tools: []mcp.Tool{{Name: "get_weather"}},
		}, nil)

		s := &MCPServer{Name: "s", Client: cli, ToolTimeout: DefaultToolTimeout}
		tools, err := s.ListTools(context.Background())
		require.NoError(t, err)
		require.Len(t, tools, 1)
		assert.Equal(t, "get_weather", tools[0].Name)
	})

	t.Run("not connected", func(t *testing.T) {
		s := &MCPServer{Name: "s", ToolTimeout: DefaultToolTimeout}
		_, err := s.ListTools(context.Background())
		assert.ErrorContains(t, err, "not connected")
	})
}

func TestSetToolTimeout(t *testing.T) {
	s := &MCPServer{ToolTimeout: DefaultToolTimeout}
	s.SetToolTimeout(0)
	assert.Equal(t, DefaultToolTimeout, s.ToolTimeout)
	s.SetToolTimeout(5e9)
	assert.NotEqual(t, DefaultToolTimeout, s.ToolTimeout)
}

func TestIsHealthy(t *testing.T) {
	t.Run("nil client is unhealthy", func(t *testing.T) {
		s := &MCPServer{Name: "s"}
		assert.False(t, s.IsHealthy(context.Background()))
	})

	t.Run("listing success is healthy", func(t *testing.T) {
		cli := &MockMCPClient{}
		cli.On("ListTools", mock.Anything, mock.Anything).Return(&mcp.ListToolsResult{}, nil)

		s := &MCPServer{Name: "s", Client: cli}
		assert.True(t, s.IsHealthy(context.Background()))
	})

	t.Run("listing failure is unhealthy", func(t *testing.T) {
		cli := &MockMCPClient{}
		cli.On("ListTools", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("down"))

		s := &MCPServer{Name: "s", Client: cli}
		assert.False(t, s.IsHealthy(context.Background()))
	})
}

func TestClose(t *testing.T) {
	t.Run("already closed", func(t *testing.T) {
		s := &MCPServer{Name: "s"}
		assert.Error(t, s.Close())
	})

	t.Run("close succeeds and clears the client", func(t *testing.T) {
		cli := &MockMCPClient{}
		cli.On("Close").Return(nil)

		s := &MCPServer{Name: "s", Client: cli}
		require.NoError(t, s.Close())
		assert.Nil(t, s.Client)
	})
}
