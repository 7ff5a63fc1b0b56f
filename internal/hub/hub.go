// Package hub connects to a set of MCP tool servers over streamable HTTP and
// exposes their combined tool surface for agentic execution.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"cronhub/internal/llm"
	"cronhub/internal/logging"
)

// GuardPrefix marks tools that belong to this service itself. They are
// always withheld from subagents so a task cannot schedule or run tasks
// recursively through the tool surface.
const GuardPrefix = "cronhub_"

// ErrUnknownTool is returned when no connected server advertises a tool.
var ErrUnknownTool = errors.New("unknown tool")

// Hub aggregates tools from several MCP servers. Tool names are routed to
// the first server that advertised them.
type Hub struct {
	logger     logging.Logger
	httpClient *http.Client

	mu      sync.Mutex
	clients []*Client
	routes  map[string]*Client
	failed  map[string]error
}

// New creates an empty hub. httpClient may be nil.
func New(httpClient *http.Client, logger logging.Logger) *Hub {
	return &Hub{
		logger:     logging.OrNop(logger),
		httpClient: httpClient,
		routes:     make(map[string]*Client),
		failed:     make(map[string]error),
	}
}

// Connect dials every server concurrently. A server that fails to connect is
// logged and skipped; the hub serves whatever subset came up. An error is
// returned only when servers were requested and none connected.
func (h *Hub) Connect(ctx context.Context, configs []ServerConfig) error {
	if len(configs) == 0 {
		return nil
	}

	type outcome struct {
		client *Client
		config ServerConfig
		err    error
	}
	results := make(chan outcome, len(configs))

	var wg sync.WaitGroup
	for _, config := range configs {
		wg.Add(1)
		go func(config ServerConfig) {
			defer wg.Done()
			client := NewClient(config, h.httpClient, h.logger)
			err := client.Connect(ctx)
			results <- outcome{client: client, config: config, err: err}
		}(config)
	}
	wg.Wait()
	close(results)

	h.mu.Lock()
	defer h.mu.Unlock()
	for result := range results {
		if result.err != nil {
			h.logger.Warn("Tool server %s unavailable: %v", result.config.Name, result.err)
			h.failed[result.config.Name] = result.err
			continue
		}
		h.clients = append(h.clients, result.client)
		for _, tool := range result.client.Tools() {
			if existing, ok := h.routes[tool.Name]; ok {
				h.logger.Warn("Tool %s from %s shadowed by %s", tool.Name, result.config.Name, existing.Name())
				continue
			}
			h.routes[tool.Name] = result.client
		}
	}

	if len(h.clients) == 0 {
		return fmt.Errorf("no tool servers reachable (%d requested)", len(configs))
	}
	return nil
}

// Tools returns the descriptors of every routed tool.
func (h *Hub) Tools() []ToolDescriptor {
	h.mu.Lock()
	defer h.mu.Unlock()

	var tools []ToolDescriptor
	for _, client := range h.clients {
		for _, tool := range client.Tools() {
			if h.routes[tool.Name] == client {
				tools = append(tools, tool)
			}
		}
	}
	return tools
}

// ServerNames lists the connected servers.
func (h *Hub) ServerNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.clients))
	for _, client := range h.clients {
		names = append(names, client.Name())
	}
	return names
}

// FailedServers reports servers that did not come up during Connect.
func (h *Hub) FailedServers() map[string]error {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]error, len(h.failed))
	for name, err := range h.failed {
		out[name] = err
	}
	return out
}

// ToAnthropicFormat converts the routed tools to messages API tool
// definitions. Exclusion entries are substring patterns: any tool whose name
// contains GuardPrefix or one of the exclude patterns is dropped. The
// caller's exclude slice is never modified.
func (h *Hub) ToAnthropicFormat(exclude []string) []llm.Tool {
	patterns := make([]string, 0, len(exclude)+1)
	patterns = append(patterns, GuardPrefix)
	patterns = append(patterns, exclude...)

	var tools []llm.Tool
	for _, descriptor := range h.Tools() {
		if matchesAny(descriptor.Name, patterns) {
			continue
		}
		schema := descriptor.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		tools = append(tools, llm.Tool{
			Name:        descriptor.Name,
			Description: descriptor.Description,
			InputSchema: schema,
		})
	}
	return tools
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}

// CallTool routes a tool invocation to the owning server. isError carries
// the server's application-level failure flag; err covers transport and
// routing failures.
func (h *Hub) CallTool(ctx context.Context, tool string, arguments map[string]any) (text string, isError bool, err error) {
	h.mu.Lock()
	client, ok := h.routes[tool]
	h.mu.Unlock()
	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
	return client.CallTool(ctx, tool, arguments)
}

// Close tears down every server session, best effort.
func (h *Hub) Close(ctx context.Context) {
	h.mu.Lock()
	clients := append([]*Client(nil), h.clients...)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close(ctx)
	}
}
