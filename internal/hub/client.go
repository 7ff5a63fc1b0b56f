package hub

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cronhub/internal/logging"
)

// protocolVersion is the MCP revision that introduced the streamable HTTP
// transport this client speaks.
const protocolVersion = "2025-03-26"

const clientName = "cronhub"
const clientVersion = "1.0.0"

// ToolDescriptor is a tool advertised by a server via tools/list.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ServerConfig identifies one upstream tool server.
type ServerConfig struct {
	Name      string
	URL       string
	AuthType  string // "bearer" or empty
	AuthToken string
}

// Client speaks MCP over streamable HTTP to a single server: JSON-RPC
// request/response over POST, with servers free to answer either plain JSON
// or a short SSE stream.
type Client struct {
	config     ServerConfig
	httpClient *http.Client
	logger     logging.Logger

	ids       requestIDs
	sessionID string
	tools     []ToolDescriptor
}

// NewClient creates a client for one server. httpClient may be nil.
func NewClient(config ServerConfig, httpClient *http.Client, logger logging.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logging.OrNop(logger),
	}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.config.Name }

// Tools returns the descriptors discovered during Connect.
func (c *Client) Tools() []ToolDescriptor { return c.tools }

// Connect performs the initialize handshake, sends notifications/initialized
// and fetches the tool list.
func (c *Client) Connect(ctx context.Context) error {
	result, err := c.call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	})
	if err != nil {
		return fmt.Errorf("initialize %s: %w", c.config.Name, err)
	}
	var initResult struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(result, &initResult); err != nil {
		return fmt.Errorf("decode initialize result from %s: %w", c.config.Name, err)
	}

	if err := c.notify(ctx, "notifications/initialized", nil); err != nil {
		return fmt.Errorf("initialized notification to %s: %w", c.config.Name, err)
	}

	tools, err := c.listTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools on %s: %w", c.config.Name, err)
	}
	c.tools = tools

	c.logger.Info("Connected to %s (%s %s): %d tools",
		c.config.Name, initResult.ServerInfo.Name, initResult.ServerInfo.Version, len(tools))
	return nil
}

func (c *Client) listTools(ctx context.Context) ([]ToolDescriptor, error) {
	result, err := c.call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var listResult struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(result, &listResult); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}
	return listResult.Tools, nil
}

// CallTool invokes a tool and returns the concatenated text content. isError
// reflects the server-side isError flag; a protocol failure returns err instead.
func (c *Client) CallTool(ctx context.Context, tool string, arguments map[string]any) (text string, isError bool, err error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	result, err := c.call(ctx, "tools/call", map[string]any{
		"name":      tool,
		"arguments": arguments,
	})
	if err != nil {
		return "", false, err
	}

	var callResult struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(result, &callResult); err != nil {
		return "", false, fmt.Errorf("decode tools/call result: %w", err)
	}

	var parts []string
	for _, block := range callResult.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n"), callResult.IsError, nil
}

// Close tears down the server session. Best effort: servers are free to
// reject or ignore the DELETE.
func (c *Client) Close(ctx context.Context) {
	if c.sessionID == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.config.URL, nil)
	if err != nil {
		return
	}
	req.Header.Set("Mcp-Session-Id", c.sessionID)
	c.addAuth(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Session close for %s failed: %v", c.config.Name, err)
		return
	}
	_ = resp.Body.Close()
}

// HealthCheck probes the conventional GET /health endpoint at the server's
// URL root.
func (c *Client) HealthCheck(ctx context.Context) error {
	parsed, err := url.Parse(c.config.URL)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	healthURL := parsed.Scheme + "://" + parsed.Host + "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return err
	}
	c.addAuth(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// call sends a request and returns the raw result, surfacing JSON-RPC error
// objects as *RPCError.
func (c *Client) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	request := NewRequest(c.ids.next(), method, params)
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	// The handshake response carries the session id for the rest of the
	// conversation.
	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		c.sessionID = sid
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%s returned HTTP %d: %s", method, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var raw []byte
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		raw, err = lastEventData(resp.Body)
	} else {
		raw, err = io.ReadAll(resp.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}

	response, err := UnmarshalResponse(raw)
	if err != nil {
		return nil, err
	}
	if response.IsError() {
		return nil, response.Error
	}
	return response.Result, nil
}

// notify sends a notification. Any 2xx is success; there is no body to read.
func (c *Client) notify(ctx context.Context, method string, params map[string]any) error {
	body, err := json.Marshal(NewNotification(method, params))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	resp, err := c.post(ctx, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if c.sessionID != "" {
		req.Header.Set("Mcp-Session-Id", c.sessionID)
	}
	c.addAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post to %s: %w", c.config.Name, err)
	}
	return resp, nil
}

func (c *Client) addAuth(req *http.Request) {
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}
}

// lastEventData scans an SSE stream and returns the payload of the final
// data: frame that looks like a JSON-RPC response. Streamable HTTP servers
// may emit progress frames before the result; only the last one matters.
func lastEventData(r io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var last []byte
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if strings.Contains(payload, `"result"`) || strings.Contains(payload, `"error"`) {
			last = []byte(payload)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if last == nil {
		return nil, fmt.Errorf("event stream carried no response frame")
	}
	return last, nil
}
