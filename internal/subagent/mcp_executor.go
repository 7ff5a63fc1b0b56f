package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"cronhub/internal/hub"
	"cronhub/internal/llm"
	"cronhub/internal/logging"
	"cronhub/internal/store"
)

// ModelClient is the slice of the messages API the agentic loop needs.
type ModelClient interface {
	CreateMessage(ctx context.Context, req *llm.MessagesRequest) (*llm.MessagesResponse, error)
}

// ServerResolver maps tool server names to connection configs. Empty input
// resolves to the default enabled set.
type ServerResolver interface {
	Resolve(ctx context.Context, names []string) ([]hub.ServerConfig, error)
}

// MCPExecutor drives the agentic loop: model call, tool dispatch, repeat
// until the model stops asking for tools or the turn budget runs out.
type MCPExecutor struct {
	model      ModelClient
	resolver   ServerResolver
	logger     logging.Logger
	httpClient *http.Client
}

// NewMCPExecutor builds the loop executor. httpClient may be nil.
func NewMCPExecutor(model ModelClient, resolver ServerResolver, httpClient *http.Client, logger logging.Logger) *MCPExecutor {
	return &MCPExecutor{
		model:      model,
		resolver:   resolver,
		logger:     logging.OrNop(logger),
		httpClient: httpClient,
	}
}

// Run executes the loop. All failures come back inside the Result; the error
// field stays human-readable because it lands in execution history.
func (e *MCPExecutor) Run(ctx context.Context, req Request) Result {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	configs, err := e.resolver.Resolve(ctx, req.ToolServers)
	if err != nil {
		return failure(ModeMCP, fmt.Sprintf("resolve tool servers: %v", err))
	}

	toolHub := hub.New(e.httpClient, e.logger)
	if len(configs) > 0 {
		if err := toolHub.Connect(ctx, configs); err != nil {
			return failure(ModeMCP, fmt.Sprintf("connect tool servers: %v", err))
		}
		defer toolHub.Close(context.WithoutCancel(ctx))
	}

	tools := toolHub.ToAnthropicFormat(req.ExcludeTools)
	if len(tools) == 0 {
		return failure(ModeMCP, "no tools available")
	}

	messages := []llm.Message{llm.UserMessage(llm.TextBlock(req.Prompt))}
	result := Result{ModeUsed: ModeMCP}

	for turn := 1; turn <= req.MaxTurns; turn++ {
		result.TurnsUsed = turn

		resp, err := e.model.CreateMessage(ctx, &llm.MessagesRequest{
			Model:    req.Model,
			System:   req.SystemPrompt,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			result.Error = fmt.Sprintf("model call failed on turn %d: %v", turn, err)
			return result
		}

		if text := resp.TextContent(); text != "" {
			if result.Output != "" {
				result.Output += "\n"
			}
			result.Output += text
		}

		toolUses := resp.ToolUses()
		if len(toolUses) == 0 {
			result.Success = true
			return result
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content})
		resultBlocks := make([]llm.ContentBlock, 0, len(toolUses))
		for _, use := range toolUses {
			entry, block := e.dispatchTool(ctx, toolHub, use)
			result.ToolCalls = append(result.ToolCalls, entry)
			resultBlocks = append(resultBlocks, block)
		}
		messages = append(messages, llm.UserMessage(resultBlocks...))
	}

	result.Error = "max turns exceeded"
	return result
}

// dispatchTool runs one tool_use block, producing both the history entry and
// the tool_result block fed back to the model. Transport failures become
// is_error results so the model can react instead of the loop aborting.
func (e *MCPExecutor) dispatchTool(ctx context.Context, toolHub *hub.Hub, use llm.ContentBlock) (store.ToolCallEntry, llm.ContentBlock) {
	var arguments map[string]any
	if len(use.Input) > 0 {
		if err := json.Unmarshal(use.Input, &arguments); err != nil {
			e.logger.Warn("Tool %s input not an object: %v", use.Name, err)
		}
	}

	entry := store.ToolCallEntry{Tool: use.Name, Arguments: arguments}

	text, isError, err := toolHub.CallTool(ctx, use.Name, arguments)
	switch {
	case err != nil:
		entry.Error = err.Error()
		e.logger.Warn("Tool %s failed: %v", use.Name, err)
		return entry, llm.ToolResultBlock(use.ID, fmt.Sprintf("tool call failed: %v", err), true)
	case isError:
		entry.Error = text
		return entry, llm.ToolResultBlock(use.ID, text, true)
	default:
		entry.Success = true
		entry.Result = text
		return entry, llm.ToolResultBlock(use.ID, text, false)
	}
}
