package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cronhub/internal/hub"
)

// handleMCP serves the JSON-RPC surface: the initialize handshake,
// notifications, tool discovery and tool calls. Responses are plain JSON;
// this server never streams.
func (s *Server) handleMCP(c *gin.Context) {
	var req hub.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, rpcError(nil, hub.CodeParseError, "invalid JSON-RPC request: "+err.Error()))
		return
	}

	switch req.Method {
	case "initialize":
		sid := s.newSession()
		c.Header("Mcp-Session-Id", sid)
		c.JSON(http.StatusOK, rpcResult(req.ID, gin.H{
			"protocolVersion": protocolVersion,
			"capabilities":    gin.H{"tools": gin.H{}},
			"serverInfo":      gin.H{"name": serverName, "version": serverVersion},
		}))

	case "notifications/initialized":
		c.Status(http.StatusAccepted)

	case "tools/list":
		descriptors := make([]gin.H, 0, len(s.tools))
		for _, tool := range s.tools {
			descriptors = append(descriptors, gin.H{
				"name":        tool.Name,
				"description": tool.Description,
				"inputSchema": tool.InputSchema,
			})
		}
		c.JSON(http.StatusOK, rpcResult(req.ID, gin.H{"tools": descriptors}))

	case "tools/call":
		s.handleToolCall(c, &req)

	default:
		if req.ID == nil {
			// Unknown notifications are ignored per JSON-RPC.
			c.Status(http.StatusAccepted)
			return
		}
		c.JSON(http.StatusOK, rpcError(req.ID, hub.CodeMethodNotFound, "unknown method: "+req.Method))
	}
}

func (s *Server) handleToolCall(c *gin.Context, req *hub.Request) {
	name, _ := req.Params["name"].(string)
	arguments, _ := req.Params["arguments"].(map[string]any)

	for _, tool := range s.tools {
		if tool.Name != name {
			continue
		}
		text, err := tool.Handler(c.Request.Context(), arguments)
		isError := err != nil
		if isError {
			s.logger.Warn("Tool %s failed: %v", name, err)
			text = err.Error()
		}
		c.JSON(http.StatusOK, rpcResult(req.ID, gin.H{
			"content": []gin.H{{"type": "text", "text": text}},
			"isError": isError,
		}))
		return
	}
	c.JSON(http.StatusOK, rpcError(req.ID, hub.CodeInvalidParams, "unknown tool: "+name))
}

func rpcResult(id any, result any) gin.H {
	return gin.H{"jsonrpc": "2.0", "id": id, "result": result}
}

func rpcError(id any, code int, message string) gin.H {
	return gin.H{"jsonrpc": "2.0", "id": id, "error": gin.H{"code": code, "message": message}}
}
