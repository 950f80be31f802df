package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/interfaces"
	"github.com/ternarybob/moverwatch/internal/models"
)

// handleTool forwards an MCP call to the tool registry. The registry's JSON result,
// success shape or {"error": ...}, is returned as the text content.
func handleTool(executor interfaces.ToolExecutor, name string, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(errorContent(fmt.Errorf("invalid arguments: %w", err))), nil
		}

		content, isError := executor.Execute(ctx, name, args)
		if isError {
			logger.Warn().Str("tool", name).Str("result", content).Msg("Tool call failed")
			return mcp.NewToolResultError(content), nil
		}
		return mcp.NewToolResultText(content), nil
	}
}

// errorContent renders err in the tool error shape
func errorContent(err error) string {
	data, mErr := json.Marshal(models.NewToolError(err))
	if mErr != nil {
		return `{"error":"internal error"}`
	}
	return string(data)
}
