package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/moverwatch/internal/app"
	"github.com/ternarybob/moverwatch/internal/common"
	"github.com/ternarybob/moverwatch/internal/services/tools"
)

func main() {
	var paths []string
	if configPath := os.Getenv("MOVERWATCH_CONFIG"); configPath != "" {
		paths = append(paths, configPath)
	} else if _, err := os.Stat("moverwatch.toml"); err == nil {
		paths = append(paths, "moverwatch.toml")
	}

	config, err := common.LoadFromFiles(paths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Minimal logging to stderr; stdout carries the MCP protocol
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	host, err := app.NewToolHost(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize tools")
		os.Exit(1)
	}
	defer host.Close()

	mcpServer := server.NewMCPServer(
		"moverwatch",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Market data tools
	mcpServer.AddTool(createTopMoverTool(), handleTool(host.Tools, tools.ToolTopMover, logger))
	mcpServer.AddTool(createStockHistoryTool(), handleTool(host.Tools, tools.ToolHistory, logger))
	mcpServer.AddTool(createStockNewsTool(), handleTool(host.Tools, tools.ToolNews, logger))

	// Analysis tools
	mcpServer.AddTool(createAnalyzeDataTool(), handleTool(host.Tools, tools.ToolAnalyzeData, logger))
	mcpServer.AddTool(createGenerateChartTool(), handleTool(host.Tools, tools.ToolChart, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
