package main

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ternarybob/moverwatch/internal/models"
	"github.com/ternarybob/moverwatch/internal/services/tools"
)

// createTopMoverTool returns the get_top_mover tool definition
func createTopMoverTool() mcp.Tool {
	return mcp.NewTool(tools.ToolTopMover,
		mcp.WithDescription("Find today's #1 NASDAQ percent gainer (structured API first, browser scrape fallback)"),
	)
}

// createStockHistoryTool returns the get_stock_history tool definition
func createStockHistoryTool() mcp.Tool {
	return mcp.NewTool(tools.ToolHistory,
		mcp.WithDescription("Fetch daily OHLCV history keyed by YYYY-MM-DD date"),
		mcp.WithString("symbol",
			mcp.Required(),
			mcp.Description("Stock ticker symbol, e.g. AAPL"),
		),
		mcp.WithString("period",
			mcp.Description("History window (default: 5d)"),
			mcp.Enum(models.PeriodNames()...),
		),
	)
}

// createStockNewsTool returns the get_stock_news tool definition
func createStockNewsTool() mcp.Tool {
	return mcp.NewTool(tools.ToolNews,
		mcp.WithDescription("Fetch up to 10 recent headlines; the top mover is used when ticker is omitted"),
		mcp.WithString("ticker",
			mcp.Description("Optional stock ticker symbol"),
		),
	)
}

// createAnalyzeDataTool returns the analyze_data tool definition
func createAnalyzeDataTool() mcp.Tool {
	return mcp.NewTool(tools.ToolAnalyzeData,
		mcp.WithDescription("Run Python (pandas, numpy) in a network-less container; only printed output is returned"),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Python code that prints its results"),
		),
		mcp.WithString("data",
			mcp.Description("Optional JSON object, available to the code as the string `data`"),
		),
	)
}

// createGenerateChartTool returns the generate_chart tool definition
func createGenerateChartTool() mcp.Tool {
	return mcp.NewTool(tools.ToolChart,
		mcp.WithDescription("Render get_stock_history output as a PDF chart and return chart_path"),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description("JSON in the shape of get_stock_history output"),
		),
		mcp.WithString("chart_type",
			mcp.Required(),
			mcp.Enum("line", "candlestick"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Chart title"),
		),
	)
}
