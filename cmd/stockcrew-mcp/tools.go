package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createAnalyzeStockTool returns the analyze_stock tool definition
func createAnalyzeStockTool() mcp.Tool {
	return mcp.NewTool("analyze_stock",
		mcp.WithDescription("Run the full five-stage analysis for a ticker and return the markdown report. Takes several minutes."),
		mcp.WithString("ticker",
			mcp.Required(),
			mcp.Description("Ticker, optionally exchange-prefixed (AAPL, BRK.B, ASX:BHP)"),
		),
	)
}

// createMarketSnapshotTool returns the market_snapshot tool definition
func createMarketSnapshotTool() mcp.Tool {
	return mcp.NewTool("market_snapshot",
		mcp.WithDescription("Fetch fundamentals, technicals, volatility and Value-at-Risk for a ticker without running any analysis stage"),
		mcp.WithString("ticker",
			mcp.Required(),
			mcp.Description("Ticker, optionally exchange-prefixed (AAPL, BRK.B, ASX:BHP)"),
		),
	)
}

// createListRunsTool returns the list_runs tool definition
func createListRunsTool() mcp.Tool {
	return mcp.NewTool("list_runs",
		mcp.WithDescription("List recorded analysis runs, newest first"),
		mcp.WithString("ticker",
			mcp.Description("Only runs for this ticker"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20, max: 100)"),
		),
	)
}
