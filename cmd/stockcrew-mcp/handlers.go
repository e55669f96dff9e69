package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/models"
)

type analyzer interface {
	Analyze(ctx context.Context, ticker string) (*models.Report, string, error)
}

type snapshotter interface {
	Snapshot(ctx context.Context, ticker string) (*models.MarketSnapshot, error)
}

type runLister interface {
	ListRuns(ctx context.Context, ticker string, limit int) ([]*models.RunRecord, error)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	result := textResult(text)
	result.IsError = true
	return result
}

// handleAnalyzeStock implements the analyze_stock tool
func handleAnalyzeStock(svc analyzer, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ticker, err := request.RequireString("ticker")
		if err != nil || ticker == "" {
			return errorResult("Error: ticker parameter is required"), nil
		}

		report, path, err := svc.Analyze(ctx, ticker)
		if report == nil {
			logger.Error().Err(err).Str("ticker", ticker).Msg("Analysis failed")
			return errorResult(fmt.Sprintf("Analysis error: %v", err)), nil
		}

		result := textResult(formatAnalysis(report, path, err))
		if err != nil {
			logger.Warn().Err(err).Str("ticker", ticker).Msg("Analysis incomplete")
			result.IsError = true
		}
		return result, nil
	}
}

// handleMarketSnapshot implements the market_snapshot tool
func handleMarketSnapshot(svc snapshotter, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ticker, err := request.RequireString("ticker")
		if err != nil || ticker == "" {
			return errorResult("Error: ticker parameter is required"), nil
		}

		snapshot, err := svc.Snapshot(ctx, ticker)
		if err != nil {
			logger.Error().Err(err).Str("ticker", ticker).Msg("Snapshot failed")
			return errorResult(fmt.Sprintf("Market data error: %v", err)), nil
		}

		text, err := formatSnapshot(snapshot)
		if err != nil {
			return errorResult(fmt.Sprintf("Failed to format snapshot: %v", err)), nil
		}
		return textResult(text), nil
	}
}

// handleListRuns implements the list_runs tool
func handleListRuns(svc runLister, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ticker := request.GetString("ticker", "")

		// Parse limit (default: 20, max: 100)
		limit := request.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		runs, err := svc.ListRuns(ctx, ticker, limit)
		if err != nil {
			logger.Error().Err(err).Msg("ListRuns failed")
			return errorResult(fmt.Sprintf("Run history error: %v", err)), nil
		}
		return textResult(formatRuns(ticker, runs)), nil
	}
}
