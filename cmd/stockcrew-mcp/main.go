package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/stockcrew/internal/app"
	"github.com/ternarybob/stockcrew/internal/common"
)

func main() {
	// Load configuration
	configPath := os.Getenv("STOCKCREW_CONFIG")
	if configPath == "" {
		if _, err := os.Stat("stockcrew.toml"); err == nil {
			configPath = "stockcrew.toml"
		}
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// File logging only, at warn level, so stdio carries nothing but protocol
	config.Logging.Output = []string{"file"}
	config.Logging.Level = "warn"
	logger := common.InitLogger(config)

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"stockcrew",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createAnalyzeStockTool(), handleAnalyzeStock(application, logger))
	mcpServer.AddTool(createMarketSnapshotTool(), handleMarketSnapshot(application, logger))
	mcpServer.AddTool(createListRunsTool(), handleListRuns(application, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
