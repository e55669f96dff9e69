// -----------------------------------------------------------------------
// Last Modified: Monday, 19th October 2026 10:02:11 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"github.com/ternarybob/stockcrew/internal/models"
)

// Exit codes for fatal error classes
const (
	exitOK              = 0
	exitError           = 1
	exitInvalidTicker   = 2
	exitDataUnavailable = 3
	exitUpstream        = 4
	exitInference       = 5
	exitCancelled       = 6
)

var (
	// Persistent flags
	configFiles     []string // Multiple -c/--config flags supported
	flagProvider    string
	flagModel       string
	flagTemperature float64

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:               "stockcrew",
	Short:             "Staged LLM stock analysis",
	Long:              `Runs a fixed sequence of analyst stages (market research, financial health, technical analysis, risk assessment, investment synthesis) over market data for a ticker and writes a markdown report.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "Inference provider: ollama, claude, gemini (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "Model identifier (overrides config)")
	rootCmd.PersistentFlags().Float64Var(&flagTemperature, "temperature", 0, "Sampling temperature (overrides config)")

	rootCmd.AddCommand(analyzeCmd, watchCmd, runsCmd, versionCmd)
}

func main() {
	defer common.RecoverWithCrashFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// loadConfig runs the startup sequence (REQUIRED ORDER):
// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
// 2. Apply CLI overrides (highest priority)
// 3. Validate
// 4. Initialize logger
// 5. Print banner
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd {
		return nil
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("stockcrew.toml"); err == nil {
			configFiles = append(configFiles, "stockcrew.toml")
		} else if _, err := os.Stat("deployments/local/stockcrew.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/stockcrew.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	overrides := common.FlagOverrides{
		Provider:   flagProvider,
		Model:      flagModel,
		ReportsDir: flagReportsDir,
		PDF:        flagPDF,
		NoMemory:   flagNoMemory,
	}
	if cmd.Flags().Changed("temperature") {
		overrides.Temperature = &flagTemperature
	}
	common.ApplyFlagOverrides(config, overrides)

	if err := config.Validate(); err != nil {
		return err
	}

	logger = common.InitLogger(config)
	if config.Logging.Dir != "" {
		common.InstallCrashHandler(config.Logging.Dir)
	}
	common.PrintBanner(common.GetVersion())

	logger.Debug().
		Strs("config_files", configFiles).
		Str("provider", string(config.LLM.Provider)).
		Str("model", config.InferenceModel()).
		Str("market_source", config.Market.Provider).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration (sanitized)")

	return nil
}

// exitCode maps fatal error classes to process exit codes
func exitCode(err error) int {
	var (
		invalidTicker *models.InvalidTickerError
		unavailable   *models.DataUnavailableError
		upstream      *models.UpstreamUnavailableError
		inference     *models.InferenceError
	)

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.As(err, &invalidTicker):
		return exitInvalidTicker
	case errors.As(err, &unavailable):
		return exitDataUnavailable
	case errors.As(err, &upstream):
		return exitUpstream
	case errors.As(err, &inference):
		return exitInference
	default:
		return exitError
	}
}
