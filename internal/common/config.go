package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Logging     LoggingConfig   `toml:"logging"`
	LLM         LLMConfig       `toml:"llm"`
	Ollama      OllamaConfig    `toml:"ollama"`
	Claude      ClaudeConfig    `toml:"claude"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Market      MarketConfig    `toml:"market"`
	EODHD       EODHDConfig     `toml:"eodhd"`
	Templates   TemplatesConfig `toml:"templates"`
	Reports     ReportsConfig   `toml:"reports"`
	Storage     StorageConfig   `toml:"storage"`
	Watch       WatchConfig     `toml:"watch"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
	Dir    string   `toml:"dir"`    // Log directory, defaults to ./logs beside the executable
}

// LLMProvider represents the inference provider type
type LLMProvider string

const (
	LLMProviderOllama LLMProvider = "ollama"
	LLMProviderClaude LLMProvider = "claude"
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig holds the sampling configuration shared by every stage of a run.
type LLMConfig struct {
	Provider       LLMProvider `toml:"provider" validate:"oneof=ollama claude gemini"`
	Model          string      `toml:"model" validate:"required"`
	Temperature    float64     `toml:"temperature" validate:"gte=0,lte=2"`
	MaxIterations  int         `toml:"max_iterations" validate:"gte=1,lte=10"` // Continuation rounds when a reply is length-capped
	MaxTokens      int         `toml:"max_tokens" validate:"gte=64"`
	Memory         bool        `toml:"memory"`                             // Carry prior exchanges of the run into each request
	MemoryWindow   int         `toml:"memory_window" validate:"gte=0"`     // Exchanges kept in the memory log
	MinOutputChars int         `toml:"min_output_chars" validate:"gte=0"`  // Shorter outputs are recorded as degraded
	Timeout        string      `toml:"timeout"`                            // Per completion call, e.g. "5m"
	Retry          RetryConfig `toml:"retry"`
}

// RetryConfig is the retry policy for a transient failure class.
type RetryConfig struct {
	MaxRetries        int     `toml:"max_retries" validate:"gte=0,lte=20"`
	InitialBackoff    string  `toml:"initial_backoff"`
	MaxBackoff        string  `toml:"max_backoff"`
	BackoffMultiplier float64 `toml:"backoff_multiplier" validate:"gte=1"`
}

// OllamaConfig points at a local OpenAI-compatible inference server.
type OllamaConfig struct {
	BaseURL string `toml:"base_url" validate:"required,url"`
	APIKey  string `toml:"api_key"` // Ignored by ollama, required by the client
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"` // Used when llm.provider = "claude" and llm.model is left at the ollama default
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// MarketConfig drives the market data provider and the derived statistics.
type MarketConfig struct {
	Provider        string      `toml:"provider" validate:"oneof=yahoo eodhd"`
	LookbackDays    int         `toml:"lookback_days" validate:"gte=11"`
	ConfidenceLevel float64     `toml:"confidence_level" validate:"gt=0,lt=1"`
	VaRMethod       string      `toml:"var_method" validate:"oneof=historical parametric"`
	PositionSize    float64     `toml:"position_size" validate:"gt=0"`
	NewsLimit       int         `toml:"news_limit" validate:"gte=0,lte=50"`
	Timeout         string      `toml:"timeout"`
	Retry           RetryConfig `toml:"retry"`
}

// EODHDConfig contains EODHD API configuration
type EODHDConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"` // Requests per second
}

// TemplatesConfig controls stage template resolution.
type TemplatesConfig struct {
	Dir string `toml:"dir"` // User override directory, embedded templates are used when empty
}

// ReportsConfig controls report output.
type ReportsConfig struct {
	Dir             string `toml:"dir" validate:"required"`
	PDF             bool   `toml:"pdf"`
	WriteIncomplete bool   `toml:"write_incomplete"`
}

// StorageConfig controls the run history store.
type StorageConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// WatchConfig configures the scheduled watchlist.
type WatchConfig struct {
	Schedule    string   `toml:"schedule"`
	Tickers     []string `toml:"tickers"`
	Concurrency int      `toml:"concurrency" validate:"gte=1,lte=16"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		LLM: LLMConfig{
			Provider:       LLMProviderOllama,
			Model:          "deepseek-r1:8b",
			Temperature:    0.1,
			MaxIterations:  3,
			MaxTokens:      4096,
			Memory:         true,
			MemoryWindow:   2,
			MinOutputChars: 40,
			Timeout:        "5m",
			Retry: RetryConfig{
				MaxRetries:        3,
				InitialBackoff:    "2s",
				MaxBackoff:        "30s",
				BackoffMultiplier: 2.0,
			},
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434/v1",
			APIKey:  "ollama",
		},
		Claude: ClaudeConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		Market: MarketConfig{
			Provider:        "yahoo",
			LookbackDays:    252,
			ConfidenceLevel: 0.95,
			VaRMethod:       "historical",
			PositionSize:    10000,
			NewsLimit:       5,
			Timeout:         "30s",
			Retry: RetryConfig{
				MaxRetries:        2,
				InitialBackoff:    "1s",
				MaxBackoff:        "10s",
				BackoffMultiplier: 2.0,
			},
		},
		EODHD: EODHDConfig{
			BaseURL:   "https://eodhd.com/api",
			RateLimit: 10,
		},
		Reports: ReportsConfig{
			Dir:             "reports",
			WriteIncomplete: true,
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    "data/runs",
		},
		Watch: WatchConfig{
			Schedule:    "30 18 * * 1-5",
			Concurrency: 2,
		},
	}
}

// LoadFromFile loads configuration from a single file (or defaults when path is empty)
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with later files overriding earlier ones.
// Priority: defaults -> file1 -> file2 -> ... -> env vars. CLI flags are applied by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("STOCKCREW_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Logging
	if level := os.Getenv("STOCKCREW_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("STOCKCREW_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitList(output)
	}

	// Inference
	if provider := os.Getenv("STOCKCREW_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = LLMProvider(strings.ToLower(provider))
	}
	if model := os.Getenv("STOCKCREW_LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if temp := os.Getenv("STOCKCREW_LLM_TEMPERATURE"); temp != "" {
		if t, err := strconv.ParseFloat(temp, 64); err == nil {
			config.LLM.Temperature = t
		}
	}
	if iter := os.Getenv("STOCKCREW_LLM_MAX_ITERATIONS"); iter != "" {
		if n, err := strconv.Atoi(iter); err == nil {
			config.LLM.MaxIterations = n
		}
	}
	if memory := os.Getenv("STOCKCREW_LLM_MEMORY"); memory != "" {
		if b, err := strconv.ParseBool(memory); err == nil {
			config.LLM.Memory = b
		}
	}
	if timeout := os.Getenv("STOCKCREW_LLM_TIMEOUT"); timeout != "" {
		config.LLM.Timeout = timeout
	}
	if baseURL := os.Getenv("STOCKCREW_OLLAMA_BASE_URL"); baseURL != "" {
		config.Ollama.BaseURL = baseURL
	}

	// Market data
	if provider := os.Getenv("STOCKCREW_MARKET_PROVIDER"); provider != "" {
		config.Market.Provider = strings.ToLower(provider)
	}
	if lookback := os.Getenv("STOCKCREW_MARKET_LOOKBACK_DAYS"); lookback != "" {
		if n, err := strconv.Atoi(lookback); err == nil {
			config.Market.LookbackDays = n
		}
	}
	if confidence := os.Getenv("STOCKCREW_MARKET_CONFIDENCE_LEVEL"); confidence != "" {
		if c, err := strconv.ParseFloat(confidence, 64); err == nil {
			config.Market.ConfidenceLevel = c
		}
	}
	if method := os.Getenv("STOCKCREW_MARKET_VAR_METHOD"); method != "" {
		config.Market.VaRMethod = strings.ToLower(method)
	}
	if position := os.Getenv("STOCKCREW_MARKET_POSITION_SIZE"); position != "" {
		if p, err := strconv.ParseFloat(position, 64); err == nil {
			config.Market.PositionSize = p
		}
	}

	// Output
	if dir := os.Getenv("STOCKCREW_REPORTS_DIR"); dir != "" {
		config.Reports.Dir = dir
	}
	if pdf := os.Getenv("STOCKCREW_REPORTS_PDF"); pdf != "" {
		if b, err := strconv.ParseBool(pdf); err == nil {
			config.Reports.PDF = b
		}
	}
	if dir := os.Getenv("STOCKCREW_TEMPLATES_DIR"); dir != "" {
		config.Templates.Dir = dir
	}
	if path := os.Getenv("STOCKCREW_STORAGE_PATH"); path != "" {
		config.Storage.Path = path
	}
	if enabled := os.Getenv("STOCKCREW_STORAGE_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Storage.Enabled = b
		}
	}

	// Watch
	if schedule := os.Getenv("STOCKCREW_WATCH_SCHEDULE"); schedule != "" {
		config.Watch.Schedule = schedule
	}
	if tickers := os.Getenv("STOCKCREW_WATCH_TICKERS"); tickers != "" {
		config.Watch.Tickers = splitList(tickers)
	}
}

// FlagOverrides carries CLI flag values. Zero values leave the config untouched.
type FlagOverrides struct {
	Provider    string
	Model       string
	Temperature *float64
	ReportsDir  string
	PDF         bool
	NoMemory    bool
}

// ApplyFlagOverrides applies command-line flags, which have the highest priority
func ApplyFlagOverrides(config *Config, flags FlagOverrides) {
	if flags.Provider != "" {
		config.LLM.Provider = LLMProvider(strings.ToLower(flags.Provider))
	}
	if flags.Model != "" {
		config.LLM.Model = flags.Model
	}
	if flags.Temperature != nil {
		config.LLM.Temperature = *flags.Temperature
	}
	if flags.ReportsDir != "" {
		config.Reports.Dir = flags.ReportsDir
	}
	if flags.PDF {
		config.Reports.PDF = true
	}
	if flags.NoMemory {
		config.LLM.Memory = false
	}
}

// Validate checks struct constraints and the watch schedule.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, d := range []struct{ name, value string }{
		{"llm.timeout", c.LLM.Timeout},
		{"llm.retry.initial_backoff", c.LLM.Retry.InitialBackoff},
		{"llm.retry.max_backoff", c.LLM.Retry.MaxBackoff},
		{"market.timeout", c.Market.Timeout},
		{"market.retry.initial_backoff", c.Market.Retry.InitialBackoff},
		{"market.retry.max_backoff", c.Market.Retry.MaxBackoff},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", d.name, err)
		}
	}
	if c.Watch.Schedule != "" {
		if err := ValidateSchedule(c.Watch.Schedule); err != nil {
			return fmt.Errorf("invalid configuration: watch.schedule: %w", err)
		}
	}
	return nil
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables -> config fallback -> error
func ResolveAPIKey(name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"claude_api_key": {"STOCKCREW_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"gemini_api_key": {"STOCKCREW_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"eodhd_api_key":  {"STOCKCREW_EODHD_API_KEY", "EODHD_API_KEY"},
	}

	for _, envVarName := range keyToEnvMapping[name] {
		if envValue := os.Getenv(envVarName); envValue != "" {
			return envValue, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or config", name)
}

// ValidateSchedule validates a watch cron expression (5 fields) and enforces a minimum 5-minute interval
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}
	if strings.HasPrefix(minuteField, "*/") {
		interval, err := strconv.Atoi(strings.TrimPrefix(minuteField, "*/"))
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// ParseDurationOr parses a duration string, falling back when empty or invalid.
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// InferenceModel returns the model identifier for the configured provider.
// The ollama default is swapped for the provider's own model when the
// provider is changed without naming a model.
func (c *Config) InferenceModel() string {
	defaultModel := NewDefaultConfig().LLM.Model
	switch c.LLM.Provider {
	case LLMProviderClaude:
		if c.LLM.Model == defaultModel && c.Claude.Model != "" {
			return c.Claude.Model
		}
	case LLMProviderGemini:
		if c.LLM.Model == defaultModel && c.Gemini.Model != "" {
			return c.Gemini.Model
		}
	}
	return c.LLM.Model
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
