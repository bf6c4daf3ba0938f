package analysis

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is one immutable snapshot of the analysis service's tunables. It is
// never mutated in place; reloads build a fresh snapshot and swap the pointer.
type Config struct {
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`

	MaxTokens      int `mapstructure:"max_tokens"`
	MinTokens      int `mapstructure:"min_tokens"`
	TokenDecrement int `mapstructure:"token_decrement"`
	MaxRetries     int `mapstructure:"max_retries"`

	MaxTextLength    int `mapstructure:"max_text_length"`
	MaxTablesSummary int `mapstructure:"max_tables_summary"`

	// PromptTemplates maps template id -> template text with {{TEXT}},
	// {{TABLES}} and {{FILENAME}} placeholders. Experts select an id.
	PromptTemplates map[string]string `mapstructure:"prompt_templates"`
	DefaultTemplate string            `mapstructure:"default_template"`
}

// DefaultConfig returns the baseline snapshot used when no file is present.
func DefaultConfig() Config {
	return Config{
		Model:            "gpt-4o-mini",
		BaseURL:          "https://api.openai.com/v1",
		Temperature:      0.0,
		Timeout:          60 * time.Second,
		MaxTokens:        8192,
		MinTokens:        1024,
		TokenDecrement:   2048,
		MaxRetries:       5,
		MaxTextLength:    12000,
		MaxTablesSummary: 8,
		DefaultTemplate:  "datasheet",
		PromptTemplates: map[string]string{
			"datasheet": defaultDatasheetTemplate,
		},
	}
}

// Provider hands out the current snapshot and swaps it atomically on reload,
// so an in-flight analysis keeps the config it started with.
type Provider struct {
	cur    atomic.Pointer[Config]
	logger *slog.Logger
}

func NewProvider(cfg Config, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{logger: logger}
	p.cur.Store(&cfg)
	return p
}

// Current returns the active snapshot.
func (p *Provider) Current() Config { return *p.cur.Load() }

// Swap installs a new snapshot.
func (p *Provider) Swap(cfg Config) {
	p.cur.Store(&cfg)
	p.logger.Info("analysis.config.swapped",
		"model", cfg.Model, "max_tokens", cfg.MaxTokens, "templates", len(cfg.PromptTemplates))
}

// LoadFile reads a snapshot from a YAML file, layered over DefaultConfig.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read analysis config: %w", err)
	}
	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal analysis config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WatchFile hot-reloads the snapshot whenever the file changes. A snapshot
// that fails validation is rejected and the previous one stays active.
func (p *Provider) WatchFile(path string) {
	v := viper.New()
	v.SetConfigFile(path)
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := LoadFile(path)
		if err != nil {
			p.logger.Error("analysis.config.reload_failed", "path", path, "error", err)
			return
		}
		p.Swap(cfg)
	})
	v.WatchConfig()
}

func (c Config) validate() error {
	if c.MinTokens <= 0 || c.MaxTokens < c.MinTokens {
		return fmt.Errorf("invalid token bounds: max=%d min=%d", c.MaxTokens, c.MinTokens)
	}
	if c.TokenDecrement <= 0 {
		return fmt.Errorf("token_decrement must be positive, got %d", c.TokenDecrement)
	}
	if _, ok := c.PromptTemplates[c.DefaultTemplate]; !ok {
		return fmt.Errorf("default_template %q has no template text", c.DefaultTemplate)
	}
	return nil
}
