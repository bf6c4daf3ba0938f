package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Store   StoreConfig
	Extract ExtractConfig
	Queue   QueueConfig
	Ingest  IngestConfig
	Fetch   FetchConfig

	// AnalysisConfigPath points at the hot-reloadable analysis YAML;
	// empty keeps the built-in defaults.
	AnalysisConfigPath string

	// ExpertsConfigPath points at the expert registry YAML; empty runs
	// with only the default expert.
	ExpertsConfigPath string

	// TablesConfigPath points at the table-engine tuning YAML (global
	// backend weights, blend weights, keywords); empty keeps defaults.
	TablesConfigPath string
}

// StoreConfig selects the idempotency store backend.
type StoreConfig struct {
	// Driver: "memory" | "sqlite" | "postgres"
	Driver string
	// DSN: sqlite file path or postgres URL, depending on Driver.
	DSN string
	// WaitForInFlight: true -> briefly wait on concurrent duplicates,
	// false -> return a "processing" status immediately.
	WaitForInFlight bool
}

// ExtractConfig holds extraction-related configuration
type ExtractConfig struct {
	Pdftotext     string
	Pdftoppm      string
	Tesseract     string
	TesseractLang string
	DPI           int
	MaxPages      int
}

// QueueConfig holds worker pool configuration
type QueueConfig struct {
	Workers     int
	Size        int
	TaskTimeout time.Duration
	// RejectWhenFull: true -> reject on a full queue instead of blocking.
	RejectWhenFull bool
}

// IngestConfig holds inbox watcher configuration
type IngestConfig struct {
	Roots    []string
	Debounce time.Duration
}

// FetchConfig holds MinIO/S3 document source configuration
type FetchConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:          getEnv("STORE_DRIVER", "sqlite"),
			DSN:             getEnv("STORE_DSN", "./extraction.db"),
			WaitForInFlight: getEnvAsBool("STORE_WAIT_IN_FLIGHT", false),
		},
		Extract: ExtractConfig{
			Pdftotext:     getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:      getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "hun+eng"),
			DPI:           getEnvAsInt("OCR_DPI", 300),
			MaxPages:      getEnvAsInt("OCR_MAX_PAGES", 0),
		},
		Queue: QueueConfig{
			Workers:        getEnvAsInt("QUEUE_WORKERS", 4),
			Size:           getEnvAsInt("QUEUE_SIZE", 256),
			TaskTimeout:    getEnvAsDuration("QUEUE_TASK_TIMEOUT", 3*time.Minute),
			RejectWhenFull: getEnvAsBool("QUEUE_REJECT_WHEN_FULL", false),
		},
		Ingest: IngestConfig{
			Roots:    splitNonEmpty(getEnv("INBOX_ROOTS", "./inbox")),
			Debounce: getEnvAsDuration("INBOX_DEBOUNCE", 500*time.Millisecond),
		},
		Fetch: FetchConfig{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", ""),
			UseSSL:    getEnvAsBool("S3_USE_SSL", false),
		},
		AnalysisConfigPath: getEnv("ANALYSIS_CONFIG", ""),
		ExpertsConfigPath:  getEnv("EXPERTS_CONFIG", ""),
		TablesConfigPath:   getEnv("TABLES_CONFIG", ""),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitNonEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return NewAppError("CONFIG_ERROR", "STORE_DRIVER must be memory, sqlite or postgres", ErrInvalidInput)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return NewAppError("CONFIG_ERROR", "STORE_DSN is required", ErrInvalidInput)
	}
	return nil
}
