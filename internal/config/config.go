package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort                   = "8080"
	defaultLocalHost              = "http://localhost:11434"
	defaultCloudHost              = "https://ollama.com"
	defaultBraveBaseURL           = "https://api.search.brave.com/res/v1"
	defaultUpstreamTimeoutSeconds = 120
	defaultSearchResultLimit      = 5
	maxSearchResultLimit          = 5
	defaultDraftSliceSize         = 10
	defaultAdequacyMaxRetries     = 1
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeCloud Mode = "cloud"
)

type SearchProvider string

const (
	SearchProviderGoogle SearchProvider = "google"
	SearchProviderBrave  SearchProvider = "brave"
)

type Config struct {
	Port            string
	Environment     string
	LogLevel        string
	AllowedOrigins  []string
	StaticDir       string
	Mode            Mode
	OllamaHost      string
	OllamaAPIKey    string
	DefaultModel    string
	UpstreamTimeout time.Duration

	SearchProvider      SearchProvider
	GoogleAPIKey        string
	GoogleCSEID         string
	GoogleSearchBaseURL string
	BraveAPIKey         string
	BraveBaseURL        string
	SearchResultLimit   int
	SearchMinInterval   time.Duration

	DraftSliceSize     int
	AdequacyMaxRetries int

	DatabaseURL       string
	DatabaseAuthToken string
}

// tunables is the optional YAML overlay read from CONFIG_FILE.
type tunables struct {
	DefaultModel       *string `yaml:"defaultModel"`
	SearchResultLimit  *int    `yaml:"searchResultLimit"`
	SearchMinInterval  *int    `yaml:"searchMinIntervalMs"`
	DraftSliceSize     *int    `yaml:"draftSliceSize"`
	AdequacyMaxRetries *int    `yaml:"adequacyMaxRetries"`
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) SearchConfigured() bool {
	switch c.SearchProvider {
	case SearchProviderBrave:
		return c.BraveAPIKey != ""
	default:
		return c.GoogleAPIKey != "" && c.GoogleCSEID != ""
	}
}

func Load() (Config, error) {
	cfg := Config{
		Port:                envOrDefault("PORT", defaultPort),
		Environment:         envOrDefault("APP_ENV", "development"),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		StaticDir:           strings.TrimSpace(os.Getenv("STATIC_DIR")),
		Mode:                Mode(strings.ToLower(envOrDefault("OLLAMA_MODE", string(ModeLocal)))),
		OllamaAPIKey:        strings.TrimSpace(os.Getenv("OLLAMA_API_KEY")),
		DefaultModel:        strings.TrimSpace(os.Getenv("DEFAULT_MODEL")),
		UpstreamTimeout:     time.Duration(intOrDefault("UPSTREAM_TIMEOUT_SECONDS", defaultUpstreamTimeoutSeconds)) * time.Second,
		SearchProvider:      SearchProvider(strings.ToLower(envOrDefault("SEARCH_PROVIDER", string(SearchProviderGoogle)))),
		GoogleAPIKey:        strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")),
		GoogleCSEID:         strings.TrimSpace(os.Getenv("GOOGLE_CSE_ID")),
		GoogleSearchBaseURL: strings.TrimSpace(os.Getenv("GOOGLE_SEARCH_BASE_URL")),
		BraveAPIKey:         strings.TrimSpace(os.Getenv("BRAVE_API_KEY")),
		BraveBaseURL:        envOrDefault("BRAVE_BASE_URL", defaultBraveBaseURL),
		SearchResultLimit:   intOrDefault("SEARCH_RESULT_LIMIT", defaultSearchResultLimit),
		SearchMinInterval:   time.Duration(intOrDefault("SEARCH_MIN_INTERVAL_MS", 0)) * time.Millisecond,
		DraftSliceSize:      intOrDefault("DRAFT_SLICE_SIZE", defaultDraftSliceSize),
		AdequacyMaxRetries:  intOrDefault("ADEQUACY_MAX_RETRIES", defaultAdequacyMaxRetries),
		DatabaseURL:         strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DatabaseAuthToken:   strings.TrimSpace(os.Getenv("DATABASE_AUTH_TOKEN")),
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyTunablesFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	switch cfg.Mode {
	case ModeLocal:
		cfg.OllamaHost = envOrDefault("OLLAMA_HOST", defaultLocalHost)
	case ModeCloud:
		cfg.OllamaHost = envOrDefault("OLLAMA_HOST", defaultCloudHost)
		if cfg.OllamaAPIKey == "" {
			return Config{}, errors.New("OLLAMA_API_KEY is required when OLLAMA_MODE=cloud")
		}
	default:
		return Config{}, fmt.Errorf("OLLAMA_MODE must be local or cloud, got %q", cfg.Mode)
	}
	cfg.OllamaHost = strings.TrimRight(cfg.OllamaHost, "/")

	switch cfg.SearchProvider {
	case SearchProviderGoogle, SearchProviderBrave:
	default:
		return Config{}, fmt.Errorf("SEARCH_PROVIDER must be google or brave, got %q", cfg.SearchProvider)
	}

	origins := parseList(envOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:4173"))
	if len(origins) == 0 {
		return Config{}, errors.New("CORS_ALLOWED_ORIGINS must include at least one origin")
	}
	cfg.AllowedOrigins = origins

	if cfg.UpstreamTimeout <= 0 {
		return Config{}, errors.New("UPSTREAM_TIMEOUT_SECONDS must be > 0")
	}
	if cfg.SearchResultLimit < 1 || cfg.SearchResultLimit > maxSearchResultLimit {
		return Config{}, fmt.Errorf("SEARCH_RESULT_LIMIT must be between 1 and %d", maxSearchResultLimit)
	}
	if cfg.SearchMinInterval < 0 {
		return Config{}, errors.New("SEARCH_MIN_INTERVAL_MS must be >= 0")
	}
	if cfg.DraftSliceSize < 1 {
		return Config{}, errors.New("DRAFT_SLICE_SIZE must be > 0")
	}
	if cfg.AdequacyMaxRetries < 0 {
		return Config{}, errors.New("ADEQUACY_MAX_RETRIES must be >= 0")
	}
	if strings.HasPrefix(cfg.DatabaseURL, "libsql://") && cfg.DatabaseAuthToken == "" {
		return Config{}, errors.New("DATABASE_AUTH_TOKEN is required for libsql:// URLs")
	}

	return cfg, nil
}

func applyTunablesFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var overlay tunables
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if overlay.DefaultModel != nil {
		cfg.DefaultModel = strings.TrimSpace(*overlay.DefaultModel)
	}
	if overlay.SearchResultLimit != nil {
		cfg.SearchResultLimit = *overlay.SearchResultLimit
	}
	if overlay.SearchMinInterval != nil {
		cfg.SearchMinInterval = time.Duration(*overlay.SearchMinInterval) * time.Millisecond
	}
	if overlay.DraftSliceSize != nil {
		cfg.DraftSliceSize = *overlay.DraftSliceSize
	}
	if overlay.AdequacyMaxRetries != nil {
		cfg.AdequacyMaxRetries = *overlay.AdequacyMaxRetries
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
