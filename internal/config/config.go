// Package config builds the process configuration once at startup from a .env
// file and the environment. Components receive the values they need explicitly.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/CravingCompanion/internal/models"
	"github.com/BTreeMap/CravingCompanion/internal/policy"
	"github.com/BTreeMap/CravingCompanion/internal/script"
)

// Defaults applied when the environment leaves a value unset.
const (
	DefaultPort              = "4000"
	DefaultModel             = "gpt-4o-mini"
	DefaultGeminiModel       = "gemini-2.5-flash"
	DefaultGenerationTimeout = 20 * time.Second
	DefaultCORSOrigin        = "*"
	DefaultMemoryStoreSize   = 10000
)

// Config is the full process configuration.
type Config struct {
	Addr       string
	ScriptPath string

	LLMProvider     string
	LLMDefaultModel string
	LLMVoiceModel   string
	LLMTextModel    string

	OpenAIAPIKey       string
	OpenAIBaseURL      string
	GeminiAPIKey       string
	GeminiDefaultModel string
	GenerationTimeout  time.Duration

	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	SessionTTL      time.Duration
	MemoryStoreSize int

	CORSAllowedOrigin string
	LogLevel          string
	LogFormat         string
	MetricsEnabled    bool
}

// Load reads envFile (".env" when empty; a missing file is not an error) and then
// the environment. Malformed numeric or duration values are returned together.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		slog.Debug("config.Load: no env file loaded", "file", envFile, "error", err)
	} else {
		slog.Debug("config.Load: env file loaded", "file", envFile)
	}

	cfg := Config{
		Addr:               addrFromEnv(),
		ScriptPath:         getenv("SCRIPT_PATH", script.DefaultPath),
		LLMProvider:        strings.ToLower(getenv("LLM_PROVIDER", policy.DefaultProvider)),
		LLMDefaultModel:    getenv("LLM_DEFAULT_MODEL", ""),
		LLMVoiceModel:      getenv("LLM_VOICE_MODEL", ""),
		LLMTextModel:       getenv("LLM_TEXT_MODEL", ""),
		OpenAIAPIKey:       getenv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getenv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:       getenv("GEMINI_API_KEY", ""),
		GeminiDefaultModel: getenv("GEMINI_DEFAULT_MODEL", DefaultGeminiModel),
		DatabaseURL:        getenv("DATABASE_URL", ""),
		RedisAddr:          getenv("REDIS_ADDR", ""),
		RedisPassword:      getenv("REDIS_PASSWORD", ""),
		CORSAllowedOrigin:  getenv("CORS_ALLOWED_ORIGIN", DefaultCORSOrigin),
		LogLevel:           strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getenv("LOG_FORMAT", "text")),
	}
	if cfg.LLMDefaultModel == "" {
		cfg.LLMDefaultModel = defaultModelFor(cfg.LLMProvider, cfg.GeminiDefaultModel)
	}

	var errs []error
	var err error
	if cfg.GenerationTimeout, err = parseDurationEnv("GENERATION_TIMEOUT", DefaultGenerationTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.SessionTTL, err = parseDurationEnv("SESSION_TTL", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.MemoryStoreSize, err = parseIntEnv("MEMORY_STORE_SIZE", DefaultMemoryStoreSize); err != nil {
		errs = append(errs, err)
	}
	if cfg.MetricsEnabled, err = parseBoolEnv("METRICS_ENABLED", true); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}

	slog.Debug("config.Load: configuration loaded",
		"addr", cfg.Addr,
		"script_path", cfg.ScriptPath,
		"llm_provider", cfg.LLMProvider,
		"llm_default_model", cfg.LLMDefaultModel,
		"OPENAI_API_KEY_SET", cfg.OpenAIAPIKey != "",
		"GEMINI_API_KEY_SET", cfg.GeminiAPIKey != "",
		"DATABASE_URL_SET", cfg.DatabaseURL != "",
		"redis_addr", cfg.RedisAddr,
		"generation_timeout", cfg.GenerationTimeout)
	return cfg, nil
}

// defaultModelFor is the model used when LLM_DEFAULT_MODEL is unset.
func defaultModelFor(providerKey, geminiModel string) string {
	if providerKey == "gemini" {
		return geminiModel
	}
	return DefaultModel
}

// addrFromEnv prefers API_ADDR and falls back to ":" + PORT.
func addrFromEnv() string {
	if addr := getenv("API_ADDR", ""); addr != "" {
		return addr
	}
	return ":" + getenv("PORT", DefaultPort)
}

// Validate rejects values no component could work with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.ScriptPath == "" {
		errs = append(errs, errors.New("script path is empty"))
	}
	if c.GenerationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("generation timeout must be positive, got %s", c.GenerationTimeout))
	}
	if c.SessionTTL < 0 {
		errs = append(errs, fmt.Errorf("session TTL must not be negative, got %s", c.SessionTTL))
	}
	if c.MemoryStoreSize <= 0 {
		errs = append(errs, fmt.Errorf("memory store size must be positive, got %d", c.MemoryStoreSize))
	}
	if c.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("redis db must not be negative, got %d", c.RedisDB))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// PolicyConfig returns the resolver defaults.
func (c Config) PolicyConfig() policy.Config {
	modes := map[models.InteractionMode]string{}
	if c.LLMVoiceModel != "" {
		modes[models.ModeVoice] = c.LLMVoiceModel
	}
	if c.LLMTextModel != "" {
		modes[models.ModeText] = c.LLMTextModel
	}
	return policy.Config{
		DefaultProvider: c.LLMProvider,
		DefaultModel:    c.LLMDefaultModel,
		ModeModels:      modes,
		ProviderModels: map[string]string{
			"openai": DefaultModel,
			"gemini": c.GeminiDefaultModel,
		},
	}
}
