package application

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-arena/infrastructure/llm"
	"github.com/ahrav/go-arena/internal/ports"
)

// EnvPrefix marks environment variables that override configuration keys.
// A double underscore separates key levels: ARENA_SERVER__ADDR sets server.addr.
const EnvPrefix = "ARENA_"

// apiKeyEnv names the conventional API key variable for each provider type.
var apiKeyEnv = map[string][]string{
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"google":    {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"grok":      {"XAI_API_KEY", "GROK_API_KEY"},
}

// Config is the complete arena configuration.
type Config struct {
	// Battle holds the retry and resilience policy for provider calls.
	Battle BattleConfig `koanf:"battle"`
	// Providers lists the roster in battle order.
	Providers []ProviderConfig `koanf:"providers" validate:"required,min=1,unique=Key,dive"`
	// Server configures the HTTP API.
	Server ServerConfig `koanf:"server"`
	// Store selects the battle persistence backend.
	Store StoreConfig `koanf:"store"`
	// Telemetry toggles metrics exposition.
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// BattleConfig controls how candidates are called.
type BattleConfig struct {
	MaxAttempts int           `koanf:"max_attempts" validate:"min=1,max=10"`
	Backoff     time.Duration `koanf:"backoff" validate:"min=0,max=1m"`
	CallTimeout time.Duration `koanf:"call_timeout" validate:"min=1s,max=30m"`
	// CircuitMaxFailures consecutive failures open a candidate's circuit.
	CircuitMaxFailures int           `koanf:"circuit_max_failures" validate:"min=1,max=1000"`
	CircuitCooldown    time.Duration `koanf:"circuit_cooldown" validate:"min=0,max=1h"`
}

// ProviderConfig describes one roster candidate.
type ProviderConfig struct {
	Key         string `koanf:"key" validate:"required,max=64"`
	Provider    string `koanf:"provider" validate:"required,providertype"`
	Model       string `koanf:"model" validate:"required"`
	DisplayName string `koanf:"display_name"`
	APIKey      string `koanf:"api_key"`
	BaseURL     string `koanf:"base_url" validate:"omitempty,url"`
	// RateLimit is the sustained request rate per second; zero disables limiting.
	RateLimit float64 `koanf:"rate_limit" validate:"min=0"`
	Burst     int     `koanf:"burst" validate:"min=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	AllowedOrigins  []string      `koanf:"allowed_origins" validate:"dive,url"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=0"`
}

// StoreConfig selects and tunes the battle store.
type StoreConfig struct {
	Driver          string        `koanf:"driver" validate:"oneof=memory mysql"`
	DSN             string        `koanf:"dsn" validate:"required_if=Driver mysql"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"min=0"`
}

// TelemetryConfig toggles observability endpoints.
type TelemetryConfig struct {
	MetricsEnabled bool `koanf:"metrics_enabled"`
}

// DefaultProviders is the roster used when the configuration lists none.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{Key: "openai", Provider: "openai", Model: llm.OpenAIDefaultModel},
		{Key: "anthropic", Provider: "anthropic", Model: llm.AnthropicDefaultModel},
		{Key: "google", Provider: "google", Model: llm.GoogleDefaultModel},
		{Key: "grok", Provider: "grok", Model: llm.GrokDefaultModel},
	}
}

var defaults = map[string]any{
	"battle.max_attempts":         DefaultMaxAttempts,
	"battle.backoff":              DefaultBackoff.String(),
	"battle.call_timeout":         "20s",
	"battle.circuit_max_failures": 5,
	"battle.circuit_cooldown":     "30s",
	"server.addr":                 ":8000",
	"server.allowed_origins":      []string{"http://localhost:5173", "http://localhost:3000"},
	"server.shutdown_timeout":     "10s",
	"store.driver":                "memory",
	"store.max_open_conns":        10,
	"store.max_idle_conns":        5,
	"store.conn_max_lifetime":     "5m",
	"telemetry.metrics_enabled":   true,
}

// LoadConfig builds the configuration from defaults, an optional YAML file,
// a .env file in the working directory and ARENA_ environment variables, in
// increasing precedence. An empty path skips the file. Provider API keys
// left empty are filled from the providers' conventional variables.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, ports.NewConfigError(".env", err)
	}

	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, ports.NewConfigError(key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				err = fmt.Errorf("%w: %s", ports.ErrConfigNotFound, path)
			}
			return nil, ports.NewConfigError(path, fmt.Errorf("load config file: %w", err))
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, ports.NewConfigError("env", fmt.Errorf("load environment: %w", err))
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, ports.NewConfigError("unmarshal", err)
	}

	if len(cfg.Providers) == 0 {
		cfg.Providers = DefaultProviders()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.injectAPIKeys()
	return &cfg, nil
}

// envKey maps ARENA_BATTLE__CALL_TIMEOUT to battle.call_timeout.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("providertype", validateProviderType); err != nil {
		panic(fmt.Sprintf("register providertype validator: %v", err))
	}
	return v
}

// validateProviderType accepts any registered provider factory name.
func validateProviderType(fl validator.FieldLevel) bool {
	return slices.Contains(llm.ProviderTypes(), fl.Field().String())
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return ports.NewConfigError("validate", err)
	}
	return nil
}

func (c *Config) injectAPIKeys() {
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.APIKey != "" {
			continue
		}
		for _, name := range apiKeyEnv[p.Provider] {
			if key := os.Getenv(name); key != "" {
				p.APIKey = key
				break
			}
		}
	}
}

// CandidateConfigs converts the provider list into roster entries. Each
// candidate gets its own rate limiter and the configured call timeout.
func (c *Config) CandidateConfigs() []llm.CandidateConfig {
	out := make([]llm.CandidateConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		var mw []llm.Middleware
		if p.RateLimit > 0 {
			burst := max(p.Burst, 1)
			mw = append(mw, llm.RateLimitMiddleware(rate.Limit(p.RateLimit), burst))
		}
		mw = append(mw, llm.TimeoutMiddleware(c.Battle.CallTimeout))

		out = append(out, llm.CandidateConfig{
			Key:         p.Key,
			Provider:    p.Provider,
			Model:       p.Model,
			DisplayName: p.DisplayName,
			APIKey:      p.APIKey,
			BaseURL:     p.BaseURL,
			Timeout:     c.Battle.CallTimeout,
			Middleware:  mw,
		})
	}
	return out
}

// InvokerConfig returns the retry policy for the invoker.
func (c *Config) InvokerConfig() InvokerConfig {
	backoff := c.Battle.Backoff
	if backoff == 0 {
		backoff = -1
	}
	return InvokerConfig{MaxAttempts: c.Battle.MaxAttempts, Backoff: backoff}
}
