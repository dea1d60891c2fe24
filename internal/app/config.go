package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	env "github.com/allisson/go-env"
	validation "github.com/jellydator/validation"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"keybridge/internal/bridge"
	"keybridge/internal/codec"
	"keybridge/internal/domain"
	"keybridge/internal/services/message"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KEYBRIDGE_"

// ErrInvalidConfig wraps every Validate failure.
var ErrInvalidConfig = fmt.Errorf("%w: invalid config", domain.ErrConfiguration)

// Config holds runtime wiring options for building the app.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // console or json
	Home      string `yaml:"home"`       // contact store directory, e.g. $HOME/.keybridge

	Relay   RelayConfig   `yaml:"relay"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Gateway GatewayConfig `yaml:"gateway"`
	Webhook WebhookConfig `yaml:"webhook"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type RelayConfig struct {
	URL string `yaml:"url"`
}

type BridgeConfig struct {
	EventBuffer int             `yaml:"event_buffer"`
	Backoff     []time.Duration `yaml:"backoff"`
}

type GatewayConfig struct {
	BaseURL      string          `yaml:"base_url"`
	RateLimit    float64         `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst        int             `yaml:"burst"`
	KeyCacheSize int             `yaml:"key_cache_size"`
	Accounts     []AccountConfig `yaml:"accounts"`
}

// AccountConfig is one gateway identity. PrivateKey is 64 hex characters.
type AccountConfig struct {
	Name       string `yaml:"name"`
	ID         string `yaml:"id"`
	Secret     string `yaml:"secret"`
	PrivateKey string `yaml:"private_key"`
}

type WebhookConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

type MetricsConfig struct {
	// Listen serves /metrics on its own address. Empty serves it next to the webhook.
	Listen    string `yaml:"listen"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when no file or environment says otherwise.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "console",
		Relay:     RelayConfig{URL: "http://127.0.0.1:8080"},
		Bridge: BridgeConfig{
			EventBuffer: bridge.DefaultEventBuffer,
			Backoff:     append([]time.Duration(nil), bridge.DefaultBackoff...),
		},
		Gateway: GatewayConfig{
			BaseURL:      "https://msgapi.threema.ch",
			Burst:        1,
			KeyCacheSize: 1000,
		},
		Webhook: WebhookConfig{Listen: ":8443", Path: "/webhook"},
		Metrics: MetricsConfig{Namespace: "keybridge"},
	}
}

// Load reads path (optional) over the defaults, then applies a .env file and
// KEYBRIDGE_* environment overrides. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, path, err)
		}
	}
	loadDotEnv()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if cfg.Home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("%w: no home directory: %v", domain.ErrConfiguration, err)
		}
		cfg.Home = filepath.Join(dir, ".keybridge")
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = env.GetString(EnvPrefix+"LOG_LEVEL", c.LogLevel)
	c.LogFormat = env.GetString(EnvPrefix+"LOG_FORMAT", c.LogFormat)
	c.Home = env.GetString(EnvPrefix+"HOME", c.Home)
	c.Relay.URL = env.GetString(EnvPrefix+"RELAY_URL", c.Relay.URL)
	c.Bridge.EventBuffer = env.GetInt(EnvPrefix+"BRIDGE_EVENT_BUFFER", c.Bridge.EventBuffer)
	c.Gateway.BaseURL = env.GetString(EnvPrefix+"GATEWAY_BASE_URL", c.Gateway.BaseURL)
	c.Gateway.RateLimit = env.GetFloat64(EnvPrefix+"GATEWAY_RATE_LIMIT", c.Gateway.RateLimit)
	c.Gateway.Burst = env.GetInt(EnvPrefix+"GATEWAY_BURST", c.Gateway.Burst)
	c.Gateway.KeyCacheSize = env.GetInt(EnvPrefix+"GATEWAY_KEY_CACHE_SIZE", c.Gateway.KeyCacheSize)
	c.Webhook.Listen = env.GetString(EnvPrefix+"WEBHOOK_LISTEN", c.Webhook.Listen)
	c.Webhook.Path = env.GetString(EnvPrefix+"WEBHOOK_PATH", c.Webhook.Path)
	c.Metrics.Listen = env.GetString(EnvPrefix+"METRICS_LISTEN", c.Metrics.Listen)
	c.Metrics.Namespace = env.GetString(EnvPrefix+"METRICS_NAMESPACE", c.Metrics.Namespace)

	// KEYBRIDGE_BRIDGE_BACKOFF=1s,2s,5s
	if v := strings.TrimSpace(os.Getenv(EnvPrefix + "BRIDGE_BACKOFF")); v != "" {
		var delays []time.Duration
		for _, part := range strings.Split(v, ",") {
			d, err := time.ParseDuration(strings.TrimSpace(part))
			if err != nil {
				return fmt.Errorf("%w: %sBRIDGE_BACKOFF: %v", domain.ErrConfiguration, EnvPrefix, err)
			}
			delays = append(delays, d)
		}
		c.Bridge.Backoff = delays
	}

	// A single account can come from the environment, replacing the file's.
	if id := env.GetString(EnvPrefix+"GATEWAY_ID", ""); id != "" {
		c.Gateway.Accounts = []AccountConfig{{
			Name:       env.GetString(EnvPrefix+"GATEWAY_NAME", ""),
			ID:         id,
			Secret:     env.GetString(EnvPrefix+"GATEWAY_SECRET", ""),
			PrivateKey: env.GetString(EnvPrefix+"GATEWAY_PRIVATE_KEY", ""),
		}}
	}
	return nil
}

// loadDotEnv loads the nearest .env file from the working directory upwards.
// Variables already set in the process environment win.
func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for {
		p := filepath.Join(dir, ".env")
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// Validate checks the values every command relies on.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.LogFormat, validation.In("console", "json")),
		validation.Field(&c.Home, validation.Required),
		validation.Field(&c.Bridge),
		validation.Field(&c.Gateway),
		validation.Field(&c.Webhook),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (b BridgeConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.EventBuffer, validation.Required, validation.Min(1)),
		validation.Field(&b.Backoff, validation.Required, validation.Each(validation.By(positiveDuration))),
	)
}

func (g GatewayConfig) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.BaseURL, validation.Required),
		validation.Field(&g.RateLimit, validation.Min(0.0)),
		validation.Field(&g.Burst, validation.Min(0)),
		validation.Field(&g.KeyCacheSize, validation.Required, validation.Min(1)),
		validation.Field(&g.Accounts),
	)
}

func (a AccountConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.ID, validation.Required, validation.Length(8, 8).Error("id must be 8 characters")),
		validation.Field(&a.Secret, validation.Required),
		validation.Field(&a.PrivateKey, validation.Required, validation.By(hexKey)),
	)
}

func (w WebhookConfig) Validate() error {
	return validation.ValidateStruct(&w,
		validation.Field(&w.Listen, validation.Required),
		validation.Field(&w.Path, validation.Required, validation.By(absolutePath)),
	)
}

func positiveDuration(v any) error {
	if d, ok := v.(time.Duration); ok && d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

// hexKey reports whether v is a 32-byte key in hex without echoing it back.
func hexKey(v any) error {
	s, _ := v.(string)
	if _, err := codec.DecodeHexFixed(s, domain.KeySize); err != nil {
		return errors.New("must be 64 hex characters")
	}
	return nil
}

func absolutePath(v any) error {
	if s, _ := v.(string); !strings.HasPrefix(s, "/") {
		return errors.New("must start with /")
	}
	return nil
}

// MessageAccounts converts the configured gateway accounts.
func (g GatewayConfig) MessageAccounts() ([]message.Account, error) {
	out := make([]message.Account, 0, len(g.Accounts))
	for _, a := range g.Accounts {
		raw, err := codec.DecodeHexFixed(a.PrivateKey, domain.KeySize)
		if err != nil {
			return nil, fmt.Errorf("%w: account %s: private key must be 64 hex characters", ErrInvalidConfig, a.ID)
		}
		sk, err := domain.SecretKeyFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: account %s: %v", ErrInvalidConfig, a.ID, err)
		}
		out = append(out, message.Account{
			Name:       a.Name,
			ID:         strings.ToUpper(a.ID),
			Secret:     a.Secret,
			PrivateKey: sk,
		})
	}
	return out, nil
}
