package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile     = "config.yaml"
	DefaultConfigDir      = ".feedherald"
	DefaultStoragePath    = ".feedherald/feedherald.db"
	DefaultRetainDays     = 90
	DefaultUserAgent      = "feedherald (+https://github.com/ppiankov/feedherald)"
	DefaultTimeout        = 30 * time.Second
	DefaultMinInterval    = time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = time.Second
	DefaultCacheTTL       = 5 * time.Minute
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultLoopPeriod     = 421 * time.Second
	DefaultFeedPeriod     = 3607 * time.Second
	DefaultZoteroPeriod   = 3613 * time.Second
	DefaultChannelPeriod  = 1801 * time.Second
	DefaultLanguage       = "en"
	DefaultBatch          = 1
	DefaultMaxSeen        = 500
	DefaultOnSendFailure  = "drop"
	DefaultVisibility     = "public"
	DefaultRedactReplaced = "[REDACTED]"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "3607s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Storage  StorageConfig   `yaml:"storage"`
	HTTP     HTTPConfig      `yaml:"http"`
	Log      LogConfig       `yaml:"log"`
	Loop     LoopConfig      `yaml:"loop"`
	Sources  []SourceConfig  `yaml:"sources"`
	Channels []ChannelConfig `yaml:"channels"`
	Review   ReviewConfig    `yaml:"review"`
	Privacy  PrivacyConfig   `yaml:"privacy"`
}

type StorageConfig struct {
	Path       string `yaml:"path"`
	RetainDays int    `yaml:"retain_days"`
}

type HTTPConfig struct {
	UserAgent   string   `yaml:"user_agent"`
	From        string   `yaml:"from"`
	Timeout     Duration `yaml:"timeout"`
	MinInterval Duration `yaml:"min_interval"`
	MaxRetries  int      `yaml:"max_retries"` // negative disables retries
	RetryDelay  Duration `yaml:"retry_delay"`
	CacheTTL    Duration `yaml:"cache_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type LoopConfig struct {
	Period      Duration `yaml:"period"`
	MetricsAddr string   `yaml:"metrics_addr"`
}

type SourceConfig struct {
	Name           string            `yaml:"name"`
	Kind           string            `yaml:"kind"`
	URI            string            `yaml:"uri"`
	Period         Duration          `yaml:"period"`
	Tags           []string          `yaml:"tags"`
	MaxSeen        int               `yaml:"max_seen"`
	DayGranularity *bool             `yaml:"day_granularity"`
	People         map[string]string `yaml:"people"`
	APIKeyEnv      string            `yaml:"api_key_env"`

	// Resolved from env var at load time.
	APIKey string `yaml:"-"`
}

// DayGranular reports whether first-published dates compare by calendar
// day. Unset means true.
func (s SourceConfig) DayGranular() bool {
	return s.DayGranularity == nil || *s.DayGranularity
}

type ChannelConfig struct {
	Name           string   `yaml:"name"`
	Kind           string   `yaml:"kind"`
	Server         string   `yaml:"server"`
	AccessTokenEnv string   `yaml:"access_token_env"`
	Visibility     string   `yaml:"visibility"`
	Language       string   `yaml:"language"`
	Period         Duration `yaml:"period"`
	Batch          int      `yaml:"batch"`
	OnSendFailure  string   `yaml:"on_send_failure"`

	// Resolved from env var at load time.
	AccessToken string `yaml:"-"`
}

type ReviewConfig struct {
	Color bool `yaml:"color"`
}

type PrivacyConfig struct {
	Redact RedactConfig `yaml:"redact"`
}

type RedactConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Patterns    []string `yaml:"patterns"`
	Placeholder string   `yaml:"placeholder"`
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Source returns the named source entry.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// Channel returns the named channel entry.
func (c *Config) Channel(name string) (ChannelConfig, bool) {
	for _, ch := range c.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.RetainDays == 0 {
		cfg.Storage.RetainDays = DefaultRetainDays
	}

	h := &cfg.HTTP
	if h.UserAgent == "" {
		h.UserAgent = DefaultUserAgent
	}
	if h.Timeout.Duration == 0 {
		h.Timeout.Duration = DefaultTimeout
	}
	if h.MinInterval.Duration == 0 {
		h.MinInterval.Duration = DefaultMinInterval
	}
	if h.MaxRetries == 0 {
		h.MaxRetries = DefaultMaxRetries
	} else if h.MaxRetries < 0 {
		h.MaxRetries = 0
	}
	if h.RetryDelay.Duration == 0 {
		h.RetryDelay.Duration = DefaultRetryDelay
	}
	if h.CacheTTL.Duration == 0 {
		h.CacheTTL.Duration = DefaultCacheTTL
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Loop.Period.Duration == 0 {
		cfg.Loop.Period.Duration = DefaultLoopPeriod
	}

	for i := range cfg.Sources {
		s := &cfg.Sources[i]
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		if s.Period.Duration == 0 {
			s.Period.Duration = DefaultFeedPeriod
			if s.Kind == "zotero" {
				s.Period.Duration = DefaultZoteroPeriod
			}
		}
		if s.Kind == "pleiades" && s.MaxSeen == 0 {
			s.MaxSeen = DefaultMaxSeen
		}
	}

	for i := range cfg.Channels {
		ch := &cfg.Channels[i]
		ch.Kind = strings.ToLower(strings.TrimSpace(ch.Kind))
		if ch.Language == "" {
			ch.Language = DefaultLanguage
		}
		if ch.Period.Duration == 0 {
			ch.Period.Duration = DefaultChannelPeriod
		}
		if ch.Batch == 0 {
			ch.Batch = DefaultBatch
		}
		if ch.OnSendFailure == "" {
			ch.OnSendFailure = DefaultOnSendFailure
		}
		if ch.Kind == "gotosocial" && ch.Visibility == "" {
			ch.Visibility = DefaultVisibility
		}
	}

	if cfg.Privacy.Redact.Placeholder == "" {
		cfg.Privacy.Redact.Placeholder = DefaultRedactReplaced
	}
}

func resolveEnv(cfg *Config) {
	for i := range cfg.Sources {
		if env := cfg.Sources[i].APIKeyEnv; env != "" {
			cfg.Sources[i].APIKey = os.Getenv(env)
		}
	}
	for i := range cfg.Channels {
		if env := cfg.Channels[i].AccessTokenEnv; env != "" {
			cfg.Channels[i].AccessToken = os.Getenv(env)
		}
	}
}

func validate(cfg *Config) error {
	if len(cfg.Sources) == 0 {
		return errors.New("sources: at least one source must be configured")
	}

	names := make(map[string]bool)
	for i, s := range cfg.Sources {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("sources[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true

		switch s.Kind {
		case "atom", "pleiades", "zotero":
			// valid
		default:
			return fmt.Errorf("sources.%s.kind: unknown kind %q (want atom, pleiades or zotero)", s.Name, s.Kind)
		}
		if err := validateURI(s.URI); err != nil {
			return fmt.Errorf("sources.%s.uri: %w", s.Name, err)
		}
		if s.Period.Duration < 0 {
			return fmt.Errorf("sources.%s.period: must be positive", s.Name)
		}
		if s.Kind == "pleiades" && s.MaxSeen < DefaultMaxSeen {
			return fmt.Errorf("sources.%s.max_seen: must be at least %d", s.Name, DefaultMaxSeen)
		}
		if s.APIKeyEnv != "" && s.APIKey == "" {
			return fmt.Errorf("sources.%s.api_key_env: %s is not set", s.Name, s.APIKeyEnv)
		}
	}

	names = make(map[string]bool)
	for i, ch := range cfg.Channels {
		if strings.TrimSpace(ch.Name) == "" {
			return fmt.Errorf("channels[%d]: name is required", i)
		}
		if names[ch.Name] {
			return fmt.Errorf("channels[%d]: duplicate name %q", i, ch.Name)
		}
		names[ch.Name] = true

		switch ch.Kind {
		case "gotosocial":
			if err := validateURI(ch.Server); err != nil {
				return fmt.Errorf("channels.%s.server: %w", ch.Name, err)
			}
			if ch.AccessToken == "" {
				return fmt.Errorf("channels.%s.access_token_env: token is not set", ch.Name)
			}
			switch ch.Visibility {
			case "public", "unlisted", "private", "direct":
				// valid
			default:
				return fmt.Errorf("channels.%s.visibility: unknown %q", ch.Name, ch.Visibility)
			}
		case "stdout":
			// valid
		default:
			return fmt.Errorf("channels.%s.kind: unknown kind %q (want gotosocial or stdout)", ch.Name, ch.Kind)
		}
		if ch.Batch < 0 {
			return fmt.Errorf("channels.%s.batch: must be positive", ch.Name)
		}
		switch ch.OnSendFailure {
		case "drop", "requeue":
			// valid
		default:
			return fmt.Errorf("channels.%s.on_send_failure: unknown policy %q (want drop or requeue)", ch.Name, ch.OnSendFailure)
		}
	}

	switch cfg.Log.Format {
	case "text", "json":
		// valid
	default:
		return fmt.Errorf("log.format: unknown format %q (want text or json)", cfg.Log.Format)
	}

	if cfg.Privacy.Redact.Enabled {
		for _, p := range cfg.Privacy.Redact.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("privacy.redact.patterns: %w", err)
			}
		}
	}

	return nil
}

func validateURI(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid uri %q", raw)
	}
	return nil
}
