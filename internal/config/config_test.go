package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestYAML(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test yaml: %v", err)
	}
	return path
}

const minimalSources = `
sources:
  - name: blog
    kind: atom
    uri: https://blog.example.org/feed.atom
`

// --- Load tests ---

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_ZOTERO_KEY", "zkey")
	t.Setenv("TEST_GTS_TOKEN", "gtoken")

	writeTestYAML(t, dir, DefaultConfigFile, `
storage:
  path: custom.db
  retain_days: 30
http:
  user_agent: "herald-test/1.0"
  from: ops@example.org
  timeout: 10s
  min_interval: 2s
  max_retries: -1
  cache_ttl: 1m
log:
  level: debug
  format: json
loop:
  period: 60s
  metrics_addr: ":9090"
sources:
  - name: pleiades
    kind: Pleiades
    uri: https://pleiades.stoa.org/indexes/published/RSS
    tags: [Pleiades, ancienthistory]
    max_seen: 800
    day_granularity: false
    people:
      rtalbert: Rebecca Talbert
  - name: zotero
    kind: zotero
    uri: https://api.zotero.org/groups/2533
    api_key_env: TEST_ZOTERO_KEY
channels:
  - name: social
    kind: gotosocial
    server: https://social.example.org
    access_token_env: TEST_GTS_TOKEN
    batch: 3
    on_send_failure: requeue
  - name: console
    kind: stdout
    language: de
review:
  color: true
privacy:
  redact:
    enabled: true
    patterns:
      - "[\\w.+-]+@[\\w-]+\\.[\\w.]+"
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// Storage
	if cfg.Storage.Path != "custom.db" || cfg.Storage.RetainDays != 30 {
		t.Errorf("storage = %+v", cfg.Storage)
	}

	// HTTP
	if cfg.HTTP.UserAgent != "herald-test/1.0" || cfg.HTTP.From != "ops@example.org" {
		t.Errorf("identity = %q / %q", cfg.HTTP.UserAgent, cfg.HTTP.From)
	}
	if cfg.HTTP.Timeout.Duration != 10*time.Second || cfg.HTTP.MinInterval.Duration != 2*time.Second {
		t.Errorf("timing = %v / %v", cfg.HTTP.Timeout.Duration, cfg.HTTP.MinInterval.Duration)
	}
	if cfg.HTTP.MaxRetries != 0 {
		t.Errorf("max_retries = %d, want 0 for negative", cfg.HTTP.MaxRetries)
	}
	if cfg.HTTP.CacheTTL.Duration != time.Minute {
		t.Errorf("cache_ttl = %v", cfg.HTTP.CacheTTL.Duration)
	}

	// Log and loop
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Loop.Period.Duration != time.Minute || cfg.Loop.MetricsAddr != ":9090" {
		t.Errorf("loop = %+v", cfg.Loop)
	}

	// Sources
	if len(cfg.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(cfg.Sources))
	}
	p, ok := cfg.Source("pleiades")
	if !ok {
		t.Fatal("pleiades source missing")
	}
	if p.Kind != "pleiades" {
		t.Errorf("kind = %q, want lowercased", p.Kind)
	}
	if p.MaxSeen != 800 || p.DayGranular() {
		t.Errorf("max_seen = %d day = %v", p.MaxSeen, p.DayGranular())
	}
	if p.People["rtalbert"] != "Rebecca Talbert" {
		t.Errorf("people = %v", p.People)
	}
	if p.Period.Duration != DefaultFeedPeriod {
		t.Errorf("pleiades period = %v, want %v", p.Period.Duration, DefaultFeedPeriod)
	}
	z, _ := cfg.Source("zotero")
	if z.APIKey != "zkey" {
		t.Errorf("zotero api key = %q, want zkey", z.APIKey)
	}
	if z.Period.Duration != DefaultZoteroPeriod {
		t.Errorf("zotero period = %v, want %v", z.Period.Duration, DefaultZoteroPeriod)
	}

	// Channels
	social, ok := cfg.Channel("social")
	if !ok {
		t.Fatal("social channel missing")
	}
	if social.AccessToken != "gtoken" || social.Batch != 3 || social.OnSendFailure != "requeue" {
		t.Errorf("social = %+v", social)
	}
	if social.Visibility != DefaultVisibility || social.Language != DefaultLanguage {
		t.Errorf("social visibility = %q language = %q", social.Visibility, social.Language)
	}
	console, _ := cfg.Channel("console")
	if console.Language != "de" || console.Period.Duration != DefaultChannelPeriod {
		t.Errorf("console = %+v", console)
	}

	// Review and privacy
	if !cfg.Review.Color {
		t.Error("review.color = false, want true")
	}
	if !cfg.Privacy.Redact.Enabled || len(cfg.Privacy.Redact.Patterns) != 1 {
		t.Errorf("redact = %+v", cfg.Privacy.Redact)
	}
	if cfg.Privacy.Redact.Placeholder != DefaultRedactReplaced {
		t.Errorf("placeholder = %q", cfg.Privacy.Redact.Placeholder)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
sources:
  - name: places
    kind: pleiades
    uri: https://pleiades.stoa.org/indexes/published/RSS
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Storage.Path != DefaultStoragePath {
		t.Errorf("storage.path = %q, want %q", cfg.Storage.Path, DefaultStoragePath)
	}
	if cfg.Storage.RetainDays != DefaultRetainDays {
		t.Errorf("retain_days = %d, want %d", cfg.Storage.RetainDays, DefaultRetainDays)
	}
	if cfg.HTTP.UserAgent != DefaultUserAgent {
		t.Errorf("user_agent = %q", cfg.HTTP.UserAgent)
	}
	if cfg.HTTP.MaxRetries != DefaultMaxRetries {
		t.Errorf("max_retries = %d, want %d", cfg.HTTP.MaxRetries, DefaultMaxRetries)
	}
	if cfg.Loop.Period.Duration != DefaultLoopPeriod {
		t.Errorf("loop.period = %v, want %v", cfg.Loop.Period.Duration, DefaultLoopPeriod)
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("log = %+v", cfg.Log)
	}
	s := cfg.Sources[0]
	if s.MaxSeen != DefaultMaxSeen {
		t.Errorf("max_seen = %d, want %d", s.MaxSeen, DefaultMaxSeen)
	}
	if !s.DayGranular() {
		t.Error("day_granularity should default to true")
	}
	if len(cfg.Channels) != 0 {
		t.Errorf("channels = %v, want none", cfg.Channels)
	}
}

func TestLoad_DurationParsing(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, minimalSources+`
loop:
  period: 7m
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Loop.Period.Duration != 7*time.Minute {
		t.Errorf("period = %v, want 7m", cfg.Loop.Period.Duration)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, minimalSources+`
loop:
  period: soon
`)

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no sources", "sources: []\n", "at least one source must be configured"},
		{"blank name", `
sources:
  - kind: atom
    uri: https://example.org/feed
`, "name is required"},
		{"duplicate source", minimalSources + `
  - name: blog
    kind: atom
    uri: https://example.org/other
`, "duplicate name"},
		{"unknown kind", `
sources:
  - name: x
    kind: gopher
    uri: https://example.org
`, "unknown kind"},
		{"bad uri", `
sources:
  - name: x
    kind: atom
    uri: ftp://example.org/feed
`, "invalid uri"},
		{"max seen below floor", `
sources:
  - name: p
    kind: pleiades
    uri: https://pleiades.stoa.org/indexes/published/RSS
    max_seen: 100
`, "max_seen"},
		{"missing api key env", `
sources:
  - name: z
    kind: zotero
    uri: https://api.zotero.org/groups/1
    api_key_env: FEEDHERALD_TEST_UNSET_KEY
`, "is not set"},
		{"gotosocial without token", minimalSources + `
channels:
  - name: social
    kind: gotosocial
    server: https://social.example.org
`, "token is not set"},
		{"unknown channel kind", minimalSources + `
channels:
  - name: pigeon
    kind: carrier
`, "unknown kind"},
		{"unknown failure policy", minimalSources + `
channels:
  - name: console
    kind: stdout
    on_send_failure: retry
`, "unknown policy"},
		{"log format", minimalSources + `
log:
  format: xml
`, "log.format"},
		{"redact pattern", minimalSources + `
privacy:
  redact:
    enabled: true
    patterns: ["[invalid"]
`, "privacy.redact.patterns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeTestYAML(t, dir, DefaultConfigFile, tt.yaml)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, "sources: [unclosed\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}
