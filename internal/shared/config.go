package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Source      SourceConfig      `toml:"source"`
	Matching    MatchingConfig    `toml:"matching"`
	Sync        SyncConfig        `toml:"sync"`
	Checkpoint  CheckpointConfig  `toml:"checkpoint"`
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	Credentials CredentialsConfig `toml:"credentials"`
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
	Corrections CorrectionsConfig `toml:"corrections"`
}

// Duration is a [time.Duration] that reads and writes as a string ("30m", "2s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// SourceConfig describes the schedule-driven source page and its pagination heuristic.
type SourceConfig struct {
	URL                string   `toml:"url"`
	Station            string   `toml:"station"`
	Timezone           string   `toml:"timezone"`
	AvgItemsPerHour    int      `toml:"avg_items_per_hour"`
	ItemsPerExpansion  int      `toml:"items_per_expansion"`
	SettleDelay        Duration `toml:"settle_delay"`
	ValidationAttempts int      `toml:"validation_attempts"`
	Headless           bool     `toml:"headless"`
}

// Location loads the source time zone, falling back to UTC when it is empty.
func (s SourceConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, s.Timezone, err)
	}
	return loc, nil
}

// MatchingConfig holds the fuzzy-match tuning used by the identity resolver.
type MatchingConfig struct {
	Threshold       float64 `toml:"threshold"`
	ArtistDelimiter string  `toml:"artist_delimiter"`
	SearchLimit     int     `toml:"search_limit"`
}

// SyncConfig controls scheduling and destination batching.
type SyncConfig struct {
	Interval          Duration `toml:"interval"`
	BatchSize         int      `toml:"batch_size"`
	PageSize          int      `toml:"page_size"`
	RetryAttempts     int      `toml:"retry_attempts"`
	RetryDelay        Duration `toml:"retry_delay"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

// CheckpointConfig selects the durable checkpoint backend.
type CheckpointConfig struct {
	Backend string `toml:"backend"` // sqlite or redis
	Key     string `toml:"key"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// RedisConfig contains Redis connection settings for the redis checkpoint backend.
type RedisConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Password  string `toml:"password"`
	KeyPrefix string `toml:"key_prefix"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and the managed playlist.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	RefreshToken string `toml:"refresh_token"`
	AccessToken  string `toml:"access_token,omitempty"`
	PlaylistID   string `toml:"playlist_id"`
}

// Map returns the credential map expected by services.NewSpotifyService.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
		"refresh_token": s.RefreshToken,
		"access_token":  s.AccessToken,
	}
}

// Update stores a refreshed token.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("%w: nil token", ErrInvalidArgument)
	}
	s.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	return nil
}

// ServerConfig contains the status/metrics HTTP listener. An empty Addr disables it.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// LogConfig contains logger level and output format.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// CorrectionsConfig lists known-wrong identifiers published by the source.
type CorrectionsConfig struct {
	Aliases   map[string]string `toml:"aliases"`
	Blacklist []string          `toml:"blacklist"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveConfig writes config to path as TOML.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the values the sync pipeline cannot run without.
func (c *Config) Validate() error {
	var problems []string

	if c.Source.URL == "" {
		problems = append(problems, "source.url is empty")
	}
	if c.Source.AvgItemsPerHour <= 0 || c.Source.ItemsPerExpansion <= 0 {
		problems = append(problems, "source pagination estimates must be positive")
	}
	if _, err := c.Source.Location(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Matching.Threshold <= 0 || c.Matching.Threshold > 1 {
		problems = append(problems, "matching.threshold must be in (0, 1]")
	}
	if c.Sync.BatchSize <= 0 || c.Sync.BatchSize > 100 {
		problems = append(problems, "sync.batch_size must be in [1, 100]")
	}
	if c.Sync.PageSize <= 0 || c.Sync.PageSize > 100 {
		problems = append(problems, "sync.page_size must be in [1, 100]")
	}
	switch c.Checkpoint.Backend {
	case "sqlite", "redis":
	default:
		problems = append(problems, fmt.Sprintf("checkpoint.backend %q is not sqlite or redis", c.Checkpoint.Backend))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	spotify := c.Credentials.Spotify
	if spotify.ClientID == "" || spotify.ClientSecret == "" || spotify.RefreshToken == "" || spotify.PlaylistID == "" {
		return fmt.Errorf("%w: spotify client_id, client_secret, refresh_token and playlist_id are required", ErrMissingCredentials)
	}
	return nil
}
