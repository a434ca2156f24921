package shared

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadEnv loads variables from the given .env files (default ".env") into the process environment.
//
// Missing files are not an error; variables already set in the environment win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// GetEnv returns the value of the environment variable named by key, or fallback if it is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of key, or fallback if it is unset, empty, or not an integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// ApplyEnv overrides secrets and connection settings from the environment.
func (c *Config) ApplyEnv() {
	spotify := &c.Credentials.Spotify
	spotify.ClientID = GetEnv("SPOTIFY_ID", spotify.ClientID)
	spotify.ClientSecret = GetEnv("SPOTIFY_SECRET", spotify.ClientSecret)
	spotify.PlaylistID = GetEnv("SPOTIFY_PLAYLIST", spotify.PlaylistID)
	spotify.RefreshToken = GetEnv("SPOTIFY_REFRESH_TOKEN", spotify.RefreshToken)

	c.Redis.Host = GetEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = GetEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = GetEnv("REDIS_PASSWORD", c.Redis.Password)

	c.Checkpoint.Backend = GetEnv("CHECKPOINT_BACKEND", c.Checkpoint.Backend)
	c.Database.Path = GetEnv("DATABASE_PATH", c.Database.Path)
	c.Server.Addr = GetEnv("SERVER_ADDR", c.Server.Addr)
	c.Log.Level = GetEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = GetEnv("LOG_FORMAT", c.Log.Format)
}
