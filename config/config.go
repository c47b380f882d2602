// Package config loads the itk producer's configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the producer daemon's runtime configuration.
type Config struct {
	Segment   string // logical shared-memory segment name
	Width     int    // output frame width
	Height    int    // output frame height
	Socket    string // control socket path
	APIAddr   string // status/metrics HTTP listen address
	LogLevel  string // debug, info, warn, error
	LogFormat string // text or json
}

// Defaults match the canonical overlay deployment: one 1280x720 RGBA slot.
const (
	DefaultSegment = "overlay_frames"
	DefaultWidth   = 1280
	DefaultHeight  = 720
	DefaultSocket  = "/tmp/itkd.sock"
	DefaultAPIAddr = "127.0.0.1:8799"
)

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; a missing file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Segment:   getEnv("ITK_SEGMENT", DefaultSegment),
		Width:     getEnvInt("ITK_WIDTH", DefaultWidth),
		Height:    getEnvInt("ITK_HEIGHT", DefaultHeight),
		Socket:    getEnv("ITK_SOCKET", DefaultSocket),
		APIAddr:   getEnv("ITK_API_ADDR", DefaultAPIAddr),
		LogLevel:  getEnv("ITK_LOG_LEVEL", "info"),
		LogFormat: getEnv("ITK_LOG_FORMAT", "text"),
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Config{}, fmt.Errorf("config: invalid output geometry %dx%d", cfg.Width, cfg.Height)
	}
	return cfg, nil
}

// getEnv returns the environment variable named by key, or fallback when
// unset or empty.
func getEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// getEnvInt returns the integer value of the environment variable named by
// key, or fallback when unset, empty, or not an integer.
func getEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}
