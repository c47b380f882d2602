package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Segment != DefaultSegment {
		t.Errorf("Segment = %q, want %q", cfg.Segment, DefaultSegment)
	}
	if cfg.Width != DefaultWidth || cfg.Height != DefaultHeight {
		t.Errorf("geometry = %dx%d, want %dx%d", cfg.Width, cfg.Height, DefaultWidth, DefaultHeight)
	}
	if cfg.Socket != DefaultSocket {
		t.Errorf("Socket = %q, want %q", cfg.Socket, DefaultSocket)
	}
	if cfg.APIAddr != DefaultAPIAddr {
		t.Errorf("APIAddr = %q, want %q", cfg.APIAddr, DefaultAPIAddr)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("log config = %s/%s, want info/text", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ITK_SEGMENT", "alt_frames")
	t.Setenv("ITK_WIDTH", "640")
	t.Setenv("ITK_HEIGHT", "360")
	t.Setenv("ITK_SOCKET", "/run/itkd.sock")
	t.Setenv("ITK_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Segment != "alt_frames" {
		t.Errorf("Segment = %q, want alt_frames", cfg.Segment)
	}
	if cfg.Width != 640 || cfg.Height != 360 {
		t.Errorf("geometry = %dx%d, want 640x360", cfg.Width, cfg.Height)
	}
	if cfg.Socket != "/run/itkd.sock" {
		t.Errorf("Socket = %q, want /run/itkd.sock", cfg.Socket)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadRejectsBadGeometry(t *testing.T) {
	t.Setenv("ITK_WIDTH", "0")

	if _, err := Load(); err == nil {
		t.Fatal("Load() with zero width succeeded, want error")
	}
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("ITK_TEST_INT", "not-a-number")

	if got := getEnvInt("ITK_TEST_INT", 42); got != 42 {
		t.Errorf("getEnvInt = %d, want fallback 42", got)
	}
}
