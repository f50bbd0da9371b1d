package config

import (
	"os"
	"testing"
	"time"
)

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t,
		"HOST", "PORT", "ENV", "DATABASE_URL", "PLAYLIST_FILE", "WATCH_SHOWS",
		"LED_COUNT", "LED_COLOR_ORDER", "LED_BRIGHTNESS",
		"ARTNET_ENABLED", "ARTNET_PORT", "ARTNET_BROADCAST", "ARTNET_UNIVERSE",
		"RENDER_RATE_HZ", "TICK_LOCK_TIMEOUT_MS", "STRIP_FAILURE_THRESHOLD", "KEEPALIVE_INTERVAL_MS",
		"VOLUME", "REPEAT_MODE", "AUDIO_BACKEND", "MPV_SOCKET_PATH", "MPV_START_INSTANCE",
		"MPV_CONNECT_TIMEOUT_MS", "BLE_ENABLED", "BLE_ADAPTER", "BLE_DEVICE_NAME", "BLE_MTU",
		"CORS_ORIGIN", "LOCK_FILE",
	)

	cfg := Load()

	if cfg.Addr() != "127.0.0.1:60715" {
		t.Errorf("Expected default address 127.0.0.1:60715, got '%s'", cfg.Addr())
	}
	if !cfg.IsDevelopment() {
		t.Errorf("Expected development by default, got '%s'", cfg.Env)
	}
	if cfg.LEDCount != 27 {
		t.Errorf("Expected LEDCount 27, got %d", cfg.LEDCount)
	}
	if cfg.LEDColorOrder != "GRB" {
		t.Errorf("Expected LEDColorOrder GRB, got '%s'", cfg.LEDColorOrder)
	}
	if cfg.RenderRateHz != 40 {
		t.Errorf("Expected RenderRateHz 40, got %d", cfg.RenderRateHz)
	}
	if cfg.TickLockTimeout != 5*time.Millisecond {
		t.Errorf("Expected TickLockTimeout 5ms, got %v", cfg.TickLockTimeout)
	}
	if cfg.StripFailureThreshold != 5 {
		t.Errorf("Expected StripFailureThreshold 5, got %d", cfg.StripFailureThreshold)
	}
	if cfg.KeepAliveInterval != 5*time.Second {
		t.Errorf("Expected KeepAliveInterval 5s, got %v", cfg.KeepAliveInterval)
	}
	if cfg.AudioBackend != "mpv" || !cfg.MPVStartInstance {
		t.Errorf("Expected mpv backend with a managed instance, got '%s' (start=%v)", cfg.AudioBackend, cfg.MPVStartInstance)
	}
	if cfg.BLEMTU != 48 {
		t.Errorf("Expected BLEMTU 48, got %d", cfg.BLEMTU)
	}
	if cfg.Volume != 0 || cfg.RepeatMode != "none" {
		t.Errorf("Expected volume 0 and repeat none, got %d/%s", cfg.Volume, cfg.RepeatMode)
	}
}

func TestLoad_CustomEnvironment(t *testing.T) {
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "8080")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "file:./prod.db")
	t.Setenv("PLAYLIST_FILE", "/srv/shows/playlist.yaml")
	t.Setenv("WATCH_SHOWS", "false")
	t.Setenv("LED_COUNT", "60")
	t.Setenv("LED_BRIGHTNESS", "255")
	t.Setenv("ARTNET_ENABLED", "false")
	t.Setenv("ARTNET_UNIVERSE", "3")
	t.Setenv("RENDER_RATE_HZ", "100")
	t.Setenv("TICK_LOCK_TIMEOUT_MS", "8")
	t.Setenv("KEEPALIVE_INTERVAL_MS", "1000")
	t.Setenv("VOLUME", "70")
	t.Setenv("REPEAT_MODE", "all")
	t.Setenv("AUDIO_BACKEND", "simulated")
	t.Setenv("BLE_ENABLED", "false")
	t.Setenv("CORS_ORIGIN", "http://example.com")

	cfg := Load()

	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Expected address 0.0.0.0:8080, got '%s'", cfg.Addr())
	}
	if !cfg.IsProduction() {
		t.Errorf("Expected production, got '%s'", cfg.Env)
	}
	if cfg.DatabaseURL != "file:./prod.db" {
		t.Errorf("Expected DatabaseURL 'file:./prod.db', got '%s'", cfg.DatabaseURL)
	}
	if cfg.PlaylistFile != "/srv/shows/playlist.yaml" || cfg.WatchShows {
		t.Errorf("Unexpected playlist settings: %s (watch=%v)", cfg.PlaylistFile, cfg.WatchShows)
	}
	if cfg.LEDCount != 60 || cfg.LEDBrightness != 255 {
		t.Errorf("Unexpected LED settings: %d leds, brightness %d", cfg.LEDCount, cfg.LEDBrightness)
	}
	if cfg.ArtNetEnabled || cfg.ArtNetUniverse != 3 {
		t.Errorf("Unexpected Art-Net settings: enabled=%v universe=%d", cfg.ArtNetEnabled, cfg.ArtNetUniverse)
	}
	if cfg.RenderRateHz != 100 || cfg.TickLockTimeout != 8*time.Millisecond {
		t.Errorf("Unexpected render settings: %dHz, %v", cfg.RenderRateHz, cfg.TickLockTimeout)
	}
	if cfg.KeepAliveInterval != time.Second {
		t.Errorf("Expected KeepAliveInterval 1s, got %v", cfg.KeepAliveInterval)
	}
	if cfg.Volume != 70 || cfg.RepeatMode != "all" {
		t.Errorf("Unexpected playback settings: %d/%s", cfg.Volume, cfg.RepeatMode)
	}
	if cfg.AudioBackend != "simulated" || cfg.BLEEnabled {
		t.Errorf("Unexpected backends: audio=%s ble=%v", cfg.AudioBackend, cfg.BLEEnabled)
	}
	if cfg.CORSOrigin != "http://example.com" {
		t.Errorf("Expected CORSOrigin 'http://example.com', got '%s'", cfg.CORSOrigin)
	}
}

func TestLoad_OutOfRangeFallsBack(t *testing.T) {
	t.Setenv("RENDER_RATE_HZ", "1000")
	t.Setenv("LED_COUNT", "-4")
	t.Setenv("LED_BRIGHTNESS", "900")
	t.Setenv("VOLUME", "-20")
	t.Setenv("BLE_MTU", "10")

	cfg := Load()

	if cfg.RenderRateHz != 40 {
		t.Errorf("Expected RenderRateHz to fall back to 40, got %d", cfg.RenderRateHz)
	}
	if cfg.LEDCount != 27 {
		t.Errorf("Expected LEDCount to fall back to 27, got %d", cfg.LEDCount)
	}
	if cfg.LEDBrightness != 255 {
		t.Errorf("Expected LEDBrightness clamped to 255, got %d", cfg.LEDBrightness)
	}
	if cfg.Volume != 0 {
		t.Errorf("Expected Volume clamped to 0, got %d", cfg.Volume)
	}
	if cfg.BLEMTU != 48 {
		t.Errorf("Expected BLEMTU to fall back to 48, got %d", cfg.BLEMTU)
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		env      string
		expected bool
	}{
		{"development", true},
		{"production", false},
		{"staging", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := &Config{Env: tt.env}
			if got := cfg.IsDevelopment(); got != tt.expected {
				t.Errorf("IsDevelopment() = %v, want %v for env '%s'", got, tt.expected, tt.env)
			}
		})
	}
}

func TestIsProduction(t *testing.T) {
	tests := []struct {
		env      string
		expected bool
	}{
		{"production", true},
		{"development", false},
		{"staging", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := &Config{Env: tt.env}
			if got := cfg.IsProduction(); got != tt.expected {
				t.Errorf("IsProduction() = %v, want %v for env '%s'", got, tt.expected, tt.env)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	// Test with existing env var
	t.Setenv("TEST_GET_ENV", "custom_value")

	result := getEnv("TEST_GET_ENV", "default")
	if result != "custom_value" {
		t.Errorf("Expected 'custom_value', got '%s'", result)
	}

	// Test with non-existing env var (use a unique key that won't be set)
	result = getEnv("NON_EXISTING_VAR_12345_UNIQUE", "default_value")
	if result != "default_value" {
		t.Errorf("Expected 'default_value', got '%s'", result)
	}
}

func TestGetEnvInt(t *testing.T) {
	// Test with valid int
	t.Setenv("TEST_INT_VAR", "42")

	result := getEnvInt("TEST_INT_VAR", 10)
	if result != 42 {
		t.Errorf("Expected 42, got %d", result)
	}

	// Test with invalid int (should return default)
	t.Setenv("TEST_INVALID_INT", "not_a_number")

	result = getEnvInt("TEST_INVALID_INT", 10)
	if result != 10 {
		t.Errorf("Expected default 10 for invalid int, got %d", result)
	}

	// Test with non-existing env var
	result = getEnvInt("NON_EXISTING_INT_VAR_12345_UNIQUE", 100)
	if result != 100 {
		t.Errorf("Expected default 100, got %d", result)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		expected     bool
		setEnv       bool
	}{
		{"true_string", "true", false, true, true},
		{"false_string", "false", true, false, true},
		{"1_string", "1", false, true, true},
		{"0_string", "0", true, false, true},
		{"invalid_string_returns_default", "invalid", true, true, true},
		{"non_existing_returns_default_true", "", true, true, false},
		{"non_existing_returns_default_false", "", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Use a unique env key for each test
			envKey := "TEST_BOOL_VAR_" + tt.name + "_UNIQUE"
			if tt.setEnv {
				t.Setenv(envKey, tt.envValue)
			}

			result := getEnvBool(envKey, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("getEnvBool(%s, %v) = %v, want %v", envKey, tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func TestGetEnvInt_ZeroValue(t *testing.T) {
	t.Setenv("TEST_ZERO_INT", "0")

	result := getEnvInt("TEST_ZERO_INT", 10)
	if result != 0 {
		t.Errorf("Expected 0, got %d", result)
	}
}

func TestGetEnvBool_VariousTrue(t *testing.T) {
	trueValues := []string{"true", "TRUE", "True", "1", "t", "T"}
	for _, val := range trueValues {
		t.Run(val, func(t *testing.T) {
			envKey := "TEST_BOOL_TRUE_" + val
			t.Setenv(envKey, val)
			result := getEnvBool(envKey, false)
			if !result {
				t.Errorf("getEnvBool with value '%s' should be true", val)
			}
		})
	}
}

func TestGetEnvBool_VariousFalse(t *testing.T) {
	falseValues := []string{"false", "FALSE", "False", "0", "f", "F"}
	for _, val := range falseValues {
		t.Run(val, func(t *testing.T) {
			envKey := "TEST_BOOL_FALSE_" + val
			t.Setenv(envKey, val)
			result := getEnvBool(envKey, true)
			if result {
				t.Errorf("getEnvBool with value '%s' should be false", val)
			}
		})
	}
}

func TestGetEnvIntRange(t *testing.T) {
	t.Setenv("TEST_RANGE_INT", "250")

	if got := getEnvIntRange("TEST_RANGE_INT", 40, 1, 200); got != 40 {
		t.Errorf("Expected default 40 above range, got %d", got)
	}
	if got := getEnvIntRange("TEST_RANGE_INT", 40, 1, 300); got != 250 {
		t.Errorf("Expected 250 in range, got %d", got)
	}
}
