// Package config provides configuration management for the show sync daemon.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the daemon.
type Config struct {
	// Server configuration
	Host string
	Port string
	Env  string

	// Database configuration
	DatabaseURL string

	// Playlist configuration
	PlaylistFile string
	WatchShows   bool

	// LED strip configuration
	LEDCount      int
	LEDColorOrder string
	LEDBrightness int // 0-255

	// Art-Net configuration
	ArtNetEnabled   bool
	ArtNetPort      int
	ArtNetBroadcast string
	ArtNetUniverse  int

	// Scheduler configuration
	RenderRateHz          int
	TickLockTimeout       time.Duration
	StripFailureThreshold int
	KeepAliveInterval     time.Duration

	// Initial playback settings, used when nothing is persisted
	Volume     int
	RepeatMode string

	// Audio backend configuration
	AudioBackend      string // "mpv" or "simulated"
	MPVSocketPath     string
	MPVStartInstance  bool
	MPVConnectTimeout time.Duration

	// BLE configuration
	BLEEnabled    bool
	BLEAdapter    string
	BLEDeviceName string
	BLEMTU        int

	// CORS configuration
	CORSOrigin string

	// Single-instance lock
	LockFile string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Host: getEnv("HOST", "127.0.0.1"),
		Port: getEnv("PORT", "60715"),
		Env:  getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "file:./showsync.db"),

		// Playlist
		PlaylistFile: getEnv("PLAYLIST_FILE", "./playlist.yaml"),
		WatchShows:   getEnvBool("WATCH_SHOWS", true),

		// LED strip
		LEDCount:      getEnvIntRange("LED_COUNT", 27, 1, 4096),
		LEDColorOrder: getEnv("LED_COLOR_ORDER", "GRB"),
		LEDBrightness: clamp(getEnvInt("LED_BRIGHTNESS", 128), 0, 255),

		// Art-Net
		ArtNetEnabled:   getEnvBool("ARTNET_ENABLED", true),
		ArtNetPort:      getEnvInt("ARTNET_PORT", 6454),
		ArtNetBroadcast: getEnv("ARTNET_BROADCAST", "255.255.255.255"), // address, interface name or "auto"
		ArtNetUniverse:  getEnvIntRange("ARTNET_UNIVERSE", 1, 1, 32767),

		// Scheduler
		RenderRateHz:          getEnvIntRange("RENDER_RATE_HZ", 40, 1, 200),
		TickLockTimeout:       time.Duration(getEnvIntRange("TICK_LOCK_TIMEOUT_MS", 5, 1, 1000)) * time.Millisecond,
		StripFailureThreshold: getEnvIntRange("STRIP_FAILURE_THRESHOLD", 5, 1, 1000),
		KeepAliveInterval:     time.Duration(getEnvIntRange("KEEPALIVE_INTERVAL_MS", 5000, 100, 3600000)) * time.Millisecond,

		// Initial playback
		Volume:     clamp(getEnvInt("VOLUME", 0), 0, 100),
		RepeatMode: getEnv("REPEAT_MODE", "none"),

		// Audio
		AudioBackend:      getEnv("AUDIO_BACKEND", "mpv"),
		MPVSocketPath:     getEnv("MPV_SOCKET_PATH", "/tmp/showsync-mpv.sock"),
		MPVStartInstance:  getEnvBool("MPV_START_INSTANCE", true),
		MPVConnectTimeout: time.Duration(getEnvIntRange("MPV_CONNECT_TIMEOUT_MS", 10000, 100, 600000)) * time.Millisecond,

		// BLE
		BLEEnabled:    getEnvBool("BLE_ENABLED", true),
		BLEAdapter:    getEnv("BLE_ADAPTER", "hci0"),
		BLEDeviceName: getEnv("BLE_DEVICE_NAME", "LacyLights"),
		BLEMTU:        getEnvIntRange("BLE_MTU", 48, 23, 517),

		// CORS
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),

		// Lock
		LockFile: getEnv("LOCK_FILE", "/tmp/showsync.lock"),
	}
}

// Addr returns the JSON-RPC listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvIntRange is getEnvInt with values outside [min, max] replaced by the default.
func getEnvIntRange(key string, defaultValue, min, max int) int {
	v := getEnvInt(key, defaultValue)
	if v < min || v > max {
		return defaultValue
	}
	return v
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
