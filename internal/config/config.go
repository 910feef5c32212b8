package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the system-wide settings coordinator. Precedence when loading:
// file > environment > defaults.
type Config struct {
	HTTP      *HTTPConfig      `yaml:"http"`
	WebSocket *WebSocketConfig `yaml:"websocket"`
	Database  *DatabaseConfig  `yaml:"database"`
	Audio     *AudioConfig     `yaml:"audio"`
	Cleanup   *CleanupConfig   `yaml:"cleanup"`
	Codes     *CodesConfig     `yaml:"codes"`
	RateLimit *RateLimitConfig `yaml:"rate_limit"`
}

type HTTPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BufferSize   int           `yaml:"buffer_size"`
}

type DatabaseConfig struct {
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// AudioConfig bounds the streaming transcription pipeline.
type AudioConfig struct {
	// MinBufferedBytes is the smallest combined buffer worth transcribing.
	MinBufferedBytes int `yaml:"min_buffered_bytes"`
	// MaxBufferedBytes caps retained audio context; older bytes are dropped.
	MaxBufferedBytes int `yaml:"max_buffered_bytes"`
	// MaxIdle is how long a streaming state may go without chunks before
	// the sweep discards it.
	MaxIdle time.Duration `yaml:"max_idle"`
	// SweepInterval is how often the idle sweep runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// CleanupConfig drives the periodic session cleanup scheduler.
type CleanupConfig struct {
	TickInterval     time.Duration `yaml:"tick_interval"`
	PassTimeout      time.Duration `yaml:"pass_timeout"`
	GraceWindow      time.Duration `yaml:"grace_window"`
	TeacherWait      time.Duration `yaml:"teacher_wait"`
	InactivityWindow time.Duration `yaml:"inactivity_window"`
	MinRealDuration  time.Duration `yaml:"min_real_duration"`
}

// CodesConfig drives classroom code generation and expiry.
type CodesConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RateLimitConfig bounds inbound messages per connection.
type RateLimitConfig struct {
	MaxMessages int           `yaml:"max_messages"`
	Window      time.Duration `yaml:"window"`
}

// DefaultConfig returns production-ready defaults for classroom scale.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Database: &DatabaseConfig{
			Path:    "./data/lingocast.db",
			Timeout: 30 * time.Second,
		},
		Audio: &AudioConfig{
			MinBufferedBytes: 2000,
			MaxBufferedBytes: 1 << 20,
			MaxIdle:          5 * time.Minute,
			SweepInterval:    time.Minute,
		},
		Cleanup: &CleanupConfig{
			TickInterval:     time.Minute,
			PassTimeout:      25 * time.Second,
			GraceWindow:      10 * time.Minute,
			TeacherWait:      15 * time.Minute,
			InactivityWindow: 45 * time.Minute,
			MinRealDuration:  time.Minute,
		},
		Codes: &CodesConfig{
			TTL:           20 * time.Minute,
			SweepInterval: time.Minute,
		},
		RateLimit: &RateLimitConfig{
			MaxMessages: 100,
			Window:      time.Minute,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("http configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("websocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket ping interval must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("websocket buffer size must be positive")
	}
	if c.Database == nil || c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.Audio == nil {
		return fmt.Errorf("audio configuration is required")
	}
	if c.Audio.MinBufferedBytes <= 0 {
		return fmt.Errorf("audio min buffered bytes must be positive")
	}
	if c.Audio.MaxBufferedBytes < c.Audio.MinBufferedBytes {
		return fmt.Errorf("audio max buffered bytes must be at least min buffered bytes")
	}
	if c.Audio.MaxIdle <= 0 || c.Audio.SweepInterval <= 0 {
		return fmt.Errorf("audio idle windows must be positive")
	}
	if c.Cleanup == nil {
		return fmt.Errorf("cleanup configuration is required")
	}
	if c.Cleanup.TickInterval <= 0 || c.Cleanup.PassTimeout <= 0 {
		return fmt.Errorf("cleanup intervals must be positive")
	}
	if c.Cleanup.GraceWindow <= 0 || c.Cleanup.TeacherWait <= 0 || c.Cleanup.InactivityWindow <= 0 {
		return fmt.Errorf("cleanup windows must be positive")
	}
	if c.Cleanup.MinRealDuration <= 0 {
		return fmt.Errorf("cleanup min real duration must be positive")
	}
	if c.Codes == nil || c.Codes.TTL <= 0 || c.Codes.SweepInterval <= 0 {
		return fmt.Errorf("classroom code TTL and sweep interval must be positive")
	}
	if c.RateLimit == nil || c.RateLimit.MaxMessages <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	return nil
}

// LoadFromEnv returns defaults overridden by LINGOCAST_* environment
// variables. Unparseable values fall back silently to defaults.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if host := os.Getenv("LINGOCAST_HTTP_HOST"); host != "" {
		cfg.HTTP.Host = host
	}
	if port := os.Getenv("LINGOCAST_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if dbPath := os.Getenv("LINGOCAST_DATABASE_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if v := os.Getenv("LINGOCAST_WEBSOCKET_PING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WebSocket.PingInterval = d
		}
	}
	if v := os.Getenv("LINGOCAST_CLEANUP_GRACE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cleanup.GraceWindow = d
		}
	}
	if v := os.Getenv("LINGOCAST_CLEANUP_TEACHER_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cleanup.TeacherWait = d
		}
	}
	if v := os.Getenv("LINGOCAST_CLEANUP_INACTIVITY_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cleanup.InactivityWindow = d
		}
	}
	if v := os.Getenv("LINGOCAST_AUDIO_MIN_BUFFERED_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Audio.MinBufferedBytes = n
		}
	}
	if v := os.Getenv("LINGOCAST_AUDIO_MAX_BUFFERED_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Audio.MaxBufferedBytes = n
		}
	}
	if v := os.Getenv("LINGOCAST_CODES_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Codes.TTL = d
		}
	}

	return cfg
}

// fileConfig mirrors Config with string durations so YAML files can use
// "10m" style values.
type fileConfig struct {
	HTTP *struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"http"`
	WebSocket *struct {
		PingInterval string `yaml:"ping_interval"`
		WriteTimeout string `yaml:"write_timeout"`
		BufferSize   int    `yaml:"buffer_size"`
	} `yaml:"websocket"`
	Database *struct {
		Path    string `yaml:"path"`
		Timeout string `yaml:"timeout"`
	} `yaml:"database"`
	Audio *struct {
		MinBufferedBytes int    `yaml:"min_buffered_bytes"`
		MaxBufferedBytes int    `yaml:"max_buffered_bytes"`
		MaxIdle          string `yaml:"max_idle"`
		SweepInterval    string `yaml:"sweep_interval"`
	} `yaml:"audio"`
	Cleanup *struct {
		TickInterval     string `yaml:"tick_interval"`
		PassTimeout      string `yaml:"pass_timeout"`
		GraceWindow      string `yaml:"grace_window"`
		TeacherWait      string `yaml:"teacher_wait"`
		InactivityWindow string `yaml:"inactivity_window"`
		MinRealDuration  string `yaml:"min_real_duration"`
	} `yaml:"cleanup"`
	Codes *struct {
		TTL           string `yaml:"ttl"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"codes"`
	RateLimit *struct {
		MaxMessages int    `yaml:"max_messages"`
		Window      string `yaml:"window"`
	} `yaml:"rate_limit"`
}

// LoadFromFile parses a YAML config file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if fc.HTTP != nil {
		if fc.HTTP.Host != "" {
			cfg.HTTP.Host = fc.HTTP.Host
		}
		if fc.HTTP.Port > 0 {
			cfg.HTTP.Port = fc.HTTP.Port
		}
		setDuration(&cfg.HTTP.ReadTimeout, fc.HTTP.ReadTimeout)
		setDuration(&cfg.HTTP.WriteTimeout, fc.HTTP.WriteTimeout)
	}
	if fc.WebSocket != nil {
		setDuration(&cfg.WebSocket.PingInterval, fc.WebSocket.PingInterval)
		setDuration(&cfg.WebSocket.WriteTimeout, fc.WebSocket.WriteTimeout)
		if fc.WebSocket.BufferSize > 0 {
			cfg.WebSocket.BufferSize = fc.WebSocket.BufferSize
		}
	}
	if fc.Database != nil {
		if fc.Database.Path != "" {
			cfg.Database.Path = fc.Database.Path
		}
		setDuration(&cfg.Database.Timeout, fc.Database.Timeout)
	}
	if fc.Audio != nil {
		if fc.Audio.MinBufferedBytes > 0 {
			cfg.Audio.MinBufferedBytes = fc.Audio.MinBufferedBytes
		}
		if fc.Audio.MaxBufferedBytes > 0 {
			cfg.Audio.MaxBufferedBytes = fc.Audio.MaxBufferedBytes
		}
		setDuration(&cfg.Audio.MaxIdle, fc.Audio.MaxIdle)
		setDuration(&cfg.Audio.SweepInterval, fc.Audio.SweepInterval)
	}
	if fc.Cleanup != nil {
		setDuration(&cfg.Cleanup.TickInterval, fc.Cleanup.TickInterval)
		setDuration(&cfg.Cleanup.PassTimeout, fc.Cleanup.PassTimeout)
		setDuration(&cfg.Cleanup.GraceWindow, fc.Cleanup.GraceWindow)
		setDuration(&cfg.Cleanup.TeacherWait, fc.Cleanup.TeacherWait)
		setDuration(&cfg.Cleanup.InactivityWindow, fc.Cleanup.InactivityWindow)
		setDuration(&cfg.Cleanup.MinRealDuration, fc.Cleanup.MinRealDuration)
	}
	if fc.Codes != nil {
		setDuration(&cfg.Codes.TTL, fc.Codes.TTL)
		setDuration(&cfg.Codes.SweepInterval, fc.Codes.SweepInterval)
	}
	if fc.RateLimit != nil {
		if fc.RateLimit.MaxMessages > 0 {
			cfg.RateLimit.MaxMessages = fc.RateLimit.MaxMessages
		}
		setDuration(&cfg.RateLimit.Window, fc.RateLimit.Window)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return cfg, nil
}

// LoadWithPrecedence resolves configuration as file > environment >
// defaults. File errors are ignored so environment/defaults still apply.
func LoadWithPrecedence(path string) *Config {
	cfg := LoadFromEnv()

	if path != "" {
		if fileCfg, err := LoadFromFile(path); err == nil {
			cfg = fileCfg
		}
	}

	return cfg
}

func setDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}
