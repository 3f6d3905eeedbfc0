package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chatline/internal/logger"
)

// loadEnv reads .env outside production (in containers/prod config comes
// from the environment only). Existing variables are never overwritten.
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	_ = godotenv.Load()
}

// NotifyConfig selects the desktop alert backend.
// Mode is one of "log", "webpush" or "off".
type NotifyConfig struct {
	Mode              string `yaml:"mode"`
	VAPIDKeysFile     string `yaml:"vapid_keys_file"`
	SubscriptionsFile string `yaml:"subscriptions_file"`
}

// SocketConfig tunes the websocket transport.
type SocketConfig struct {
	DialTimeout       int `yaml:"dial_timeout"`
	WriteTimeout      int `yaml:"write_timeout"`
	PongTimeout       int `yaml:"pong_timeout"`
	MaxMessageSize    int `yaml:"max_message_size"`
	SendBufferSize    int `yaml:"send_buffer_size"`
	ReconnectAttempts int `yaml:"reconnect_attempts"`
	ReconnectDelayMS  int `yaml:"reconnect_delay_ms"`
	ReconnectDelayMax int `yaml:"reconnect_delay_max_ms"`
}

// Config holds the client's settings.
// Priority: environment variables > YAML file > defaults.
type Config struct {
	// Chat server websocket endpoint, e.g. ws://localhost:4000/ws.
	ServerURL string `yaml:"server_url"`

	// Session identity and the initially focused room.
	Username    string `yaml:"username"`
	DefaultRoom string `yaml:"default_room"`

	// Local control API.
	ListenAddr   string        `yaml:"listen_addr"`
	ReadTimeout  time.Duration `yaml:"-"`
	WriteTimeout time.Duration `yaml:"-"`
	IdleTimeout  time.Duration `yaml:"-"`

	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`
	LogLevel           string `yaml:"log_level"`

	Notify NotifyConfig `yaml:"notify"`
	Socket SocketConfig `yaml:"socket"`
}

// yamlConfig is the intermediate shape for the YAML file; timeouts come in
// as seconds.
type yamlConfig struct {
	ServerURL          string       `yaml:"server_url"`
	Username           string       `yaml:"username"`
	DefaultRoom        string       `yaml:"default_room"`
	ListenAddr         string       `yaml:"listen_addr"`
	ReadTimeout        int          `yaml:"read_timeout"`
	WriteTimeout       int          `yaml:"write_timeout"`
	IdleTimeout        int          `yaml:"idle_timeout"`
	CORSAllowedOrigins string       `yaml:"cors_allowed_origins"`
	LogLevel           string       `yaml:"log_level"`
	Notify             NotifyConfig `yaml:"notify"`
	Socket             SocketConfig `yaml:"socket"`
}

// Load reads the configuration. .env first (if present), then the YAML file,
// then environment overrides (env wins).
func Load() *Config {
	loadEnv()
	yc := yamlConfig{
		ServerURL:          "ws://localhost:4000/ws",
		DefaultRoom:        "general",
		ListenAddr:         ":8090",
		ReadTimeout:        15,
		WriteTimeout:       30,
		IdleTimeout:        60,
		CORSAllowedOrigins: "*",
		LogLevel:           "info",
		Notify:             NotifyConfig{Mode: "log"},
		Socket: SocketConfig{
			DialTimeout:       10,
			WriteTimeout:      10,
			PongTimeout:       60,
			MaxMessageSize:    1 << 20,
			SendBufferSize:    256,
			ReconnectAttempts: 5,
			ReconnectDelayMS:  1000,
			ReconnectDelayMax: 5000,
		},
	}

	paths := []string{os.Getenv("CONFIG_PATH"), "config/client.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: parse %s: %v (using defaults)", path, err)
		} else {
			logger.Infof("config: loaded %s", path)
		}
		break
	}

	cfg := &Config{
		ServerURL:          envStr("CHAT_SERVER_URL", yc.ServerURL),
		Username:           envStr("CHAT_USERNAME", yc.Username),
		DefaultRoom:        envStr("CHAT_DEFAULT_ROOM", yc.DefaultRoom),
		ListenAddr:         envStr("LISTEN_ADDR", yc.ListenAddr),
		ReadTimeout:        time.Duration(envInt("READ_TIMEOUT", yc.ReadTimeout)) * time.Second,
		WriteTimeout:       time.Duration(envInt("WRITE_TIMEOUT", yc.WriteTimeout)) * time.Second,
		IdleTimeout:        time.Duration(envInt("IDLE_TIMEOUT", yc.IdleTimeout)) * time.Second,
		CORSAllowedOrigins: envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins),
		LogLevel:           envStr("LOG_LEVEL", yc.LogLevel),
		Notify: NotifyConfig{
			Mode:              envStr("NOTIFY_MODE", yc.Notify.Mode),
			VAPIDKeysFile:     envStr("VAPID_KEYS_FILE", yc.Notify.VAPIDKeysFile),
			SubscriptionsFile: envStr("PUSH_SUBSCRIPTIONS_FILE", yc.Notify.SubscriptionsFile),
		},
		Socket: SocketConfig{
			DialTimeout:       envInt("WS_DIAL_TIMEOUT", yc.Socket.DialTimeout),
			WriteTimeout:      envInt("WS_WRITE_TIMEOUT", yc.Socket.WriteTimeout),
			PongTimeout:       envInt("WS_PONG_TIMEOUT", yc.Socket.PongTimeout),
			MaxMessageSize:    envInt("WS_MAX_MESSAGE_SIZE", yc.Socket.MaxMessageSize),
			SendBufferSize:    envInt("WS_SEND_BUFFER_SIZE", yc.Socket.SendBufferSize),
			ReconnectAttempts: envInt("WS_RECONNECT_ATTEMPTS", yc.Socket.ReconnectAttempts),
			ReconnectDelayMS:  envInt("WS_RECONNECT_DELAY_MS", yc.Socket.ReconnectDelayMS),
			ReconnectDelayMax: envInt("WS_RECONNECT_DELAY_MAX_MS", yc.Socket.ReconnectDelayMax),
		},
	}

	switch cfg.Notify.Mode {
	case "log", "webpush", "off":
	default:
		logger.Errorf("config: unknown notify mode %q, falling back to log", cfg.Notify.Mode)
		cfg.Notify.Mode = "log"
	}
	return cfg
}

// envStr returns an environment value or the fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns a numeric environment value or the fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
