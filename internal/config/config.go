package config

import "time"

// DashboardConfig is the root configuration for one outlet's live-order service.
type DashboardConfig struct {
	Outlet      OutletConfig      `yaml:"outlet"`
	API         APIConfig         `yaml:"api"`
	Connection  ConnectionConfig  `yaml:"connection"`
	Board       BoardConfig       `yaml:"board"`
	Transitions TransitionsConfig `yaml:"transitions"`
	Menu        MenuConfig        `yaml:"menu"`
	Notify      NotifyConfig      `yaml:"notify"`
	Server      ServerConfig      `yaml:"server"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// OutletConfig identifies the outlet this session serves.
type OutletConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// APIConfig holds shop API settings.
type APIConfig struct {
	RestURL     string        `yaml:"rest_url"`
	SocketURL   string        `yaml:"socket_url"`   // Base of the subscription socket, e.g. wss://api.example.com
	AccessToken string        `yaml:"access_token"` // Bearer token (usually ${SELLER_ACCESS_TOKEN})
	TokenPath   string        `yaml:"token_path"`   // Alternative: file holding the token
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// ConnectionConfig holds subscription socket settings.
type ConnectionConfig struct {
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PongTimeout        time.Duration `yaml:"pong_timeout"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
}

// BoardConfig controls how the order board is warmed and repaired.
type BoardConfig struct {
	SeedOnStart          *bool         `yaml:"seed_on_start"`
	ReconcileInterval    time.Duration `yaml:"reconcile_interval"`
	ReconcileOnReconnect *bool         `yaml:"reconcile_on_reconnect"`
}

// TransitionsConfig holds lane-change settings.
type TransitionsConfig struct {
	Timeout time.Duration `yaml:"timeout"` // Per status-update call
}

// MenuConfig holds menu toggle settings.
type MenuConfig struct {
	ToggleDebounce time.Duration `yaml:"toggle_debounce"`
}

// NotifyConfig holds notification sink settings.
type NotifyConfig struct {
	AMQPURL   string `yaml:"amqp_url"` // Empty disables broker publishing
	Exchange  string `yaml:"exchange"`
	LogEvents *bool  `yaml:"log_events"`
}

// ServerConfig holds the local HTTP surface settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds slog handler settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Enabled reports the value of an optional boolean, falling back to def.
func Enabled(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
