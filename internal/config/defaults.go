package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL            = "http://localhost:8000"
	DefaultAPITimeout         = 10 * time.Second
	DefaultMaxRetries         = 3
	DefaultReconnectBaseDelay = 2 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultPongTimeout        = 60 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultReconcileInterval  = 5 * time.Minute
	DefaultTransitionTimeout  = 10 * time.Second
	DefaultToggleDebounce     = 300 * time.Millisecond
	DefaultNotifyExchange     = "seller.notifications"
	DefaultServerPort         = 8080
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

func (c *DashboardConfig) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Connection defaults
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PongTimeout == 0 {
		c.Connection.PongTimeout = DefaultPongTimeout
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}

	// Board defaults
	if c.Board.ReconcileInterval == 0 {
		c.Board.ReconcileInterval = DefaultReconcileInterval
	}

	if c.Transitions.Timeout == 0 {
		c.Transitions.Timeout = DefaultTransitionTimeout
	}
	if c.Menu.ToggleDebounce == 0 {
		c.Menu.ToggleDebounce = DefaultToggleDebounce
	}
	if c.Notify.Exchange == "" {
		c.Notify.Exchange = DefaultNotifyExchange
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
