package configtypes

// Log configuration.
type Log struct {
	// Level is one of trace, debug, info, warn, error, fatal or none.
	Level string `mapstructure:"level" json:"level" yaml:"level" toml:"level"`
	// File is an optional path to a log file. When set logs go there instead of STDOUT.
	File string `mapstructure:"file" json:"file" yaml:"file" toml:"file"`
	// TokenRedaction controls how rejected token values appear in logs: prefix (first
	// four characters), hidden or none.
	TokenRedaction string `mapstructure:"token_redaction" json:"token_redaction" yaml:"token_redaction" toml:"token_redaction"`
	// RejectionsPerSecond limits how many rejected handshakes are logged per second.
	// Rejections above the limit are only counted in metrics. Zero means no limit.
	RejectionsPerSecond float64 `mapstructure:"rejections_per_second" json:"rejections_per_second" yaml:"rejections_per_second" toml:"rejections_per_second"`
	// RejectionsBurst is the burst size for RejectionsPerSecond.
	RejectionsBurst int `mapstructure:"rejections_burst" json:"rejections_burst" yaml:"rejections_burst" toml:"rejections_burst"`
}

// HTTPServer serves health, metrics and the handshake verification API.
type HTTPServer struct {
	// Address to bind HTTP server to.
	Address string `mapstructure:"address" json:"address" yaml:"address" toml:"address"`
	// Port to bind HTTP server to.
	Port int `mapstructure:"port" json:"port" yaml:"port" toml:"port"`
}

type Prometheus struct {
	Enabled       bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	HandlerPrefix string `mapstructure:"handler_prefix" json:"handler_prefix" yaml:"handler_prefix" toml:"handler_prefix"`
}

type Health struct {
	Enabled       bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	HandlerPrefix string `mapstructure:"handler_prefix" json:"handler_prefix" yaml:"handler_prefix" toml:"handler_prefix"`
}

// VerifyAPI exposes handshake verification over HTTP for host adapters which
// receive the handshake as a structured event.
type VerifyAPI struct {
	Enabled       bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	HandlerPrefix string `mapstructure:"handler_prefix" json:"handler_prefix" yaml:"handler_prefix" toml:"handler_prefix"`
	// RequestsPerSecond limits verification requests, excess requests get 429. Zero means no limit.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second" toml:"requests_per_second"`
	// RequestsBurst is the burst size for RequestsPerSecond.
	RequestsBurst int `mapstructure:"requests_burst" json:"requests_burst" yaml:"requests_burst" toml:"requests_burst"`
}

// Gateway is a TCP intermediary placed in front of an unmodified backend
// server. It verifies login handshakes and forwards the sanitized handshake.
type Gateway struct {
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	// Listen is an address to accept client connections on.
	Listen string `mapstructure:"listen" json:"listen" yaml:"listen" toml:"listen"`
	// Backend is an address of the real backend server.
	Backend string `mapstructure:"backend" json:"backend" yaml:"backend" toml:"backend"`
	// ReadTimeout limits the time a client has to send its handshake packet.
	ReadTimeout Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout" toml:"read_timeout"`
	// DialTimeout limits connecting to Backend.
	DialTimeout Duration `mapstructure:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout" toml:"dial_timeout"`
	// ConnectionsPerSecond limits accepted connections. Zero means no limit.
	ConnectionsPerSecond float64 `mapstructure:"connections_per_second" json:"connections_per_second" yaml:"connections_per_second" toml:"connections_per_second"`
	// ConnectionsBurst is the burst size for ConnectionsPerSecond.
	ConnectionsBurst int `mapstructure:"connections_burst" json:"connections_burst" yaml:"connections_burst" toml:"connections_burst"`
}

// Proxy configures the sending side: the secret file and the identity used by
// the forward command.
type Proxy struct {
	// TokenFile is a YAML file with the proxy secret under the token key.
	TokenFile string `mapstructure:"token_file" json:"token_file" yaml:"token_file" toml:"token_file"`
}

type Shutdown struct {
	Timeout Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout" toml:"timeout"`
}
