package models

// Config holds the application configuration
type Config struct {
	Backend       BackendConfig  `json:"backend"`
	Realtime      RealtimeConfig `json:"realtime"`
	Database      DatabaseConfig `json:"database"`
	Media         MediaConfig    `json:"media"`
	Auth          AuthConfig     `json:"auth"`
	Typing        TypingConfig   `json:"typing"`
	Retry         RetryConfig    `json:"retry"`
	Tracing       TracingConfig  `json:"tracing"`
	Conversations []string       `json:"conversations"`
	LogLevel      string         `json:"log_level"`
	RetentionDays int            `json:"retentionDays"`
}

// BackendConfig holds the message API configuration
type BackendConfig struct {
	APIBaseURL string `json:"api_base_url"`
	TimeoutSec int    `json:"timeoutSec"`
}

// RealtimeConfig holds the realtime feed configuration
type RealtimeConfig struct {
	URL                string `json:"url"`
	PingIntervalSec    int    `json:"pingIntervalSec"`
	PollFallbackSec    int    `json:"pollFallbackSec"`
	SinkBufferSize     int    `json:"sinkBufferSize"`
	HandshakeTimeoutMs int    `json:"handshakeTimeoutMs"`
}

// DatabaseConfig holds the local conversation cache configuration
type DatabaseConfig struct {
	Path string `json:"path"`
}

// MediaConfig holds media upload configuration
type MediaConfig struct {
	UploadURL    string            `json:"upload_url"`
	TimeoutSec   int               `json:"timeoutSec"`
	MaxSizeMB    MediaSizeLimits   `json:"maxSizeMB"`
	AllowedTypes MediaAllowedTypes `json:"allowedTypes"`
}

// MediaSizeLimits defines upload size caps per media class in MB
type MediaSizeLimits struct {
	Image int `json:"image"`
	Audio int `json:"audio"`
}

// MediaAllowedTypes defines allowed MIME types per media class
type MediaAllowedTypes struct {
	Image []string `json:"image"`
	Audio []string `json:"audio"`
}

// AuthConfig holds the session token and the secret used to verify it
type AuthConfig struct {
	Token  string `json:"token"`
	Secret string `json:"secret"`
}

// TypingConfig holds typing-indicator timing
type TypingConfig struct {
	IdleMs       int `json:"idleMs"`
	PeerExpiryMs int `json:"peerExpiryMs"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
