package constants

// Default synchronization configuration values
const (
	DefaultPollFallbackSec    = 5
	DefaultPingIntervalSec    = 30
	DefaultSinkBufferSize     = 64
	DefaultHandshakeTimeoutMs = 5000
	DefaultRetryBackoffMs     = 1000
	DefaultMaxBackoffMs       = 60000
	DefaultMaxAttempts        = 5
	DefaultRetentionDays      = 30
	DefaultServerPort         = 8082
)

// Default typing-indicator timing
const (
	DefaultTypingIdleMs       = 2000
	DefaultPeerTypingExpiryMs = 5000
)

// Default media configuration values
const (
	DefaultMaxImageSizeMB = 5
	DefaultMaxAudioSizeMB = 16
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec        = 30
	DefaultUploadTimeoutSec      = 60
	DefaultDatabaseRetryAttempts = 3
	DefaultGracefulShutdownSec   = 30
	DefaultCleanupIntervalHours  = 24
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
)

// Encryption salts for the local cache
const (
	EncryptionSalt = "courierchat-cache-salt-v1"
)
