package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"courierchat/internal/constants"
	"courierchat/internal/models"
)

var (
	ErrMissingBackendURL  = models.ConfigError{Message: "missing backend API URL"}
	ErrMissingRealtimeURL = models.ConfigError{Message: "missing realtime feed URL"}
	ErrMissingDBPath      = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path) // #nosec G304 - path comes from the operator's -config flag
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Backend.APIBaseURL == "" {
		return ErrMissingBackendURL
	}
	if c.Realtime.URL == "" {
		return ErrMissingRealtimeURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Auth.Secret == "" {
		return models.ConfigError{Message: "missing auth secret (set COURIERCHAT_AUTH_SECRET or auth.secret)"}
	}

	// A conversation is "self:peer"; duplicates would double-subscribe.
	if len(c.Conversations) == 0 {
		return models.ConfigError{Message: "conversations array is required and must contain at least one user:peer pair"}
	}
	seen := make(map[string]bool)
	for i, conv := range c.Conversations {
		parts := strings.Split(conv, ":")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return models.ConfigError{Message: fmt.Sprintf("conversation %d must be a user:peer pair, got %q", i, conv)}
		}
		if parts[0] == parts[1] {
			return models.ConfigError{Message: fmt.Sprintf("conversation %d pairs a user with themselves: %q", i, conv)}
		}
		if seen[conv] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate conversation: %s", conv)}
		}
		seen[conv] = true
	}

	if c.Backend.TimeoutSec <= 0 {
		c.Backend.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Realtime.PingIntervalSec <= 0 {
		c.Realtime.PingIntervalSec = constants.DefaultPingIntervalSec
	}
	if c.Realtime.PollFallbackSec <= 0 {
		c.Realtime.PollFallbackSec = constants.DefaultPollFallbackSec
	}
	if c.Realtime.SinkBufferSize <= 0 {
		c.Realtime.SinkBufferSize = constants.DefaultSinkBufferSize
	}
	if c.Realtime.HandshakeTimeoutMs <= 0 {
		c.Realtime.HandshakeTimeoutMs = constants.DefaultHandshakeTimeoutMs
	}

	if c.Media.TimeoutSec <= 0 {
		c.Media.TimeoutSec = constants.DefaultUploadTimeoutSec
	}
	if c.Media.MaxSizeMB.Image == 0 {
		c.Media.MaxSizeMB.Image = constants.DefaultMaxImageSizeMB
	}
	if c.Media.MaxSizeMB.Audio == 0 {
		c.Media.MaxSizeMB.Audio = constants.DefaultMaxAudioSizeMB
	}
	if len(c.Media.AllowedTypes.Image) == 0 {
		c.Media.AllowedTypes.Image = constants.DefaultImageTypes
	}
	if len(c.Media.AllowedTypes.Audio) == 0 {
		c.Media.AllowedTypes.Audio = constants.DefaultAudioTypes
	}

	if c.Typing.IdleMs <= 0 {
		c.Typing.IdleMs = constants.DefaultTypingIdleMs
	}
	if c.Typing.PeerExpiryMs <= 0 {
		c.Typing.PeerExpiryMs = constants.DefaultPeerTypingExpiryMs
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultRetentionDays
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("COURIERCHAT_BACKEND_URL"); url != "" {
		c.Backend.APIBaseURL = url
	}
	if url := os.Getenv("COURIERCHAT_REALTIME_URL"); url != "" {
		c.Realtime.URL = url
	}
	if path := os.Getenv("COURIERCHAT_DB_PATH"); path != "" {
		c.Database.Path = path
	}

	// Credentials belong in the environment, not the config file.
	if token := os.Getenv("COURIERCHAT_AUTH_TOKEN"); token != "" {
		c.Auth.Token = token
	}
	if secret := os.Getenv("COURIERCHAT_AUTH_SECRET"); secret != "" {
		c.Auth.Secret = secret
	}

	if level := os.Getenv("COURIERCHAT_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}
