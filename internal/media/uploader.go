package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"courierchat/internal/constants"
	"courierchat/internal/errors"
	"courierchat/internal/models"
)

// Uploader pushes image and audio attachments to the media store and returns
// the public URL the message will reference. Validation happens before any
// bytes leave the process so an oversized clip never costs a round trip.
type Uploader struct {
	uploadURL    string
	token        string
	client       *http.Client
	maxImageSize int64
	maxAudioSize int64
	imageTypes   []string
	audioTypes   []string
}

func NewUploader(cfg models.MediaConfig, token string) *Uploader {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultUploadTimeoutSec) * time.Second
	}

	maxImageMB := cfg.MaxSizeMB.Image
	if maxImageMB <= 0 {
		maxImageMB = constants.DefaultMaxImageSizeMB
	}
	maxAudioMB := cfg.MaxSizeMB.Audio
	if maxAudioMB <= 0 {
		maxAudioMB = constants.DefaultMaxAudioSizeMB
	}

	imageTypes := cfg.AllowedTypes.Image
	if len(imageTypes) == 0 {
		imageTypes = constants.DefaultImageTypes
	}
	audioTypes := cfg.AllowedTypes.Audio
	if len(audioTypes) == 0 {
		audioTypes = constants.DefaultAudioTypes
	}

	return &Uploader{
		uploadURL:    cfg.UploadURL,
		token:        token,
		client:       &http.Client{Timeout: timeout},
		maxImageSize: int64(maxImageMB) * 1024 * 1024,
		maxAudioSize: int64(maxAudioMB) * 1024 * 1024,
		imageTypes:   imageTypes,
		audioTypes:   audioTypes,
	}
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload validates the attachment and stores it, returning its URL.
func (u *Uploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", errors.NewMediaError("empty attachment", nil)
	}
	if err := u.validate(int64(len(data)), contentType); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternalError, "failed to build upload request")
	}
	req.Header.Set("Content-Type", contentType)
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", errors.NewMediaError("upload request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.NewMediaError(fmt.Sprintf("upload rejected with status %d: %s", resp.StatusCode, string(snippet)), nil)
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errors.NewMediaError("failed to decode upload response", err)
	}
	if parsed.URL == "" {
		return "", errors.NewMediaError("upload response missing URL", nil)
	}
	return parsed.URL, nil
}

func (u *Uploader) validate(size int64, contentType string) error {
	normalized := normalizeMimeType(contentType)

	switch {
	case contains(u.imageTypes, normalized):
		if size > u.maxImageSize {
			return errors.NewMediaError(fmt.Sprintf("image of %d bytes exceeds the %d byte limit", size, u.maxImageSize), nil)
		}
	case contains(u.audioTypes, normalized):
		if size > u.maxAudioSize {
			return errors.NewMediaError(fmt.Sprintf("audio of %d bytes exceeds the %d byte limit", size, u.maxAudioSize), nil)
		}
	default:
		return errors.NewMediaError(fmt.Sprintf("unsupported media type %q", contentType), nil)
	}
	return nil
}

func normalizeMimeType(contentType string) string {
	// Strip parameters such as "; charset=binary".
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
