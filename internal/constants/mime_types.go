package constants

// DefaultImageTypes are the MIME types accepted for image messages when the
// config does not override the allow-list.
var DefaultImageTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

// DefaultAudioTypes are the MIME types accepted for audio messages.
var DefaultAudioTypes = []string{
	"audio/mpeg",
	"audio/mp4",
	"audio/aac",
	"audio/ogg",
	"audio/wav",
}

// DefaultMimeType is the fallback MIME type for unknown content
const DefaultMimeType = "application/octet-stream"
