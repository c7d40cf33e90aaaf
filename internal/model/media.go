package model

import "errors"

const (
	MaxImageSizeBytes = 5 * 1024 * 1024
	MaxAudioSizeBytes = 10 * 1024 * 1024
	AvatarWidth       = 200
	AvatarHeight      = 200
	PostImageMaxWidth = 1080
	ImageExt          = ".jpg"
	CacheControl      = "public, max-age=31536000" // 1 year
	PresignExpirySecs = 900
)

// Object key folders inside the bucket
const (
	FolderProfileImages = "profile_images"
	FolderPostImages    = "post_images"
	FolderVoiceMessages = "voice_messages"
)

// Supported content types for upload validation
const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
	ContentTypeGIF  = "image/gif"
	ContentTypeWebP = "image/webp"

	ContentTypeM4A  = "audio/mp4"
	ContentTypeAAC  = "audio/aac"
	ContentTypeMPEG = "audio/mpeg"
	ContentTypeOGG  = "audio/ogg"
	ContentTypeWebM = "audio/webm"
	ContentTypeWAV  = "audio/wav"
)

var allowedImageTypes = map[string]struct{}{
	ContentTypeJPEG: {},
	ContentTypePNG:  {},
	ContentTypeGIF:  {},
	ContentTypeWebP: {},
}

var audioExtensions = map[string]string{
	ContentTypeM4A:  ".m4a",
	ContentTypeAAC:  ".aac",
	ContentTypeMPEG: ".mp3",
	ContentTypeOGG:  ".ogg",
	ContentTypeWebM: ".webm",
	ContentTypeWAV:  ".wav",
}

// Error codes for HTTP responses
const (
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeInvalidImageType = "INVALID_IMAGE_TYPE"
	CodeInvalidAudioType = "INVALID_AUDIO_TYPE"
)

// Domain errors for media operations
var (
	ErrFileTooLarge         = errors.New("file too large")
	ErrInvalidImageType     = errors.New("invalid image type")
	ErrInvalidAudioType     = errors.New("invalid audio type")
	ErrMediaStorageDisabled = errors.New("media storage is not configured")
)

// UploadResult is the uploaded object location. Key is the object key
// inside the bucket.
type UploadResult struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// PresignUploadRequest requests a presigned URL for uploading a post image
// directly to the bucket.
type PresignUploadRequest struct {
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
}

// PresignUploadResponse returns upload details for direct uploads. The
// client PUTs bytes to UploadURL, then sends PublicURL as image_url.
type PresignUploadResponse struct {
	UploadURL  string `json:"upload_url"`
	PublicURL  string `json:"public_url"`
	Key        string `json:"key"`
	ExpiresInS int    `json:"expires_in"`
}

// IsAllowedImageType reports if the provided content type is supported
func IsAllowedImageType(contentType string) bool {
	_, ok := allowedImageTypes[contentType]
	return ok
}

// AudioExtension returns the file extension for a supported audio type.
func AudioExtension(contentType string) (string, bool) {
	ext, ok := audioExtensions[contentType]
	return ext, ok
}
