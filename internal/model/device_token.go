package model

// DeviceToken is a registered push target. A user may register several
// devices; each lives at deviceTokens/{uid}/{sha256(token)}.
type DeviceToken struct {
	UserID    string `json:"-"`
	Token     string `json:"-"`
	Platform  string `json:"platform"` // "ios", "android"
	UpdatedAt int64  `json:"updated_at"`
}

// RegisterTokenRequest is the request body for registering a device token.
type RegisterTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"` // "ios" or "android"
}

// Platform constants
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// IsValidPlatform reports whether p is a supported push platform.
func IsValidPlatform(p string) bool {
	return p == PlatformIOS || p == PlatformAndroid
}
