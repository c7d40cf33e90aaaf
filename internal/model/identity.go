package model

// Identity is the signed-in actor as supplied by the identity provider.
// Interaction records copy DisplayName and PhotoURL at write time.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Email       string `json:"email,omitempty"`
}
