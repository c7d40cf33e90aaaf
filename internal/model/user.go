package model

import (
	"errors"
)

// User is the public profile stored at users/{uid}.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	LastName    string `json:"last_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Birthday    string `json:"birthday,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// Identity returns the actor view of the profile.
func (u *User) Identity() Identity {
	return Identity{UID: u.ID, DisplayName: u.DisplayName, PhotoURL: u.PhotoURL, Email: u.Email}
}

// UserSummary is the compact user shape embedded in lists.
type UserSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// Summary returns the compact view of the profile.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName, PhotoURL: u.PhotoURL}
}

// RegisterRequest represents the data needed to create an account
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// LoginRequest represents the data needed to log in
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest carries the current password plus the new one twice.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// UpdateProfileRequest holds optional profile edits. Nil fields are left unchanged.
type UpdateProfileRequest struct {
	Username    *string `json:"username"`
	DisplayName *string `json:"display_name"`
	LastName    *string `json:"last_name"`
	Birthday    *string `json:"birthday"`
	PhoneNumber *string `json:"phone_number"`
	PhotoURL    *string `json:"photo_url"`
}

// UserSearchResponse is returned by GET /users/search.
type UserSearchResponse struct {
	Users []UserSummary `json:"users"`
}

// Account constraints
const (
	MinPasswordLength = 6
	MaxUsernameLength = 30
)

var (
	// ErrUserNotFound is returned when a user cannot be found
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameExists is returned when attempting to take a username already in use
	ErrUsernameExists = errors.New("username already exists")

	// ErrEmailExists is returned when registering an email that already has an account
	ErrEmailExists = errors.New("email already registered")

	// ErrInvalidCredentials is returned when login credentials are incorrect
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPasswordMismatch is returned when the confirmation does not match the new password
	ErrPasswordMismatch = errors.New("password confirmation does not match")

	// ErrPasswordTooShort is returned for passwords under MinPasswordLength
	ErrPasswordTooShort = errors.New("password too short")

	// ErrInvalidEmail is returned for malformed email addresses
	ErrInvalidEmail = errors.New("invalid email")

	// ErrInvalidUsername is returned for empty, too long or malformed usernames
	ErrInvalidUsername = errors.New("invalid username")
)
