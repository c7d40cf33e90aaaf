package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"socialsync/internal/logging"
	"socialsync/internal/model"
	"socialsync/internal/repository"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._]+$`)

// UserService handles business logic for user operations
type UserService struct {
	repo  repository.UserRepository
	creds repository.CredentialRepository
	now   func() time.Time
}

func NewUserService(repo repository.UserRepository, creds repository.CredentialRepository) *UserService {
	return &UserService{
		repo:  repo,
		creds: creds,
		now:   time.Now,
	}
}

func (s *UserService) log() *logrus.Entry {
	return logging.For("UserService")
}

// Register creates a new account: profile, username claim, credentials.
func (s *UserService) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, model.ErrInvalidEmail
	}
	username := strings.TrimSpace(req.Username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if len(req.Password) < model.MinPasswordLength {
		return nil, model.ErrPasswordTooShort
	}

	exists, err := s.creds.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, model.ErrEmailExists
	}

	uid := uuid.NewString()
	if err := s.repo.ReserveUsername(ctx, uid, username); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}

	user := &model.User{
		ID:          uid,
		Email:       email,
		Username:    username,
		DisplayName: displayName,
		CreatedAt:   s.now().UnixMilli(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if err := s.creds.Create(ctx, uid, email, string(hashedPassword)); err != nil {
		s.log().WithError(err).WithField("user_id", uid).Error("Register FAILED: credentials not stored")
		return nil, fmt.Errorf("failed to store credentials: %w", err)
	}

	s.log().WithField("user_id", uid).Info("Register OK")
	return user, nil
}

// Login authenticates a user with email and password.
func (s *UserService) Login(ctx context.Context, req *model.LoginRequest) (*model.User, error) {
	uid, err := s.creds.GetUIDByEmail(ctx, req.Email)
	if err != nil {
		// Don't reveal whether the email exists or not
		return nil, model.ErrInvalidCredentials
	}

	hash, err := s.creds.GetPasswordHash(ctx, uid)
	if err != nil {
		return nil, model.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	return s.repo.GetByID(ctx, uid)
}

// ChangePassword replaces the password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, uid string, req *model.ChangePasswordRequest) error {
	if req.NewPassword != req.ConfirmPassword {
		return model.ErrPasswordMismatch
	}
	if len(req.NewPassword) < model.MinPasswordLength {
		return model.ErrPasswordTooShort
	}

	hash, err := s.creds.GetPasswordHash(ctx, uid)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.CurrentPassword)); err != nil {
		return model.ErrInvalidCredentials
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.creds.UpdatePasswordHash(ctx, uid, string(newHash)); err != nil {
		return err
	}

	s.log().WithField("user_id", uid).Info("ChangePassword OK")
	return nil
}

// GetByID retrieves a user by ID.
func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Identity returns the actor view of a stored profile.
func (s *UserService) Identity(ctx context.Context, id string) (model.Identity, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.Identity{}, err
	}
	return user.Identity(), nil
}

// EnsureProfile returns the stored profile of identity, creating it from the
// identity claims on first sight. Users signed in through an external
// identity provider never pass through Register.
func (s *UserService) EnsureProfile(ctx context.Context, identity model.Identity) (*model.User, error) {
	user, err := s.repo.GetByID(ctx, identity.UID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return nil, err
	}

	username := strings.ToLower(identity.UID)
	if len(username) > model.MaxUsernameLength {
		username = username[:model.MaxUsernameLength]
	}
	if validateUsername(username) != nil || s.repo.ReserveUsername(ctx, identity.UID, username) != nil {
		username = ""
	}

	user = &model.User{
		ID:          identity.UID,
		Email:       identity.Email,
		Username:    username,
		DisplayName: identity.DisplayName,
		PhotoURL:    identity.PhotoURL,
		CreatedAt:   s.now().UnixMilli(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.log().WithField("user_id", identity.UID).Info("Profile created from identity")
	return user, nil
}

// GetProfile returns the public profile. Email is only shown to its owner.
func (s *UserService) GetProfile(ctx context.Context, userID, viewerID string) (*model.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if viewerID != userID {
		user.Email = ""
		user.PhoneNumber = ""
	}
	return user, nil
}

// UpdateProfile applies profile edits. A username change claims the new
// name before releasing the old one.
func (s *UserService) UpdateProfile(ctx context.Context, uid string, req model.UpdateProfileRequest) (*model.User, error) {
	current, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}

	var released string
	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if err := validateUsername(username); err != nil {
			return nil, err
		}
		if !strings.EqualFold(username, current.Username) {
			if err := s.repo.ReserveUsername(ctx, uid, username); err != nil {
				return nil, err
			}
			released = current.Username
		}
		req.Username = &username
	}
	if req.DisplayName != nil && strings.TrimSpace(*req.DisplayName) == "" {
		req.DisplayName = nil
	}

	if err := s.repo.UpdateProfile(ctx, uid, req); err != nil {
		return nil, err
	}

	if released != "" {
		if err := s.repo.ReleaseUsername(ctx, released); err != nil {
			s.log().WithError(err).WithField("username", released).Warn("Release old username FAILED")
		}
	}

	return s.repo.GetByID(ctx, uid)
}

// Search finds users whose username or display name starts with query.
func (s *UserService) Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
	return s.repo.Search(ctx, query, model.ClampLimit(limit))
}

func validateUsername(username string) error {
	if username == "" || len(username) > model.MaxUsernameLength || !usernamePattern.MatchString(username) {
		return model.ErrInvalidUsername
	}
	return nil
}
