package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"socialsync/internal/config"
	"socialsync/internal/logging"
	"socialsync/internal/model"
	"socialsync/internal/repository"
)

// AuthService handles authentication-related business logic with refresh token rotation and reuse detection.
type AuthService struct {
	refreshTokenRepo repository.RefreshTokenRepository
	config           *config.Config
	now              func() time.Time
}

func NewAuthService(refreshTokenRepo repository.RefreshTokenRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		refreshTokenRepo: refreshTokenRepo,
		config:           cfg,
		now:              time.Now,
	}
}

func (s *AuthService) log() *logrus.Entry {
	return logging.For("AuthService")
}

// GenerateTokenPair issues a new access token and persists a refresh token.
func (s *AuthService) GenerateTokenPair(ctx context.Context, user model.Identity, deviceInfo, ipAddress string) (*model.TokenPair, error) {
	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshTokenRaw := uuid.New().String()
	now := s.now()

	refreshToken := &model.RefreshToken{
		UserID:     user.UID,
		TokenHash:  hashToken(refreshTokenRaw),
		ExpiresAt:  now.Add(time.Duration(s.config.RefreshTokenMaxAge) * time.Second).UnixMilli(),
		CreatedAt:  now.UnixMilli(),
		DeviceInfo: deviceInfo,
		IPAddress:  ipAddress,
	}

	if err := s.refreshTokenRepo.Create(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshTokenRaw,
		ExpiresIn:    s.config.AccessTokenMaxAge,
	}, nil
}

// RefreshTokens validates the refresh token and rotates a new pair. The
// identity lookup is supplied by the caller so the fresh access token
// carries the current profile claims.
func (s *AuthService) RefreshTokens(
	ctx context.Context,
	refreshTokenRaw, deviceInfo, ipAddress string,
	lookup func(ctx context.Context, uid string) (model.Identity, error),
) (*model.TokenPair, string, error) {
	tokenHash := hashToken(refreshTokenRaw)

	token, err := s.refreshTokenRepo.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, "", model.ErrRefreshTokenNotFound
	}

	if token.IsRevoked() {
		if err := s.RevokeAllUserTokens(ctx, token.UserID); err != nil {
			s.log().WithError(err).WithField("user_id", token.UserID).Error("Revoke token family FAILED")
		} else {
			s.log().WithField("user_id", token.UserID).Warn("Refresh token reuse detected, token family revoked")
		}
		return nil, "", model.ErrRefreshTokenReused
	}

	if token.IsExpired() {
		return nil, "", model.ErrRefreshTokenExpired
	}

	identity, err := lookup(ctx, token.UserID)
	if err != nil {
		return nil, "", err
	}

	newTokenPair, err := s.GenerateTokenPair(ctx, identity, deviceInfo, ipAddress)
	if err != nil {
		return nil, "", err
	}

	if err := s.refreshTokenRepo.Revoke(ctx, tokenHash, hashToken(newTokenPair.RefreshToken)); err != nil {
		s.log().WithError(err).WithField("user_id", token.UserID).Error("Revoke rotated token FAILED")
	}

	return newTokenPair, token.UserID, nil
}

func (s *AuthService) RevokeRefreshToken(ctx context.Context, refreshTokenRaw string) error {
	tokenHash := hashToken(refreshTokenRaw)
	if _, err := s.refreshTokenRepo.FindByTokenHash(ctx, tokenHash); err != nil {
		return err
	}
	return s.refreshTokenRepo.Revoke(ctx, tokenHash, "")
}

func (s *AuthService) RevokeAllUserTokens(ctx context.Context, userID string) error {
	if err := s.refreshTokenRepo.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke token family: %w", err)
	}
	return nil
}

// accessClaims mirror the identity provider's claim names so clients read
// the same fields regardless of who issued the token.
type accessClaims struct {
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	Email   string `json:"email,omitempty"`
	UID     string `json:"uid"`
	jwt.RegisteredClaims
}

func (s *AuthService) generateAccessToken(user model.Identity) (string, error) {
	now := s.now()
	claims := accessClaims{
		UID:     user.UID,
		Name:    user.DisplayName,
		Picture: user.PhotoURL,
		Email:   user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.config.AccessTokenMaxAge) * time.Second)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// TokenVerifier turns a bearer token into the signed-in identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*model.Identity, error)
}

// JWTVerifier accepts the HS256 access tokens issued by AuthService.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (*model.Identity, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.ErrAccessTokenExpired
		}
		return nil, model.ErrAccessTokenInvalid
	}
	if !token.Valid || claims.UID == "" {
		return nil, model.ErrAccessTokenInvalid
	}
	return &model.Identity{
		UID:         claims.UID,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
		Email:       claims.Email,
	}, nil
}
