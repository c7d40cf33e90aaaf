package service

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialsync/internal/config"
	"socialsync/internal/model"
	"socialsync/internal/repository"
	"socialsync/internal/store"
)

// =============================================================================
// USER TESTS
// =============================================================================

func newUserService() *UserService {
	s := store.NewMemory()
	return NewUserService(repository.NewUserRepository(s), repository.NewCredentialRepository(s))
}

func TestUserService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newUserService()

	user, err := svc.Register(ctx, &model.RegisterRequest{
		Email:    " Alice@Example.com ",
		Password: "secret1",
		Username: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "alice", user.DisplayName, "display name defaults to the username")
	assert.NotEmpty(t, user.ID)

	got, err := svc.Login(ctx, &model.LoginRequest{Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Login(ctx, &model.LoginRequest{Email: "alice@example.com", Password: "wrong!"})
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
	_, err = svc.Login(ctx, &model.LoginRequest{Email: "nobody@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestUserService_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := newUserService()

	_, err := svc.Register(ctx, &model.RegisterRequest{Email: "alice@example.com", Password: "secret1", Username: "alice"})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  model.RegisterRequest
		want error
	}{
		{"bad email", model.RegisterRequest{Email: "not-an-email", Password: "secret1", Username: "bob"}, model.ErrInvalidEmail},
		{"bad username", model.RegisterRequest{Email: "bob@example.com", Password: "secret1", Username: "bob smith"}, model.ErrInvalidUsername},
		{"long username", model.RegisterRequest{Email: "bob@example.com", Password: "secret1", Username: strings.Repeat("b", 31)}, model.ErrInvalidUsername},
		{"short password", model.RegisterRequest{Email: "bob@example.com", Password: "12345", Username: "bob"}, model.ErrPasswordTooShort},
		{"email taken", model.RegisterRequest{Email: "ALICE@example.com", Password: "secret1", Username: "bob"}, model.ErrEmailExists},
		{"username taken", model.RegisterRequest{Email: "bob@example.com", Password: "secret1", Username: "alice"}, model.ErrUsernameExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, &tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUserService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	svc := newUserService()
	user, err := svc.Register(ctx, &model.RegisterRequest{Email: "alice@example.com", Password: "secret1", Username: "alice"})
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, &model.ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "secret2", ConfirmPassword: "secret3"})
	assert.ErrorIs(t, err, model.ErrPasswordMismatch)
	err = svc.ChangePassword(ctx, user.ID, &model.ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "abc", ConfirmPassword: "abc"})
	assert.ErrorIs(t, err, model.ErrPasswordTooShort)
	err = svc.ChangePassword(ctx, user.ID, &model.ChangePasswordRequest{CurrentPassword: "nope!!", NewPassword: "secret2", ConfirmPassword: "secret2"})
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, &model.ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "secret2", ConfirmPassword: "secret2"}))

	_, err = svc.Login(ctx, &model.LoginRequest{Email: "alice@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
	_, err = svc.Login(ctx, &model.LoginRequest{Email: "alice@example.com", Password: "secret2"})
	assert.NoError(t, err)
}

func TestUserService_ProfileAndUsernameChange(t *testing.T) {
	ctx := context.Background()
	svc := newUserService()
	alice, err := svc.Register(ctx, &model.RegisterRequest{Email: "alice@example.com", Password: "secret1", Username: "alice"})
	require.NoError(t, err)
	bob, err := svc.Register(ctx, &model.RegisterRequest{Email: "bob@example.com", Password: "secret1", Username: "bob"})
	require.NoError(t, err)

	public, err := svc.GetProfile(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, public.Email)
	own, err := svc.GetProfile(ctx, alice.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", own.Email)

	taken := "bob"
	_, err = svc.UpdateProfile(ctx, alice.ID, model.UpdateProfileRequest{Username: &taken})
	assert.ErrorIs(t, err, model.ErrUsernameExists)

	renamed, name := "alice2", "Alice A."
	updated, err := svc.UpdateProfile(ctx, alice.ID, model.UpdateProfileRequest{Username: &renamed, DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Username)
	assert.Equal(t, "Alice A.", updated.DisplayName)

	// The old name is free again.
	old := "alice"
	_, err = svc.UpdateProfile(ctx, bob.ID, model.UpdateProfileRequest{Username: &old})
	assert.NoError(t, err)

	id, err := svc.Identity(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", id.DisplayName)
}

// =============================================================================
// AUTH TESTS
// =============================================================================

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	cfg := &config.Config{JWTSecret: "test-secret", AccessTokenMaxAge: 900, RefreshTokenMaxAge: 3600}
	return NewAuthService(repository.NewRefreshTokenRepository(store.NewMemory()), cfg)
}

func lookupAlice(ctx context.Context, uid string) (model.Identity, error) {
	return model.Identity{UID: uid, DisplayName: "Alice"}, nil
}

func TestAuthService_AccessTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t)

	pair, err := svc.GenerateTokenPair(ctx, model.Identity{UID: "alice", DisplayName: "Alice", Email: "a@example.com"}, "test", "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 900, pair.ExpiresIn)

	id, err := NewJWTVerifier("test-secret").Verify(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UID)
	assert.Equal(t, "Alice", id.DisplayName)
	assert.Equal(t, "a@example.com", id.Email)

	_, err = NewJWTVerifier("other-secret").Verify(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, model.ErrAccessTokenInvalid)
	_, err = NewJWTVerifier("test-secret").Verify(ctx, "not-a-token")
	assert.ErrorIs(t, err, model.ErrAccessTokenInvalid)
}

func TestAuthService_ExpiredAccessToken(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t)
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }

	pair, err := svc.GenerateTokenPair(ctx, model.Identity{UID: "alice"}, "", "")
	require.NoError(t, err)

	_, err = NewJWTVerifier("test-secret").Verify(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, model.ErrAccessTokenExpired)
}

func TestAuthService_RotationAndReuseDetection(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t)

	first, err := svc.GenerateTokenPair(ctx, model.Identity{UID: "alice"}, "", "")
	require.NoError(t, err)

	second, uid, err := svc.RefreshTokens(ctx, first.RefreshToken, "", "", lookupAlice)
	require.NoError(t, err)
	assert.Equal(t, "alice", uid)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// Presenting the rotated token again revokes the whole family.
	_, _, err = svc.RefreshTokens(ctx, first.RefreshToken, "", "", lookupAlice)
	assert.ErrorIs(t, err, model.ErrRefreshTokenReused)
	_, _, err = svc.RefreshTokens(ctx, second.RefreshToken, "", "", lookupAlice)
	assert.ErrorIs(t, err, model.ErrRefreshTokenReused)

	_, _, err = svc.RefreshTokens(ctx, "unknown", "", "", lookupAlice)
	assert.ErrorIs(t, err, model.ErrRefreshTokenNotFound)
}

func TestAuthService_ExpiredRefreshToken(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	pair, err := svc.GenerateTokenPair(ctx, model.Identity{UID: "alice"}, "", "")
	require.NoError(t, err)

	svc.now = time.Now
	_, _, err = svc.RefreshTokens(ctx, pair.RefreshToken, "", "", lookupAlice)
	assert.ErrorIs(t, err, model.ErrRefreshTokenExpired)
}

// =============================================================================
// MEDIA TESTS
// =============================================================================

type fakeObjects struct {
	mu   sync.Mutex
	puts map[string][]byte
	cts  map[string]string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{puts: map[string][]byte{}, cts: map[string]string{}}
}

func (f *fakeObjects) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(params.Key)
	f.puts[key] = body
	f.cts[key] = aws.ToString(params.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestMediaService_UploadProfileImage(t *testing.T) {
	objects := newFakeObjects()
	svc := NewMediaServiceWithClient(objects, "bucket", "https://cdn.example.com/")
	svc.now = func() time.Time { return time.UnixMilli(1234) }

	data := testPNG(t, 400, 300)
	res, err := svc.UploadProfileImage(context.Background(), "alice", bytes.NewReader(data), int64(len(data)), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "profile_images/alice.jpg", res.Key)
	assert.Equal(t, "https://cdn.example.com/profile_images/alice.jpg?v=1234", res.URL)
	assert.Equal(t, model.ContentTypeJPEG, objects.cts[res.Key])

	img, err := imaging.Decode(bytes.NewReader(objects.puts[res.Key]))
	require.NoError(t, err)
	assert.Equal(t, model.AvatarWidth, img.Bounds().Dx())
	assert.Equal(t, model.AvatarHeight, img.Bounds().Dy())
}

func TestMediaService_UploadPostImageScalesDown(t *testing.T) {
	objects := newFakeObjects()
	svc := NewMediaServiceWithClient(objects, "bucket", "https://cdn.example.com")

	data := testPNG(t, 1500, 100)
	res, err := svc.UploadPostImage(context.Background(), "alice", bytes.NewReader(data), int64(len(data)), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Key, "post_images/alice_"))

	img, err := imaging.Decode(bytes.NewReader(objects.puts[res.Key]))
	require.NoError(t, err)
	assert.Equal(t, model.PostImageMaxWidth, img.Bounds().Dx())
}

func TestMediaService_Rejects(t *testing.T) {
	svc := NewMediaServiceWithClient(newFakeObjects(), "bucket", "https://cdn.example.com")
	ctx := context.Background()

	_, err := svc.UploadPostImage(ctx, "alice", strings.NewReader("plain text"), 10, "text/plain")
	assert.ErrorIs(t, err, model.ErrInvalidImageType)
	_, err = svc.UploadPostImage(ctx, "alice", strings.NewReader(""), model.MaxImageSizeBytes+1, "image/png")
	assert.ErrorIs(t, err, model.ErrFileTooLarge)
	_, err = svc.UploadVoice(ctx, "alice-bob", strings.NewReader("x"), 1, "video/mp4")
	assert.ErrorIs(t, err, model.ErrInvalidAudioType)
	_, err = svc.PresignPostUpload(ctx, "alice", model.PresignUploadRequest{ContentType: "image/png", FileSize: 10})
	assert.ErrorIs(t, err, model.ErrMediaStorageDisabled)
}

func TestMediaService_UploadVoice(t *testing.T) {
	objects := newFakeObjects()
	svc := NewMediaServiceWithClient(objects, "bucket", "https://cdn.example.com")

	res, err := svc.UploadVoice(context.Background(), "alice-bob", strings.NewReader("audio"), 5, "audio/mp4; codecs=mp4a")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Key, "voice_messages/alice-bob/"))
	assert.True(t, strings.HasSuffix(res.Key, ".m4a"))
	assert.Equal(t, "audio", string(objects.puts[res.Key]))
	assert.Equal(t, model.ContentTypeM4A, objects.cts[res.Key])
}

// =============================================================================
// EXPO PUSH TESTS
// =============================================================================

func TestExpoPushClient_SendToTokens(t *testing.T) {
	var got ExpoPushMessage
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":[{"status":"ok","id":"1"}]}`))
	}))
	defer srv.Close()

	client := NewExpoPushClient(srv.URL)
	err := client.SendToTokens(context.Background(),
		[]string{"ExponentPushToken[abc]", "fcm-token-not-expo"},
		"New Like", "Bob liked your post", map[string]string{"type": "notification_created"})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"ExponentPushToken[abc]"}, got.To)
	assert.Equal(t, "New Like", got.Title)
	assert.Equal(t, "notification_created", got.Data["type"])

	// Nothing valid to send, no request.
	require.NoError(t, client.SendToTokens(context.Background(), []string{"bogus"}, "t", "b", nil))
	assert.Equal(t, 1, calls)
}

func TestExpoPushClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewExpoPushClient(srv.URL).SendToTokens(context.Background(), []string{"ExpoPushToken[x]"}, "t", "b", nil)
	assert.Error(t, err)
}
