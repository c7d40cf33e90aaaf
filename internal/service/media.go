package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"socialsync/internal/config"
	"socialsync/internal/logging"
	"socialsync/internal/model"
)

// ObjectPutter is the part of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// MediaService handles media uploads to Cloudflare R2.
type MediaService struct {
	objects   ObjectPutter
	presign   *s3.PresignClient // nil in tests
	bucket    string
	publicURL string
	now       func() time.Time
}

// NewMediaService constructs an S3-compatible client for Cloudflare R2.
func NewMediaService(ctx context.Context, cfg *config.Config) (*MediaService, error) {
	if !cfg.HasMediaStorage() {
		return nil, fmt.Errorf("missing Cloudflare R2 configuration")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for R2: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID)
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	svc := NewMediaServiceWithClient(s3Client, cfg.R2BucketName, cfg.R2PublicURL)
	svc.presign = s3.NewPresignClient(s3Client)
	return svc, nil
}

// NewMediaServiceWithClient wires an existing object client.
func NewMediaServiceWithClient(objects ObjectPutter, bucket, publicURL string) *MediaService {
	return &MediaService{
		objects:   objects,
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		now:       time.Now,
	}
}

func (s *MediaService) log() *logrus.Entry {
	return logging.For("MediaService")
}

// UploadProfileImage normalizes to a 200x200 JPEG stored at
// profile_images/{uid}.jpg. The returned URL carries a version query so
// clients drop the cached previous avatar.
func (s *MediaService) UploadProfileImage(ctx context.Context, uid string, file io.Reader, size int64, contentType string) (*model.UploadResult, error) {
	data, err := readAndValidateImage(file, size, contentType, model.MaxImageSizeBytes)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	jpegBytes, err := encodeJPEG(imaging.Fill(img, model.AvatarWidth, model.AvatarHeight, imaging.Center, imaging.Lanczos), 85)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s%s", model.FolderProfileImages, uid, model.ImageExt)
	if err := s.putObject(ctx, key, jpegBytes, model.ContentTypeJPEG); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s?v=%d", s.publicURL, key, s.now().UnixMilli())
	return &model.UploadResult{URL: url, Key: key}, nil
}

// UploadPostImage stores a JPEG at post_images/{uid}_{ts}.jpg, scaled down
// to PostImageMaxWidth when wider.
func (s *MediaService) UploadPostImage(ctx context.Context, uid string, file io.Reader, size int64, contentType string) (*model.UploadResult, error) {
	data, err := readAndValidateImage(file, size, contentType, model.MaxImageSizeBytes)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Dx() > model.PostImageMaxWidth {
		img = imaging.Resize(img, model.PostImageMaxWidth, 0, imaging.Lanczos)
	}
	jpegBytes, err := encodeJPEG(img, 85)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s_%d%s", model.FolderPostImages, uid, s.now().UnixMilli(), model.ImageExt)
	if err := s.putObject(ctx, key, jpegBytes, model.ContentTypeJPEG); err != nil {
		return nil, err
	}

	return &model.UploadResult{URL: s.publicURL + "/" + key, Key: key}, nil
}

// UploadVoice stores a recorded clip under voice_messages/{chatId}/.
func (s *MediaService) UploadVoice(ctx context.Context, chatID string, audio io.Reader, size int64, contentType string) (*model.UploadResult, error) {
	if size > model.MaxAudioSizeBytes {
		return nil, model.ErrFileTooLarge
	}
	ext, ok := model.AudioExtension(normalizeContentType(contentType))
	if !ok {
		return nil, model.ErrInvalidAudioType
	}

	data, err := io.ReadAll(io.LimitReader(audio, model.MaxAudioSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > model.MaxAudioSizeBytes {
		return nil, model.ErrFileTooLarge
	}

	key := fmt.Sprintf("%s/%s/%s%s", model.FolderVoiceMessages, chatID, uuid.NewString(), ext)
	if err := s.putObject(ctx, key, data, normalizeContentType(contentType)); err != nil {
		return nil, err
	}

	return &model.UploadResult{URL: s.publicURL + "/" + key, Key: key}, nil
}

// PresignPostUpload returns a presigned PUT URL so the client can upload a
// post image straight to the bucket.
func (s *MediaService) PresignPostUpload(ctx context.Context, uid string, req model.PresignUploadRequest) (*model.PresignUploadResponse, error) {
	if s.presign == nil {
		return nil, model.ErrMediaStorageDisabled
	}
	contentType := normalizeContentType(req.ContentType)
	if !model.IsAllowedImageType(contentType) {
		return nil, model.ErrInvalidImageType
	}
	if req.FileSize <= 0 || req.FileSize > model.MaxImageSizeBytes {
		return nil, model.ErrFileTooLarge
	}

	key := fmt.Sprintf("%s/%s_%d_%s", model.FolderPostImages, uid, s.now().UnixMilli(), uuid.NewString())
	out, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(req.FileSize),
		CacheControl:  aws.String(model.CacheControl),
	}, s3.WithPresignExpires(model.PresignExpirySecs*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &model.PresignUploadResponse{
		UploadURL:  out.URL,
		PublicURL:  s.publicURL + "/" + key,
		Key:        key,
		ExpiresInS: model.PresignExpirySecs,
	}, nil
}

// readAndValidateImage loads the upload into memory with size and type checks.
func readAndValidateImage(file io.Reader, size int64, contentType string, maxSize int64) ([]byte, error) {
	if size > maxSize {
		return nil, model.ErrFileTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, model.ErrFileTooLarge
	}

	contentType = normalizeContentType(contentType)
	if contentType == "" && len(data) > 0 {
		contentType = normalizeContentType(http.DetectContentType(data[:min(len(data), 512)]))
	}
	if !model.IsAllowedImageType(contentType) {
		return nil, model.ErrInvalidImageType
	}

	return data, nil
}

func normalizeContentType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// putObject uploads bytes to R2 with metadata.
func (s *MediaService) putObject(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(model.CacheControl),
	})
	if err != nil {
		s.log().WithError(err).WithField("key", key).Error("Upload FAILED")
		return fmt.Errorf("failed to upload to r2: %w", err)
	}
	return nil
}
