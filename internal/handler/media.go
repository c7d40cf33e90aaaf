package handler

import (
	"mime/multipart"
	"net/http"
	"strings"

	"socialsync/internal/httputil"
	"socialsync/internal/model"
	"socialsync/internal/service"
)

// multipartOverhead is the slack allowed above the file limit for form
// boundaries and headers.
const multipartOverhead = 1 << 20

type MediaHandler struct {
	mediaService *service.MediaService
}

func NewMediaHandler(mediaService *service.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// upload is one file taken from a multipart form.
type upload struct {
	file        multipart.File
	size        int64
	contentType string
}

func (u *upload) Close() { _ = u.file.Close() }

// readUpload extracts the named file field from a multipart request or
// writes the matching 400.
func readUpload(w http.ResponseWriter, r *http.Request, field string, maxSize int64) (*upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			httputil.WriteBadRequestWithCode(w, model.CodeFileTooLarge, "File exceeds the size limit")
			return nil, false
		}
		httputil.WriteBadRequest(w, "Invalid multipart form")
		return nil, false
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		httputil.WriteBadRequest(w, "Missing file field '"+field+"'")
		return nil, false
	}

	return &upload{
		file:        file,
		size:        header.Size,
		contentType: header.Header.Get("Content-Type"),
	}, true
}

// UploadPostImage handles POST /media/posts
// Stores the image and returns its public URL for use as a post image_url.
func (h *MediaHandler) UploadPostImage(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.mediaService == nil {
		writeServiceError(w, r, model.ErrMediaStorageDisabled, "UploadPostImage", "")
		return
	}

	up, ok := readUpload(w, r, "image", model.MaxImageSizeBytes)
	if !ok {
		return
	}
	defer up.Close()

	result, err := h.mediaService.UploadPostImage(r.Context(), identity.UID, up.file, up.size, up.contentType)
	if err != nil {
		writeServiceError(w, r, err, "UploadPostImage", "Failed to upload image")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, result)
}

// PresignPostUpload handles POST /media/posts/presign
// Returns a presigned URL for uploading a post image directly to the bucket.
func (h *MediaHandler) PresignPostUpload(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.mediaService == nil {
		writeServiceError(w, r, model.ErrMediaStorageDisabled, "PresignPostUpload", "")
		return
	}

	var req model.PresignUploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.ContentType = strings.TrimSpace(req.ContentType)
	if req.ContentType == "" {
		httputil.WriteBadRequest(w, "content_type is required")
		return
	}

	res, err := h.mediaService.PresignPostUpload(r.Context(), identity.UID, req)
	if err != nil {
		writeServiceError(w, r, err, "PresignPostUpload", "Failed to create upload URL")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, res)
}
