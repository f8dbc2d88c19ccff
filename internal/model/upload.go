package model

import "time"

// UploadTokenRequest asks for a short-lived client-upload credential for the
// given storage path and content type.
type UploadTokenRequest struct {
	Path        string `json:"path" validate:"required"`
	ContentType string `json:"contentType" validate:"required"`
}

// UploadTokenResponse carries the presigned PUT URL the client uploads to and
// the public URL the uploaded object will be readable from.
type UploadTokenResponse struct {
	UploadURL   string    `json:"uploadUrl"`
	DownloadURL string    `json:"downloadUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ValidateResponse is the body of a successful audio pre-check.
type ValidateResponse struct {
	OK bool `json:"ok"`
}
