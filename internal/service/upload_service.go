package service

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/artistamplifier/api/internal/client"
	"github.com/artistamplifier/api/internal/fetch"
	"github.com/artistamplifier/api/internal/model"
)

// UploadTokenIssuer defines the interface for upload credential issuance
type UploadTokenIssuer interface {
	IssueToken(ctx context.Context, req *model.UploadTokenRequest) (*model.UploadTokenResponse, error)
}

// UploadService hands out short-lived presigned PUT URLs so clients upload
// audio straight to object storage instead of through the API.
type UploadService struct {
	r2Client client.StorageClient
	ttl      time.Duration
}

func NewUploadService(r2Client client.StorageClient, ttl time.Duration) *UploadService {
	return &UploadService{
		r2Client: r2Client,
		ttl:      ttl,
	}
}

// IssueToken creates a presigned PUT URL for the requested path. The object
// key gets a random prefix so clients cannot overwrite each other's uploads.
func (s *UploadService) IssueToken(ctx context.Context, req *model.UploadTokenRequest) (*model.UploadTokenResponse, error) {
	if !fetch.AllowedType(req.ContentType) {
		return nil, ErrUnsupportedType
	}

	key := fmt.Sprintf("uploads/%s/%s", uuid.New().String(), path.Base(req.Path))
	expiresAt := time.Now().Add(s.ttl)

	// Use mock response if client is not configured
	if s.r2Client == nil {
		return s.issueMock(key, expiresAt), nil
	}

	uploadURL, err := s.r2Client.GetSignedPutURL(ctx, key, req.ContentType, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to issue upload URL: %w", err)
	}

	return &model.UploadTokenResponse{
		UploadURL:   uploadURL,
		DownloadURL: s.r2Client.GetPublicURL(key),
		ExpiresAt:   expiresAt,
	}, nil
}

// Mock implementation for development/testing
func (s *UploadService) issueMock(key string, expiresAt time.Time) *model.UploadTokenResponse {
	return &model.UploadTokenResponse{
		UploadURL:   fmt.Sprintf("https://uploads.artistamplifier.app/%s", key),
		DownloadURL: fmt.Sprintf("https://cdn.artistamplifier.app/%s", key),
		ExpiresAt:   expiresAt,
	}
}
