package services

import (
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"strings"

	"github.com/google/uuid"
	"github.com/kendall-kelly/storefront-support-api/models"
	"github.com/kendall-kelly/storefront-support-api/utils"
)

// ImageService handles the photos customers attach to return requests
type ImageService interface {
	// UploadEvidence validates and stores an image for owner, returning its key
	UploadEvidence(ctx context.Context, ownerID uint, fileHeader *multipart.FileHeader) (string, error)

	// URL returns a time-limited link to an uploaded image
	URL(ctx context.Context, key string) (string, error)

	// Delete removes an uploaded image
	Delete(ctx context.Context, key string) error

	// OwnedBy reports whether key was issued to owner by UploadEvidence
	OwnedBy(key string, ownerID uint) bool
}

// EvidenceImages implements ImageService on top of an ObjectStore
type EvidenceImages struct {
	store  ObjectStore
	logger *slog.Logger
}

func NewEvidenceImages(store ObjectStore, logger *slog.Logger) *EvidenceImages {
	return &EvidenceImages{store: store, logger: logger}
}

func evidencePrefix(ownerID uint) string {
	return fmt.Sprintf("returns/%d/", ownerID)
}

// UploadEvidence stores the file under returns/{owner}/{uuid}_{name}
func (s *EvidenceImages) UploadEvidence(ctx context.Context, ownerID uint, fileHeader *multipart.FileHeader) (string, error) {
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		return "", err
	}
	contentType, _ := utils.ImageContentType(fileHeader.Filename)

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			s.logger.Warn("failed to close upload", slog.Any("err", closeErr))
		}
	}()

	key := evidencePrefix(ownerID) + uuid.NewString() + "_" + utils.SafeFilename(fileHeader.Filename)
	if err := s.store.PutObject(ctx, key, contentType, file); err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	s.logger.Info("evidence image uploaded", slog.Uint64("owner_id", uint64(ownerID)), slog.String("key", key))
	return key, nil
}

func (s *EvidenceImages) URL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	url, err := s.store.PresignGet(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to generate image URL: %w", err)
	}
	return url, nil
}

func (s *EvidenceImages) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.store.DeleteObject(ctx, key); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

func (s *EvidenceImages) OwnedBy(key string, ownerID uint) bool {
	return strings.HasPrefix(key, evidencePrefix(ownerID)) && len(key) > len(evidencePrefix(ownerID))
}

// AttachURLs fills ImageURLs on each return. A link that cannot be signed
// is logged and left out rather than failing the read.
func AttachURLs(ctx context.Context, images ImageService, logger *slog.Logger, returns ...*models.ReturnRequest) {
	if images == nil {
		return
	}
	for _, r := range returns {
		r.ImageURLs = make([]string, 0, len(r.Images))
		for _, key := range r.Images {
			url, err := images.URL(ctx, key)
			if err != nil {
				logger.Warn("failed to sign evidence image",
					slog.Uint64("return_id", uint64(r.ID)), slog.String("key", key), slog.Any("err", err))
				continue
			}
			r.ImageURLs = append(r.ImageURLs, url)
		}
	}
}
