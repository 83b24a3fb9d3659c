package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-support-api/apperr"
	"github.com/kendall-kelly/storefront-support-api/middleware"
	"github.com/kendall-kelly/storefront-support-api/services"
	"github.com/kendall-kelly/storefront-support-api/utils"
)

// UploadController accepts evidence photos before a return is submitted
type UploadController struct {
	images services.ImageService
	logger *slog.Logger
}

func NewUploadController(images services.ImageService, logger *slog.Logger) *UploadController {
	return &UploadController{images: images, logger: logger}
}

// UploadReturnImage handles POST /api/v1/return/images - multipart field "image".
// The returned key goes into the images list of POST /return/new.
func (uc *UploadController) UploadReturnImage(c *gin.Context) {
	user, ok := sessionUser(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		middleware.Fail(c, apperr.InvalidErr("MISSING_FILE", "An image file is required",
			map[string]string{"image": "This field is required"}))
		return
	}

	key, err := uc.images.UploadEvidence(c.Request.Context(), user.ID, fileHeader)
	if err != nil {
		var uploadErr *utils.FileUploadError
		if errors.As(err, &uploadErr) {
			middleware.Fail(c, apperr.InvalidErr(uploadErr.Code, uploadErr.Message, nil))
			return
		}
		middleware.Fail(c, &apperr.AppError{
			Kind: apperr.Retryable, Code: "UPLOAD_FAILED",
			PublicMsg: "Failed to store the image, please try again", Err: err,
		})
		return
	}

	url, err := uc.images.URL(c.Request.Context(), key)
	if err != nil {
		uc.logger.Warn("failed to sign uploaded image", slog.String("key", key), slog.Any("err", err))
	}

	respond(c, http.StatusCreated, gin.H{"key": key, "url": url})
}
