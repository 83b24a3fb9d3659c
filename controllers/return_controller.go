package controllers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-support-api/middleware"
	"github.com/kendall-kelly/storefront-support-api/models"
	"github.com/kendall-kelly/storefront-support-api/services"
	"github.com/kendall-kelly/storefront-support-api/utils"
)

// CreateReturnRequest represents the request body for opening a return
type CreateReturnRequest struct {
	OrderID    uint     `json:"orderId" binding:"required"`
	ProductID  uint     `json:"productId" binding:"required"`
	ReturnType string   `json:"returnType" binding:"required,return_type"`
	Reason     string   `json:"reason" binding:"required,return_reason"`
	Comment    string   `json:"comment"`
	Images     []string `json:"images" binding:"max=5"`
}

// AdminCommentRequest is the optional body of approve and the required body of reject
type AdminCommentRequest struct {
	AdminComment string `json:"adminComment"`
}

// SchedulePickupRequest represents the request body for booking a pickup
type SchedulePickupRequest struct {
	PickupDate *time.Time `json:"pickupDate"`
}

// ProcessRefundRequest overrides the refunded amount when set
type ProcessRefundRequest struct {
	RefundAmount *float64 `json:"refundAmount" binding:"omitempty,gte=0"`
}

// ReturnController exposes the return workflow over HTTP
type ReturnController struct {
	returns *services.ReturnService
	images  services.ImageService
	logger  *slog.Logger
}

func NewReturnController(returns *services.ReturnService, images services.ImageService, logger *slog.Logger) *ReturnController {
	return &ReturnController{returns: returns, images: images, logger: logger}
}

func (rc *ReturnController) render(c *gin.Context, status int, ret *models.ReturnRequest) {
	services.AttachURLs(c.Request.Context(), rc.images, rc.logger, ret)
	respond(c, status, ret)
}

func (rc *ReturnController) renderList(c *gin.Context, list []models.ReturnRequest) {
	ptrs := make([]*models.ReturnRequest, len(list))
	for i := range list {
		ptrs[i] = &list[i]
	}
	services.AttachURLs(c.Request.Context(), rc.images, rc.logger, ptrs...)
	respond(c, http.StatusOK, list)
}

// CreateReturn handles POST /api/v1/return/new - a customer asks to return one order line
func (rc *ReturnController) CreateReturn(c *gin.Context) {
	user, ok := sessionUser(c)
	if !ok {
		return
	}

	var req CreateReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, utils.BindError(err))
		return
	}

	ret, err := rc.returns.Create(c.Request.Context(), user, services.CreateReturnInput{
		OrderID:    req.OrderID,
		ProductID:  req.ProductID,
		ReturnType: models.ReturnType(req.ReturnType),
		Reason:     models.ReturnReason(req.Reason),
		Comment:    req.Comment,
		Images:     req.Images,
	})
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	rc.render(c, http.StatusCreated, ret)
}

// ListMyReturns handles GET /api/v1/returns/me
func (rc *ReturnController) ListMyReturns(c *gin.Context) {
	user, ok := sessionUser(c)
	if !ok {
		return
	}

	list, err := rc.returns.ListMine(c.Request.Context(), user)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	rc.renderList(c, list)
}

// GetReturn handles GET /api/v1/return/:id - visible to the owner and to admins
func (rc *ReturnController) GetReturn(c *gin.Context) {
	user, ok := sessionUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	ret, err := rc.returns.Get(c.Request.Context(), user, id)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	rc.render(c, http.StatusOK, ret)
}

// ListAllReturns handles GET /api/v1/admin/returns?status=
func (rc *ReturnController) ListAllReturns(c *gin.Context) {
	list, err := rc.returns.ListAll(c.Request.Context(), models.ReturnStatus(c.Query("status")))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	rc.renderList(c, list)
}

func (rc *ReturnController) apply(c *gin.Context, cmd services.ReturnCommand) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	ret, err := rc.returns.Apply(c.Request.Context(), id, cmd)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	rc.render(c, http.StatusOK, ret)
}

// Approve handles PUT /api/v1/admin/return/:id/approve
func (rc *ReturnController) Approve(c *gin.Context) {
	var req AdminCommentRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	rc.apply(c, services.Approve{AdminComment: req.AdminComment})
}

// Reject handles PUT /api/v1/admin/return/:id/reject
func (rc *ReturnController) Reject(c *gin.Context) {
	var req AdminCommentRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	rc.apply(c, services.Reject{AdminComment: req.AdminComment})
}

// SchedulePickup handles PUT /api/v1/admin/return/:id/pickup
func (rc *ReturnController) SchedulePickup(c *gin.Context) {
	var req SchedulePickupRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	rc.apply(c, services.SchedulePickup{PickupDate: req.PickupDate})
}

// ConfirmReceived handles PUT /api/v1/admin/return/:id/received
func (rc *ReturnController) ConfirmReceived(c *gin.Context) {
	rc.apply(c, services.ConfirmReceived{})
}

// ProcessRefund handles PUT /api/v1/admin/return/:id/refund
func (rc *ReturnController) ProcessRefund(c *gin.Context) {
	var req ProcessRefundRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	rc.apply(c, services.ProcessRefund{RefundAmount: req.RefundAmount})
}

// ProcessReplacement handles PUT /api/v1/admin/return/:id/replacement
func (rc *ReturnController) ProcessReplacement(c *gin.Context) {
	rc.apply(c, services.ProcessReplacement{})
}

// DeleteReturn handles DELETE /api/v1/admin/return/:id. Evidence images are
// removed after the row; a failed image delete is only logged.
func (rc *ReturnController) DeleteReturn(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	ret, err := rc.returns.Delete(c.Request.Context(), id)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	if rc.images != nil {
		for _, key := range ret.Images {
			if err := rc.images.Delete(c.Request.Context(), key); err != nil {
				rc.logger.Warn("failed to delete evidence image",
					slog.Uint64("return_id", uint64(ret.ID)), slog.String("key", key), slog.Any("err", err))
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Return request deleted",
		"data":    gin.H{"id": ret.ID},
	})
}
