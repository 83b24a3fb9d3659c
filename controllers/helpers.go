package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-support-api/apperr"
	"github.com/kendall-kelly/storefront-support-api/middleware"
	"github.com/kendall-kelly/storefront-support-api/models"
	"github.com/kendall-kelly/storefront-support-api/utils"
)

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// idParam reads a positive numeric path parameter, failing the request otherwise
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		middleware.Fail(c, apperr.InvalidErr("INVALID_ID", "Invalid ID", map[string]string{name: "Must be a positive integer"}))
		return 0, false
	}
	return uint(id), true
}

// optionalUintQuery returns nil when the query parameter is absent
func optionalUintQuery(c *gin.Context, name string) (*uint, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		middleware.Fail(c, apperr.InvalidErr("VALIDATION_ERROR", "Invalid request data", map[string]string{name: "Must be a positive integer"}))
		return nil, false
	}
	id := uint(v)
	return &id, true
}

// bindOptionalJSON binds the body when one was sent; an empty body leaves obj untouched
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.Body == nil || c.Request.Body == http.NoBody || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		middleware.Fail(c, utils.BindError(err))
		return false
	}
	return true
}

func sessionUser(c *gin.Context) (*models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("UNAUTHORIZED", "Could not extract user information"))
		return nil, false
	}
	return user, true
}
