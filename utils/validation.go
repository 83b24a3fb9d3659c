package utils

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/kendall-kelly/storefront-support-api/apperr"
	"github.com/kendall-kelly/storefront-support-api/models"
)

// RegisterValidators installs the storefront binding tags on gin's validator
// and reports field errors by their json names.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	if err := v.RegisterValidation("return_reason", func(fl validator.FieldLevel) bool {
		return models.ReturnReason(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	if err := v.RegisterValidation("return_type", func(fl validator.FieldLevel) bool {
		return models.ReturnType(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("return_status", func(fl validator.FieldLevel) bool {
		return models.ReturnStatus(fl.Field().String()).Valid()
	})
}

// BindError converts a gin binding failure into a validation AppError with
// one message per offending field.
func BindError(err error) *apperr.AppError {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = messageForTag(fe.Tag(), fe.Param())
		}
		return apperr.InvalidErr("VALIDATION_ERROR", "Invalid request data", fields)
	}
	return apperr.InvalidErr("VALIDATION_ERROR", "Invalid request data", map[string]string{"_": "Malformed request body"})
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "max":
		return "Must be at most " + param
	case "min":
		return "Must be at least " + param
	case "gt":
		return "Must be greater than " + param
	case "gte":
		return "Must be greater than or equal to " + param
	case "return_reason":
		return "Must be one of: Damaged Product, Wrong Item Received, Size/Fit Issue, Not as Described, Quality Issue, Other"
	case "return_type":
		return "Must be Refund or Replacement"
	case "return_status":
		return "Unknown return status"
	default:
		return "Invalid value"
	}
}
