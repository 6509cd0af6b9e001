// Package handlers provides HTTP request handlers.
package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"pharmastock/internal/core/apperror"
	appctx "pharmastock/internal/core/context"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

var jsonNamesOnce sync.Once

// NewBaseHandler creates a new base handler. Binding errors report JSON
// field names so clients can map them onto the request they sent.
func NewBaseHandler() *BaseHandler {
	jsonNamesOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(jsonFieldName)
		}
	})
	return &BaseHandler{}
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" || name == "" {
		return f.Name
	}
	return name
}

// BindJSON binds the JSON request body. Failed binding tags come back as
// details.fields, keyed by JSON name, valued by the failed tag.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	appErr := apperror.NewValidation("invalid request body")
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		appErr = appErr.WithDetail("fields", fields)
	} else {
		appErr = appErr.WithDetail("error", err.Error())
	}
	h.Error(c, appErr)
	return false
}

// Error registers err on the gin context and aborts. The response itself is
// written by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ParseIntQuery parses an integer query parameter with a default.
func (h *BaseHandler) ParseIntQuery(c *gin.Context, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// Caller returns the authenticated principal of the request.
func (h *BaseHandler) Caller(c *gin.Context) (*appctx.Caller, error) {
	caller := appctx.CallerFrom(c.Request.Context())
	if caller == nil {
		return nil, apperror.NewUnauthorized("authentication required")
	}
	return caller, nil
}

// Created sends a 201 response.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// OK sends a 200 response.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}
