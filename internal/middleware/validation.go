package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/temcen/basketrec/internal/validation"
)

const maxBodyBytes = 1 << 20

// ValidationMiddleware checks request bodies and query strings before they
// reach the handlers.
type ValidationMiddleware struct {
	validator *validation.SchemaValidator
}

func NewValidationMiddleware(validator *validation.SchemaValidator) *ValidationMiddleware {
	return &ValidationMiddleware{
		validator: validator,
	}
}

func (vm *ValidationMiddleware) ValidateBatchRequest() gin.HandlerFunc {
	return vm.validateRequestBody(validation.SchemaBatchRequest, false)
}

// ValidateRetrainRequest allows an empty body, meaning "retrain with defaults".
func (vm *ValidationMiddleware) ValidateRetrainRequest() gin.HandlerFunc {
	return vm.validateRequestBody(validation.SchemaRetrainRequest, true)
}

func (vm *ValidationMiddleware) validateRequestBody(schemaName string, allowEmpty bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
		if err != nil {
			vm.sendValidationError(c, "BODY_READ_ERROR", "Failed to read request body", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		if len(bodyBytes) > maxBodyBytes {
			vm.sendValidationError(c, "BODY_TOO_LARGE", "Request body exceeds 1MB", nil)
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		if len(bytes.TrimSpace(bodyBytes)) == 0 {
			if allowEmpty {
				c.Next()
				return
			}
			vm.sendValidationError(c, "EMPTY_BODY", "Request body is required", nil)
			return
		}

		if !json.Valid(bodyBytes) {
			vm.sendValidationError(c, "INVALID_JSON", "Request body must be valid JSON", nil)
			return
		}

		result := vm.validator.Validate(schemaName, bodyBytes)
		if !result.Valid {
			vm.sendAPIError(c, result.ToAPIError())
			return
		}

		c.Next()
	}
}

// ValidateQueryParams checks the optional count parameter.
func (vm *ValidationMiddleware) ValidateQueryParams() gin.HandlerFunc {
	return func(c *gin.Context) {
		errors := make([]validation.ValidationError, 0)

		if count := c.Query("count"); count != "" {
			if !isValidPositiveInt(count, 1, 50) {
				errors = append(errors, validation.ValidationError{
					Field:   "count",
					Message: "Count must be an integer between 1 and 50",
					Code:    "INVALID_QUERY_PARAM",
					Value:   count,
				})
			}
		}

		if len(errors) > 0 {
			vm.sendAPIError(c, (&validation.ValidationResult{Errors: errors}).ToAPIError())
			return
		}

		c.Next()
	}
}

func isValidPositiveInt(value string, min, max int) bool {
	n, err := strconv.Atoi(value)
	return err == nil && n >= min && n <= max
}

func (vm *ValidationMiddleware) sendValidationError(c *gin.Context, code, message string, details map[string]interface{}) {
	errObj := gin.H{
		"code":    code,
		"message": message,
	}
	if details != nil {
		errObj["details"] = details
	}
	vm.sendAPIError(c, map[string]interface{}{"error": errObj})
}

func (vm *ValidationMiddleware) sendAPIError(c *gin.Context, apiError map[string]interface{}) {
	switch errObj := apiError["error"].(type) {
	case map[string]interface{}:
		decorate(c, errObj)
	case gin.H:
		decorate(c, errObj)
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, apiError)
}

func decorate(c *gin.Context, errObj map[string]interface{}) {
	errObj["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	errObj["requestId"] = c.GetString(ctxRequestID)
	errObj["path"] = c.Request.URL.Path
	errObj["method"] = c.Request.Method
}
