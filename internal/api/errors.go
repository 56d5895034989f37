package api

import (
	"errors"
	"net/http"

	"marketplace/internal/apperr"

	"github.com/gin-gonic/gin"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindInvalidInput:      http.StatusBadRequest,
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindInsufficientStock: http.StatusConflict,
	apperr.KindForbidden:         http.StatusForbidden,
	apperr.KindConflict:          http.StatusBadRequest,
}

// writeError maps a service error to its HTTP response. Unclassified errors
// are logged and reported as a generic 500.
func writeError(c *gin.Context, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if code, ok := statusByKind[ae.Kind]; ok {
			body := gin.H{"error": ae.Message, "code": ae.Kind}
			if len(ae.Fields) > 0 {
				body["fields"] = ae.Fields
			}
			if len(ae.Details) > 0 {
				body["details"] = ae.Details
			}
			c.JSON(code, body)
			return
		}
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
