// internal/interfaces/http/handlers/respond.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/flowershop-backend/internal/pkg/apperror"
)

// respondError maps domain errors to HTTP responses. Unknown errors are
// reported as 500 without leaking internals.
func respondError(c *gin.Context, err error) {
	if verr, ok := apperror.IsValidation(err); ok {
		body := gin.H{"message": verr.Message}
		if len(verr.Fields) > 0 {
			body["errors"] = verr.Fields
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}

	if apperror.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}

	if apperror.IsUnauthorized(err) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": err.Error()})
		return
	}

	if apperror.IsForbidden(err) {
		c.JSON(http.StatusForbidden, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
}

// respondBindError reports a request body or query binding failure
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"message": "invalid request data",
		"errors":  gin.H{"request": []string{err.Error()}},
	})
}
