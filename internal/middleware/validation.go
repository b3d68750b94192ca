package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-api/internal/handler"
	"github.com/jwalitptl/hospital-api/pkg/validator"
)

// Validation installs the domain validation tags and JSON field naming on
// gin's binding validator. A bind error left unanswered by a handler is
// reported as a 400 with per-field messages.
func Validation() gin.HandlerFunc {
	validator.RegisterGin()

	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		if errs := c.Errors.ByType(gin.ErrorTypeBind); len(errs) > 0 {
			handler.WriteBindError(c, errs.Last().Err)
		}
	}
}
