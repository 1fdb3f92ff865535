package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"novel2video/internal/interfaces/http/dto"
	"novel2video/pkg/errors"
	"novel2video/pkg/logger"
)

// Recovery 捕获 panic，记录堆栈后返回统一的 500 响应
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered", fmt.Errorf("%v", r),
				"stack", string(debug.Stack()),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
			dto.ErrorWithDetail(c, http.StatusInternalServerError, "internal server error", &dto.ErrorDetail{
				ErrorCode: string(errors.CodeInternalError),
			})
		}()
		c.Next()
	}
}
