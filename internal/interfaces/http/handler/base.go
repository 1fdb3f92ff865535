package handler

import (
	"github.com/gin-gonic/gin"

	"novel2video/internal/interfaces/http/dto"
	"novel2video/pkg/errors"
	"novel2video/pkg/logger"
)

// respondError AppError 按其状态码返回，其余错误记录后返回 500
func respondError(c *gin.Context, err error, msg string) {
	if errors.IsAppError(err) {
		appErr := errors.AsAppError(err)
		dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, &dto.ErrorDetail{
			ErrorCode: string(appErr.Code),
			Details:   appErr.Detail,
		})
		return
	}
	logger.Error(c.Request.Context(), msg, err)
	dto.InternalError(c, msg)
}
