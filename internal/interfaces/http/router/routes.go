package router

import (
	"github.com/gin-gonic/gin"

	"novel2video/internal/interfaces/http/handler"
	"novel2video/internal/interfaces/http/middleware"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, runHandler *handler.RunHandler) {
	runs := v1.Group("/runs")
	{
		runs.POST("", runHandler.CreateRun)
		runs.GET("", runHandler.ListRuns)
		runs.GET("/:rid", middleware.RunContext(), runHandler.GetRun)
	}
}
