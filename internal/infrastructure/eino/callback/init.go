// Package callback 注册 Eino 全局回调：链路追踪、指标与用量记录
package callback

import (
	"sync"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"

	"novel2video/internal/domain/service"
)

var initOnce sync.Once

// Init 注册 Eino 全局 callbacks（进程级一次）
func Init(usageRecorder service.LLMUsageRecorder) {
	initOnce.Do(func() {
		handler := cbtemplate.NewHandlerHelper().
			ChatModel(newModelObserver(usageRecorder).handler()).
			Handler()
		einocallbacks.AppendGlobalHandlers(handler)
	})
}
