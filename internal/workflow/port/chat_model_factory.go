package port

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// ChatModelFactory 定义工作流层对 LLM ChatModel 的最小依赖（port）。
// name 为空时返回默认提供方。
type ChatModelFactory interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}

// Routing 按工作流选择提供方，未配置的工作流使用默认提供方
type Routing map[string]string

// Provider 返回工作流对应的提供方名称
func (r Routing) Provider(workflow string) string {
	if r == nil {
		return ""
	}
	return r[workflow]
}
