// Package entity 定义领域实体
package entity

// Unit 顺序抽取单元：事件、场景、镜头
type Unit interface {
	Position() int
	Last() bool
}

// Event 情节事件，由一个或多个场景组成
type Event struct {
	Index        int      `json:"index" validate:"gte=0"`
	IsLast       bool     `json:"is_last"`
	Description  string   `json:"description" validate:"required"`
	ProcessChain []string `json:"process_chain" validate:"dive,required"`
}

func (e Event) Position() int { return e.Index }
func (e Event) Last() bool    { return e.IsLast }

// RetrievalQueries 检索用查询：逐个处理步骤，缺省退化为描述
func (e Event) RetrievalQueries() []string {
	if len(e.ProcessChain) == 0 {
		return []string{e.Description}
	}
	return e.ProcessChain
}
