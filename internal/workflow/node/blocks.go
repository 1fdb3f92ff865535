package node

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSONBlock 将结构化上下文渲染为缩进 JSON，空集合渲染为 "(none)"
func JSONBlock(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(b)
	if s == "null" || s == "[]" || s == "{}" {
		return "(none)"
	}
	return s
}

// NumberedBlock 以 [i] 前缀逐行列出
func NumberedBlock(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("[%d] %s", i, strings.TrimSpace(it))
	}
	return strings.Join(lines, "\n")
}

// Separated 以分隔行拼接片段
func Separated(parts []string) string {
	return strings.Join(parts, "\n=====\n")
}
