package node

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// ExtractJSONObject 从模型输出中截取第一个完整的 JSON 对象或数组，
// 兼容 markdown 代码块与前后夹杂的说明文字。截取失败时原样返回去空白后的文本。
func ExtractJSONObject(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return raw
	}

	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return raw
	}

	// 按 Decoder 读取一个完整值，尾部多余文本（含代码块结束符）自然被忽略
	dec := json.NewDecoder(strings.NewReader(raw[start:]))
	var v json.RawMessage
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	return string(v)
}

// IsResponseFormatUnsupportedError 提供方不支持 response_format / json_schema 时的报错
func IsResponseFormatUnsupportedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, k := range []string{"response_format", "json_schema", "response_schema"} {
		if strings.Contains(msg, k) {
			return true
		}
	}
	return strings.Contains(msg, "response") &&
		(strings.Contains(msg, "unknown parameter") || strings.Contains(msg, "invalid"))
}

// TruncateByRunes 按字符截断，用于日志与错误详情中的模型原始输出
func TruncateByRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes])
}
