// Package tokens 提供基于 tiktoken 的 token 计数
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const encodingModel = "gpt-4-0613"

var (
	once sync.Once
	tkm  *tiktoken.Tiktoken
)

// Count 返回文本 token 数；编码表不可用时按字符数估算
func Count(text string) int {
	once.Do(func() {
		enc, err := tiktoken.EncodingForModel(encodingModel)
		if err == nil {
			tkm = enc
		}
	})
	if tkm == nil {
		return utf8.RuneCountInString(text)
	}
	return len(tkm.Encode(text, nil, nil))
}
