// Package textsplit 提供按字符（rune）切分、相邻窗口定长重叠的文本切分器
package textsplit

import (
	"fmt"
)

// 边界优先级：段落 > 换行 > 句末标点
var sentenceEnds = map[rune]struct{}{
	'。': {}, '！': {}, '？': {}, '；': {}, '…': {},
	'.': {}, '!': {}, '?': {}, ';': {},
}

// Split 将 text 切分为不超过 chunkSize 个字符的窗口，相邻窗口恰好共享 overlap 个字符。
// 首块加上其后每块去掉前 overlap 个字符后拼接，可精确还原原文。
func Split(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", chunkSize, overlap)
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}
	if n <= chunkSize {
		return []string{text}, nil
	}

	out := make([]string, 0, n/(chunkSize-overlap)+1)
	start := 0
	for {
		end := start + chunkSize
		if end >= n {
			out = append(out, string(runes[start:]))
			return out, nil
		}

		// 保证前进：切点必须越过重叠区，且不短于半个窗口
		minEnd := start + overlap + 1
		if half := start + chunkSize/2; half > minEnd {
			minEnd = half
		}
		end = boundary(runes, minEnd, end)

		out = append(out, string(runes[start:end]))
		start = end - overlap
	}
}

// Reconstruct 去除重叠区后拼接，Split 的逆操作
func Reconstruct(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	out := []rune(chunks[0])
	for _, c := range chunks[1:] {
		r := []rune(c)
		if len(r) < overlap {
			continue
		}
		out = append(out, r[overlap:]...)
	}
	return string(out)
}

// boundary 在 [lo, hi] 内从后往前寻找最佳切点（切点为下一块的起始下标）
func boundary(runes []rune, lo, hi int) int {
	if lo > hi {
		return hi
	}
	for i := hi; i >= lo; i-- {
		if i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := hi; i >= lo; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	for i := hi; i >= lo; i-- {
		if _, ok := sentenceEnds[runes[i-1]]; ok {
			return i
		}
	}
	return hi
}
