// Package image 提供图像生成协作方实现（OpenAI Images / Gemini）
package image

import (
	"fmt"
	"strconv"
	"strings"
)

// parseSize 解析 "1600x900" 形式的尺寸
func parseSize(size string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(size)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid image size %q", size)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid image width in %q", size)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid image height in %q", size)
	}
	return width, height, nil
}

// openAISize 映射到 gpt-image 支持的三种尺寸
func openAISize(size string) (string, error) {
	w, h, err := parseSize(size)
	if err != nil {
		return "", err
	}
	switch {
	case w > h:
		return "1536x1024", nil
	case w < h:
		return "1024x1536", nil
	default:
		return "1024x1024", nil
	}
}

// aspectRatio 约分后的宽高比，如 16:9
func aspectRatio(size string) (string, error) {
	w, h, err := parseSize(size)
	if err != nil {
		return "", err
	}
	g := gcd(w, h)
	return fmt.Sprintf("%d:%d", w/g, h/g), nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
