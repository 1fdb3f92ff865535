package node

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
)

// ImageDataURL 读取本地图片并编码为 data URL，供多模态消息使用
func ImageDataURL(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", path, err)
	}
	mime := http.DetectContentType(b)
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}
