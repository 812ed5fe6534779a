package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LENAX/async-actions/pkg/api/dto"
)

// parseTargets 解析 "类型标签:ID" 形式的目标参数
func parseTargets(values []string) ([]dto.TargetRequest, error) {
	targets := make([]dto.TargetRequest, 0, len(values))
	for _, v := range values {
		typ, id, ok := strings.Cut(v, ":")
		if !ok || typ == "" || id == "" {
			return nil, fmt.Errorf("目标格式应为 类型:ID，实际为 %q", v)
		}
		targets = append(targets, dto.TargetRequest{Type: typ, ID: id})
	}
	return targets, nil
}

// parseParams 解析 "key=value" 形式的运行时参数
// 值能按JSON解析时使用解析结果（数字、布尔、对象），否则按字符串处理
func parseParams(values []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(values))
	for _, v := range values {
		key, raw, ok := strings.Cut(v, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("参数格式应为 key=value，实际为 %q", v)
		}
		var parsed interface{}
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			params[key] = parsed
		} else {
			params[key] = raw
		}
	}
	return params, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
