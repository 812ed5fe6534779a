package output

import (
	"encoding/json"
	"os"

	"github.com/fatih/color"
)

// PrintJSON 输出JSON格式
func PrintJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Success 输出成功消息
func Success(format string, args ...interface{}) {
	color.New(color.FgGreen, color.Bold).Printf("✅ "+format+"\n", args...)
}

// Error 输出错误消息
func Error(format string, args ...interface{}) {
	color.New(color.FgRed, color.Bold).Printf("❌ "+format+"\n", args...)
}

// Info 输出信息
func Info(format string, args ...interface{}) {
	color.New(color.FgCyan).Printf("ℹ️  "+format+"\n", args...)
}

// Warning 输出警告
func Warning(format string, args ...interface{}) {
	color.New(color.FgYellow).Printf("⚠️  "+format+"\n", args...)
}

// Status 按任务状态着色
func Status(status string) string {
	switch status {
	case "SUCCESS":
		return color.GreenString(status)
	case "FAILURE", "REVOKED":
		return color.RedString(status)
	case "RETRY":
		return color.YellowString(status)
	case "STARTED", "RECEIVED":
		return color.CyanString(status)
	default:
		return status
	}
}
