package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// 全局变量
	serverURL  string
	outputJSON bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "async-actions",
	Short: "async-actions CLI - 批量异步操作命令行工具",
	Long: `async-actions CLI 用于管理批量异步操作服务。

支持的功能：
  - 列出并运行已注册的操作
  - 查看任务状态、备注和提交结果
  - 查看并手动释放对象锁
  - 启动HTTP API服务

使用示例：
  # 列出所有操作
  async-actions actions list

  # 对两个订单运行操作
  async-actions actions run ship_order -t shop.Order:1 -t shop.Order:2 -P carrier=ups

  # 查看任务状态
  async-actions tasks show <task-id>

  # 启动HTTP服务
  async-actions server start --config ./configs/async-actions.yaml`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "async-actions服务器地址")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")

	rootCmd.AddCommand(actionsCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(locksCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}
