package cmd

import (
	"github.com/spf13/cobra"

	"github.com/LENAX/async-actions/pkg/cli/asyncactions"
	"github.com/LENAX/async-actions/pkg/cli/output"
)

// locksCmd locks子命令
var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "对象锁管理命令",
	Long:  `查看当前持有的对象锁。进程异常退出后残留的锁可以手动释放。`,
}

// locksListCmd 列出锁
var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出当前持有的锁",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := asyncactions.New(serverURL)
		result, err := client.ListLocks()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}
		if len(result.Items) == 0 {
			output.Info("当前没有持有的锁")
			return nil
		}

		table := output.NewTable([]string{"CHECKSUM", "CREATED"})
		for _, l := range result.Items {
			table.AddRow([]string{l.Checksum, formatTime(l.CreatedAt)})
		}
		table.Render()
		return nil
	},
}

// locksReleaseCmd 释放锁
var locksReleaseCmd = &cobra.Command{
	Use:   "release <checksum>...",
	Short: "手动释放锁",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := asyncactions.New(serverURL)
		for _, checksum := range args {
			if err := client.ReleaseLock(checksum); err != nil {
				output.Error("释放锁 %s 失败: %v", checksum, err)
				return err
			}
			output.Success("已释放锁 %s", checksum)
		}
		return nil
	},
}

func init() {
	locksCmd.AddCommand(locksListCmd)
	locksCmd.AddCommand(locksReleaseCmd)
}
