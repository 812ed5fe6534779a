package cmd

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/LENAX/async-actions/pkg/cli/asyncactions"
	"github.com/LENAX/async-actions/pkg/cli/output"
)

var (
	taskLimit  int
	taskOffset int
)

// tasksCmd tasks子命令
var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "任务状态查询命令",
	Long:  `查看单个任务的状态和备注，或列出某个目标对象上的任务。`,
}

// tasksShowCmd 查看任务详情
var tasksShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "查看任务状态和备注",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := asyncactions.New(serverURL)
		detail, err := client.GetTask(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(detail)
		}

		bold := color.New(color.Bold)
		bold.Printf("任务: %s\n", detail.TaskID)
		fmt.Printf("  名称:   %s (%s)\n", detail.VerboseName, detail.TaskName)
		fmt.Printf("  状态:   %s\n", output.Status(detail.Status))
		fmt.Printf("  目标:   %s\n", detail.Target)
		fmt.Printf("  创建:   %s\n", formatTime(detail.CreatedAt))
		fmt.Printf("  更新:   %s\n", formatTime(detail.UpdatedAt))
		if detail.Traceback != "" {
			bold.Println("\nTraceback:")
			color.New(color.FgRed).Println(detail.Traceback)
		}
		if len(detail.Notes) > 0 {
			bold.Println("\n备注:")
			for _, n := range detail.Notes {
				fmt.Printf("  [%s] %-7s %s\n", formatTime(n.CreatedAt), n.Level, n.Text)
			}
		}
		return nil
	},
}

// tasksListCmd 列出目标对象的任务
var tasksListCmd = &cobra.Command{
	Use:   "list <type> <id>",
	Short: "列出目标对象上的任务，最新的在前",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := asyncactions.New(serverURL)
		result, err := client.ListTargetTasks(args[0], args[1], taskLimit, taskOffset)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}
		if len(result.Items) == 0 {
			output.Info("暂无任务")
			return nil
		}

		table := output.NewTable([]string{"TASK_ID", "NAME", "STATUS", "UPDATED"})
		for _, st := range result.Items {
			table.AddRow([]string{st.TaskID, st.VerboseName, output.Status(st.Status), formatTime(st.UpdatedAt)})
		}
		table.Render()
		if result.HasMore {
			output.Info("还有更多任务，使用 --offset %d 查看", taskOffset+len(result.Items))
		}
		return nil
	},
}

// resultsCmd results子命令
var resultsCmd = &cobra.Command{
	Use:   "results <result-id>",
	Short: "查看一次提交的所有任务",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := asyncactions.New(serverURL)
		detail, err := client.GetResult(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(detail)
		}

		color.New(color.Bold).Printf("提交结果: %s (%s)\n", detail.ID, formatTime(detail.CreatedAt))
		statuses := make([]string, 0, len(detail.Counts))
		for s := range detail.Counts {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Printf("  %s: %d\n", output.Status(s), detail.Counts[s])
		}
		fmt.Println()

		table := output.NewTable([]string{"TASK_ID", "NAME", "TARGET", "STATUS"})
		for _, st := range detail.Tasks {
			table.AddRow([]string{st.TaskID, st.VerboseName, st.Target, output.Status(st.Status)})
		}
		table.Render()
		return nil
	},
}

func init() {
	tasksListCmd.Flags().IntVarP(&taskLimit, "limit", "l", 20, "返回数量限制")
	tasksListCmd.Flags().IntVar(&taskOffset, "offset", 0, "偏移量")

	tasksCmd.AddCommand(tasksShowCmd)
	tasksCmd.AddCommand(tasksListCmd)
}
