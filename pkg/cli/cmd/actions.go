package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/LENAX/async-actions/pkg/api/dto"
	"github.com/LENAX/async-actions/pkg/cli/asyncactions"
	"github.com/LENAX/async-actions/pkg/cli/output"
)

var (
	runTargets     []string
	runParams      []string
	runPermissions []string
)

// actionsCmd actions子命令
var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "操作管理命令",
	Long:  `列出已注册的批量操作，并对一批目标对象运行操作。`,
}

// actionsListCmd 列出操作
var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出所有操作",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := asyncactions.New(serverURL)
		result, err := client.ListActions()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}
		if len(result.Items) == 0 {
			output.Info("暂无操作")
			return nil
		}

		table := output.NewTable([]string{"NAME", "VERBOSE_NAME", "LOCK_MODE", "PERMISSIONS", "REQUIRED"})
		for _, a := range result.Items {
			table.AddRow([]string{
				a.Name,
				a.VerboseName,
				a.LockMode,
				orDash(strings.Join(a.Permissions, ",")),
				orDash(strings.Join(a.Required, ",")),
			})
		}
		table.Render()
		return nil
	},
}

// actionsRunCmd 运行操作
var actionsRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "对一批目标运行操作",
	Long: `对一批目标运行操作，已被锁定的目标会被跳过并单独列出。

示例：
  async-actions actions run ship_order -t shop.Order:1 -t shop.Order:2 -P carrier=ups -p shop.ship`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := parseTargets(runTargets)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		params, err := parseParams(runParams)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		client := asyncactions.New(serverURL)
		result, err := client.RunAction(args[0], dto.RunActionRequest{
			Targets:     targets,
			Params:      params,
			Permissions: runPermissions,
		})
		if err != nil {
			output.Error("运行失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Submitted) > 0 {
			output.Success("已提交 %d 个目标，结果ID: %s", len(result.Submitted), result.ResultID)
		}
		for _, ref := range result.Locked {
			output.Warning("目标已被锁定，跳过: %s", ref)
		}
		if len(result.Messages) == 0 {
			return nil
		}
		table := output.NewTable([]string{"TASK_ID", "STATUS_TAG", "CHECKSUM"})
		for _, m := range result.Messages {
			table.AddRow([]string{m.TaskID, m.StatusTag, m.Checksum})
		}
		table.Render()
		return nil
	},
}

func init() {
	actionsRunCmd.Flags().StringArrayVarP(&runTargets, "target", "t", nil, "目标对象，格式 类型:ID（可重复）")
	actionsRunCmd.Flags().StringArrayVarP(&runParams, "param", "P", nil, "运行时参数，格式 key=value（可重复）")
	actionsRunCmd.Flags().StringSliceVarP(&runPermissions, "permission", "p", nil, "调用方拥有的权限")
	_ = actionsRunCmd.MarkFlagRequired("target")

	actionsCmd.AddCommand(actionsListCmd)
	actionsCmd.AddCommand(actionsRunCmd)
}
