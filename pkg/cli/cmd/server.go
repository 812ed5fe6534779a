package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/LENAX/async-actions/pkg/api"
	"github.com/LENAX/async-actions/pkg/cli/output"
	"github.com/LENAX/async-actions/pkg/config"
	"github.com/LENAX/async-actions/pkg/core/engine"
	"github.com/LENAX/async-actions/pkg/metrics"
)

var (
	configPath  string
	serverAddr  string
	enableTrace bool
)

// EngineSetup 在引擎启动前注册任务、目标类型和操作
// 嵌入本CLI的程序在调用 Execute 之前设置
var EngineSetup func(eng *engine.Engine) error

// serverCmd server子命令
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "服务管理命令",
	Long:  `管理async-actions HTTP API服务。`,
}

// serverStartCmd 启动服务
var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动HTTP API服务",
	Long: `启动async-actions HTTP API服务。

示例：
  # 使用默认配置启动
  async-actions server start

  # 指定监听地址启动
  async-actions server start --addr :9090

  # 指定配置文件并把链路追踪输出到标准输出
  async-actions server start --config ./configs/async-actions.yaml --trace`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			for _, p := range []string{"./configs/async-actions.yaml", "./config/async-actions.yaml", "./async-actions.yaml"} {
				if _, err := os.Stat(p); err == nil {
					configPath = p
					break
				}
			}
		}

		cfg := config.DefaultConfig()
		if configPath != "" {
			output.Info("使用配置文件: %s", configPath)
			loaded, err := config.LoadConfig(configPath)
			if err != nil {
				output.Error("加载配置失败: %v", err)
				return err
			}
			cfg = loaded
		} else {
			output.Warning("未找到配置文件，使用默认配置")
		}
		if serverAddr != "" {
			cfg.AsyncActions.API.Addr = serverAddr
		}

		ctx := context.Background()
		if enableTrace {
			exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
			if err != nil {
				return fmt.Errorf("创建trace导出器失败: %w", err)
			}
			tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
			defer func() { _ = tp.Shutdown(ctx) }()
			otel.SetTracerProvider(tp)
		}

		eng, err := engine.New(ctx, cfg, engine.WithLogger(engine.NewLogger(cfg.AsyncActions.General.LogLevel)))
		if err != nil {
			output.Error("创建引擎失败: %v", err)
			return err
		}
		if EngineSetup != nil {
			if err := EngineSetup(eng); err != nil {
				_ = eng.Stop(ctx)
				output.Error("注册任务失败: %v", err)
				return err
			}
		}
		if err := eng.Start(ctx); err != nil {
			_ = eng.Stop(ctx)
			output.Error("启动引擎失败: %v", err)
			return err
		}

		reg := metrics.NewRegistry()
		metrics.RegisterCoreMetrics(reg)

		serverConfig := api.DefaultServerConfig()
		serverConfig.Addr = cfg.AsyncActions.API.Addr
		serverConfig.Version = Version
		serverConfig.Metrics = reg
		apiServer := api.NewAPIServer(eng, serverConfig)

		errCh := make(chan error, 1)
		go func() {
			errCh <- apiServer.Start()
		}()

		output.Success("async-actions 服务已启动: %s", apiServer.Addr())

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		var serveErr error
		select {
		case <-quit:
		case serveErr = <-errCh:
			if serveErr != nil {
				output.Error("API服务器错误: %v", serveErr)
			}
		}

		output.Info("正在关闭服务...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AsyncActions.Execution.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			output.Error("关闭API服务器失败: %v", err)
		}
		if err := eng.Stop(shutdownCtx); err != nil {
			output.Error("关闭引擎失败: %v", err)
		}
		output.Success("服务已停止")

		return serveErr
	},
}

func init() {
	serverStartCmd.Flags().StringVarP(&configPath, "config", "c", "", "配置文件路径")
	serverStartCmd.Flags().StringVarP(&serverAddr, "addr", "a", "", "监听地址，覆盖配置文件中的 api.addr")
	serverStartCmd.Flags().BoolVar(&enableTrace, "trace", false, "把链路追踪输出到标准输出")

	serverCmd.AddCommand(serverStartCmd)
}
