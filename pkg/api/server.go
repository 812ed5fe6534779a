package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LENAX/async-actions/pkg/core/engine"
)

// ServerConfig API服务器配置
type ServerConfig struct {
	Addr         string        // 监听地址，如 ":8080"
	ReadTimeout  time.Duration // 读取超时
	WriteTimeout time.Duration // 写入超时，WebSocket 连接不受影响
	Version      string
	Metrics      *prometheus.Registry // 为 nil 时不暴露 /metrics
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:        ":8080",
		ReadTimeout: 30 * time.Second,
	}
}

// APIServer HTTP API服务器
type APIServer struct {
	engine     *engine.Engine
	httpServer *http.Server
	config     ServerConfig
	logger     watermill.LoggerAdapter
}

// NewAPIServer 创建API服务器
func NewAPIServer(eng *engine.Engine, config ServerConfig) *APIServer {
	return &APIServer{
		engine: eng,
		config: config,
		logger: eng.Logger(),
	}
}

// Handler 返回路由，便于测试直接挂到 httptest
func (s *APIServer) Handler() http.Handler {
	return SetupRouter(s.engine, s.config.Version, s.config.Metrics, s.logger)
}

// Start 启动服务器，阻塞直到关闭
func (s *APIServer) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("🚀 API 服务启动", watermill.LogFields{"addr": s.config.Addr})

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("服务监听失败: %w", err)
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("🛑 正在关闭 API 服务", nil)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("关闭服务失败: %w", err)
	}
	s.logger.Info("✅ API 服务已停止", nil)
	return nil
}

// Addr 获取服务器地址
func (s *APIServer) Addr() string {
	return s.config.Addr
}
