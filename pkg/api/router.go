package api

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LENAX/async-actions/pkg/api/handler"
	"github.com/LENAX/async-actions/pkg/api/middleware"
	"github.com/LENAX/async-actions/pkg/core/engine"
)

// SetupRouter 设置路由，reg 为 nil 时不暴露 /metrics
func SetupRouter(eng *engine.Engine, version string, reg *prometheus.Registry, logger watermill.LoggerAdapter) *gin.Engine {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))

	healthHandler := handler.NewHealthHandler(eng, version)
	messageHandler := handler.NewMessageHandler(eng)
	taskHandler := handler.NewTaskHandler(eng)
	resultHandler := handler.NewResultHandler(eng)
	lockHandler := handler.NewLockHandler(eng)
	actionHandler := handler.NewActionHandler(eng)
	streamHandler := handler.NewStreamHandler(eng)

	router.GET("/health", healthHandler.Health)
	if reg != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	// 前端轮询消息使用的固定路径
	router.GET("/async_actions/messages/get", messageHandler.Get)
	router.GET("/ws/tasks", streamHandler.Tasks)

	v1 := router.Group("/api/v1")
	{
		actions := v1.Group("/actions")
		{
			actions.GET("", actionHandler.List)
			actions.POST("/:name/run", actionHandler.Run)
		}

		v1.GET("/tasks/:task_id", taskHandler.Get)
		v1.GET("/targets/:type/:id/tasks", taskHandler.ListByTarget)
		v1.GET("/results/:id", resultHandler.Get)

		locks := v1.Group("/locks")
		{
			locks.GET("", lockHandler.List)
			locks.DELETE("/:checksum", lockHandler.Release)
		}
	}

	return router
}
