package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pagebuilder-go-server/api/controller"
	"pagebuilder-go-server/api/middleware"
	"pagebuilder-go-server/api/route"
	"pagebuilder-go-server/bootstrap"
	"pagebuilder-go-server/internal/template"
	"pagebuilder-go-server/internal/ws"
	"pagebuilder-go-server/repository"
	"pagebuilder-go-server/usecase"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func main() {
	// 配置加载完成前使用 stderr 日志
	startup := startupLogger(os.Stderr)

	// 加载环境变量
	env, err := bootstrap.LoadEnv()
	if err != nil {
		startup.Fatal().Err(err).Msg("[Server] ❌ 环境变量加载失败")
	}

	log, closer, err := bootstrap.NewLogger(env)
	if err != nil {
		startup.Fatal().Err(err).Msg("[Server] ❌ 日志初始化失败")
	}
	defer closer.Close()

	log.Info().Msg("[Server] PageBuilder Go Server 启动中...")
	if !env.DotEnvLoaded {
		log.Warn().Msg("[Env] ⚠️ 未找到 .env 文件，使用系统环境变量")
	}

	// 初始化 Clerk
	if err := bootstrap.InitClerk(env.ClerkSecretKey); err != nil {
		log.Fatal().Err(err).Msg("[Clerk] ❌ 初始化失败")
	}

	// 连接数据库
	db, err := bootstrap.NewDatabase(env, log)
	if err != nil {
		log.Fatal().Err(err).Msg("[DB] ❌ 数据库初始化失败")
	}

	// 模板目录
	catalog, err := template.Load(env.TemplatesFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", env.TemplatesFile).Msg("[Template] ❌ 模板目录加载失败")
	}

	// 依赖注入 - Repository 层
	pageRepo := repository.NewPageRepository(db)
	versionRepo := repository.NewPageVersionRepository(db)
	userRepo := repository.NewUserRepository(db)

	pageService, ok := pageRepo.(ws.PageService)
	if !ok {
		log.Fatal().Msg("[Server] ❌ PageRepository 未实现 ws.PageService")
	}

	// WebSocket Hub
	hub := ws.NewHub(pageService, log)

	// 依赖注入 - UseCase 层
	pageUseCase := usecase.NewPageUseCase(pageRepo, versionRepo, hub, catalog, log)

	// 依赖注入 - Controller 层
	pageController := controller.NewPageController(pageUseCase, log)
	wsHandler := controller.NewWSHandler(hub, userRepo, middleware.ClerkVerifier, env.AllowedOrigins, log)
	webhookController := controller.NewWebhookController(userRepo, env.WebhookSecret, log)

	// 启动 Hub 事件循环
	go hub.Run()

	// 配置 Gin 路由
	if env.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	// CORS 配置
	router.Use(cors.New(cors.Config{
		AllowOrigins:     env.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "If-Match"},
		ExposeHeaders:    []string{"Content-Length", "ETag"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 设置路由
	route.Setup(router, &route.Dependencies{
		PageController:    pageController,
		WSHandler:         wsHandler,
		WebhookController: webhookController,
		Verifier:          middleware.ClerkVerifier,
	})

	// 启动 HTTP 服务
	srv := &http.Server{
		Addr:    ":" + env.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", "http://localhost:"+env.Port).Msg("[Server] 服务已启动")
		log.Info().Msg("[Server] API 端点:\n" +
			"   GET    /health                               - 健康检查\n" +
			"   GET    /api/pages/:pageId                    - 获取页面\n" +
			"   PUT    /api/pages/:pageId                    - 整页保存\n" +
			"   POST   /api/pages                            - 创建页面\n" +
			"   DELETE /api/pages/:pageId                    - 删除页面\n" +
			"   GET    /api/pages/:pageId/versions           - 历史快照列表\n" +
			"   POST   /api/pages/:pageId/versions           - 创建快照\n" +
			"   GET    /api/pages/:pageId/versions/:versionId - 读取快照\n" +
			"   GET    /api/templates                        - 模板目录\n" +
			"   GET    /ws?pageId=xxx&token=xxx              - WebSocket 连接\n" +
			"   POST   /webhook/clerk                        - Clerk Webhook")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("[Server] 服务启动失败")
		}
	}()

	// 优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("[Server] 收到停机信号，正在优雅关闭...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("[Server] 服务强制关闭")
	}

	// HTTP 停止后再关房间，确保最后一次刷盘
	hub.Shutdown()

	log.Info().Msg("[Server] 服务已安全停止")
}

// startupLogger 读取配置之前的日志，只输出到 w
func startupLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// requestLogger 替代 gin.Logger，访问日志走 zerolog
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// WebSocket 长连接结束时才返回，不记录
		if c.FullPath() == "/ws" {
			return
		}
		evt := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			evt = log.Error()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("[HTTP]")
	}
}
