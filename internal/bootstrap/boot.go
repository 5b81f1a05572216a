package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"Chorus/internal/conf"
	"Chorus/internal/data"
	"Chorus/internal/handler"
	"Chorus/internal/llm"
	"Chorus/internal/middleware"
	"Chorus/internal/ratelimit"
	"Chorus/internal/repository"
	"Chorus/internal/service"
	"Chorus/internal/worker"
)

// Run 启动服务器
func Run() {
	// 1. 加载配置
	cfg := conf.LoadConfig()

	// 2. 初始化数据层 (Postgres, Redis, MinIO)
	d, cleanup, err := data.NewData(cfg)
	if err != nil {
		log.Fatalf("❌ 数据层初始化失败: %v", err)
	}
	defer cleanup()

	// 3. 初始化 AI 网关 (启动时二选一：真客户端 / 关闭态)
	aiClient := llm.New(cfg.AI)
	if aiClient.Enabled() {
		log.Printf("✅ AI 网关已启用 (model=%s)", aiClient.Model())
	} else {
		log.Println("⚠️ AI 网关未配置 API Key，生成降级为模板、评分走 llm_off 强制人审")
	}

	// 4. 初始化服务层
	userRepo := repository.NewUserRepository(d.DB)
	limiter := ratelimit.New()

	authSvc := service.NewAuthService(userRepo, cfg.App.JWTSecret)
	orgSvc := service.NewOrgService(d)
	postSvc := service.NewPostService(d)
	agentSvc := service.NewAgentService(d)
	policySvc := service.NewPolicyService(d)
	actionSvc := service.NewActionService(d, aiClient, limiter, cfg.Agent)

	// 5. 初始化 Handler
	authH := handler.NewAuthHandler(authSvc)
	orgH := handler.NewOrgHandler(orgSvc)
	postH := handler.NewPostHandler(postSvc)
	agentH := handler.NewAgentHandler(agentSvc)
	policyH := handler.NewPolicyHandler(policySvc)
	actionH := handler.NewActionHandler(actionSvc)

	// 6. 启动声望 Worker
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	worker.NewReputationWorker(d).Start(workerCtx, 2)

	// 7. 初始化 Gin Server
	r := gin.Default()
	r.Use(middleware.TraceMiddleware())

	// CORS 配置
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 8. 注册路由
	api := r.Group("/api/v1")
	{
		// 公开接口
		auth := api.Group("/auth")
		{
			auth.POST("/register", authH.Register)
			auth.POST("/login", authH.Login)
		}

		// 鉴权接口
		protected := api.Group("/")
		protected.Use(middleware.JWTAuth(cfg.App.JWTSecret))
		{
			// 组织
			protected.POST("/orgs", orgH.Create)
			protected.GET("/orgs", orgH.List)

			// 文章
			protected.POST("/posts", postH.Create)
			protected.GET("/posts", postH.List)
			protected.GET("/posts/:id/comments", actionH.Comments)

			// 人设管理
			protected.POST("/agents/spawn", agentH.Spawn)
			protected.GET("/agents", agentH.List)
			protected.PATCH("/agents/:id", agentH.Patch)
			protected.POST("/agents/:id/avatar", agentH.UploadAvatar)
			protected.GET("/agents/avatar/*object", agentH.GetAvatar)

			// 审核策略
			protected.GET("/policy", policyH.Get)
			protected.PATCH("/policy", policyH.Patch)

			// Agent 动作流水线
			protected.POST("/posts/:id/agent-actions", actionH.Spawn)
			protected.GET("/moderation/queue", actionH.Queue)
			protected.POST("/actions/:id/approve", actionH.Approve)
			protected.POST("/actions/:id/reject", actionH.Reject)

			// 用量
			protected.GET("/usage", actionH.Usage)
		}
	}

	log.Printf("🚀 Chorus 后端已启动，监听端口 :%s", cfg.App.Port)
	if err := r.Run(":" + cfg.App.Port); err != nil {
		log.Fatalf("❌ Server 启动失败: %v", err)
	}
}
