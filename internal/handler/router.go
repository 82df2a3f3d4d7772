package handler

import (
	"anggaran/internal/config"
	"anggaran/internal/infrastructure/storage"
	"anggaran/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, store storage.ObjectStore, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()
	r.MaxMultipartMemory = int64(cfg.Storage.MaxUploadMB+1) << 20

	// 注册中间件
	r.Use(RequestIDMiddleware(log))
	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, store, cfg, log)

	api := r.Group("/api/v1")
	{
		api.GET("/health", h.Health)
		api.POST("/auth/login", h.Login)
		api.POST("/auth/logout", h.Logout)

		// 以下路由需要登录
		authed := api.Group("")
		authed.Use(AuthRequired(h.authService, &cfg.Auth))
		{
			authed.GET("/auth/me", h.Me)
			authed.GET("/dashboard", h.Dashboard)

			budgets := authed.Group("/budgets")
			{
				budgets.GET("", h.ListBudgets)
				budgets.GET("/:id", h.GetBudget)
				budgets.GET("/:id/history", h.BudgetHistory)
				budgets.POST("", h.CreateBudget)
				budgets.PUT("/:id", h.UpdateBudget)
				budgets.DELETE("/:id", h.DeleteBudget)
			}

			expenses := authed.Group("/expenses")
			{
				expenses.GET("", h.ListExpenses)
				expenses.GET("/:id", h.GetExpense)
				expenses.POST("", h.RecordExpense)
			}

			allocations := authed.Group("/allocations")
			{
				allocations.GET("", h.ListAllocations)
				allocations.GET("/:id", h.GetAllocation)
				allocations.POST("", h.CreateAllocation)
			}

			authed.POST("/receipts", h.UploadReceipt)

			// 用户管理仅限 SUPERVISOR
			users := authed.Group("/users")
			users.Use(RequireRole(model.RoleSupervisor))
			{
				users.GET("", h.ListUsers)
				users.POST("", h.CreateUser)
				users.PUT("/:id/active", h.SetUserActive)
			}
		}
	}

	return r
}
