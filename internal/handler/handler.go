package handler

import (
	"errors"
	"net/http"
	"strconv"

	"anggaran/internal/config"
	"anggaran/internal/infrastructure/storage"
	"anggaran/internal/logger"
	"anggaran/internal/model"
	"anggaran/internal/service"
	"anggaran/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg               *config.Config
	log               zerolog.Logger
	authService       *service.AuthService
	userService       *service.UserService
	budgetService     *service.BudgetService
	expenseService    *service.ExpenseService
	allocationService *service.AllocationService
	receiptService    *service.ReceiptService
	dashboardService  *service.DashboardService
}

// NewHandler 创建处理器实例；rdb 可以为 nil
func NewHandler(db *gorm.DB, rdb *redis.Client, store storage.ObjectStore, cfg *config.Config, log zerolog.Logger) *Handler {
	receipts := service.NewReceiptService(db, store, cfg, log)
	expenses := service.NewExpenseService(db, rdb, cfg, receipts, log)
	return &Handler{
		cfg:               cfg,
		log:               log,
		authService:       service.NewAuthService(db, cfg, log),
		userService:       service.NewUserService(db, log),
		budgetService:     service.NewBudgetService(db, rdb, cfg, log),
		expenseService:    expenses,
		allocationService: service.NewAllocationService(db, rdb, cfg, log),
		receiptService:    receipts,
		dashboardService:  service.NewDashboardService(db, rdb, cfg, expenses, log),
	}
}

// fail 把服务层错误映射为统一响应
func (h *Handler) fail(c *gin.Context, err error) {
	var (
		vErr     *service.ValidationError
		nfErr    *service.NotFoundError
		inUseErr *service.BudgetInUseError
	)
	switch {
	case errors.As(err, &vErr):
		response.ParamError(c, vErr.Error())
	case errors.As(err, &nfErr):
		response.NotFound(c, nfErr.Error())
	case errors.As(err, &inUseErr):
		response.BusinessError(c, response.CodeBudgetInUse, inUseErr.Error())
	case errors.Is(err, service.ErrBudgetBusy):
		response.BusinessError(c, response.CodeBudgetBusy, err.Error())
	case errors.Is(err, service.ErrUploadAlreadyFinalized):
		response.BusinessError(c, response.CodeUploadFinalized, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		response.BusinessError(c, response.CodeInvalidLogin, err.Error())
	default:
		logger.FromContext(c.Request.Context(), h.log).Error().Err(err).
			Str("path", c.FullPath()).
			Msg("请求处理失败")
		response.ServerError(c, service.FriendlyMessage(err))
	}
}

// bindJSON 请求体解析失败时直接返回参数错误
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.ParamError(c, "format permintaan tidak valid: "+err.Error())
		return false
	}
	return true
}

// Health 健康检查
// GET /api/v1/health
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// ============================================================
// 认证相关接口
// ============================================================

// Login 登录成功后写入 HTTP-only 会话 cookie
// POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req service.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setSessionCookie(c, result.Token, int(h.authService.SessionDuration().Seconds()))
	response.Success(c, result)
}

// Logout 清除会话 cookie
// POST /api/v1/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	response.Success(c, nil)
}

// Me 当前登录用户
// GET /api/v1/auth/me
func (h *Handler) Me(c *gin.Context) {
	response.Success(c, currentUser(c))
}

func (h *Handler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Auth.CookieName, value, maxAge, "/", "", h.cfg.Auth.Secure, true)
}

// ============================================================
// 仪表盘
// ============================================================

// Dashboard 汇总数据
// GET /api/v1/dashboard
func (h *Handler) Dashboard(c *gin.Context) {
	summary, err := h.dashboardService.Summary(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, summary)
}

// ============================================================
// 预算相关接口
// ============================================================

// ListBudgets GET /api/v1/budgets
func (h *Handler) ListBudgets(c *gin.Context) {
	budgets, err := h.budgetService.ListBudgets(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": budgets, "total": len(budgets)})
}

// GetBudget GET /api/v1/budgets/:id
func (h *Handler) GetBudget(c *gin.Context) {
	budget, err := h.budgetService.GetBudget(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, budget)
}

// BudgetHistory 预算使用流水
// GET /api/v1/budgets/:id/history
func (h *Handler) BudgetHistory(c *gin.Context) {
	rows, err := h.budgetService.GetUsageHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": rows, "total": len(rows)})
}

// CreateBudget 创建人取当前登录用户
// POST /api/v1/budgets
func (h *Handler) CreateBudget(c *gin.Context) {
	var req service.CreateBudgetRequest
	if !bindJSON(c, &req) {
		return
	}
	req.CreatedBy = currentUser(c).Username

	budget, err := h.budgetService.CreateBudget(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, budget)
}

// UpdateBudget PUT /api/v1/budgets/:id
func (h *Handler) UpdateBudget(c *gin.Context) {
	var req service.UpdateBudgetRequest
	if !bindJSON(c, &req) {
		return
	}

	budget, err := h.budgetService.UpdateBudget(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, budget)
}

// DeleteBudget with_expenses=true 时级联删除支出与追加拨款
// DELETE /api/v1/budgets/:id
func (h *Handler) DeleteBudget(c *gin.Context) {
	id := c.Param("id")
	cascade, _ := strconv.ParseBool(c.DefaultQuery("with_expenses", "false"))

	if cascade {
		result, err := h.budgetService.DeleteBudgetWithExpenses(c.Request.Context(), id)
		if err != nil {
			h.fail(c, err)
			return
		}
		response.Success(c, result)
		return
	}

	if err := h.budgetService.DeleteBudget(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"budget_id": id})
}

// ============================================================
// 支出相关接口
// ============================================================

// ListExpenses GET /api/v1/expenses?budget_id=xxx&page=1&page_size=20
func (h *Handler) ListExpenses(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.expenseService.ListExpenses(c.Request.Context(), c.Query("budget_id"), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// GetExpense GET /api/v1/expenses/:id
func (h *Handler) GetExpense(c *gin.Context) {
	expense, err := h.expenseService.GetExpense(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, expense)
}

// RecordExpense 超出可用余额时自动创建追加拨款
// POST /api/v1/expenses
func (h *Handler) RecordExpense(c *gin.Context) {
	var req service.RecordExpenseRequest
	if !bindJSON(c, &req) {
		return
	}
	req.SubmittedBy = currentUser(c).Username

	result, err := h.expenseService.RecordExpense(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 追加拨款相关接口
// ============================================================

// ListAllocations GET /api/v1/allocations?budget_id=xxx
func (h *Handler) ListAllocations(c *gin.Context) {
	allocations, err := h.allocationService.ListAllocations(c.Request.Context(), c.Query("budget_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": allocations, "total": len(allocations)})
}

// GetAllocation GET /api/v1/allocations/:id
func (h *Handler) GetAllocation(c *gin.Context) {
	allocation, err := h.allocationService.GetAllocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, allocation)
}

// CreateAllocation POST /api/v1/allocations
func (h *Handler) CreateAllocation(c *gin.Context) {
	var req service.CreateAllocationRequest
	if !bindJSON(c, &req) {
		return
	}
	req.RequestedBy = currentUser(c).Username

	allocation, err := h.allocationService.CreateAllocation(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, allocation)
}

// ============================================================
// 收据上传
// ============================================================

// UploadReceipt 第一阶段：写入暂存区并返回令牌，提交支出时携带令牌
// POST /api/v1/receipts  (multipart, 字段 file)
func (h *Handler) UploadReceipt(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.ParamError(c, "file: wajib diisi")
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.ParamError(c, "file: tidak dapat dibaca")
		return
	}
	defer f.Close()

	result, err := h.receiptService.Stage(c.Request.Context(), fh.Filename, fh.Header.Get("Content-Type"), fh.Size, f, currentUser(c).Username)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 用户管理（仅 SUPERVISOR）
// ============================================================

// ListUsers GET /api/v1/users
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.userService.ListUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": users, "total": len(users)})
}

// CreateUser POST /api/v1/users
func (h *Handler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, user)
}

// SetUserActive 不允许停用自己
// PUT /api/v1/users/:id/active
func (h *Handler) SetUserActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if req.Active == nil {
		response.ParamError(c, "active: wajib diisi")
		return
	}

	id := c.Param("id")
	if !*req.Active && id == currentUser(c).ID {
		response.ParamError(c, "active: tidak dapat menonaktifkan akun sendiri")
		return
	}

	user, err := h.userService.SetActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, user)
}

const ctxUserKey = "currentUser"

// currentUser 由 AuthRequired 写入，未登录的路由上返回 nil
func currentUser(c *gin.Context) *model.User {
	if v, ok := c.Get(ctxUserKey); ok {
		if user, ok := v.(*model.User); ok {
			return user
		}
	}
	return nil
}
