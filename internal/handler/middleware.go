package handler

import (
	"net/http"
	"time"

	"anggaran/internal/config"
	"anggaran/internal/logger"
	"anggaran/internal/service"
	"anggaran/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const headerRequestID = "X-Request-ID"

// RequestIDMiddleware 为每个请求分配ID，并把带ID的日志实例放入 context
func RequestIDMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerRequestID, requestID)

		reqLog := log.With().Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), reqLog))
		c.Next()
	}
}

// LoggerMiddleware 访问日志
func LoggerMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// 处理请求
		c.Next()

		if query != "" {
			path = path + "?" + query
		}

		status := c.Writer.Status()
		reqLog := logger.FromContext(c.Request.Context(), log)
		event := reqLog.Info()
		if status >= http.StatusInternalServerError {
			event = reqLog.Error()
		}
		event.
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Msg("http")
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.FromContext(c.Request.Context(), log).Error().
					Interface("panic", err).
					Str("path", c.Request.URL.Path).
					Msg("panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
					Code:  response.CodeServerError,
					Error: "terjadi kesalahan pada server",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// AuthRequired 校验会话 cookie；无效时清除 cookie 并返回 401
func AuthRequired(auth *service.AuthService, cfg *config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(cfg.CookieName)
		user := auth.CurrentUser(c.Request.Context(), token)
		if user == nil {
			if token != "" {
				c.SetSameSite(http.SameSiteLaxMode)
				c.SetCookie(cfg.CookieName, "", -1, "/", "", cfg.Secure, true)
			}
			response.Unauthorized(c, "sesi tidak valid, silakan login kembali")
			return
		}

		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// RequireRole 必须在 AuthRequired 之后使用
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user != nil {
			for _, role := range roles {
				if user.Role == role {
					c.Next()
					return
				}
			}
		}
		response.Forbidden(c, "akses ditolak")
	}
}
