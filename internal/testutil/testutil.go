// Package testutil 提供测试用的内存数据库与 Redis
package testutil

import (
	"fmt"
	"regexp"
	"testing"

	"anggaran/internal/config"
	"anggaran/internal/infrastructure/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9]+`)

// NewDB 每个测试独享一个内存 SQLite 库，已完成迁移。
// 只允许一个连接：事务内的代码必须使用事务句柄，否则会阻塞。
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", unsafeName.ReplaceAllString(t.Name(), "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewRedis 基于 miniredis 的客户端
func NewRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// Config 测试配置：默认值加固定的签名密钥
func Config() *config.Config {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret-0123456789abcdefghij"
	cfg.Storage.PublicBaseURL = "https://files.test"
	return cfg
}
