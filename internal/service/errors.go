package service

import (
	"errors"
	"fmt"
	"strings"

	"anggaran/internal/repository"

	"github.com/go-sql-driver/mysql"
)

// ============================================================================
// 错误分类
// ============================================================================
//
//   ValidationError   入参校验失败，只报告第一个违规字段
//   NotFoundError     预算/支出/追加拨款/用户不存在
//   BudgetInUseError  预算仍被支出或追加拨款引用，不能删除
//   数据库错误         只对重复键、非空约束给出友好提示，其余原样透传
//
// ============================================================================

var (
	ErrInvalidCredentials     = errors.New("username atau password salah")
	ErrUploadAlreadyFinalized = repository.ErrUploadAlreadyFinalized
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s dengan ID %s tidak ditemukan", e.Entity, e.ID)
}

type BudgetInUseError struct {
	BudgetID    string
	Expenses    int64
	Allocations int64
}

func (e *BudgetInUseError) Error() string {
	return fmt.Sprintf("anggaran %s masih digunakan oleh %d pengeluaran dan %d alokasi tambahan",
		e.BudgetID, e.Expenses, e.Allocations)
}

// notFound 把仓储层的哨兵错误转换为 NotFoundError，其他错误原样返回
func notFound(err error, id string) error {
	switch {
	case errors.Is(err, repository.ErrBudgetNotFound):
		return &NotFoundError{Entity: "Anggaran", ID: id}
	case errors.Is(err, repository.ErrExpenseNotFound):
		return &NotFoundError{Entity: "Pengeluaran", ID: id}
	case errors.Is(err, repository.ErrAllocationNotFound):
		return &NotFoundError{Entity: "Alokasi tambahan", ID: id}
	case errors.Is(err, repository.ErrUserNotFound):
		return &NotFoundError{Entity: "Pengguna", ID: id}
	case errors.Is(err, repository.ErrUploadNotFound):
		return &NotFoundError{Entity: "Berkas", ID: id}
	}
	return err
}

// MySQL 错误码
const (
	erDupEntry     = 1062
	erBadNullError = 1048
)

// FriendlyMessage 数据库错误转成用户可读的提示
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case erDupEntry:
			return "Data dengan ID tersebut sudah ada"
		case erBadNullError:
			return "Data wajib tidak boleh kosong"
		}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "duplicate key"), strings.Contains(lower, "unique constraint failed"):
		return "Data dengan ID tersebut sudah ada"
	case strings.Contains(lower, "violates not-null constraint"), strings.Contains(lower, "not null constraint failed"):
		return "Data wajib tidak boleh kosong"
	}
	return msg
}
