package service

import (
	"context"
	"testing"

	"anggaran/internal/config"
	"anggaran/internal/infrastructure/storage"
	"anggaran/internal/logger"
	"anggaran/internal/testutil"
	"anggaran/pkg/money"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type testEnv struct {
	db          *gorm.DB
	cfg         *config.Config
	store       *storage.MemoryStore
	budgets     *BudgetService
	expenses    *ExpenseService
	allocations *AllocationService
	receipts    *ReceiptService
	dashboard   *DashboardService
	auth        *AuthService
	users       *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithRedis(t, nil)
}

func newTestEnvWithRedis(t *testing.T, rdb *redis.Client) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := testutil.Config()
	log := logger.Nop()
	store := storage.NewMemoryStore(cfg.Storage.PublicBaseURL)

	receipts := NewReceiptService(db, store, cfg, log)
	expenses := NewExpenseService(db, rdb, cfg, receipts, log)
	return &testEnv{
		db:          db,
		cfg:         cfg,
		store:       store,
		budgets:     NewBudgetService(db, rdb, cfg, log),
		expenses:    expenses,
		allocations: NewAllocationService(db, rdb, cfg, log),
		receipts:    receipts,
		dashboard:   NewDashboardService(db, rdb, cfg, expenses, log),
		auth:        NewAuthService(db, cfg, log),
		users:       NewUserService(db, log),
	}
}

func (e *testEnv) createBudget(t *testing.T, amount string) *BudgetView {
	t.Helper()
	view, err := e.budgets.CreateBudget(context.Background(), &CreateBudgetRequest{
		Name:         "Anggaran Laboratorium",
		Amount:       money.Input(amount),
		CreationDate: "2024-01-15",
		CreatedBy:    "admin",
	})
	if err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}
	return view
}

func (e *testEnv) recordExpense(t *testing.T, budgetID, amount string) *RecordExpenseResult {
	t.Helper()
	res, err := e.expenses.RecordExpense(context.Background(), &RecordExpenseRequest{
		BudgetID:    budgetID,
		Description: "Pembelian alat",
		Amount:      money.Input(amount),
		Date:        "2024-02-01",
		SubmittedBy: "operator",
	})
	if err != nil {
		t.Fatalf("RecordExpense(%s): %v", amount, err)
	}
	return res
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

func assertAmount(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(t, want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}
