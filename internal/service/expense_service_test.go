package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"anggaran/internal/infrastructure/lock"
	"anggaran/internal/model"
	"anggaran/internal/repository"
	"anggaran/internal/testutil"
	"anggaran/pkg/money"
)

func TestRecordExpense_ExceedsAvailableCreatesAllocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	budget := env.createBudget(t, "1000000")

	res := env.recordExpense(t, budget.ID, "1.200.000")

	if !res.Success || !res.NeedsAllocation {
		t.Fatalf("result = %+v, want needs_allocation", res)
	}
	if res.AdditionalAllocationID == nil {
		t.Fatal("additional allocation id missing")
	}
	assertAmount(t, "expense amount", res.ExpenseAmount, "1200000")
	assertAmount(t, "shortage", *res.ShortageAmount, "200000")

	allocation, err := env.allocations.GetAllocation(ctx, *res.AdditionalAllocationID)
	if err != nil {
		t.Fatalf("GetAllocation: %v", err)
	}
	assertAmount(t, "allocation amount", allocation.Amount, "200000")
	if allocation.Description != "Alokasi tambahan untuk: Pembelian alat" {
		t.Errorf("allocation description = %q", allocation.Description)
	}
	if allocation.Reason != "Pengeluaran melebihi anggaran yang tersedia" {
		t.Errorf("allocation reason = %q", allocation.Reason)
	}
	if allocation.RequestedBy != "operator" || allocation.ApprovedBy != "operator" {
		t.Errorf("requested/approved by = %q/%q", allocation.RequestedBy, allocation.ApprovedBy)
	}
	if allocation.RelatedExpenseID == nil || *allocation.RelatedExpenseID != res.ID {
		t.Errorf("related expense = %v, want %s", allocation.RelatedExpenseID, res.ID)
	}
	if allocation.RelatedExpense == nil || allocation.RelatedExpense.ID != res.ID {
		t.Errorf("related expense ref = %+v", allocation.RelatedExpense)
	}

	expense, err := env.expenses.GetExpense(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if expense.AdditionalAllocationID == nil || *expense.AdditionalAllocationID != allocation.ID {
		t.Errorf("expense allocation id = %v, want %s", expense.AdditionalAllocationID, allocation.ID)
	}
	if expense.BudgetName != budget.Name {
		t.Errorf("budget name = %q", expense.BudgetName)
	}

	view, err := env.budgets.GetBudget(ctx, budget.ID)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	assertAmount(t, "spent", view.SpentAmount, "1200000")
	assertAmount(t, "additional", view.AdditionalAmount, "200000")
	assertAmount(t, "available", view.AvailableAmount, "0")
}

func TestRecordExpense_WithinAvailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	budget := env.createBudget(t, "1000000")

	for i := 0; i < 2; i++ {
		res := env.recordExpense(t, budget.ID, "400000")
		if res.NeedsAllocation || res.AdditionalAllocationID != nil || res.ShortageAmount != nil {
			t.Fatalf("expense %d unexpectedly needed allocation: %+v", i, res)
		}
		expense, err := env.expenses.GetExpense(ctx, res.ID)
		if err != nil {
			t.Fatalf("GetExpense: %v", err)
		}
		if expense.AdditionalAllocationID != nil {
			t.Errorf("expense %d allocation id = %v, want nil", i, *expense.AdditionalAllocationID)
		}
	}

	allocations, err := env.allocations.ListAllocations(ctx, budget.ID)
	if err != nil {
		t.Fatalf("ListAllocations: %v", err)
	}
	if len(allocations) != 0 {
		t.Errorf("allocations = %d, want 0", len(allocations))
	}

	view, err := env.budgets.GetBudget(ctx, budget.ID)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	assertAmount(t, "available", view.AvailableAmount, "200000")
	assertAmount(t, "spent", view.SpentAmount, "800000")
}

func TestRecordExpense_ExactlyAvailableNeedsNoAllocation(t *testing.T) {
	env := newTestEnv(t)
	budget := env.createBudget(t, "500000")

	res := env.recordExpense(t, budget.ID, "500000")
	if res.NeedsAllocation {
		t.Fatalf("amount equal to available must not create an allocation: %+v", res)
	}

	// 余额为 0 后的下一笔全部由追加拨款覆盖
	res = env.recordExpense(t, budget.ID, "75000")
	if !res.NeedsAllocation {
		t.Fatal("expected allocation once budget is exhausted")
	}
	assertAmount(t, "shortage", *res.ShortageAmount, "75000")
}

func TestRecordExpense_WritesHistoryAndEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	budget := env.createBudget(t, "100000")

	res := env.recordExpense(t, budget.ID, "150000")

	history, err := repository.NewUsageHistoryRepository(env.db).GetByExpenseID(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetByExpenseID: %v", err)
	}
	assertAmount(t, "history amount", history.Amount, "150000")

	messages, err := repository.NewOutboxRepository(env.db).ListByKey(ctx, budget.ID)
	if err != nil {
		t.Fatalf("ListByKey: %v", err)
	}
	var events []string
	for _, m := range messages {
		var payload map[string]interface{}
		if err := json.Unmarshal(m.Payload, &payload); err != nil {
			t.Fatalf("payload: %v", err)
		}
		events = append(events, payload["event"].(string))
		if m.Topic != env.cfg.Kafka.Topic.BudgetEvents {
			t.Errorf("topic = %q", m.Topic)
		}
	}
	want := []string{model.EventBudgetCreated, model.EventAllocationCreated, model.EventExpenseRecorded}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestRecordExpense_Validation(t *testing.T) {
	env := newTestEnv(t)
	budget := env.createBudget(t, "1000000")

	cases := []struct {
		name  string
		req   RecordExpenseRequest
		field string
	}{
		{"missing description", RecordExpenseRequest{BudgetID: budget.ID, Amount: "100", Date: "2024-01-01", SubmittedBy: "op"}, "description"},
		{"zero amount", RecordExpenseRequest{BudgetID: budget.ID, Description: "x", Amount: "0", Date: "2024-01-01", SubmittedBy: "op"}, "amount"},
		{"bad amount", RecordExpenseRequest{BudgetID: budget.ID, Description: "x", Amount: "abc", Date: "2024-01-01", SubmittedBy: "op"}, "amount"},
		{"sub-cent amount", RecordExpenseRequest{BudgetID: budget.ID, Description: "x", Amount: "0.001", Date: "2024-01-01", SubmittedBy: "op"}, "amount"},
		{"bad date", RecordExpenseRequest{BudgetID: budget.ID, Description: "x", Amount: "100", Date: "01/02/2024", SubmittedBy: "op"}, "date"},
		{"missing submitter", RecordExpenseRequest{BudgetID: budget.ID, Description: "x", Amount: "100", Date: "2024-01-01"}, "submitted_by"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			_, err := env.expenses.RecordExpense(context.Background(), &req)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if vErr.Field != tc.field {
				t.Errorf("field = %q, want %q", vErr.Field, tc.field)
			}
		})
	}
}

func TestRecordExpense_UnknownBudget(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.expenses.RecordExpense(context.Background(), &RecordExpenseRequest{
		BudgetID:    "BDG-2024-MISSING",
		Description: "x",
		Amount:      "100",
		Date:        "2024-01-01",
		SubmittedBy: "op",
	})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	if nf.ID != "BDG-2024-MISSING" {
		t.Errorf("id = %q", nf.ID)
	}
}

func TestRecordExpense_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	budget := env.createBudget(t, "1000000")
	notes := "  dibayar tunai "

	res, err := env.expenses.RecordExpense(ctx, &RecordExpenseRequest{
		BudgetID:    budget.ID,
		Description: "Sewa aula",
		Amount:      money.Input("Rp 250.000,50"),
		Date:        "2024-03-09",
		SubmittedBy: "operator",
		Notes:       &notes,
	})
	if err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}

	got, err := env.expenses.GetExpense(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if got.BudgetID != budget.ID || got.Description != "Sewa aula" || got.SubmittedBy != "operator" {
		t.Errorf("unexpected expense %+v", got.Expense)
	}
	assertAmount(t, "amount", got.Amount, "250000.5")
	if d := got.Date.UTC().Format(dateLayout); d != "2024-03-09" {
		t.Errorf("date = %s", d)
	}
	if got.Notes == nil || *got.Notes != "dibayar tunai" {
		t.Errorf("notes = %v", got.Notes)
	}

	list, err := env.expenses.ListExpenses(ctx, budget.ID, 1, 10)
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if list.Total != 1 || len(list.Items) != 1 || list.Items[0].BudgetName != budget.Name {
		t.Errorf("list = %+v", list)
	}
}

func TestRecordExpense_FinalizesReceipt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	budget := env.createBudget(t, "1000000")

	staged, err := env.receipts.Stage(ctx, "nota.jpg", "image/jpeg", 4, strings.NewReader("jpeg"), "operator")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	res, err := env.expenses.RecordExpense(ctx, &RecordExpenseRequest{
		BudgetID:     budget.ID,
		Description:  "Konsumsi rapat",
		Amount:       "50000",
		Date:         "2024-02-01",
		SubmittedBy:  "operator",
		ReceiptToken: staged.Token,
	})
	if err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if res.ReceiptURL == nil || !strings.HasPrefix(*res.ReceiptURL, "https://files.test/receipts/") {
		t.Fatalf("receipt url = %v", res.ReceiptURL)
	}

	expense, err := env.expenses.GetExpense(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if expense.ReceiptURL == nil || *expense.ReceiptURL != *res.ReceiptURL {
		t.Errorf("stored receipt url = %v", expense.ReceiptURL)
	}

	// 令牌只能使用一次
	_, err = env.expenses.RecordExpense(ctx, &RecordExpenseRequest{
		BudgetID:     budget.ID,
		Description:  "Konsumsi rapat",
		Amount:       "50000",
		Date:         "2024-02-01",
		SubmittedBy:  "operator",
		ReceiptToken: staged.Token,
	})
	if !errors.Is(err, ErrUploadAlreadyFinalized) {
		t.Errorf("reuse err = %v, want ErrUploadAlreadyFinalized", err)
	}
}

func TestRecordExpense_FailedSubmitKeepsReceiptToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	budget := env.createBudget(t, "1000000")

	staged, err := env.receipts.Stage(ctx, "nota.png", "image/png", 3, strings.NewReader("png"), "operator")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	req := RecordExpenseRequest{
		BudgetID:     "BDG-2024-TYPO",
		Description:  "Konsumsi rapat",
		Amount:       "50000",
		Date:         "2024-02-01",
		SubmittedBy:  "operator",
		ReceiptToken: staged.Token,
	}
	var nf *NotFoundError
	if _, err := env.expenses.RecordExpense(ctx, &req); !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	if keys := env.store.Keys("staging/"); len(keys) != 1 {
		t.Fatalf("staging object removed after rollback: %v", keys)
	}

	req.BudgetID = budget.ID
	res, err := env.expenses.RecordExpense(ctx, &req)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if res.ReceiptURL == nil {
		t.Fatal("receipt url missing on resubmit")
	}
	if keys := env.store.Keys("staging/"); len(keys) != 0 {
		t.Errorf("staging object left after commit: %v", keys)
	}
	if keys := env.store.Keys("receipts/"); len(keys) != 1 {
		t.Errorf("final keys = %v", keys)
	}
}

func TestRecordExpense_ConcurrentSubmissions(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	env := newTestEnvWithRedis(t, rdb)
	budget := env.createBudget(t, "1000000")

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.expenses.RecordExpense(context.Background(), &RecordExpenseRequest{
				BudgetID:    budget.ID,
				Description: "Honor narasumber",
				Amount:      "150000",
				Date:        "2024-02-01",
				SubmittedBy: "operator",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("RecordExpense: %v", err)
		}
	}

	view, err := env.budgets.GetBudget(context.Background(), budget.ID)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	assertAmount(t, "spent", view.SpentAmount, "1500000")
	assertAmount(t, "additional", view.AdditionalAmount, "500000")
	assertAmount(t, "available", view.AvailableAmount, "0")
}

func TestRecordExpense_WithRedisLock(t *testing.T) {
	mr, rdb := testutil.NewRedis(t)
	env := newTestEnvWithRedis(t, rdb)
	env.expenses.cfg.Business.LockTimeoutSeconds = 1
	budget := env.createBudget(t, "1000000")

	res := env.recordExpense(t, budget.ID, "100000")
	if res.NeedsAllocation {
		t.Fatalf("unexpected allocation: %+v", res)
	}
	if mr.Exists("anggaran:lock:budget:" + budget.ID) {
		t.Error("budget lock not released after commit")
	}

	held := lock.NewBudgetLock(rdb, budget.ID, "other-instance", 30*time.Second)
	if ok, err := held.TryLock(context.Background()); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}

	_, err := env.expenses.RecordExpense(context.Background(), &RecordExpenseRequest{
		BudgetID:    budget.ID,
		Description: "x",
		Amount:      "100",
		Date:        "2024-01-01",
		SubmittedBy: "op",
	})
	if !errors.Is(err, ErrBudgetBusy) {
		t.Fatalf("err = %v, want ErrBudgetBusy", err)
	}
}

func TestRecordExpense_InvalidatesCachedSummary(t *testing.T) {
	_, rdb := testutil.NewRedis(t)
	env := newTestEnvWithRedis(t, rdb)
	ctx := context.Background()
	budget := env.createBudget(t, "1000000")

	// 先读一次写入缓存
	if _, err := env.budgets.GetBudget(ctx, budget.ID); err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	env.recordExpense(t, budget.ID, "300000")

	view, err := env.budgets.GetBudget(ctx, budget.ID)
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	assertAmount(t, "available", view.AvailableAmount, "700000")
}
