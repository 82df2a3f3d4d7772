package main

import (
	"bytes"
	"strings"
	"testing"

	"anggaran/internal/service"

	"github.com/shopspring/decimal"
)

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &service.DashboardSummary{
		Totals: service.DashboardTotals{
			BudgetCount:      2,
			TotalAmount:      decimal.NewFromInt(1500000),
			SpentAmount:      decimal.NewFromInt(1000000),
			AdditionalAmount: decimal.NewFromInt(200000),
			AvailableAmount:  decimal.NewFromInt(700000),
		},
		MonthlyUsage: []service.MonthlyUsage{{Month: "2024-05", Amount: decimal.NewFromInt(1000000)}},
	})

	out := buf.String()
	for _, want := range []string{"Jumlah anggaran   : 2", "Tersedia          : Rp 700.000", "2024-05  Rp 1.000.000"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"migrate", "add-user", "summary"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %s not registered: %v", name, err)
		}
	}

	addUser, _, _ := root.Find([]string{"add-user"})
	for _, flag := range []string{"username", "password", "role", "full-name"} {
		if addUser.Flags().Lookup(flag) == nil {
			t.Errorf("add-user missing --%s", flag)
		}
	}

	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
}

func TestMissingConfigFails(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--config", "/nonexistent/anggaran.yaml", "summary"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for missing config")
	}
}
