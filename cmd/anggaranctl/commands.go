package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"anggaran/internal/config"
	"anggaran/internal/infrastructure/database"
	"anggaran/internal/logger"
	"anggaran/internal/service"
	"anggaran/pkg/money"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

type app struct {
	configPath string
	cfg        *config.Config
	db         *gorm.DB
	out        io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{out: os.Stdout}

	root := &cobra.Command{
		Use:          "anggaranctl",
		Short:        "Administrasi layanan anggaran",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.out = cmd.OutOrStdout()
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "config/config.yaml", "Config file path")

	root.AddCommand(a.migrateCmd(), a.addUserCmd(), a.summaryCmd())
	return root
}

// connect InitMySQL 会同时完成表结构迁移
func (a *app) connect() error {
	if a.db != nil {
		return nil
	}
	db, err := database.InitMySQL(&a.cfg.MySQL)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "migrasi selesai")
			return nil
		},
	}
}

func (a *app) addUserCmd() *cobra.Command {
	var req service.CreateUserRequest

	cmd := &cobra.Command{
		Use:   "add-user",
		Short: "Create a login account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(); err != nil {
				return err
			}
			users := service.NewUserService(a.db, logger.New(a.cfg.Log.Level, true))
			user, err := users.CreateUser(context.Background(), &req)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "pengguna %s (%s) dibuat dengan ID %s\n", user.Username, user.Role, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Username, "username", "", "Login name")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password (min 6 characters)")
	cmd.Flags().StringVar(&req.Role, "role", "OPERATOR", "SUPERVISOR or OPERATOR")
	cmd.Flags().StringVar(&req.FullName, "full-name", "", "Display name")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print totals across all budgets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(); err != nil {
				return err
			}
			log := logger.Nop()
			expenses := service.NewExpenseService(a.db, nil, a.cfg, nil, log)
			dashboard := service.NewDashboardService(a.db, nil, a.cfg, expenses, log)

			summary, err := dashboard.Summary(context.Background())
			if err != nil {
				return err
			}
			printSummary(a.out, summary)
			return nil
		},
	}
}

func printSummary(w io.Writer, s *service.DashboardSummary) {
	t := s.Totals
	fmt.Fprintf(w, "Jumlah anggaran   : %d\n", t.BudgetCount)
	fmt.Fprintf(w, "Total anggaran    : %s\n", money.Format(t.TotalAmount))
	fmt.Fprintf(w, "Alokasi tambahan  : %s\n", money.Format(t.AdditionalAmount))
	fmt.Fprintf(w, "Terpakai          : %s\n", money.Format(t.SpentAmount))
	fmt.Fprintf(w, "Tersedia          : %s\n", money.Format(t.AvailableAmount))

	if len(s.MonthlyUsage) > 0 {
		fmt.Fprintln(w, "\nPemakaian bulanan:")
		for _, m := range s.MonthlyUsage {
			fmt.Fprintf(w, "  %s  %s\n", m.Month, money.Format(m.Amount))
		}
	}
}
