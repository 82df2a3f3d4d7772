package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"anggaran/internal/repository"

	"github.com/go-sql-driver/mysql"
)

func TestFriendlyMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'PRIMARY'"}, "Data dengan ID tersebut sudah ada"},
		{fmt.Errorf("wrap: %w", &mysql.MySQLError{Number: 1048, Message: "Column 'name' cannot be null"}), "Data wajib tidak boleh kosong"},
		{errors.New(`pq: duplicate key value violates unique constraint "budgets_pkey"`), "Data dengan ID tersebut sudah ada"},
		{errors.New(`null value in column "name" violates not-null constraint`), "Data wajib tidak boleh kosong"},
		{errors.New("UNIQUE constraint failed: users.username"), "Data dengan ID tersebut sudah ada"},
		{errors.New("connection reset by peer"), "connection reset by peer"},
	}
	for _, tc := range cases {
		if got := FriendlyMessage(tc.err); got != tc.want {
			t.Errorf("FriendlyMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
	if FriendlyMessage(nil) != "" {
		t.Error("nil error should give empty message")
	}
}

func TestNotFoundMapping(t *testing.T) {
	err := notFound(fmt.Errorf("query: %w", repository.ErrExpenseNotFound), "EXP-1")
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Entity != "Pengeluaran" || nf.ID != "EXP-1" {
		t.Fatalf("notFound = %v", err)
	}
	if nf.Error() != "Pengeluaran dengan ID EXP-1 tidak ditemukan" {
		t.Errorf("message = %q", nf.Error())
	}

	other := errors.New("boom")
	if notFound(other, "x") != other {
		t.Error("unrelated errors must pass through")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "amount", Message: "harus lebih besar dari 0"}
	if err.Error() != "amount: harus lebih besar dari 0" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestParseDate_UTCMidnight(t *testing.T) {
	got, err := parseDate("date", " 2024-03-09 ")
	if err != nil {
		t.Fatalf("parseDate: %v", err)
	}
	want := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("parseDate = %v, want %v", got, want)
	}
}
