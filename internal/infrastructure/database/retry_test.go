package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"mysql too many connections", &mysql.MySQLError{Number: 1040, Message: "Too many connections"}, true},
		{"mysql user limit", fmt.Errorf("query: %w", &mysql.MySQLError{Number: 1226}), true},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, false},
		{"http style", errors.New("429 Too Many Requests"), true},
		{"vendor message", errors.New("rate limit exceeded for project"), true},
		{"plain", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimited(tt.err); got != tt.want {
				t.Errorf("IsRateLimited(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryPolicy_RetriesRateLimit(t *testing.T) {
	p := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("rate limit exceeded")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicy_GivesUp(t *testing.T) {
	p := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return errors.New("rate limit exceeded")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicy_NoRetryOnOtherErrors(t *testing.T) {
	p := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	boom := errors.New("syntax error")
	err := p.Do(context.Background(), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicy_ContextCancelled(t *testing.T) {
	p := RetryPolicy{Attempts: 5, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, func() error { return errors.New("rate limit exceeded") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNewRetryPolicy(t *testing.T) {
	p := NewRetryPolicy(0, 0)
	if p != DefaultRetryPolicy {
		t.Errorf("NewRetryPolicy(0,0) = %+v, want default", p)
	}
	p = NewRetryPolicy(5, 20)
	if p.Attempts != 5 || p.BaseDelay != 20*time.Millisecond {
		t.Errorf("NewRetryPolicy(5,20) = %+v", p)
	}
}
