package service

import (
	"context"
	"errors"
	"testing"

	"anggaran/internal/model"
)

func TestCreateUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.users.CreateUser(ctx, &CreateUserRequest{
		Username: " staf01 ",
		Password: "rahasia123",
		Role:     "operator",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "staf01" || user.Role != model.RoleOperator || !user.IsActive {
		t.Errorf("user = %+v", user)
	}
	if user.PasswordHash == "rahasia123" || user.PasswordHash == "" {
		t.Error("password not hashed")
	}

	_, err = env.users.CreateUser(ctx, &CreateUserRequest{Username: "staf01", Password: "rahasia123", Role: model.RoleOperator})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "username" {
		t.Errorf("duplicate err = %v", err)
	}

	users, err := env.users.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("users = %d, want 1", len(users))
	}
}

func TestCreateUser_Validation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		req   CreateUserRequest
		field string
	}{
		{CreateUserRequest{Username: "ab", Password: "rahasia123", Role: model.RoleOperator}, "username"},
		{CreateUserRequest{Username: "abc", Password: "12345", Role: model.RoleOperator}, "password"},
		{CreateUserRequest{Username: "abc", Password: "123456", Role: "ADMIN"}, "role"},
	}
	for _, tc := range cases {
		req := tc.req
		_, err := env.users.CreateUser(context.Background(), &req)
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.Field != tc.field {
			t.Errorf("CreateUser(%+v) err = %v, want ValidationError on %s", tc.req, err, tc.field)
		}
	}
}

func TestSetActive_UnknownUser(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.users.SetActive(context.Background(), "USR-NONE", true)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("err = %v, want NotFoundError", err)
	}
}
