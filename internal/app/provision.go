package app

import (
	"context"
	"fmt"
	"strings"

	"agency-platform/internal/domain/user"
	"agency-platform/internal/rbac"
	"agency-platform/pkg/password"
	"agency-platform/pkg/validator"
)

const (
	errOperatorEmailFmt    = "invalid operator email: %w"
	errOperatorPasswordFmt = "invalid operator password: %w"
	errOperatorHashFmt     = "failed to hash operator password: %w"
	errOperatorCreateFmt   = "failed to create operator: %w"
)

// UserCreator is the write side of the user store used by provisioning.
type UserCreator interface {
	Create(ctx context.Context, u *user.User) (bool, error)
}

// ProvisionOperator creates an active operator account holding the
// operator grant of engine. It reports false if the email is already taken;
// the existing account is left as it is.
func ProvisionOperator(ctx context.Context, users UserCreator, engine *rbac.Engine, hasher *password.Hasher, in user.CreateUserInput) (*user.User, bool, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := validator.Email(email); err != nil {
		return nil, false, fmt.Errorf(errOperatorEmailFmt, err)
	}
	if err := validator.Password(in.Password); err != nil {
		return nil, false, fmt.Errorf(errOperatorPasswordFmt, err)
	}

	hash, err := hasher.Hash(in.Password)
	if err != nil {
		return nil, false, fmt.Errorf(errOperatorHashFmt, err)
	}

	u := &user.User{
		Email:        email,
		PasswordHash: hash,
		Role:         rbac.RoleOperator,
		Permissions:  engine.Grant(rbac.RoleOperator),
		Active:       true,
	}
	created, err := users.Create(ctx, u)
	if err != nil {
		return nil, false, fmt.Errorf(errOperatorCreateFmt, err)
	}
	return u, created, nil
}
