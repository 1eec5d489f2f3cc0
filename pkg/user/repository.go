package user

import (
	"context"
)

type Repository interface {
	FindOne(ctx context.Context, options *FindOneOptions) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	UpdatePassword(ctx context.Context, userId string, password string) (*User, error)
}
