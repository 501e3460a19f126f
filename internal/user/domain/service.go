package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	"gorm.io/gorm"
)

type CreateUserRequest struct {
	Username    string `validate:"required,min=3,max=64"`
	DisplayName string `validate:"max=128"`
	Email       string `validate:"omitempty,email"`
	Phone       string `validate:"omitempty,max=32"`
	Role        string `validate:"required"`
}

type ListUserRequest struct {
	Role       actorcontext.Role
	ActiveOnly bool
}

type Service interface {
	Create(ctx context.Context, req CreateUserRequest) (User, error)
	GetByID(ctx context.Context, id snowflake.ID) (User, error)
	List(ctx context.Context, req ListUserRequest) ([]User, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByUsername(ctx context.Context, db *gorm.DB, username string) (*User, error)
	List(ctx context.Context, db *gorm.DB, req ListUserRequest) ([]*User, error)
}

var (
	ErrInvalidUsername = errors.New("invalid_username")
	ErrInvalidRole     = errors.New("invalid_role")
	ErrUsernameTaken   = errors.New("username_taken")
	ErrNotFound        = errors.New("user_not_found")
)
