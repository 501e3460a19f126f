package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	"github.com/smallbiznis/bistro/internal/clock"
	"github.com/smallbiznis/bistro/internal/user/domain"
	"github.com/smallbiznis/bistro/pkg/db"
	"github.com/smallbiznis/bistro/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("user.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateUserRequest) (domain.User, error) {
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(req); err != nil {
		return domain.User{}, err
	}
	if !usernamePattern.MatchString(req.Username) {
		return domain.User{}, domain.ErrInvalidUsername
	}

	role, ok := actorcontext.ParseRole(req.Role)
	if !ok || role == actorcontext.RoleSystem {
		return domain.User{}, domain.ErrInvalidRole
	}

	now := s.clock.Now()
	user := domain.User{
		ID:          s.genID.Generate(),
		Username:    req.Username,
		DisplayName: lo.Ternary(req.DisplayName == "", req.Username, req.DisplayName),
		Email:       req.Email,
		Phone:       strings.TrimSpace(req.Phone),
		Role:        role,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, &user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.User{}, domain.ErrUsernameTaken
		}
		return domain.User{}, err
	}

	s.log.Info("user created", zap.String("user_id", user.ID.String()), zap.String("role", string(role)))
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.User, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
}

func (s *Service) List(ctx context.Context, req domain.ListUserRequest) ([]domain.User, error) {
	if req.Role != "" {
		if _, ok := actorcontext.ParseRole(string(req.Role)); !ok {
			return nil, domain.ErrInvalidRole
		}
	}
	items, err := s.repo.List(ctx, s.db, req)
	if err != nil {
		return nil, err
	}
	return lo.FilterMap(items, func(u *domain.User, _ int) (domain.User, bool) {
		if u == nil {
			return domain.User{}, false
		}
		return *u, true
	}), nil
}
