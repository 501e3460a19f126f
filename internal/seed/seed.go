package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	"github.com/smallbiznis/bistro/internal/config"
	notificationdomain "github.com/smallbiznis/bistro/internal/notification/domain"
	userdomain "github.com/smallbiznis/bistro/internal/user/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultAdminDisplay = "Administrador"

var defaultChannels = []notificationdomain.Channel{
	{Code: "email", Name: "Email"},
	{Code: "sms", Name: "SMS"},
	{Code: "whatsapp", Name: "WhatsApp"},
	{Code: "push", Name: "Push"},
}

// Run seeds the reference data every installation needs. It is safe to call on every start.
func Run(ctx context.Context, db *gorm.DB, node *snowflake.Node, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := EnsureChannels(ctx, tx); err != nil {
			return err
		}
		_, err := EnsureAdmin(ctx, tx, node, cfg.Bootstrap)
		return err
	})
}

// EnsureChannels inserts the delivery channels, leaving existing rows untouched.
func EnsureChannels(ctx context.Context, tx *gorm.DB) error {
	now := time.Now().UTC()
	rows := make([]notificationdomain.Channel, 0, len(defaultChannels))
	for _, ch := range defaultChannels {
		ch.Active = true
		ch.CreatedAt = now
		rows = append(rows, ch)
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&rows).Error
}

// EnsureAdmin creates the bootstrap administrator when no user holds its username.
func EnsureAdmin(ctx context.Context, tx *gorm.DB, node *snowflake.Node, cfg config.BootstrapConfig) (userdomain.User, error) {
	username := strings.ToLower(strings.TrimSpace(cfg.AdminUsername))
	if username == "" {
		return userdomain.User{}, errors.New("bootstrap admin username is required")
	}

	var user userdomain.User
	err := tx.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return user, err
	}

	now := time.Now().UTC()
	user = userdomain.User{
		ID:          node.Generate(),
		Username:    username,
		DisplayName: defaultAdminDisplay,
		Email:       strings.TrimSpace(cfg.AdminEmail),
		Role:        actorcontext.RoleAdmin,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		return user, err
	}
	return user, nil
}
