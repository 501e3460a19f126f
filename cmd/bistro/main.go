package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/accreditation"
	accreditationdomain "github.com/smallbiznis/bistro/internal/accreditation/domain"
	"github.com/smallbiznis/bistro/internal/audit"
	"github.com/smallbiznis/bistro/internal/authorization"
	"github.com/smallbiznis/bistro/internal/clock"
	"github.com/smallbiznis/bistro/internal/config"
	"github.com/smallbiznis/bistro/internal/credit"
	creditdomain "github.com/smallbiznis/bistro/internal/credit/domain"
	"github.com/smallbiznis/bistro/internal/distlock"
	"github.com/smallbiznis/bistro/internal/inventory"
	inventorydomain "github.com/smallbiznis/bistro/internal/inventory/domain"
	"github.com/smallbiznis/bistro/internal/migration"
	"github.com/smallbiznis/bistro/internal/notification"
	"github.com/smallbiznis/bistro/internal/observability"
	"github.com/smallbiznis/bistro/internal/order"
	orderdomain "github.com/smallbiznis/bistro/internal/order/domain"
	"github.com/smallbiznis/bistro/internal/scheduler"
	"github.com/smallbiznis/bistro/internal/seed"
	"github.com/smallbiznis/bistro/internal/server"
	"github.com/smallbiznis/bistro/internal/user"
	userdomain "github.com/smallbiznis/bistro/internal/user/domain"
	"github.com/smallbiznis/bistro/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	root := &cobra.Command{
		Use:           "bistro",
		Short:         "Restaurant orders, stock and store credit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), seedCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the services, the scheduler and the ops HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := fx.New(
				infra(),
				migration.Module,
				distlock.Module,
				authorization.Module,
				audit.Module,
				user.Module,
				notification.Module,
				inventory.Module,
				credit.Module,
				order.Module,
				accreditation.Module,
				scheduler.Module,
				server.Module,
				fx.Invoke(func(
					userdomain.Service,
					inventorydomain.CatalogService,
					orderdomain.Service,
					creditdomain.Service,
					accreditationdomain.Service,
				) {
				}),
			)
			app.Run()
			return app.Err()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
				if err := migration.Apply(conn, cfg.DBType); err != nil {
					return err
				}
				log.Info("schema up to date")
				return nil
			})
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert reference data and the bootstrap admin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), seedDatabase(cmd.Context()))
		},
	}
}

func seedDatabase(ctx context.Context) func(*gorm.DB, config.Config, *snowflake.Node, *zap.Logger) error {
	return func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
		if err := seed.Run(ctx, conn, node, cfg); err != nil {
			return err
		}
		log.Info("seed complete", zap.String("admin", cfg.Bootstrap.AdminUsername))
		return nil
	}
}

func infra() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		clock.Module,
		fx.Provide(newSnowflake),
		db.Module,
	)
}

// runOnce starts the infrastructure, runs fn as an invoke and shuts down again.
func runOnce(ctx context.Context, fn any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	app := fx.New(infra(), fx.Invoke(fn), fx.NopLogger)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	return app.Stop(context.Background())
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
