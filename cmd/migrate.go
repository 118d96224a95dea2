/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/teamboard/apiserver/config"
	"github.com/teamboard/apiserver/internal/db"
	"github.com/teamboard/apiserver/internal/logger"
	"github.com/teamboard/apiserver/internal/store"
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations for the configured store",
	Long: `Applies the embedded SQL migrations when STORE_BACKEND=postgres,
or creates the user collection indexes when STORE_BACKEND=mongo.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logger.SetupDefault(os.Stdout, cfg.LogLevel)

		switch cfg.StoreBackend {
		case config.StoreBackendPostgres:
			if err := db.Migrate(db.PostgresURL(cfg.Database)); err != nil {
				return err
			}
		case config.StoreBackendMongo:
			if err := ensureMongoIndexes(cmd.Context(), cfg.Mongo); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
		}

		log.Info("migrations applied", slog.String("store", cfg.StoreBackend))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
}

func ensureMongoIndexes(ctx context.Context, cfg config.MongoConfig) error {
	client, err := db.OpenMongo(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Disconnect(context.WithoutCancel(ctx))
	}()

	repo := store.NewMongoUserRepository(client.Database(cfg.Database).Collection(store.UsersCollection))
	if err := repo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure user indexes: %w", err)
	}
	return nil
}
