package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/voucherz-backend/pkg/config"
	"github.com/angelmondragon/voucherz-backend/pkg/db"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

func autoRunEnabled(cfg *config.Config) bool {
	return cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate && cfg.DB.Driver != db.DriverSQLite
}

// MaybeRunDev applies the embedded migrations at startup in dev when
// VOUCHERZ_AUTO_MIGRATE is set. Binaries therefore do not depend on the
// working directory.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !autoRunEnabled(cfg) {
		return nil
	}
	if err := Validate(Embedded()); err != nil {
		return err
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, Embedded())
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("goose version: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"applied": len(results),
		"version": version,
	}), "dev migrations applied")
	return nil
}
