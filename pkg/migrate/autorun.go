package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tipsplit-backend/pkg/config"
	"github.com/angelmondragon/tipsplit-backend/pkg/db"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
)

// MaybeRunDev brings the split schema up to date in dev when
// TIPSPLIT_AUTO_MIGRATE is set. Postgres gets the validated goose set; sqlite
// gets AutoMigrateModels because the SQL files use Postgres-only types.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "db_driver": cfg.DB.Driver})

	if cfg.DB.IsSQLite() {
		if err := AutoMigrateModels(client.DB()); err != nil {
			return err
		}
		logg.Info(ctx, "split models auto-migrated")
		return nil
	}

	migrations, err := ValidateDir(DefaultDir)
	if err != nil {
		return err
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"dir":        DefaultDir,
		"migrations": len(migrations),
		"latest":     migrations[len(migrations)-1].Version,
	}), "split schema migrated")
	return nil
}
