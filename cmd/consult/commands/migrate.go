package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/consult/internal/registry"
	"github.com/wonny/aegis/consult/internal/template"
	"github.com/wonny/aegis/consult/pkg/config"
	"github.com/wonny/aegis/consult/pkg/database"
	"github.com/wonny/aegis/consult/pkg/logger"
	"github.com/wonny/aegis/consult/pkg/redis"
)

var migrateSeed bool

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "PostgreSQL 스키마 생성",
	Long: `인스턴스/템플릿 레지스트리와 스냅샷 테이블을 생성합니다.
모든 마이그레이션은 반복 실행해도 안전합니다.
--seed는 INSTANCES_DIR/TEMPLATES_DIR 파일을 DB로 복사하고 인스턴스 캐시를 비웁니다.

Example:
  DATABASE_URL=postgres://... go run ./cmd/consult migrate
  DATABASE_URL=postgres://... go run ./cmd/consult migrate --seed`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateSeed, "seed", false, "copy file instances and templates into PostgreSQL")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	ctx, stop := signalContext()
	defer stop()

	applied, err := db.Migrate(ctx)
	if err != nil {
		return err
	}

	for _, name := range applied {
		fmt.Printf("  ✓ %s\n", name)
	}
	log.WithField("count", len(applied)).Info("Migrations applied")

	if !migrateSeed {
		return nil
	}
	return seed(ctx, cfg, db, log)
}

// seed upserts the file registry into PostgreSQL and drops stale cached instance lists
func seed(ctx context.Context, cfg *config.Config, db *database.DB, log *logger.Logger) error {
	n, err := template.Seed(ctx, template.NewFileStore(cfg.Registry.TemplatesDir), template.NewPostgresStore(db.Pool))
	if err != nil {
		return err
	}
	fmt.Printf("  ✓ %d templates from %s\n", n, cfg.Registry.TemplatesDir)

	instances := registry.NewPostgresSource(db.Pool)
	stale, err := registry.Seed(ctx, registry.NewFileSource(cfg.Registry.InstancesDir), instances)
	if err != nil {
		return err
	}
	fmt.Printf("  ✓ instances from %s\n", cfg.Registry.InstancesDir)

	rdb, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, cached instance lists expire by TTL")
		return nil
	}
	defer rdb.Close()

	cached := registry.NewCachedSource(instances, redis.NewCache(rdb, keyPrefix), cfg.Registry.CacheTTL, log)
	for _, sector := range stale {
		if err := cached.Invalidate(ctx, sector); err != nil {
			log.WithError(err).WithField("sector", sector).Warn("Failed to invalidate instance cache")
		}
	}
	log.WithField("sectors", stale).Info("Registry seeded")

	return nil
}
