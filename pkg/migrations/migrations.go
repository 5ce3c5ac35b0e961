package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var embedded embed.FS

// MigrateStore applies the postgres schema migrations. They are read from
// cfg.Service.MigrationFolder when set, from the embedded files otherwise.
func MigrateStore(db *gorm.DB, cfg *config.Config) error {
	if name := db.Dialector.Name(); name != "postgres" {
		return fmt.Errorf("schema migrations need postgres, got %s", name)
	}

	goose.SetLogger(&logger{})

	fsys, dir, err := migrationFS(cfg.Service.MigrationFolder)
	if err != nil {
		return err
	}
	goose.SetBaseFS(fsys)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if err := goose.Up(sqlDB, dir); err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}

	return nil
}

func migrationFS(folder string) (fs.FS, string, error) {
	if folder == "" {
		return embedded, "sql", nil
	}

	fi, err := os.Stat(folder)
	if err != nil {
		return nil, "", err
	}
	if !fi.Mode().IsDir() {
		return nil, "", fmt.Errorf("failed to open migration folder: %s is not a folder", folder)
	}
	return os.DirFS(folder), ".", nil
}

// Files lists the embedded migration files in apply order.
func Files() ([]string, error) {
	entries, err := fs.ReadDir(embedded, "sql")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

/*
logger implements goose.Logger interface

	type Logger interface {
		Fatalf(format string, v ...interface{})
		Printf(format string, v ...interface{})
	}
*/
type logger struct{}

func (m *logger) Printf(format string, v ...interface{}) { zap.S().Named("migrations").Infof(format, v...) }
func (m *logger) Fatalf(format string, v ...interface{}) { zap.S().Named("migrations").Fatalf(format, v...) }
