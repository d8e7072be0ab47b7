package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/comanda/db/migrations"
	"github.com/Additional-Code/comanda/internal/config"
	"github.com/Additional-Code/comanda/internal/database"
)

// Module provides the Migrator.
var Module = fx.Provide(New)

// Migrator applies the embedded order schema with a goose provider bound to
// the writer connection.
type Migrator struct {
	provider *goose.Provider
	logger   *zap.Logger
}

// Status is the state of one schema migration.
type Status struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// New constructs a goose-backed migrator.
func New(cfg config.Config, conns *database.Connections, logger *zap.Logger) (*Migrator, error) {
	dialect, err := gooseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	fsys, err := fs.Sub(migrations.FS, migrations.Dir)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(dialect, conns.Writer.DB, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{provider: provider, logger: logger}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	if err != nil {
		if isNoMigrationErr(err) {
			m.logger.Info("no migrations to apply")
			return nil
		}
		return err
	}
	for _, res := range results {
		m.logResult(res)
	}
	m.logger.Info("migrations applied", zap.Int("count", len(results)))
	return nil
}

// Down rolls back migrations. Steps <=0 defaults to 1; all=true rolls everything back.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	if all {
		results, err := m.provider.DownTo(ctx, 0)
		if err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")
				return nil
			}
			return err
		}
		for _, res := range results {
			m.logResult(res)
		}
		m.logger.Info("migrations rolled back", zap.String("mode", "all"))
		return nil
	}

	if steps <= 0 {
		steps = 1
	}
	for i := 0; i < steps; i++ {
		res, err := m.provider.Down(ctx)
		if err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")
				return nil
			}
			return err
		}
		m.logResult(res)
	}
	m.logger.Info("migrations rolled back", zap.Int("steps", steps))
	return nil
}

// Status lists every embedded migration with its applied state, oldest first.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	states, err := m.provider.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(states))
	for _, st := range states {
		out = append(out, Status{
			Version:   st.Source.Version,
			Name:      st.Source.Path,
			Applied:   st.State == goose.StateApplied,
			AppliedAt: st.AppliedAt,
		})
	}
	return out, nil
}

// Version returns the schema version currently applied.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}

func (m *Migrator) logResult(res *goose.MigrationResult) {
	if res == nil || res.Source == nil {
		return
	}
	m.logger.Info("migration",
		zap.String("direction", res.Direction),
		zap.Int64("version", res.Source.Version),
		zap.String("file", res.Source.Path),
		zap.Duration("duration", res.Duration),
	)
}

func gooseDialect(driver string) (goose.Dialect, error) {
	switch driver {
	case "postgres", "pg":
		return goose.DialectPostgres, nil
	case "mysql":
		return goose.DialectMySQL, nil
	case "sqlite", "sqlite3":
		return goose.DialectSQLite3, nil
	default:
		return "", fmt.Errorf("unsupported goose dialect for driver %s", driver)
	}
}

func isNoMigrationErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, goose.ErrNoNextVersion) || errors.Is(err, goose.ErrNoMigrationFiles) {
		return true
	}
	return strings.Contains(err.Error(), "no migrations")
}
