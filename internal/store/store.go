// Package store opens the configured persistence backend and hands out the
// per-domain repositories.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/medrec/medrec/internal/config"
	"github.com/medrec/medrec/internal/domain/account"
	"github.com/medrec/medrec/internal/domain/encounter"
	"github.com/medrec/medrec/internal/domain/patient"
	"github.com/medrec/medrec/internal/platform/db"
)

type Repos struct {
	Driver     string
	Patients   patient.Repository
	Encounters encounter.Repository
	Accounts   account.Repository
	Health     db.Checker

	// Pool is set for the postgres driver only.
	Pool  *pgxpool.Pool
	close func()
}

func (r *Repos) Close() {
	if r.close != nil {
		r.close()
	}
}

// Open picks the backend named by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Repos, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		return NewSQLite(cfg.SQLitePath, logger)
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return NewPostgres(pool), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func NewPostgres(pool *pgxpool.Pool) *Repos {
	return &Repos{
		Driver:     config.DriverPostgres,
		Patients:   patient.NewRepo(pool),
		Encounters: encounter.NewRepo(pool),
		Accounts:   account.NewRepo(pool),
		Health:     db.PGChecker(pool),
		Pool:       pool,
		close:      pool.Close,
	}
}

// NewSQLite opens an embedded database at dsn and creates the schema with
// AutoMigrate.
func NewSQLite(dsn string, logger zerolog.Logger) (*Repos, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(gormWriter{logger}, gormlogger.Config{
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// One writer at a time keeps SQLite out of "database is locked".
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(Models()...); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Repos{
		Driver:     config.DriverSQLite,
		Patients:   patient.NewGormRepo(gdb),
		Encounters: encounter.NewGormRepo(gdb),
		Accounts:   account.NewGormRepo(gdb),
		Health:     db.SQLChecker(sqlDB, config.DriverSQLite),
		close:      func() { sqlDB.Close() },
	}, nil
}

// Models lists every gorm-managed table.
func Models() []interface{} {
	var models []interface{}
	models = append(models, patient.GormModels()...)
	models = append(models, encounter.GormModels()...)
	models = append(models, account.GormModels()...)
	return models
}

// gormWriter routes gorm's log lines into zerolog.
type gormWriter struct {
	logger zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn().Str("component", "gorm").Msgf(format, args...)
}
