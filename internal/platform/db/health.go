package db

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	Driver          string `json:"driver"`
	TotalConns      int32  `json:"totalConns"`
	IdleConns       int32  `json:"idleConns"`
	AcquiredConns   int32  `json:"acquiredConns"`
	MaxConns        int32  `json:"maxConns"`
	AcquireCount    int64  `json:"acquireCount"`
	AcquireDuration string `json:"acquireDuration"`
	Healthy         bool   `json:"healthy"`
}

// Checker is implemented by every store backend.
type Checker interface {
	Ping(ctx context.Context) error
	Stats() *PoolStats
}

type pgChecker struct{ pool *pgxpool.Pool }

func PGChecker(pool *pgxpool.Pool) Checker { return pgChecker{pool: pool} }

func (p pgChecker) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p pgChecker) Stats() *PoolStats {
	stat := p.pool.Stat()
	return &PoolStats{
		Driver:          "postgres",
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

type sqlChecker struct {
	db     *sql.DB
	driver string
}

// SQLChecker adapts a database/sql handle, e.g. the one underneath gorm.
func SQLChecker(db *sql.DB, driver string) Checker { return sqlChecker{db: db, driver: driver} }

func (s sqlChecker) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s sqlChecker) Stats() *PoolStats {
	st := s.db.Stats()
	return &PoolStats{
		Driver:          s.driver,
		TotalConns:      int32(st.OpenConnections),
		IdleConns:       int32(st.Idle),
		AcquiredConns:   int32(st.InUse),
		MaxConns:        int32(st.MaxOpenConnections),
		AcquireCount:    st.WaitCount,
		AcquireDuration: st.WaitDuration.String(),
		Healthy:         true,
	}
}

// HealthHandler returns a handler for the database health check endpoint.
func HealthHandler(check Checker) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := check.Ping(ctx)
		stats := check.Stats()

		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"pool":   stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}
