package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Pinger is anything whose connectivity can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

type healthResponse struct {
	Status string     `json:"status"`
	Error  string     `json:"error,omitempty"`
	Pool   *PoolStats `json:"pool,omitempty"`
	Cache  string     `json:"cache"`
}

// cacheStatus reports the availability cache state. The cache is optional, so
// a failure degrades the report without failing the check.
func cacheStatus(ctx context.Context, cache Pinger) string {
	if cache == nil {
		return "disabled"
	}
	if err := cache.Ping(ctx); err != nil {
		return "unavailable"
	}
	return "ok"
}

// HealthHandler checks the database (and the cache, when configured). Only a
// failing database makes the endpoint return 503.
func HealthHandler(pool *pgxpool.Pool, cache Pinger) echo.HandlerFunc {
	return healthHandler(pool, func() *PoolStats { return GetPoolStats(pool) }, cache)
}

func healthHandler(database Pinger, stats func() *PoolStats, cache Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		resp := healthResponse{Status: "healthy", Cache: cacheStatus(ctx, cache)}
		err := database.Ping(ctx)
		if stats != nil {
			resp.Pool = stats()
		}
		if err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			if resp.Pool != nil {
				resp.Pool.Healthy = false
			}
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		return c.JSON(http.StatusOK, resp)
	}
}
