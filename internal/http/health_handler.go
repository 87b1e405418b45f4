package http

import (
	"errors"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
)

var (
	startedAt = time.Now()

	errNoConnection = errors.New("database connection unavailable")
)

type healthReport struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Storage       string    `json:"storage"`
}

// HealthIndexAction reports process liveness and storage reachability.
// Storage trouble degrades the status instead of failing the request so
// a load balancer can tell slow from gone.
func HealthIndexAction(ctx *cartridge.Context) error {
	report := healthReport{
		Status:        "ok",
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(startedAt).Seconds()),
		Storage:       "ok",
	}

	if err := pingStorage(ctx); err != nil {
		ctx.Logger.Error("Health check storage probe failed", slog.Any("error", err))
		report.Status = "degraded"
		report.Storage = "error"
	}

	return ctx.JSON(report)
}

func pingStorage(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()
	if db == nil {
		return errNoConnection
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
