package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/internal/realtime"
)

const healthPingTimeout = 2 * time.Second

// healthHandler answers 200 while the database pings, 503 otherwise. The
// body includes the number of open event streams when realtime is on.
func healthHandler(db *gorm.DB, events *realtime.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if db != nil {
			if err := ping(c.Request.Context(), db); err != nil {
				body["status"], body["database"] = "degraded", "unreachable"
				c.JSON(http.StatusServiceUnavailable, body)
				return
			}
			body["database"] = "ok"
		}
		if events != nil {
			body["connections"] = events.Count()
		}
		c.JSON(http.StatusOK, body)
	}
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
