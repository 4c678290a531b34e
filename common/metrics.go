package common

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ApiMetric tracks API performance metrics
type ApiMetric struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RequestID     string    `gorm:"index" json:"request_id"`
	Endpoint      string    `gorm:"not null" json:"endpoint"`
	Method        string    `gorm:"not null" json:"method"`
	StatusCode    int       `gorm:"not null" json:"status_code"`
	DurationMs    int       `gorm:"not null" json:"duration_ms"`
	RowsProcessed int       `gorm:"default:0" json:"rows_processed"`
	Errors        string    `gorm:"type:text" json:"errors,omitempty"`
	Timestamp     time.Time `gorm:"not null" json:"timestamp"`
}

func (ApiMetric) TableName() string { return "api_metrics" }

// AutoMigrateMetrics creates the metrics table
func AutoMigrateMetrics(db *gorm.DB) error {
	return db.AutoMigrate(&ApiMetric{})
}

// MetricsMiddleware tracks API performance metrics.
// Handlers report row counts through the "rows_processed" context key.
func MetricsMiddleware(db *gorm.DB, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		startTime := time.Now()

		c.Next()

		rowsProcessed := 0
		if rows, exists := c.Get("rows_processed"); exists {
			if r, ok := rows.(int); ok {
				rowsProcessed = r
			}
		}

		errors := ""
		if len(c.Errors) > 0 {
			errors = c.Errors.String()
		}

		metric := ApiMetric{
			RequestID:     requestID,
			Endpoint:      c.FullPath(),
			Method:        c.Request.Method,
			StatusCode:    c.Writer.Status(),
			DurationMs:    int(time.Since(startTime).Milliseconds()),
			RowsProcessed: rowsProcessed,
			Errors:        errors,
			Timestamp:     startTime,
		}

		log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      metric.Method,
			"endpoint":    metric.Endpoint,
			"status":      metric.StatusCode,
			"duration_ms": metric.DurationMs,
		}).Debug("request handled")

		// Save metric asynchronously
		go func() {
			if err := db.Create(&metric).Error; err != nil {
				log.WithError(err).Warn("failed to store api metric")
			}
		}()
	}
}
