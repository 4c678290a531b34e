package jobs

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Job statuses
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var Statuses = []string{StatusScheduled, StatusCompleted, StatusCancelled}

// DateLayout is the wire format of a job date
const DateLayout = "2006-01-02"

// JobModel is one cleaning visit for a lead
type JobModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LeadID    uint      `gorm:"not null;index" json:"lead_id"`
	Date      time.Time `gorm:"not null;index" json:"date"`
	Team      string    `json:"team"`
	Amount    float64   `gorm:"not null;default:0" json:"amount"`
	TeamPay   float64   `gorm:"not null;default:0" json:"team_pay"` // paid to the cleaning team
	Status    string    `gorm:"not null;default:'scheduled';index" json:"status"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (JobModel) TableName() string {
	return "jobs"
}

// Profit is what the company keeps from the job
func (j JobModel) Profit() float64 {
	return j.Amount - j.TeamPay
}

// MonthRange returns [start, end) for a YYYY-MM month
func MonthRange(month string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %q: %w", month, err)
	}
	return start, start.AddDate(0, 1, 0), nil
}

// CompletedInMonth loads the completed jobs dated within month, oldest first
func CompletedInMonth(db *gorm.DB, month string) ([]JobModel, error) {
	start, end, err := MonthRange(month)
	if err != nil {
		return nil, err
	}

	var jobs []JobModel
	err = db.Where("status = ? AND date >= ? AND date < ?", StatusCompleted, start, end).
		Order("date ASC, id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("load completed jobs for %s: %w", month, err)
	}
	return jobs, nil
}
