package leads

import (
	"time"

	"cleaning-crm/jobs"

	"gorm.io/gorm"
)

// Lead statuses, in pipeline order
const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusQuoted    = "quoted"
	StatusScheduled = "scheduled"
	StatusWon       = "won"
	StatusLost      = "lost"
)

// Statuses is the kanban column order
var Statuses = []string{StatusNew, StatusContacted, StatusQuoted, StatusScheduled, StatusWon, StatusLost}

// OpenStatuses count towards the pipeline value
var OpenStatuses = []string{StatusNew, StatusContacted, StatusQuoted, StatusScheduled}

// Activity types
const (
	ActivityNote         = "note"
	ActivityCall         = "call"
	ActivityEmail        = "email"
	ActivityStatusChange = "status_change"
)

// ServiceTypes drive the estimate multiplier
var ServiceTypes = []string{"standard", "deep", "move-in-out"}

// LeadModel is one prospective cleaning customer. Numeric columns are
// nullable because imported rows may carry no usable number.
type LeadModel struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"not null" json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Address        string    `json:"address"`
	City           string    `gorm:"index" json:"city"`
	ZipCode        string    `json:"zip_code"`
	Type           string    `json:"type"` // one-time or recurring
	Service        string    `json:"service"`
	Bedrooms       *float64  `json:"bedrooms"`
	Bathrooms      *float64  `json:"bathrooms"`
	Sqft           *float64  `json:"sqft"`
	PeopleCount    *float64  `json:"people_count"`
	Frequency      string    `json:"frequency"`
	Status         string    `gorm:"not null;default:'new';index" json:"status"`
	EstimatedPrice *float64  `json:"estimated_price"`
	Notes          string    `gorm:"type:text" json:"notes"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Activities []ActivityModel `gorm:"foreignKey:LeadID;constraint:OnDelete:CASCADE" json:"activities,omitempty"`
	Jobs       []jobs.JobModel `gorm:"foreignKey:LeadID;constraint:OnDelete:CASCADE" json:"jobs,omitempty"`
}

// ActivityModel is a timeline entry on a lead
type ActivityModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LeadID    uint      `gorm:"not null;index" json:"lead_id"`
	Type      string    `gorm:"not null" json:"type"` // note, call, email, status_change
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (LeadModel) TableName() string {
	return "leads"
}

func (ActivityModel) TableName() string {
	return "activities"
}

// AutoMigrate creates the leads, activities and jobs tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&LeadModel{}, &ActivityModel{}, &jobs.JobModel{})
}
