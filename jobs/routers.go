package jobs

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"cleaning-crm/common"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CreateJobRequest is the body of POST /leads/:id/jobs
type CreateJobRequest struct {
	Date    string  `json:"date" binding:"required"`
	Team    string  `json:"team"`
	Amount  float64 `json:"amount" binding:"gte=0"`
	TeamPay float64 `json:"team_pay" binding:"gte=0"`
	Status  string  `json:"status" binding:"omitempty,oneof=scheduled completed cancelled"`
	Notes   string  `json:"notes"`
}

// UpdateJobStatusRequest is the body of PATCH /jobs/:job_id/status
type UpdateJobStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=scheduled completed cancelled"`
}

// Handler serves the job endpoints
type Handler struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

func NewHandler(db *gorm.DB, log logrus.FieldLogger) *Handler {
	return &Handler{db: db, log: log}
}

// RegisterRoutes mounts the job endpoints on r
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/leads/:id/jobs", h.CreateJob)
	r.GET("/leads/:id/jobs", h.ListJobs)
	r.PATCH("/jobs/:job_id/status", h.UpdateJobStatus)
}

// CreateJob godoc
// @Summary Schedule a cleaning job for a lead
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path int true "Lead ID"
// @Param job body CreateJobRequest true "Job"
// @Success 201 {object} JobModel
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 404 {object} map[string]string "Lead not found"
// @Router /leads/{id}/jobs [post]
func (h *Handler) CreateJob(c *gin.Context) {
	leadID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := time.Parse(DateLayout, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	exists, err := h.leadExists(leadID)
	if err != nil {
		h.log.WithError(err).Error("failed to look up lead")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lead not found"})
		return
	}

	job := JobModel{
		LeadID:  leadID,
		Date:    date,
		Team:    req.Team,
		Amount:  req.Amount,
		TeamPay: req.TeamPay,
		Status:  req.Status,
		Notes:   req.Notes,
	}
	if job.Status == "" {
		job.Status = StatusScheduled
	}

	if err := h.db.Create(&job).Error; err != nil {
		h.log.WithError(err).WithField("lead_id", leadID).Error("failed to create job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job"})
		return
	}

	c.JSON(http.StatusCreated, job)
}

// ListJobs godoc
// @Summary List a lead's jobs, newest first
// @Tags jobs
// @Produce json
// @Param id path int true "Lead ID"
// @Success 200 {array} JobModel
// @Router /leads/{id}/jobs [get]
func (h *Handler) ListJobs(c *gin.Context) {
	leadID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var jobs []JobModel
	if err := h.db.Where("lead_id = ?", leadID).Order("date DESC, id DESC").Find(&jobs).Error; err != nil {
		h.log.WithError(err).Error("failed to list jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}

	c.Set("rows_processed", len(jobs))
	c.JSON(http.StatusOK, jobs)
}

// UpdateJobStatus godoc
// @Summary Mark a job scheduled, completed or cancelled
// @Tags jobs
// @Accept json
// @Produce json
// @Param job_id path int true "Job ID"
// @Success 200 {object} JobModel
// @Failure 404 {object} map[string]string "Job not found"
// @Router /jobs/{job_id}/status [patch]
func (h *Handler) UpdateJobStatus(c *gin.Context) {
	jobID, ok := parseID(c, "job_id")
	if !ok {
		return
	}

	var req UpdateJobStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var job JobModel
	if err := h.db.First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job"})
		return
	}

	if err := h.db.Model(&job).Update("status", req.Status).Error; err != nil {
		h.log.WithError(err).WithField("job_id", jobID).Error("failed to update job status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update job"})
		return
	}
	job.Status = req.Status

	c.JSON(http.StatusOK, job)
}

func (h *Handler) leadExists(id uint) (bool, error) {
	var n int64
	err := h.db.Table("leads").Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": common.ValidationError{Field: param, Message: "must be a positive integer"}.Error()})
		return 0, false
	}
	return uint(id), true
}
