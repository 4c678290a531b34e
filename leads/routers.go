package leads

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cleaning-crm/common"
	"cleaning-crm/jobs"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UpdateStatusRequest is the body of PATCH /leads/:id/status
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=new contacted quoted scheduled won lost"`
}

// AddActivityRequest is the body of POST /leads/:id/activities
type AddActivityRequest struct {
	Type    string `json:"type" binding:"required,oneof=note call email"`
	Content string `json:"content" binding:"required"`
}

// Handler serves the lead, client, stats and estimate endpoints
type Handler struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

func NewHandler(db *gorm.DB, log logrus.FieldLogger) *Handler {
	return &Handler{db: db, log: log}
}

// RegisterRoutes mounts the lead endpoints on r
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/leads", h.ListLeads)
	r.POST("/leads", h.CreateLead)
	r.GET("/leads/board", h.Board)
	r.GET("/leads/:id", h.GetLead)
	r.PATCH("/leads/:id/status", h.UpdateStatus)
	r.DELETE("/leads/:id", h.DeleteLead)
	r.POST("/leads/:id/activities", h.AddActivity)
	r.GET("/clients", h.ListClients)
	r.GET("/stats", h.Stats)
	r.POST("/estimate", h.Estimate)
}

// ListLeads godoc
// @Summary List leads, newest first
// @Tags leads
// @Produce json
// @Param status query string false "Only leads with this status"
// @Success 200 {array} LeadModel
// @Router /leads [get]
func (h *Handler) ListLeads(c *gin.Context) {
	query := h.db.Order("created_at DESC, id DESC")
	if status := c.Query("status"); status != "" {
		if err := common.ValidateEnum("status", status, Statuses); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		query = query.Where("status = ?", status)
	}

	var leads []LeadModel
	if err := query.Find(&leads).Error; err != nil {
		h.log.WithError(err).Error("failed to list leads")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list leads"})
		return
	}

	c.Set("rows_processed", len(leads))
	c.JSON(http.StatusOK, leads)
}

// CreateLead godoc
// @Summary Create a lead by hand
// @Tags leads
// @Accept json
// @Produce json
// @Param lead body LeadInput true "Lead"
// @Success 201 {object} LeadModel
// @Failure 400 {object} map[string]interface{} "Validation errors"
// @Router /leads [post]
func (h *Handler) CreateLead(c *gin.Context) {
	var in LeadInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if result := ValidateLead(in); !result.Valid {
		h.log.WithField("errors", result.ToJSON()).Info("lead rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lead", "errors": result.Errors})
		return
	}

	lead := NormalizeLead(in)
	if err := h.db.Create(&lead).Error; err != nil {
		h.log.WithError(err).Error("failed to create lead")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create lead"})
		return
	}

	c.JSON(http.StatusCreated, lead)
}

// GetLead godoc
// @Summary Lead details with activity timeline and jobs
// @Tags leads
// @Produce json
// @Param id path int true "Lead ID"
// @Success 200 {object} LeadModel
// @Failure 404 {object} map[string]string "Lead not found"
// @Router /leads/{id} [get]
func (h *Handler) GetLead(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var lead LeadModel
	err := h.db.
		Preload("Activities", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC, id DESC") }).
		Preload("Jobs", func(db *gorm.DB) *gorm.DB { return db.Order("date DESC, id DESC") }).
		First(&lead, id).Error
	if err != nil {
		h.notFoundOr500(c, err, "Failed to load lead")
		return
	}

	c.JSON(http.StatusOK, lead)
}

// UpdateStatus godoc
// @Summary Move a lead to another pipeline status
// @Description Logs a status_change activity in the same transaction
// @Tags leads
// @Accept json
// @Produce json
// @Param id path int true "Lead ID"
// @Param body body UpdateStatusRequest true "New status"
// @Success 200 {object} LeadModel
// @Failure 404 {object} map[string]string "Lead not found"
// @Router /leads/{id}/status [patch]
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lead, err := ChangeStatus(h.db, id, req.Status)
	if err != nil {
		h.notFoundOr500(c, err, "Failed to update status")
		return
	}

	c.JSON(http.StatusOK, lead)
}

// ChangeStatus updates the status of a lead and records the change on its
// timeline. Both writes commit together or not at all.
func ChangeStatus(db *gorm.DB, id uint, status string) (*LeadModel, error) {
	var lead LeadModel
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&lead, id).Error; err != nil {
			return err
		}
		if err := tx.Model(&lead).Update("status", status).Error; err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		activity := ActivityModel{
			LeadID:  id,
			Type:    ActivityStatusChange,
			Content: fmt.Sprintf("Status updated to %s", status),
		}
		if err := tx.Create(&activity).Error; err != nil {
			return fmt.Errorf("log status change: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	lead.Status = status
	return &lead, nil
}

// DeleteLead godoc
// @Summary Delete a lead with its activities and jobs
// @Tags leads
// @Param id path int true "Lead ID"
// @Success 204
// @Failure 404 {object} map[string]string "Lead not found"
// @Router /leads/{id} [delete]
func (h *Handler) DeleteLead(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lead_id = ?", id).Delete(&ActivityModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("lead_id = ?", id).Delete(&jobs.JobModel{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&LeadModel{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		h.notFoundOr500(c, err, "Failed to delete lead")
		return
	}

	c.Status(http.StatusNoContent)
}

// AddActivity godoc
// @Summary Add a note, call or email to a lead's timeline
// @Tags leads
// @Accept json
// @Produce json
// @Param id path int true "Lead ID"
// @Param body body AddActivityRequest true "Activity"
// @Success 201 {object} ActivityModel
// @Router /leads/{id}/activities [post]
func (h *Handler) AddActivity(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req AddActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var lead LeadModel
	if err := h.db.Select("id").First(&lead, id).Error; err != nil {
		h.notFoundOr500(c, err, "Failed to add activity")
		return
	}

	activity := ActivityModel{LeadID: id, Type: req.Type, Content: req.Content}
	if err := h.db.Create(&activity).Error; err != nil {
		h.log.WithError(err).WithField("lead_id", id).Error("failed to add activity")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add activity"})
		return
	}

	c.JSON(http.StatusCreated, activity)
}

// Board godoc
// @Summary Leads grouped into kanban columns
// @Tags leads
// @Produce json
// @Success 200 {array} BoardColumn
// @Router /leads/board [get]
func (h *Handler) Board(c *gin.Context) {
	var leads []LeadModel
	if err := h.db.Order("created_at DESC, id DESC").Find(&leads).Error; err != nil {
		h.log.WithError(err).Error("failed to load board")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load board"})
		return
	}

	c.Set("rows_processed", len(leads))
	c.JSON(http.StatusOK, GroupByStatus(leads))
}

// ListClients godoc
// @Summary Won leads, optionally filtered by name, email or city
// @Tags leads
// @Produce json
// @Param q query string false "Search text"
// @Success 200 {array} LeadModel
// @Router /clients [get]
func (h *Handler) ListClients(c *gin.Context) {
	query := h.db.Where("status = ?", StatusWon).Order("name ASC")
	if q := strings.ToLower(strings.TrimSpace(c.Query("q"))); q != "" {
		like := "%" + q + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(city) LIKE ?", like, like, like)
	}

	var clients []LeadModel
	if err := query.Find(&clients).Error; err != nil {
		h.log.WithError(err).Error("failed to list clients")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list clients"})
		return
	}

	c.Set("rows_processed", len(clients))
	c.JSON(http.StatusOK, clients)
}

// Stats godoc
// @Summary Dashboard numbers
// @Tags leads
// @Produce json
// @Success 200 {object} Stats
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	stats, err := LoadStats(h.db)
	if err != nil {
		h.log.WithError(err).Error("failed to load stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Estimate godoc
// @Summary Quote a cleaning from rooms, size and service type
// @Tags leads
// @Accept json
// @Produce json
// @Param body body EstimateInput true "Property"
// @Success 200 {object} map[string]float64
// @Router /estimate [post]
func (h *Handler) Estimate(c *gin.Context) {
	var in EstimateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"estimate": Estimate(in)})
}

func (h *Handler) notFoundOr500(c *gin.Context, err error, msg string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lead not found"})
		return
	}
	h.log.WithError(err).Error(strings.ToLower(msg))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lead id"})
		return 0, false
	}
	return uint(id), true
}
