package exports

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"cleaning-crm/common"
	"cleaning-crm/jobs"
	"cleaning-crm/leads"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BatchSize is the number of leads fetched per query while streaming
const BatchSize = 500

var leadColumns = []string{
	"id", "name", "email", "phone", "address", "city", "zip_code", "type", "service",
	"bedrooms", "bathrooms", "sqft", "people_count", "frequency", "status",
	"estimated_price", "source", "created_at",
}

// Handler serves reports and exports
type Handler struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

func NewHandler(db *gorm.DB, log logrus.FieldLogger) *Handler {
	return &Handler{db: db, log: log}
}

// RegisterRoutes mounts the report and export endpoints on r
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/reports/financial", h.FinancialReport)
	r.GET("/exports/leads", h.StreamLeads)
}

// FinancialReport godoc
// @Summary Revenue, team pay and profit of the completed jobs in a month
// @Tags reports
// @Produce json
// @Produce text/csv
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param month query string true "Month (YYYY-MM)"
// @Param format query string false "json (default), csv or xlsx"
// @Success 200 {object} FinancialReport
// @Failure 400 {object} map[string]string "Bad request"
// @Router /reports/financial [get]
func (h *Handler) FinancialReport(c *gin.Context) {
	month := c.Query("month")
	if !common.ValidateMonth(month) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month parameter is required (YYYY-MM)"})
		return
	}
	format := c.DefaultQuery("format", "json")
	if err := common.ValidateEnum("format", format, []string{"json", "csv", "xlsx"}); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	completed, err := jobs.CompletedInMonth(h.db, month)
	if err != nil {
		h.log.WithError(err).WithField("month", month).Error("failed to build financial report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build report"})
		return
	}
	report := BuildFinancialReport(month, completed)
	c.Set("rows_processed", report.Jobs)

	switch format {
	case "csv":
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", report.FileName("csv")))
		c.Header("Content-Type", "text/csv; charset=utf-8")
		if err := report.WriteCSV(c.Writer); err != nil {
			h.log.WithError(err).Error("failed to write csv report")
		}
	case "xlsx":
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", report.FileName("xlsx")))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := report.WriteXLSX(c.Writer); err != nil {
			h.log.WithError(err).Error("failed to write xlsx report")
		}
	default:
		c.JSON(http.StatusOK, report)
	}
}

// StreamLeads godoc
// @Summary Stream all leads as CSV or NDJSON
// @Tags exports
// @Produce text/csv
// @Produce application/x-ndjson
// @Param format query string true "Export format (csv or ndjson)"
// @Param status query string false "Only leads with this status"
// @Success 200 {file} file "Streaming export data"
// @Failure 400 {object} map[string]string "Bad request"
// @Router /exports/leads [get]
func (h *Handler) StreamLeads(c *gin.Context) {
	format := c.Query("format")
	if format != "csv" && format != "ndjson" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format parameter is required (csv|ndjson)"})
		return
	}
	status := c.Query("status")
	if status != "" {
		if err := common.ValidateEnum("status", status, leads.Statuses); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("leads_%s.%s", timestamp, format)

	if format == "csv" {
		c.Header("Content-Type", "text/csv")
	} else {
		c.Header("Content-Type", "application/x-ndjson")
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Header("Transfer-Encoding", "chunked")

	c.Stream(func(w io.Writer) bool {
		total, err := StreamLeads(w, h.db, format, status)
		if err != nil {
			h.log.WithError(err).WithField("written", total).Error("lead export interrupted")
		}
		c.Set("rows_processed", total)
		return false
	})
}

// StreamLeads writes leads to w in id order, BatchSize rows per query, and
// returns how many were written.
func StreamLeads(w io.Writer, db *gorm.DB, format, status string) (int, error) {
	var csvWriter *csv.Writer
	if format == "csv" {
		csvWriter = csv.NewWriter(w)
		if err := csvWriter.Write(leadColumns); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	total := 0
	var lastID uint
	for {
		query := db.Where("id > ?", lastID).Order("id ASC").Limit(BatchSize)
		if status != "" {
			query = query.Where("status = ?", status)
		}

		var batch []leads.LeadModel
		if err := query.Find(&batch).Error; err != nil {
			return total, fmt.Errorf("load leads after id %d: %w", lastID, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, lead := range batch {
			if csvWriter != nil {
				if err := csvWriter.Write(leadRecord(lead)); err != nil {
					return total, fmt.Errorf("write lead %d: %w", lead.ID, err)
				}
				continue
			}
			data, err := json.Marshal(lead)
			if err != nil {
				return total, err
			}
			if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
				return total, fmt.Errorf("write lead %d: %w", lead.ID, err)
			}
		}
		if csvWriter != nil {
			csvWriter.Flush()
			if err := csvWriter.Error(); err != nil {
				return total, fmt.Errorf("flush after id %d: %w", lastID, err)
			}
		}

		total += len(batch)
		lastID = batch[len(batch)-1].ID
		if len(batch) < BatchSize {
			break
		}
	}

	return total, nil
}

func leadRecord(l leads.LeadModel) []string {
	return []string{
		strconv.FormatUint(uint64(l.ID), 10),
		l.Name,
		l.Email,
		l.Phone,
		l.Address,
		l.City,
		l.ZipCode,
		l.Type,
		l.Service,
		optionalNumber(l.Bedrooms),
		optionalNumber(l.Bathrooms),
		optionalNumber(l.Sqft),
		optionalNumber(l.PeopleCount),
		l.Frequency,
		l.Status,
		optionalNumber(l.EstimatedPrice),
		l.Source,
		l.CreatedAt.Format(time.RFC3339),
	}
}

func optionalNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
