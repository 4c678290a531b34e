package leads

import (
	"fmt"
	"math"

	"gorm.io/gorm"
)

// StatusCount is one bar of the status chart
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// Stats is the dashboard summary
type Stats struct {
	Total          int64         `json:"total"`
	Won            int64         `json:"won"`
	ConversionRate int           `json:"conversion_rate"` // percent of all leads that were won
	PipelineValue  float64       `json:"pipeline_value"`  // estimated value of open leads
	ByStatus       []StatusCount `json:"by_status"`
}

// Summarize builds Stats from per-status counts. Every status appears in
// ByStatus, in pipeline order, even with a zero count.
func Summarize(counts map[string]int64, pipelineValue float64) Stats {
	stats := Stats{PipelineValue: pipelineValue}
	for _, status := range Statuses {
		n := counts[status]
		stats.ByStatus = append(stats.ByStatus, StatusCount{Status: status, Count: n})
	}
	for _, n := range counts {
		stats.Total += n
	}
	stats.Won = counts[StatusWon]
	if stats.Total > 0 {
		stats.ConversionRate = int(math.Round(float64(stats.Won) / float64(stats.Total) * 100))
	}
	return stats
}

// LoadStats aggregates the leads table
func LoadStats(db *gorm.DB) (Stats, error) {
	var rows []StatusCount
	if err := db.Model(&LeadModel{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return Stats{}, fmt.Errorf("count leads by status: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}

	var pipeline float64
	err := db.Model(&LeadModel{}).
		Where("status IN ?", OpenStatuses).
		Select("COALESCE(SUM(estimated_price), 0)").
		Scan(&pipeline).Error
	if err != nil {
		return Stats{}, fmt.Errorf("sum pipeline value: %w", err)
	}

	return Summarize(counts, pipeline), nil
}

// BoardColumn is one kanban column
type BoardColumn struct {
	Status string      `json:"status"`
	Leads  []LeadModel `json:"leads"`
}

// GroupByStatus lays leads out in kanban columns. Leads with a status
// outside the pipeline are left off the board.
func GroupByStatus(leads []LeadModel) []BoardColumn {
	index := make(map[string]int, len(Statuses))
	board := make([]BoardColumn, len(Statuses))
	for i, status := range Statuses {
		index[status] = i
		board[i] = BoardColumn{Status: status, Leads: []LeadModel{}}
	}
	for _, lead := range leads {
		if i, ok := index[lead.Status]; ok {
			board[i].Leads = append(board[i].Leads, lead)
		}
	}
	return board
}
