package exports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"cleaning-crm/jobs"

	"github.com/gosimple/slug"
	"github.com/xuri/excelize/v2"
)

// ReportRow is one completed job in the financial report
type ReportRow struct {
	JobID   uint    `json:"job_id"`
	LeadID  uint    `json:"lead_id"`
	Date    string  `json:"date"`
	Team    string  `json:"team"`
	Amount  float64 `json:"amount"`
	TeamPay float64 `json:"team_pay"`
	Profit  float64 `json:"profit"`
	Status  string  `json:"status"`
}

// FinancialReport totals the completed jobs of one month
type FinancialReport struct {
	Month   string      `json:"month"`
	Jobs    int         `json:"jobs"`
	Revenue float64     `json:"revenue"`
	TeamPay float64     `json:"team_pay"`
	Profit  float64     `json:"profit"`
	Rows    []ReportRow `json:"rows"`
}

var reportHeaders = []string{"Date", "Team", "Amount", "Team Pay", "Profit", "Status"}

// BuildFinancialReport sums revenue and team pay over completed jobs
func BuildFinancialReport(month string, completed []jobs.JobModel) FinancialReport {
	report := FinancialReport{Month: month, Rows: make([]ReportRow, 0, len(completed))}
	for _, j := range completed {
		team := j.Team
		if team == "" {
			team = "-"
		}
		report.Rows = append(report.Rows, ReportRow{
			JobID:   j.ID,
			LeadID:  j.LeadID,
			Date:    j.Date.Format(jobs.DateLayout),
			Team:    team,
			Amount:  j.Amount,
			TeamPay: j.TeamPay,
			Profit:  j.Profit(),
			Status:  j.Status,
		})
		report.Revenue += j.Amount
		report.TeamPay += j.TeamPay
	}
	report.Jobs = len(report.Rows)
	report.Profit = report.Revenue - report.TeamPay
	return report
}

// FileName is the download name for the report in the given extension
func (r FinancialReport) FileName(ext string) string {
	return slug.Make("financial report "+r.Month) + "." + ext
}

// WriteCSV writes one line per job, without a totals line
func (r FinancialReport) WriteCSV(w io.Writer) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(reportHeaders); err != nil {
		return err
	}
	for _, row := range r.Rows {
		record := []string{
			row.Date,
			row.Team,
			formatMoney(row.Amount),
			formatMoney(row.TeamPay),
			formatMoney(row.Profit),
			row.Status,
		}
		if err := csvWriter.Write(record); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// WriteXLSX writes a single-sheet workbook: a header, one row per job and
// a bold totals row.
func (r FinancialReport) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Report"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	header := make([]interface{}, len(reportHeaders))
	for i, h := range reportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, row := range r.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{row.Date, row.Team, row.Amount, row.TeamPay, row.Profit, row.Status}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	totalsRow := len(r.Rows) + 2
	cell, err := excelize.CoordinatesToCellName(1, totalsRow)
	if err != nil {
		return err
	}
	totals := []interface{}{"Total", "", r.Revenue, r.TeamPay, r.Profit, ""}
	if err := f.SetSheetRow(sheet, cell, &totals); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, totalsRow, totalsRow, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", "F", 14); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
