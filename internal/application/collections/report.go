package collections

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/apflow/invoice-approval/internal/domain/entity"
)

const (
	summarySheet     = "Summary"
	automationsSheet = "Automations"
)

// WriteReport renders the monitoring report and the automation list as a
// workbook for the accounting team.
func WriteReport(w io.Writer, report *entity.MonitoringReport, automations []*entity.CollectionAutomation) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(automationsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	if err := writeSummary(f, report); err != nil {
		return err
	}
	if err := writeAutomations(f, automations); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, report *entity.MonitoringReport) error {
	rows := [][]interface{}{
		{"Collections Monitoring Report", ""},
		{"Generated", report.GeneratedAt.Format(time.RFC3339)},
		{"Active automations", report.ActiveAutomations},
		{"Attempts made", report.Fleet.AttemptsMade},
		{"Recovery rate", fmt.Sprintf("%.1f%%", report.Fleet.RecoveryRate*100)},
		{"Response rate", fmt.Sprintf("%.1f%%", report.Fleet.ResponseRate*100)},
		{"Total recovered", report.Fleet.TotalRecovered},
		{"Total outstanding", report.Fleet.TotalOutstanding},
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}

	row := len(rows) + 2
	for _, alert := range report.Alerts {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		line := []interface{}{"ALERT", alert.Severity, alert.Message}
		if err := f.SetSheetRow(summarySheet, cell, &line); err != nil {
			return fmt.Errorf("write alert row: %w", err)
		}
		row++
	}
	for _, rec := range report.Recommendations {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		line := []interface{}{"RECOMMENDATION", "", rec}
		if err := f.SetSheetRow(summarySheet, cell, &line); err != nil {
			return fmt.Errorf("write recommendation row: %w", err)
		}
		row++
	}

	if err := f.SetColWidth(summarySheet, "A", "A", 24); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	return f.SetColWidth(summarySheet, "C", "C", 60)
}

func writeAutomations(f *excelize.File, automations []*entity.CollectionAutomation) error {
	header := []interface{}{
		"Automation ID", "Invoice ID", "Customer ID", "Strategy", "Status",
		"Days Overdue", "Attempts Made", "Attempts Planned", "Recovered", "Outstanding", "Last Result",
	}
	if err := f.SetSheetRow(automationsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, auto := range automations {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		row := []interface{}{
			auto.ID, auto.InvoiceID, auto.CustomerID, auto.Strategy, auto.Status,
			auto.DaysOverdue, auto.Metrics.AttemptsMade, len(auto.Schedule),
			auto.Metrics.TotalRecovered, auto.Metrics.TotalOutstanding, auto.Metrics.LastAttemptResult,
		}
		if err := f.SetSheetRow(automationsSheet, cell, &row); err != nil {
			return fmt.Errorf("write automation row: %w", err)
		}
	}

	return f.SetColWidth(automationsSheet, "A", "C", 26)
}
