package billing

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Billing"

var exportHeaders = []string{
	"Booking ID", "Customer", "Contact", "Address", "Dates",
	"Total", "Advance", "Received", "Remaining", "Status", "Created",
}

// ExportPeriod writes the period summary as an xlsx workbook: a title row,
// a header row, one row per booking and a totals row.
func ExportPeriod(w io.Writer, summary PeriodSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(exportSheet, "A1", fmt.Sprintf("Billing %04d-%02d", summary.Year, summary.Month))
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	lastCol, _ := excelize.ColumnNumberToName(len(exportHeaders))
	_ = f.MergeCell(exportSheet, "A1", lastCol+"1")
	_ = f.SetCellStyle(exportSheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(exportSheet, cell, h)
		_ = f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}

	row := 3
	for _, r := range summary.FilteredRecords {
		values := []interface{}{
			r.ID,
			r.CustomerName,
			r.Contact,
			r.Address,
			strings.Join(r.Dates, ", "),
			r.TotalAmount.InexactFloat64(),
			r.AdvanceAmount.InexactFloat64(),
			r.TotalReceivedAmount.InexactFloat64(),
			RemainingAmount(r.TotalAmount, r.TotalReceivedAmount).InexactFloat64(),
			DerivePaymentStatus(r.TotalAmount, r.TotalReceivedAmount),
			r.CreatedAt,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
		row++
	}

	totalStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	totals := []interface{}{
		"Total", fmt.Sprintf("%d bookings", summary.BookingCount), "", "", "",
		"", "",
		summary.TotalReceived.InexactFloat64(),
		summary.TotalRemaining.InexactFloat64(),
	}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(exportSheet, cell, &totals); err != nil {
		return fmt.Errorf("error writing totals: %w", err)
	}
	endCell, _ := excelize.CoordinatesToCellName(len(exportHeaders), row)
	_ = f.SetCellStyle(exportSheet, cell, endCell, totalStyle)

	_ = f.SetColWidth(exportSheet, "A", "A", 38)
	_ = f.SetColWidth(exportSheet, "B", "E", 22)
	_ = f.SetColWidth(exportSheet, "F", lastCol, 14)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// ExportFileName is the attachment name of a period export.
func ExportFileName(summary PeriodSummary) string {
	return fmt.Sprintf("billing_%04d_%02d.xlsx", summary.Year, summary.Month)
}
