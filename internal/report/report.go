package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"maidlink/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	PaymentsSheet     = "Payments"
	ApplicationsSheet = "Applications"
	dateLayout        = "2006-01-02 15:04"
)

var (
	paymentHeaders     = []string{"Session", "Booking", "Customer", "Amount", "Currency", "Status", "Payment", "Created At", "Updated At"}
	applicationHeaders = []string{"Application", "User", "Name", "Email", "Areas", "Hourly Rate", "Status", "Documents", "Check", "Verdict", "Created At"}
)

// WriteWorkbook renders payments and applications into an xlsx workbook.
// Applications never carry identity numbers into the report.
func WriteWorkbook(w io.Writer, payments []*models.PaymentTransaction, apps []*models.CleanerApplication, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", PaymentsSheet); err != nil {
		return fmt.Errorf("error renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(ApplicationsSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	if err := writeHeader(f, PaymentsSheet, paymentHeaders, headerStyle); err != nil {
		return err
	}
	var paidTotal int64
	for i, p := range payments {
		row := []interface{}{
			p.SessionID, p.BookingID, p.CustomerID, float64(p.Amount) / 100, strings.ToUpper(p.Currency),
			p.Status, string(p.PaymentStatus), p.CreatedAt.UTC().Format(dateLayout), p.UpdatedAt.UTC().Format(dateLayout),
		}
		if err := writeRow(f, PaymentsSheet, i+2, row); err != nil {
			return err
		}
		if p.PaymentStatus == models.PaymentPaid {
			paidTotal += p.Amount
		}
	}
	summaryRow := len(payments) + 3
	_ = f.SetCellValue(PaymentsSheet, cell(1, summaryRow), "Paid total")
	_ = f.SetCellValue(PaymentsSheet, cell(4, summaryRow), float64(paidTotal)/100)
	_ = f.SetCellValue(PaymentsSheet, cell(1, summaryRow+1), "Generated")
	_ = f.SetCellValue(PaymentsSheet, cell(4, summaryRow+1), generatedAt.UTC().Format(dateLayout))

	if err := writeHeader(f, ApplicationsSheet, applicationHeaders, headerStyle); err != nil {
		return err
	}
	for i, a := range apps {
		row := []interface{}{
			a.ID, a.UserID,
			strings.TrimSpace(a.PersonalInfo.FirstName + " " + a.PersonalInfo.LastName),
			a.PersonalInfo.Email,
			strings.Join(a.ServiceAreas, ", "),
			float64(a.HourlyRate) / 100,
			string(a.Status),
			len(a.Documents),
			string(a.BackgroundCheckStatus),
			string(a.BackgroundCheckVerdict),
			a.CreatedAt.UTC().Format(dateLayout),
		}
		if err := writeRow(f, ApplicationsSheet, i+2, row); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(PaymentsSheet, "A", "C", 32)
	_ = f.SetColWidth(PaymentsSheet, "D", "I", 16)
	_ = f.SetColWidth(ApplicationsSheet, "A", "B", 36)
	_ = f.SetColWidth(ApplicationsSheet, "C", "K", 20)
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for i, h := range headers {
		if err := f.SetCellValue(sheet, cell(i+1, 1), h); err != nil {
			return fmt.Errorf("error writing header: %w", err)
		}
	}
	return f.SetCellStyle(sheet, cell(1, 1), cell(len(headers), 1), style)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	start := cell(1, row)
	if err := f.SetSheetRow(sheet, start, &values); err != nil {
		return fmt.Errorf("error writing row %d: %w", row, err)
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
