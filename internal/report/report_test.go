package report

import (
	"bytes"
	"testing"
	"time"

	"maidlink/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteWorkbook(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	payments := []*models.PaymentTransaction{
		{SessionID: "cs_test_1", BookingID: "bk-1", CustomerID: "cust-1", Amount: 8000, Currency: "usd", Status: "complete", PaymentStatus: models.PaymentPaid, CreatedAt: now, UpdatedAt: now},
		{SessionID: "cs_test_2", BookingID: "bk-2", CustomerID: "cust-2", Amount: 13500, Currency: "usd", Status: "expired", PaymentStatus: models.PaymentFailed, CreatedAt: now, UpdatedAt: now},
		{SessionID: "cs_test_3", BookingID: "bk-3", CustomerID: "cust-1", Amount: 4050, Currency: "usd", Status: "complete", PaymentStatus: models.PaymentPaid, CreatedAt: now, UpdatedAt: now},
	}
	apps := []*models.CleanerApplication{{
		ID:     "app-1",
		UserID: "user-1",
		Status: models.ApplicationApproved,
		PersonalInfo: models.PersonalInfo{
			FirstName: "Ana", LastName: "Lopez", Email: "ana@example.com", SSN: "123456789",
		},
		HourlyRate:             3500,
		ServiceAreas:           []string{"Mesa", "Tempe"},
		Documents:              map[models.DocumentType]models.StoredDocument{models.DocumentIDFront: {}, models.DocumentIDBack: {}},
		BackgroundCheckStatus:  models.VerificationCompleted,
		BackgroundCheckVerdict: models.VerdictClear,
		CreatedAt:              now,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, payments, apps, now))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{PaymentsSheet, ApplicationsSheet}, f.GetSheetList())

	rows, err := f.GetRows(PaymentsSheet)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 4)
	assert.Equal(t, "Session", rows[0][0])
	assert.Equal(t, "cs_test_2", rows[2][0])
	assert.Equal(t, "USD", rows[1][4])

	total, err := f.GetCellValue(PaymentsSheet, "D6")
	require.NoError(t, err)
	assert.Equal(t, "120.5", total)

	appRows, err := f.GetRows(ApplicationsSheet)
	require.NoError(t, err)
	require.Len(t, appRows, 2)
	assert.Equal(t, "Ana Lopez", appRows[1][2])
	assert.Equal(t, "Mesa, Tempe", appRows[1][4])
	assert.Equal(t, "2", appRows[1][7])
	for _, row := range appRows {
		for _, v := range row {
			assert.NotContains(t, v, "123456789")
		}
	}
}

func TestWriteWorkbook_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, nil, nil, time.Now()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(ApplicationsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
