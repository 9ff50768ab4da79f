package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"maidlink/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	bookingsSheet = "Bookings"
	timeLayout    = "2006-01-02 15:04"
)

var bookingHeaders = []interface{}{
	"ID", "Service", "Cleaner", "Customer", "Email", "Phone", "Area", "Address",
	"Scheduled At", "Hours", "Amount", "Status", "Payment", "Created At", "Updated At",
}

var errRowNotFound = errors.New("booking row not found")

// SheetsService mirrors bookings into one spreadsheet tab, one row per booking.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	rowCache      map[string]int
	cacheMu       sync.RWMutex
}

// NewSheetsService authenticates with a service-account key file.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	return NewSheetsServiceWithOptions(ctx, spreadsheetID, option.WithHTTPClient(jwtConfig.Client(ctx)))
}

func NewSheetsServiceWithOptions(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*SheetsService, error) {
	if spreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[string]int),
	}, nil
}

// TestConnection reads the header cell of the bookings tab.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// WarmUpCache populates the row index cache by reading the whole ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
	for i, row := range resp.Values {
		if i == 0 || len(row) == 0 {
			continue
		}
		if id := fmt.Sprint(row[0]); id != "" {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// UpsertBooking rewrites the booking's row in place or appends a new one.
func (s *SheetsService) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return errors.New("booking is nil")
	}

	rowIdx, err := s.FindBookingRow(ctx, booking.ID)
	if errors.Is(err, errRowNotFound) {
		return s.appendBooking(ctx, booking)
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:O%d", bookingsSheet, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update booking row: %w", err)
	}
	return nil
}

func (s *SheetsService) appendBooking(ctx context.Context, booking *models.Booking) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, bookingsSheet+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append booking row: %w", err)
	}

	if resp.Updates != nil {
		if row := firstRow(resp.Updates.UpdatedRange); row > 0 {
			s.setCachedRow(booking.ID, row)
		}
	}
	return nil
}

// firstRow extracts 10 from a range such as "Bookings!A10:O10".
func firstRow(a1 string) int {
	_, cells, ok := strings.Cut(a1, "!")
	if !ok {
		return 0
	}
	start, _, _ := strings.Cut(cells, ":")
	row, err := strconv.Atoi(strings.TrimLeft(start, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	if err != nil {
		return 0
	}
	return row
}

// FindBookingRow locates the 1-based row holding bookingID in column A.
func (s *SheetsService) FindBookingRow(ctx context.Context, bookingID string) (int, error) {
	if bookingID == "" {
		return 0, errors.New("booking id is required")
	}
	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, bookingsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to read booking ids: %w", err)
	}
	for i, row := range resp.Values {
		if len(row) > 0 && fmt.Sprint(row[0]) == bookingID {
			s.setCachedRow(bookingID, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

// ReplaceBookingsSheet clears the tab and writes the header plus every booking.
func (s *SheetsService) ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, bookingsSheet+"!A:Z", &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear bookings sheet: %w", err)
	}

	values := make([][]interface{}, 0, len(bookings)+1)
	values = append(values, bookingHeaders)
	for _, b := range bookings {
		values = append(values, bookingRowValues(b))
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, bookingsSheet+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update bookings sheet: %w", err)
	}

	s.cacheMu.Lock()
	s.rowCache = make(map[string]int, len(bookings))
	for i, b := range bookings {
		s.rowCache[b.ID] = i + 2
	}
	s.cacheMu.Unlock()
	return nil
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func bookingRowValues(b *models.Booking) []interface{} {
	return []interface{}{
		b.ID,
		string(b.ServiceKind),
		b.CleanerName,
		b.CustomerName,
		b.CustomerEmail,
		b.CustomerPhone,
		b.ServiceArea,
		b.Address,
		b.ScheduledAt.UTC().Format(timeLayout),
		b.Hours,
		fmt.Sprintf("%d.%02d %s", b.TotalAmount/100, b.TotalAmount%100, b.Currency),
		string(b.Status),
		string(b.PaymentStatus),
		b.CreatedAt.UTC().Format(timeLayout),
		b.UpdatedAt.UTC().Format(timeLayout),
	}
}
