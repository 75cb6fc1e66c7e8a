package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classcove/tuition-api/internal/models"
	appErrors "github.com/classcove/tuition-api/pkg/errors"
)

type stubSheetRepo struct {
	sheets  map[string]*models.AttendanceSheet
	entries map[string][]models.AttendanceEntryDetail
	nextID  int
}

func newStubSheetRepo() *stubSheetRepo {
	return &stubSheetRepo{
		sheets:  make(map[string]*models.AttendanceSheet),
		entries: make(map[string][]models.AttendanceEntryDetail),
	}
}

func (m *stubSheetRepo) CreateSheet(ctx context.Context, sheet *models.AttendanceSheet) error {
	for _, s := range m.sheets {
		if s.ClassID == sheet.ClassID && s.Date.Equal(sheet.Date) {
			return sql.ErrNoRows
		}
	}
	m.nextID++
	sheet.ID = fmt.Sprintf("sheet-%d", m.nextID)
	stored := *sheet
	m.sheets[sheet.ID] = &stored
	return nil
}

func (m *stubSheetRepo) FindSheet(ctx context.Context, id string) (*models.AttendanceSheet, error) {
	s, ok := m.sheets[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

func (m *stubSheetRepo) SheetsForMonth(ctx context.Context, classID string, from, to time.Time) ([]models.AttendanceSheet, error) {
	var out []models.AttendanceSheet
	for _, s := range m.sheets {
		if s.ClassID == classID && !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *stubSheetRepo) Finalize(ctx context.Context, sheetID string) error {
	s, ok := m.sheets[sheetID]
	if !ok {
		return sql.ErrNoRows
	}
	s.Finalized = true
	return nil
}

func (m *stubSheetRepo) UpsertEntry(ctx context.Context, entry *models.AttendanceEntry) (*models.AttendanceEntry, error) {
	entry.ID = "entry-1"
	m.entries[entry.SheetID] = append(m.entries[entry.SheetID], models.AttendanceEntryDetail{AttendanceEntry: *entry})
	return entry, nil
}

func (m *stubSheetRepo) BulkUpsertEntries(ctx context.Context, entries []models.AttendanceEntry) error {
	for _, e := range entries {
		m.entries[e.SheetID] = append(m.entries[e.SheetID], models.AttendanceEntryDetail{AttendanceEntry: e})
	}
	return nil
}

func (m *stubSheetRepo) EntriesForSheet(ctx context.Context, sheetID string) ([]models.AttendanceEntryDetail, error) {
	return m.entries[sheetID], nil
}

func (m *stubSheetRepo) StudentHistory(ctx context.Context, studentID, classID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error) {
	return nil, nil
}

type stubMonitorClassRepo struct {
	classes  map[string]*models.Class
	monitors map[string]bool
}

func (m *stubMonitorClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	c, ok := m.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (m *stubMonitorClassRepo) IsMonitor(ctx context.Context, classID, studentID string) (bool, error) {
	return m.monitors[classID+"|"+studentID], nil
}

type stubEnrollmentRepo struct {
	enrolled map[string]bool
}

func (m *stubEnrollmentRepo) FindEnrollment(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	if !m.enrolled[studentID+"|"+classID] {
		return nil, sql.ErrNoRows
	}
	return &models.Enrollment{StudentID: studentID, ClassID: classID}, nil
}

type attendanceFixture struct {
	sheets   *stubSheetRepo
	classes  *stubMonitorClassRepo
	students *stubEnrollmentRepo
	svc      *AttendanceService
}

func newAttendanceFixture(t *testing.T) *attendanceFixture {
	t.Helper()
	f := &attendanceFixture{
		sheets: newStubSheetRepo(),
		classes: &stubMonitorClassRepo{
			classes:  map[string]*models.Class{"c1": {ID: "c1", Name: "Grade 10 English", Active: true}},
			monitors: make(map[string]bool),
		},
		students: &stubEnrollmentRepo{enrolled: map[string]bool{"s1|c1": true}},
	}
	cache := NewCacheService(nil, nil, 0, zap.NewNop(), false)
	f.svc = NewAttendanceService(f.sheets, f.classes, f.students, cache, validator.New(), zap.NewNop())
	return f
}

var staffActor = Actor{UserID: "u-staff", Role: models.RoleStaff}

func TestCreateSheetDuplicateDate(t *testing.T) {
	f := newAttendanceFixture(t)

	_, err := f.svc.CreateSheet(context.Background(), staffActor, CreateSheetRequest{ClassID: "c1", Date: "2024-03-04"})
	require.NoError(t, err)

	_, err = f.svc.CreateSheet(context.Background(), staffActor, CreateSheetRequest{ClassID: "c1", Date: "2024-03-04"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCreateSheetRejectsNonMonitorStudent(t *testing.T) {
	f := newAttendanceFixture(t)
	student := Actor{UserID: "u-s1", Role: models.RoleStudent, StudentID: "s1"}

	_, err := f.svc.CreateSheet(context.Background(), student, CreateSheetRequest{ClassID: "c1", Date: "2024-03-04"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestCreateSheetAllowsMonitor(t *testing.T) {
	f := newAttendanceFixture(t)
	f.classes.monitors["c1|s1"] = true
	monitor := Actor{UserID: "u-s1", Role: models.RoleStudent, StudentID: "s1"}

	sheet, err := f.svc.CreateSheet(context.Background(), monitor, CreateSheetRequest{ClassID: "c1", Date: "2024-03-04"})
	require.NoError(t, err)
	assert.Equal(t, "u-s1", sheet.TakenBy)
	assert.False(t, sheet.Finalized)
}

func TestMarkRejectsFinalizedSheet(t *testing.T) {
	f := newAttendanceFixture(t)
	sheet, err := f.svc.CreateSheet(context.Background(), staffActor, CreateSheetRequest{ClassID: "c1", Date: "2024-03-04"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Finalize(context.Background(), staffActor, sheet.ID))

	_, err = f.svc.Mark(context.Background(), staffActor, sheet.ID, MarkEntryRequest{StudentID: "s1", Status: "PRESENT"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestMarkRejectsUnenrolledStudent(t *testing.T) {
	f := newAttendanceFixture(t)
	sheet, err := f.svc.CreateSheet(context.Background(), staffActor, CreateSheetRequest{ClassID: "c1", Date: "2024-03-04"})
	require.NoError(t, err)

	_, err = f.svc.Mark(context.Background(), staffActor, sheet.ID, MarkEntryRequest{StudentID: "s9", Status: "PRESENT"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestMarkRejectsUnknownStatus(t *testing.T) {
	f := newAttendanceFixture(t)
	sheet, err := f.svc.CreateSheet(context.Background(), staffActor, CreateSheetRequest{ClassID: "c1", Date: "2024-03-04"})
	require.NoError(t, err)

	_, err = f.svc.Mark(context.Background(), staffActor, sheet.ID, MarkEntryRequest{StudentID: "s1", Status: "LATE"})
	require.Error(t, err)
}

func TestBulkMarkRecordsAllEntries(t *testing.T) {
	f := newAttendanceFixture(t)
	f.students.enrolled["s2|c1"] = true
	sheet, err := f.svc.CreateSheet(context.Background(), staffActor, CreateSheetRequest{ClassID: "c1", Date: "2024-03-04"})
	require.NoError(t, err)

	err = f.svc.BulkMark(context.Background(), staffActor, sheet.ID, BulkMarkRequest{
		Entries: []MarkEntryRequest{
			{StudentID: "s1", Status: "PRESENT"},
			{StudentID: "s2", Status: "ABSENT"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, f.sheets.entries[sheet.ID], 2)
}

func TestFinalizeStaffOnly(t *testing.T) {
	f := newAttendanceFixture(t)
	f.classes.monitors["c1|s1"] = true
	monitor := Actor{UserID: "u-s1", Role: models.RoleStudent, StudentID: "s1"}
	sheet, err := f.svc.CreateSheet(context.Background(), monitor, CreateSheetRequest{ClassID: "c1", Date: "2024-03-04"})
	require.NoError(t, err)

	err = f.svc.Finalize(context.Background(), monitor, sheet.ID)
	require.Error(t, err, "monitors may record marks but never finalize")

	require.NoError(t, f.svc.Finalize(context.Background(), staffActor, sheet.ID))
	assert.True(t, f.sheets.sheets[sheet.ID].Finalized)
}
