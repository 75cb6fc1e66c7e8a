package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classcove/tuition-api/internal/models"
)

func newAttendanceMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAttendanceRepositoryCreateSheet(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO attendance_sheets").
		WithArgs(sqlmock.AnyArg(), "c1", date, "u-staff", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sheet-1"))

	sheet := &models.AttendanceSheet{ClassID: "c1", Date: date, TakenBy: "u-staff"}
	err := repo.CreateSheet(context.Background(), sheet)
	require.NoError(t, err)
	assert.NotEmpty(t, sheet.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateSheetDuplicate(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("INSERT INTO attendance_sheets").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	sheet := &models.AttendanceSheet{ClassID: "c1", Date: time.Now(), TakenBy: "u-staff"}
	err := repo.CreateSheet(context.Background(), sheet)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryMonthlyCounts(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0).Add(-time.Second)
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE ae.status = 'PRESENT')")).
		WithArgs("s1", "c1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"total_class_days", "present_days"}).AddRow(3, 2))

	counts, err := repo.MonthlyCounts(context.Background(), "s1", "c1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.PresentDays)
	assert.Equal(t, 3, counts.TotalClassDays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryMonthlyCountsNoSheets(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0).Add(-time.Second)
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE ae.status = 'PRESENT')")).
		WithArgs("s1", "c1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"total_class_days", "present_days"}).AddRow(0, 0))

	counts, err := repo.MonthlyCounts(context.Background(), "s1", "c1", from, to)
	require.NoError(t, err)
	assert.Zero(t, counts.PresentDays)
	assert.Zero(t, counts.TotalClassDays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryMonthlyCountsError(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0).Add(-time.Second)
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE ae.status = 'PRESENT')")).
		WithArgs("s1", "c1", from, to).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.MonthlyCounts(context.Background(), "s1", "c1", from, to)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monthly attendance counts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpsertEntry(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO attendance_entries").
		WithArgs(sqlmock.AnyArg(), "sheet-1", "s1", models.AttendanceStatusPresent, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sheet_id", "student_id", "status", "created_at", "updated_at"}).
			AddRow("entry-1", "sheet-1", "s1", "PRESENT", now, now))

	entry := &models.AttendanceEntry{SheetID: "sheet-1", StudentID: "s1", Status: models.AttendanceStatusPresent}
	stored, err := repo.UpsertEntry(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, "entry-1", stored.ID)
	assert.Equal(t, models.AttendanceStatusPresent, stored.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBulkUpsertEntries(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_entries").
		WithArgs(sqlmock.AnyArg(), "sheet-1", "s1", models.AttendanceStatusPresent, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO attendance_entries").
		WithArgs(sqlmock.AnyArg(), "sheet-1", "s2", models.AttendanceStatusAbsent, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.BulkUpsertEntries(context.Background(), []models.AttendanceEntry{
		{SheetID: "sheet-1", StudentID: "s1", Status: models.AttendanceStatusPresent},
		{SheetID: "sheet-1", StudentID: "s2", Status: models.AttendanceStatusAbsent},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFinalizeMissing(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("UPDATE attendance_sheets SET finalized").
		WithArgs("sheet-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Finalize(context.Background(), "sheet-404")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryStudentHistory(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(ae.status, 'ABSENT')")).
		WithArgs("s1", "c1", from).
		WillReturnRows(sqlmock.NewRows([]string{"date", "status"}).
			AddRow(time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC), "PRESENT").
			AddRow(time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC), "ABSENT"))

	rows, err := repo.StudentHistory(context.Background(), "s1", "c1", &from, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.AttendanceStatusPresent, rows[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
