package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classcove/tuition-api/internal/models"
)

// AttendanceRepository handles persistence for attendance sheets and entries.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// CreateSheet inserts a sheet for (class, date). The unique index on that
// pair makes the insert race-free; a duplicate surfaces as sql.ErrNoRows.
func (r *AttendanceRepository) CreateSheet(ctx context.Context, sheet *models.AttendanceSheet) error {
	now := time.Now().UTC()
	if sheet.ID == "" {
		sheet.ID = uuid.NewString()
	}
	sheet.CreatedAt = now
	sheet.UpdatedAt = now
	const query = `INSERT INTO attendance_sheets (id, class_id, date, taken_by, finalized, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (class_id, date) DO NOTHING
RETURNING id`
	var insertedID string
	if err := r.db.QueryRowxContext(ctx, query, sheet.ID, sheet.ClassID, sheet.Date, sheet.TakenBy, sheet.Finalized, sheet.CreatedAt, sheet.UpdatedAt).Scan(&insertedID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("create attendance sheet: %w", err)
	}
	return nil
}

// FindSheet returns a sheet by identifier.
func (r *AttendanceRepository) FindSheet(ctx context.Context, id string) (*models.AttendanceSheet, error) {
	const query = `SELECT id, class_id, date, taken_by, finalized, created_at, updated_at FROM attendance_sheets WHERE id = $1 LIMIT 1`
	var sheet models.AttendanceSheet
	if err := r.db.GetContext(ctx, &sheet, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance sheet: %w", err)
	}
	return &sheet, nil
}

// SheetsForMonth lists a class's sheets within [from, to].
func (r *AttendanceRepository) SheetsForMonth(ctx context.Context, classID string, from, to time.Time) ([]models.AttendanceSheet, error) {
	const query = `SELECT id, class_id, date, taken_by, finalized, created_at, updated_at
FROM attendance_sheets WHERE class_id = $1 AND date >= $2 AND date <= $3 ORDER BY date ASC`
	var sheets []models.AttendanceSheet
	if err := r.db.SelectContext(ctx, &sheets, query, classID, from, to); err != nil {
		return nil, fmt.Errorf("list attendance sheets: %w", err)
	}
	return sheets, nil
}

// Finalize locks a sheet against further entry edits.
func (r *AttendanceRepository) Finalize(ctx context.Context, sheetID string) error {
	const query = `UPDATE attendance_sheets SET finalized = TRUE, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, sheetID)
	if err != nil {
		return fmt.Errorf("finalize attendance sheet: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpsertEntry inserts or updates one student's mark on a sheet.
func (r *AttendanceRepository) UpsertEntry(ctx context.Context, entry *models.AttendanceEntry) (*models.AttendanceEntry, error) {
	now := time.Now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	const query = `INSERT INTO attendance_entries (id, sheet_id, student_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (sheet_id, student_id)
DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
RETURNING id, sheet_id, student_id, status, created_at, updated_at`
	var stored models.AttendanceEntry
	if err := r.db.GetContext(ctx, &stored, query, entry.ID, entry.SheetID, entry.StudentID, entry.Status, entry.CreatedAt, entry.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance entry: %w", err)
	}
	return &stored, nil
}

// BulkUpsertEntries writes many marks on one sheet inside a transaction.
func (r *AttendanceRepository) BulkUpsertEntries(ctx context.Context, entries []models.AttendanceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk attendance entries: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()
	const query = `INSERT INTO attendance_entries (id, sheet_id, student_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (sheet_id, student_id)
DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		entry.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, query, entry.ID, entry.SheetID, entry.StudentID, entry.Status, entry.CreatedAt, entry.UpdatedAt); err != nil {
			return fmt.Errorf("bulk upsert attendance entries: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk attendance entries: %w", err)
	}
	committed = true
	return nil
}

// EntriesForSheet returns a sheet's marks with student display fields.
func (r *AttendanceRepository) EntriesForSheet(ctx context.Context, sheetID string) ([]models.AttendanceEntryDetail, error) {
	const query = `SELECT ae.id, ae.sheet_id, ae.student_id, ae.status, ae.created_at, ae.updated_at,
        s.full_name AS student_name, s.admission_no
        FROM attendance_entries ae JOIN students s ON s.id = ae.student_id
        WHERE ae.sheet_id = $1 ORDER BY s.full_name ASC`
	var entries []models.AttendanceEntryDetail
	if err := r.db.SelectContext(ctx, &entries, query, sheetID); err != nil {
		return nil, fmt.Errorf("list attendance entries: %w", err)
	}
	return entries, nil
}

// MonthlyCounts aggregates one student's attendance for a class within
// [from, to]. Every sheet in range counts toward total_class_days; a sheet
// without an entry for the student contributes no present day.
func (r *AttendanceRepository) MonthlyCounts(ctx context.Context, studentID, classID string, from, to time.Time) (*models.MonthlyAttendance, error) {
	const query = `SELECT COUNT(*) AS total_class_days,
        COUNT(*) FILTER (WHERE ae.status = 'PRESENT') AS present_days
        FROM attendance_sheets sh
        LEFT JOIN attendance_entries ae ON ae.sheet_id = sh.id AND ae.student_id = $1
        WHERE sh.class_id = $2 AND sh.date >= $3 AND sh.date <= $4`
	var counts models.MonthlyAttendance
	if err := r.db.GetContext(ctx, &counts, query, studentID, classID, from, to); err != nil {
		return nil, fmt.Errorf("monthly attendance counts: %w", err)
	}
	return &counts, nil
}

// StudentHistory returns a student's session history for one class.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, studentID, classID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error) {
	query := `SELECT sh.date, COALESCE(ae.status, 'ABSENT') AS status
FROM attendance_sheets sh
LEFT JOIN attendance_entries ae ON ae.sheet_id = sh.id AND ae.student_id = $1
WHERE sh.class_id = $2`
	args := []interface{}{studentID, classID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND sh.date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND sh.date <= $%d", len(args))
	}
	query += " ORDER BY sh.date DESC"
	var rows []models.AttendanceHistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("student attendance history: %w", err)
	}
	return rows, nil
}
