package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classcove/tuition-api/internal/models"
	appErrors "github.com/classcove/tuition-api/pkg/errors"
)

type attendanceRepository interface {
	CreateSheet(ctx context.Context, sheet *models.AttendanceSheet) error
	FindSheet(ctx context.Context, id string) (*models.AttendanceSheet, error)
	SheetsForMonth(ctx context.Context, classID string, from, to time.Time) ([]models.AttendanceSheet, error)
	Finalize(ctx context.Context, sheetID string) error
	UpsertEntry(ctx context.Context, entry *models.AttendanceEntry) (*models.AttendanceEntry, error)
	BulkUpsertEntries(ctx context.Context, entries []models.AttendanceEntry) error
	EntriesForSheet(ctx context.Context, sheetID string) ([]models.AttendanceEntryDetail, error)
	StudentHistory(ctx context.Context, studentID, classID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error)
}

type attendanceClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	IsMonitor(ctx context.Context, classID, studentID string) (bool, error)
}

type attendanceStudentRepository interface {
	FindEnrollment(ctx context.Context, studentID, classID string) (*models.Enrollment, error)
}

// Actor identifies who is performing an attendance operation. StudentID is
// empty for staff accounts.
type Actor struct {
	UserID    string
	Role      models.UserRole
	StudentID string
}

// AttendanceService manages sheets and per-student marks. Staff may always
// record attendance; students may only when appointed monitor of the class.
type AttendanceService struct {
	attendance attendanceRepository
	classes    attendanceClassRepository
	students   attendanceStudentRepository
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(attendance attendanceRepository, classes attendanceClassRepository, students attendanceStudentRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{attendance: attendance, classes: classes, students: students, cache: cache, validator: validate, logger: logger}
}

// CreateSheetRequest opens a sheet for one class session.
type CreateSheetRequest struct {
	ClassID string `json:"class_id" validate:"required"`
	Date    string `json:"date" validate:"required,datetime=2006-01-02"`
}

// MarkEntryRequest records one student's mark.
type MarkEntryRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required"`
}

// BulkMarkRequest records many marks on one sheet.
type BulkMarkRequest struct {
	Entries []MarkEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

// SheetWithEntries pairs a sheet with its marks.
type SheetWithEntries struct {
	Sheet   models.AttendanceSheet         `json:"sheet"`
	Entries []models.AttendanceEntryDetail `json:"entries"`
}

func (s *AttendanceService) authorize(ctx context.Context, actor Actor, classID string) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleStaff:
		return nil
	case models.RoleStudent:
		if actor.StudentID == "" {
			return appErrors.Clone(appErrors.ErrForbidden, "no student profile on this account")
		}
		isMonitor, err := s.classes.IsMonitor(ctx, classID, actor.StudentID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check monitor permission")
		}
		if !isMonitor {
			return appErrors.Clone(appErrors.ErrForbidden, "only class monitors may record attendance")
		}
		return nil
	default:
		return appErrors.ErrForbidden
	}
}

// CreateSheet opens a sheet for (class, date). One sheet exists per pair.
func (s *AttendanceService) CreateSheet(ctx context.Context, actor Actor, req CreateSheetRequest) (*models.AttendanceSheet, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sheet payload")
	}
	if err := s.authorize(ctx, actor, req.ClassID); err != nil {
		return nil, err
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	sheet := &models.AttendanceSheet{ClassID: req.ClassID, Date: date, TakenBy: actor.UserID}
	if err := s.attendance.CreateSheet(ctx, sheet); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a sheet already exists for this class and date")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create sheet")
	}
	return sheet, nil
}

// GetSheet returns a sheet with its marks.
func (s *AttendanceService) GetSheet(ctx context.Context, sheetID string) (*SheetWithEntries, error) {
	sheet, err := s.loadSheet(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	entries, err := s.attendance.EntriesForSheet(ctx, sheetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list entries")
	}
	return &SheetWithEntries{Sheet: *sheet, Entries: entries}, nil
}

// SheetsForMonth lists a class's sheets for one month.
func (s *AttendanceService) SheetsForMonth(ctx context.Context, classID string, year, month int) ([]models.AttendanceSheet, error) {
	if month < 1 || month > 12 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid month")
	}
	from, to := monthRange(year, month)
	sheets, err := s.attendance.SheetsForMonth(ctx, classID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sheets")
	}
	return sheets, nil
}

// Mark records one student's status on a sheet. Finalized sheets reject
// edits; a mark for an unenrolled student is rejected.
func (s *AttendanceService) Mark(ctx context.Context, actor Actor, sheetID string, req MarkEntryRequest) (*models.AttendanceEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mark payload")
	}
	sheet, err := s.loadSheet(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, sheet.ClassID); err != nil {
		return nil, err
	}
	if sheet.Finalized {
		return nil, appErrors.Clone(appErrors.ErrConflict, "sheet is finalized")
	}

	entry, err := s.buildEntry(ctx, sheet, req)
	if err != nil {
		return nil, err
	}
	stored, err := s.attendance.UpsertEntry(ctx, entry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record mark")
	}
	s.cache.Invalidate(ctx, ClassStatusCachePattern(sheet.ClassID))
	return stored, nil
}

// BulkMark records many marks on one sheet.
func (s *AttendanceService) BulkMark(ctx context.Context, actor Actor, sheetID string, req BulkMarkRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk mark payload")
	}
	sheet, err := s.loadSheet(ctx, sheetID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, sheet.ClassID); err != nil {
		return err
	}
	if sheet.Finalized {
		return appErrors.Clone(appErrors.ErrConflict, "sheet is finalized")
	}

	entries := make([]models.AttendanceEntry, 0, len(req.Entries))
	for _, item := range req.Entries {
		entry, err := s.buildEntry(ctx, sheet, item)
		if err != nil {
			return err
		}
		entries = append(entries, *entry)
	}
	if err := s.attendance.BulkUpsertEntries(ctx, entries); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record marks")
	}
	s.cache.Invalidate(ctx, ClassStatusCachePattern(sheet.ClassID))
	return nil
}

// Finalize locks a sheet against further edits. Staff only.
func (s *AttendanceService) Finalize(ctx context.Context, actor Actor, sheetID string) error {
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleStaff {
		return appErrors.Clone(appErrors.ErrForbidden, "only staff may finalize sheets")
	}
	if err := s.attendance.Finalize(ctx, sheetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "sheet not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize sheet")
	}
	return nil
}

// StudentHistory returns a student's session history for one class.
func (s *AttendanceService) StudentHistory(ctx context.Context, studentID, classID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error) {
	rows, err := s.attendance.StudentHistory(ctx, studentID, classID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	return rows, nil
}

func (s *AttendanceService) loadSheet(ctx context.Context, sheetID string) (*models.AttendanceSheet, error) {
	sheet, err := s.attendance.FindSheet(ctx, sheetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sheet not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sheet")
	}
	return sheet, nil
}

func (s *AttendanceService) buildEntry(ctx context.Context, sheet *models.AttendanceSheet, req MarkEntryRequest) (*models.AttendanceEntry, error) {
	status := models.AttendanceStatus(req.Status)
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be PRESENT or ABSENT")
	}
	if _, err := s.students.FindEnrollment(ctx, req.StudentID, sheet.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student is not enrolled in this class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return &models.AttendanceEntry{SheetID: sheet.ID, StudentID: req.StudentID, Status: status}, nil
}
