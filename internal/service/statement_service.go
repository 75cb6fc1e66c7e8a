package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/classcove/tuition-api/pkg/errors"
	"github.com/classcove/tuition-api/pkg/export"
)

// StatementService renders a student's yearly payment position as a PDF.
type StatementService struct {
	payments *PaymentService
	students paymentStudentRepository
	classes  paymentClassRepository
	exporter *export.PDFExporter
	logger   *zap.Logger
}

// NewStatementService constructs the statement service.
func NewStatementService(payments *PaymentService, students paymentStudentRepository, classes paymentClassRepository, exporter *export.PDFExporter, logger *zap.Logger) *StatementService {
	if exporter == nil {
		exporter = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatementService{payments: payments, students: students, classes: classes, exporter: exporter, logger: logger}
}

// YearlyStatement renders the 12-month derivation for one student in one
// class as a downloadable PDF.
func (s *StatementService) YearlyStatement(ctx context.Context, studentID, classID string, year int) ([]byte, string, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}

	statuses, _, err := s.payments.MonthlyStatuses(ctx, studentID, classID, year)
	if err != nil {
		return nil, "", err
	}

	headers := []string{"Month", "Sessions", "Present", "Fee Due", "Status", "Paid On"}
	rows := make([]map[string]string, 0, len(statuses))
	for _, status := range statuses {
		row := map[string]string{
			"Month":    time.Month(status.Month).String(),
			"Sessions": fmt.Sprintf("%d", status.Attendance.TotalClassDays),
			"Present":  fmt.Sprintf("%d", status.Attendance.PresentDays),
			"Fee Due":  "-",
			"Status":   "-",
			"Paid On":  "-",
		}
		if status.RequiresPayment {
			row["Fee Due"] = fmt.Sprintf("%d", status.MonthlyFee)
		}
		switch {
		case status.Payment != nil:
			row["Status"] = string(status.Payment.Status)
			row["Paid On"] = status.Payment.CreatedAt.Format("2006-01-02")
		case status.IsOverdue:
			row["Status"] = "OVERDUE"
		case status.RequiresPayment:
			row["Status"] = "DUE"
		}
		rows = append(rows, row)
	}

	title := fmt.Sprintf("%s / %s / %d", student.FullName, class.Name, year)
	pdf, err := s.exporter.Render(export.Dataset{Headers: headers, Rows: rows}, title)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement")
	}
	filename := fmt.Sprintf("statement_%s_%d.pdf", student.AdmissionNo, year)
	return pdf, filename, nil
}

// ClassMonthStatement renders the staff month view for one class as a PDF:
// one row per enrolled student with counts, liability and payment state.
func (s *StatementService) ClassMonthStatement(ctx context.Context, classID string, year, month int) ([]byte, string, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	view, err := s.payments.AdminMonth(ctx, classID, year, month)
	if err != nil {
		return nil, "", err
	}

	headers := []string{"Admission No", "Student", "Sessions", "Present", "Fee Due", "Status"}
	rows := make([]map[string]string, 0, len(view.Students))
	for _, entry := range view.Students {
		row := map[string]string{
			"Admission No": entry.AdmissionNo,
			"Student":      entry.StudentName,
			"Sessions":     fmt.Sprintf("%d", entry.Attendance.TotalClassDays),
			"Present":      fmt.Sprintf("%d", entry.Attendance.PresentDays),
			"Fee Due":      "-",
			"Status":       "-",
		}
		if entry.RequiresPayment {
			row["Fee Due"] = fmt.Sprintf("%d", entry.MonthlyFee)
		}
		switch {
		case entry.Payment != nil:
			row["Status"] = string(entry.Payment.Status)
		case entry.IsOverdue:
			row["Status"] = "OVERDUE"
		case entry.RequiresPayment:
			row["Status"] = "DUE"
		}
		rows = append(rows, row)
	}

	title := fmt.Sprintf("%s / %s %d", class.Name, time.Month(month).String(), year)
	pdf, err := s.exporter.Render(export.Dataset{Headers: headers, Rows: rows}, title)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement")
	}
	filename := fmt.Sprintf("class_statement_%d-%02d.pdf", year, month)
	return pdf, filename, nil
}
