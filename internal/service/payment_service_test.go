package service

import (
	"context"
	"database/sql"
	"errors"
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

type stubPaymentRepo struct {
	payments map[string]*models.Payment
	nextID   int
}

func newStubPaymentRepo() *stubPaymentRepo {
	return &stubPaymentRepo{payments: make(map[string]*models.Payment)}
}

func monthKey(studentID, classID string, year, month int) string {
	return fmt.Sprintf("%s|%s|%d|%d", studentID, classID, year, month)
}

func (m *stubPaymentRepo) Insert(ctx context.Context, payment *models.Payment) error {
	for _, p := range m.payments {
		if p.StudentID == payment.StudentID && p.ClassID == payment.ClassID && p.Year == payment.Year && p.Month == payment.Month {
			return sql.ErrNoRows
		}
	}
	m.nextID++
	payment.ID = fmt.Sprintf("pay-%d", m.nextID)
	payment.CreatedAt = time.Now().UTC()
	payment.UpdatedAt = payment.CreatedAt
	stored := *payment
	m.payments[payment.ID] = &stored
	return nil
}

func (m *stubPaymentRepo) FindByID(ctx context.Context, id string) (*models.PaymentDetail, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := models.PaymentDetail{Payment: *p, StudentName: "Nimal Perera", AdmissionNo: "A-100", ClassName: "Grade 10 English"}
	if p.ActionBy != nil {
		name := "Staff Member"
		detail.ActionByName = &name
	}
	return &detail, nil
}

func (m *stubPaymentRepo) ListForYear(ctx context.Context, studentID, classID string, year int) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range m.payments {
		if p.StudentID == studentID && p.ClassID == classID && p.Year == year {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *stubPaymentRepo) ListForClassMonth(ctx context.Context, classID string, year, month int) ([]models.PaymentDetail, error) {
	var out []models.PaymentDetail
	for _, p := range m.payments {
		if p.ClassID == classID && p.Year == year && p.Month == month {
			out = append(out, models.PaymentDetail{Payment: *p})
		}
	}
	return out, nil
}

func (m *stubPaymentRepo) UpdateSubmission(ctx context.Context, id string, amount int64, receiptRef string, note *string) error {
	p, ok := m.payments[id]
	if !ok || p.Status != models.PaymentStatusPending {
		return sql.ErrNoRows
	}
	p.Amount = amount
	p.ReceiptRef = receiptRef
	p.Note = note
	return nil
}

func (m *stubPaymentRepo) Process(ctx context.Context, id string, status models.PaymentStatus, actionBy string, actionNote *string, actionDate time.Time) error {
	p, ok := m.payments[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = status
	p.ActionBy = &actionBy
	p.ActionDate = &actionDate
	p.ActionNote = actionNote
	return nil
}

func (m *stubPaymentRepo) BulkProcess(ctx context.Context, ids []string, status models.PaymentStatus, actionBy string, actionNote *string, actionDate time.Time) (int64, error) {
	var modified int64
	for _, id := range ids {
		if p, ok := m.payments[id]; ok {
			p.Status = status
			p.ActionBy = &actionBy
			p.ActionDate = &actionDate
			p.ActionNote = actionNote
			modified++
		}
	}
	return modified, nil
}

func (m *stubPaymentRepo) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error) {
	var out []models.PaymentDetail
	for _, p := range m.payments {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		out = append(out, models.PaymentDetail{Payment: *p})
	}
	return out, len(out), nil
}

func (m *stubPaymentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.payments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.payments, id)
	return nil
}

type stubAttendanceRepo struct {
	counts map[string]models.MonthlyAttendance
	err    error
}

func (m *stubAttendanceRepo) MonthlyCounts(ctx context.Context, studentID, classID string, from, to time.Time) (*models.MonthlyAttendance, error) {
	if m.err != nil {
		return nil, m.err
	}
	key := fmt.Sprintf("%d-%d", from.Year(), int(from.Month()))
	counts := m.counts[key]
	return &counts, nil
}

type stubClassRepo struct {
	classes map[string]*models.Class
}

func (m *stubClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	c, ok := m.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (m *stubClassRepo) EnrolledStudents(ctx context.Context, classID string) ([]models.StudentDetail, error) {
	return []models.StudentDetail{{Student: models.Student{ID: "s1", FullName: "Nimal Perera", AdmissionNo: "A-100"}}}, nil
}

type stubStudentRepo struct {
	enrollments map[string]*models.Enrollment
}

func (m *stubStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	return &models.StudentDetail{Student: models.Student{ID: id, UserID: "u-" + id, FullName: "Nimal Perera", AdmissionNo: "A-100"}}, nil
}

func (m *stubStudentRepo) FindEnrollment(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	e, ok := m.enrollments[studentID+"|"+classID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e, nil
}

type recordingNotifier struct {
	decided []*models.PaymentDetail
}

func (n *recordingNotifier) PaymentDecided(ctx context.Context, payment *models.PaymentDetail) {
	n.decided = append(n.decided, payment)
}

type paymentFixture struct {
	payments   *stubPaymentRepo
	attendance *stubAttendanceRepo
	classes    *stubClassRepo
	students   *stubStudentRepo
	notifier   *recordingNotifier
	svc        *PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	f := &paymentFixture{
		payments:   newStubPaymentRepo(),
		attendance: &stubAttendanceRepo{counts: make(map[string]models.MonthlyAttendance)},
		classes: &stubClassRepo{classes: map[string]*models.Class{
			"c1": {ID: "c1", Name: "Grade 10 English", MonthlyFee: 2000, Active: true},
		}},
		students: &stubStudentRepo{enrollments: map[string]*models.Enrollment{
			"s1|c1": {ID: "e1", StudentID: "s1", ClassID: "c1"},
		}},
		notifier: &recordingNotifier{},
	}
	cache := NewCacheService(nil, nil, 0, zap.NewNop(), false)
	f.svc = NewPaymentService(f.payments, f.attendance, f.classes, f.students, cache, nil, f.notifier, validator.New(), zap.NewNop(), 2)
	f.svc.now = func() time.Time { return time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestCalculateAttendanceNoSheets(t *testing.T) {
	f := newPaymentFixture(t)

	counts, err := f.svc.CalculateAttendance(context.Background(), "s1", "c1", 2024, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.PresentDays)
	assert.Equal(t, 0, counts.TotalClassDays)
}

func TestCalculateAttendancePropagatesErrors(t *testing.T) {
	f := newPaymentFixture(t)
	f.attendance.err = errors.New("connection reset")

	_, err := f.svc.CalculateAttendance(context.Background(), "s1", "c1", 2024, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to aggregate attendance")
}

func TestMonthlyStatusesThreshold(t *testing.T) {
	f := newPaymentFixture(t)
	f.attendance.counts["2024-3"] = models.MonthlyAttendance{PresentDays: 1, TotalClassDays: 4}
	f.attendance.counts["2024-4"] = models.MonthlyAttendance{PresentDays: 2, TotalClassDays: 4}

	statuses, cached, err := f.svc.MonthlyStatuses(context.Background(), "s1", "c1", 2024)
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, statuses, 12)

	assert.False(t, statuses[2].RequiresPayment, "one attended session keeps the month free of charge")
	assert.True(t, statuses[3].RequiresPayment)
	assert.Equal(t, int64(2000), statuses[3].MonthlyFee)
}

func TestMonthlyStatusesFreeClass(t *testing.T) {
	f := newPaymentFixture(t)
	f.classes.classes["c1"].FreeClass = true
	f.attendance.counts["2024-3"] = models.MonthlyAttendance{PresentDays: 4, TotalClassDays: 4}

	statuses, _, err := f.svc.MonthlyStatuses(context.Background(), "s1", "c1", 2024)
	require.NoError(t, err)
	assert.True(t, statuses[2].IsFreeClass)
	assert.False(t, statuses[2].RequiresPayment)
	assert.False(t, statuses[2].IsOverdue)
}

func TestMonthlyStatusesFreeMembership(t *testing.T) {
	f := newPaymentFixture(t)
	f.students.enrollments["s1|c1"].FreeClass = true
	f.attendance.counts["2024-3"] = models.MonthlyAttendance{PresentDays: 4, TotalClassDays: 4}

	statuses, _, err := f.svc.MonthlyStatuses(context.Background(), "s1", "c1", 2024)
	require.NoError(t, err)
	assert.False(t, statuses[2].RequiresPayment)
}

func TestMonthlyStatusesOverdueOnlyPastMonths(t *testing.T) {
	f := newPaymentFixture(t)
	// now is fixed to 2024-06-15; every month has enough attendance to owe.
	for month := 1; month <= 12; month++ {
		f.attendance.counts[fmt.Sprintf("2024-%d", month)] = models.MonthlyAttendance{PresentDays: 3, TotalClassDays: 4}
	}

	statuses, _, err := f.svc.MonthlyStatuses(context.Background(), "s1", "c1", 2024)
	require.NoError(t, err)

	assert.True(t, statuses[2].IsOverdue, "March is past and unpaid")
	assert.True(t, statuses[4].IsOverdue, "May is past and unpaid")
	assert.False(t, statuses[5].IsOverdue, "June is the current month")
	assert.False(t, statuses[6].IsOverdue, "July has not happened yet")
	assert.False(t, statuses[11].IsOverdue)
}

func TestMonthlyStatusesMarchScenario(t *testing.T) {
	f := newPaymentFixture(t)
	f.attendance.counts["2024-3"] = models.MonthlyAttendance{PresentDays: 2, TotalClassDays: 3}

	statuses, _, err := f.svc.MonthlyStatuses(context.Background(), "s1", "c1", 2024)
	require.NoError(t, err)

	march := statuses[2]
	assert.Equal(t, 2, march.Attendance.PresentDays)
	assert.Equal(t, 3, march.Attendance.TotalClassDays)
	assert.True(t, march.RequiresPayment)
	assert.True(t, march.IsOverdue)
	assert.Equal(t, int64(2000), march.MonthlyFee)
}

func TestSubmitCapturesAttendanceSnapshot(t *testing.T) {
	f := newPaymentFixture(t)
	f.attendance.counts["2024-3"] = models.MonthlyAttendance{PresentDays: 2, TotalClassDays: 3}

	payment, err := f.svc.Submit(context.Background(), "s1", SubmitPaymentRequest{
		ClassID: "c1", Year: 2024, Month: 3, Amount: 2000, ReceiptRef: "R-555",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, 2, payment.PresentDays)
	assert.Equal(t, 3, payment.TotalClassDays)
}

func TestSubmitDuplicateMonthRejected(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.svc.Submit(context.Background(), "s1", SubmitPaymentRequest{
		ClassID: "c1", Year: 2024, Month: 3, Amount: 2000, ReceiptRef: "R-1",
	})
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), "s1", SubmitPaymentRequest{
		ClassID: "c1", Year: 2024, Month: 3, Amount: 2000, ReceiptRef: "R-2",
	})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "PAYMENT_EXISTS", appErr.Code)
	assert.Equal(t, 400, appErr.Status)
	assert.Len(t, f.payments.payments, 1)
}

func TestSubmitRequiresEnrollment(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.svc.Submit(context.Background(), "s2", SubmitPaymentRequest{
		ClassID: "c1", Year: 2024, Month: 3, Amount: 2000, ReceiptRef: "R-1",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestUpdateOwnOnlyWhilePending(t *testing.T) {
	f := newPaymentFixture(t)
	submitted, err := f.svc.Submit(context.Background(), "s1", SubmitPaymentRequest{
		ClassID: "c1", Year: 2024, Month: 3, Amount: 2000, ReceiptRef: "R-1",
	})
	require.NoError(t, err)

	updated, err := f.svc.UpdateOwn(context.Background(), submitted.ID, "s1", UpdatePaymentRequest{Amount: 2500, ReceiptRef: "R-2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2500), updated.Amount)

	_, err = f.svc.Process(context.Background(), submitted.ID, "staff-1", ProcessPaymentRequest{Action: "approved"})
	require.NoError(t, err)

	_, err = f.svc.UpdateOwn(context.Background(), submitted.ID, "s1", UpdatePaymentRequest{Amount: 100, ReceiptRef: "R-3"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "NOT_PENDING", appErr.Code)
}

func TestUpdateOwnRejectsOtherStudents(t *testing.T) {
	f := newPaymentFixture(t)
	submitted, err := f.svc.Submit(context.Background(), "s1", SubmitPaymentRequest{
		ClassID: "c1", Year: 2024, Month: 3, Amount: 2000, ReceiptRef: "R-1",
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateOwn(context.Background(), submitted.ID, "s2", UpdatePaymentRequest{Amount: 100, ReceiptRef: "R-9"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestProcessStampsAudit(t *testing.T) {
	f := newPaymentFixture(t)
	submitted, err := f.svc.Submit(context.Background(), "s1", SubmitPaymentRequest{
		ClassID: "c1", Year: 2024, Month: 3, Amount: 2000, ReceiptRef: "R-1",
	})
	require.NoError(t, err)

	note := "verified against bank slip"
	processed, err := f.svc.Process(context.Background(), submitted.ID, "staff-1", ProcessPaymentRequest{Action: "APPROVED", Note: &note})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusApproved, processed.Status)
	require.NotNil(t, processed.ActionBy)
	assert.Equal(t, "staff-1", *processed.ActionBy)
	require.NotNil(t, processed.ActionDate)
	assert.Equal(t, 2024, processed.ActionDate.Year())
	assert.Equal(t, "Nimal Perera", processed.StudentName)
	assert.Equal(t, "Grade 10 English", processed.ClassName)

	require.Len(t, f.notifier.decided, 1)
	assert.Equal(t, submitted.ID, f.notifier.decided[0].ID)
}

func TestProcessNormalizesLowercaseAction(t *testing.T) {
	f := newPaymentFixture(t)
	submitted, err := f.svc.Submit(context.Background(), "s1", SubmitPaymentRequest{
		ClassID: "c1", Year: 2024, Month: 3, Amount: 2000, ReceiptRef: "R-1",
	})
	require.NoError(t, err)

	processed, err := f.svc.Process(context.Background(), submitted.ID, "staff-1", ProcessPaymentRequest{Action: "rejected"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRejected, processed.Status)
}

func TestProcessRejectsUnknownAction(t *testing.T) {
	f := newPaymentFixture(t)
	submitted, err := f.svc.Submit(context.Background(), "s1", SubmitPaymentRequest{
		ClassID: "c1", Year: 2024, Month: 3, Amount: 2000, ReceiptRef: "R-1",
	})
	require.NoError(t, err)

	_, err = f.svc.Process(context.Background(), submitted.ID, "staff-1", ProcessPaymentRequest{Action: "maybe"})
	require.Error(t, err)

	_, err = f.svc.Process(context.Background(), submitted.ID, "staff-1", ProcessPaymentRequest{Action: "pending"})
	require.Error(t, err, "process only accepts a final decision")
}

func TestBulkProcessRejectsPair(t *testing.T) {
	f := newPaymentFixture(t)
	f.students.enrollments["s2|c1"] = &models.Enrollment{ID: "e2", StudentID: "s2", ClassID: "c1"}

	p1, err := f.svc.Submit(context.Background(), "s1", SubmitPaymentRequest{ClassID: "c1", Year: 2024, Month: 3, Amount: 2000, ReceiptRef: "R-1"})
	require.NoError(t, err)
	p2, err := f.svc.Submit(context.Background(), "s2", SubmitPaymentRequest{ClassID: "c1", Year: 2024, Month: 3, Amount: 2000, ReceiptRef: "R-2"})
	require.NoError(t, err)

	result, err := f.svc.BulkProcess(context.Background(), "staff-1", BulkProcessPaymentRequest{
		PaymentIDs: []string{p1.ID, p2.ID},
		Action:     "REJECTED",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.ModifiedCount)
	assert.Equal(t, models.PaymentStatusRejected, f.payments.payments[p1.ID].Status)
	assert.Equal(t, models.PaymentStatusRejected, f.payments.payments[p2.ID].Status)
}

func TestUpdateStatusAllowsReopening(t *testing.T) {
	f := newPaymentFixture(t)
	submitted, err := f.svc.Submit(context.Background(), "s1", SubmitPaymentRequest{ClassID: "c1", Year: 2024, Month: 3, Amount: 2000, ReceiptRef: "R-1"})
	require.NoError(t, err)

	_, err = f.svc.Process(context.Background(), submitted.ID, "staff-1", ProcessPaymentRequest{Action: "APPROVED"})
	require.NoError(t, err)

	reopened, err := f.svc.UpdateStatus(context.Background(), submitted.ID, "staff-1", "pending", nil)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, reopened.Status)
}

func TestAdminMonthIncludesEveryEnrolledStudent(t *testing.T) {
	f := newPaymentFixture(t)
	f.attendance.counts["2024-3"] = models.MonthlyAttendance{PresentDays: 2, TotalClassDays: 3}

	_, err := f.svc.Submit(context.Background(), "s1", SubmitPaymentRequest{ClassID: "c1", Year: 2024, Month: 3, Amount: 2000, ReceiptRef: "R-1"})
	require.NoError(t, err)

	view, err := f.svc.AdminMonth(context.Background(), "c1", 2024, 3)
	require.NoError(t, err)
	require.Len(t, view.Students, 1)
	entry := view.Students[0]
	assert.Equal(t, "s1", entry.StudentID)
	assert.True(t, entry.RequiresPayment)
	require.NotNil(t, entry.Payment)
	assert.False(t, entry.IsOverdue, "a submitted payment clears the overdue flag")
	assert.Len(t, view.Pending, 1)
}

func TestDeleteRemovesRequest(t *testing.T) {
	f := newPaymentFixture(t)
	submitted, err := f.svc.Submit(context.Background(), "s1", SubmitPaymentRequest{ClassID: "c1", Year: 2024, Month: 3, Amount: 2000, ReceiptRef: "R-1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), submitted.ID))
	assert.Empty(t, f.payments.payments)

	err = f.svc.Delete(context.Background(), submitted.ID)
	require.Error(t, err)
}
