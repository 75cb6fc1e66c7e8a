package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classcove/tuition-api/internal/models"
	appErrors "github.com/classcove/tuition-api/pkg/errors"
)

type paymentRepository interface {
	Insert(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id string) (*models.PaymentDetail, error)
	ListForYear(ctx context.Context, studentID, classID string, year int) ([]models.Payment, error)
	ListForClassMonth(ctx context.Context, classID string, year, month int) ([]models.PaymentDetail, error)
	UpdateSubmission(ctx context.Context, id string, amount int64, receiptRef string, note *string) error
	Process(ctx context.Context, id string, status models.PaymentStatus, actionBy string, actionNote *string, actionDate time.Time) error
	BulkProcess(ctx context.Context, ids []string, status models.PaymentStatus, actionBy string, actionNote *string, actionDate time.Time) (int64, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error)
	Delete(ctx context.Context, id string) error
}

type paymentAttendanceRepository interface {
	MonthlyCounts(ctx context.Context, studentID, classID string, from, to time.Time) (*models.MonthlyAttendance, error)
}

type paymentClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	EnrolledStudents(ctx context.Context, classID string) ([]models.StudentDetail, error)
}

type paymentStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindEnrollment(ctx context.Context, studentID, classID string) (*models.Enrollment, error)
}

// PaymentNotifier is told about staff decisions so students can be informed.
// Implementations must not fail the payment flow.
type PaymentNotifier interface {
	PaymentDecided(ctx context.Context, payment *models.PaymentDetail)
}

// PaymentService derives monthly fee liability from attendance and runs the
// payment request lifecycle (PENDING -> APPROVED | REJECTED).
type PaymentService struct {
	payments   paymentRepository
	attendance paymentAttendanceRepository
	classes    paymentClassRepository
	students   paymentStudentRepository
	cache      *CacheService
	metrics    *MetricsService
	notifier   PaymentNotifier
	validator  *validator.Validate
	logger     *zap.Logger

	// minPresentDays is the attended-session threshold after which the
	// month's fee becomes due; below it the student gets grace for late
	// enrollment or withdrawal.
	minPresentDays int

	now func() time.Time
}

// NewPaymentService constructs the payment service.
func NewPaymentService(
	payments paymentRepository,
	attendance paymentAttendanceRepository,
	classes paymentClassRepository,
	students paymentStudentRepository,
	cache *CacheService,
	metrics *MetricsService,
	notifier PaymentNotifier,
	validate *validator.Validate,
	logger *zap.Logger,
	minPresentDays int,
) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if minPresentDays <= 0 {
		minPresentDays = 2
	}
	return &PaymentService{
		payments:       payments,
		attendance:     attendance,
		classes:        classes,
		students:       students,
		cache:          cache,
		metrics:        metrics,
		notifier:       notifier,
		validator:      validate,
		logger:         logger,
		minPresentDays: minPresentDays,
		now:            time.Now,
	}
}

// SubmitPaymentRequest is the student's fee submission payload.
type SubmitPaymentRequest struct {
	ClassID    string  `json:"class_id" validate:"required"`
	Year       int     `json:"year" validate:"required,min=2000,max=2100"`
	Month      int     `json:"month" validate:"required,min=1,max=12"`
	Amount     int64   `json:"amount" validate:"required,gt=0"`
	ReceiptRef string  `json:"receipt_ref" validate:"required"`
	Note       *string `json:"note"`
}

// UpdatePaymentRequest replaces owner-editable fields while pending.
type UpdatePaymentRequest struct {
	Amount     int64   `json:"amount" validate:"required,gt=0"`
	ReceiptRef string  `json:"receipt_ref" validate:"required"`
	Note       *string `json:"note"`
}

// ProcessPaymentRequest carries a staff decision.
type ProcessPaymentRequest struct {
	Action string  `json:"action" validate:"required"`
	Note   *string `json:"note"`
}

// BulkProcessPaymentRequest applies one decision to many requests.
type BulkProcessPaymentRequest struct {
	PaymentIDs []string `json:"payment_ids" validate:"required,min=1,dive,required"`
	Action     string   `json:"action" validate:"required"`
	Note       *string  `json:"note"`
}

// BulkProcessResult reports how many rows the bulk update touched.
type BulkProcessResult struct {
	ModifiedCount int64 `json:"modified_count"`
}

// ListPaymentsRequest scopes the admin cross-class listing.
type ListPaymentsRequest struct {
	ClassID   string  `json:"class_id"`
	StudentID string  `json:"student_id"`
	Status    *string `json:"status"`
	Year      int     `json:"year"`
	Month     int     `json:"month" validate:"omitempty,min=1,max=12"`
	Page      int     `json:"page"`
	PageSize  int     `json:"page_size"`
	SortBy    string  `json:"sort_by"`
	SortOrder string  `json:"sort_order"`
}

// CalculateAttendance counts one student's present days and the class's
// session days for a calendar month. Database failures propagate; a zero
// result always means no sessions were held.
func (s *PaymentService) CalculateAttendance(ctx context.Context, studentID, classID string, year, month int) (*models.MonthlyAttendance, error) {
	from, to := monthRange(year, month)
	counts, err := s.attendance.MonthlyCounts(ctx, studentID, classID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}
	return counts, nil
}

// MonthlyStatuses derives the 12-month payment position for one student in
// one class. The result is recomputed on every read and cached briefly;
// it is never stored.
func (s *PaymentService) MonthlyStatuses(ctx context.Context, studentID, classID string, year int) ([]models.MonthStatus, bool, error) {
	if year < 2000 || year > 2100 {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "invalid year")
	}

	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	enrollment, err := s.students.FindEnrollment(ctx, studentID, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in this class")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	cacheKey := statusCacheKey(studentID, classID, year)
	var cached []models.MonthStatus
	if s.cache.Get(ctx, cacheKey, &cached) {
		return cached, true, nil
	}

	start := s.now()
	statuses, err := s.deriveYear(ctx, studentID, class, enrollment, year)
	if err != nil {
		return nil, false, err
	}
	s.metrics.ObserveStatusDerivation(s.now().Sub(start))

	s.cache.Set(ctx, cacheKey, statuses)
	return statuses, false, nil
}

func (s *PaymentService) deriveYear(ctx context.Context, studentID string, class *models.Class, enrollment *models.Enrollment, year int) ([]models.MonthStatus, error) {
	payments, err := s.payments.ListForYear(ctx, studentID, class.ID, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payments")
	}
	byMonth := make(map[int]models.Payment, len(payments))
	for _, p := range payments {
		byMonth[p.Month] = p
	}

	isFree := enrollment.FreeClass || class.FreeClass
	statuses := make([]models.MonthStatus, 0, 12)
	for month := 1; month <= 12; month++ {
		counts, err := s.CalculateAttendance(ctx, studentID, class.ID, year, month)
		if err != nil {
			return nil, err
		}
		status := models.MonthStatus{
			Month:       month,
			Attendance:  *counts,
			IsFreeClass: isFree,
			MonthlyFee:  class.MonthlyFee,
		}
		if p, ok := byMonth[month]; ok {
			payment := p
			status.Payment = &payment
		}
		status.RequiresPayment = counts.PresentDays >= s.minPresentDays && !isFree
		status.IsOverdue = status.RequiresPayment && status.Payment == nil && s.isPastMonth(year, month)
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// isPastMonth reports whether (year, month) ended before the current
// calendar month. The current month is never overdue even when unpaid.
func (s *PaymentService) isPastMonth(year, month int) bool {
	now := s.now()
	if year != now.Year() {
		return year < now.Year()
	}
	return month < int(now.Month())
}

// Submit creates a PENDING payment request with an attendance snapshot.
// The storage layer enforces at-most-one payment per month, so two racing
// submissions cannot both succeed.
func (s *PaymentService) Submit(ctx context.Context, studentID string, req SubmitPaymentRequest) (*models.PaymentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	if _, err := s.students.FindEnrollment(ctx, studentID, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in this class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	snapshot, err := s.CalculateAttendance(ctx, studentID, req.ClassID, req.Year, req.Month)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		StudentID:      studentID,
		ClassID:        req.ClassID,
		Year:           req.Year,
		Month:          req.Month,
		Amount:         req.Amount,
		ReceiptRef:     req.ReceiptRef,
		Note:           req.Note,
		Status:         models.PaymentStatusPending,
		PresentDays:    snapshot.PresentDays,
		TotalClassDays: snapshot.TotalClassDays,
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrPaymentExists
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit payment")
	}

	s.cache.Invalidate(ctx, statusCacheKey(studentID, req.ClassID, req.Year))
	return s.loadDetail(ctx, payment.ID)
}

// UpdateOwn lets the submitting student edit a request while it is pending.
func (s *PaymentService) UpdateOwn(ctx context.Context, paymentID, studentID string, req UpdatePaymentRequest) (*models.PaymentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	existing, err := s.loadDetail(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if existing.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "payment belongs to another student")
	}
	if existing.Status != models.PaymentStatusPending {
		return nil, appErrors.ErrNotPending
	}

	if err := s.payments.UpdateSubmission(ctx, paymentID, req.Amount, req.ReceiptRef, req.Note); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotPending
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}

	s.cache.Invalidate(ctx, statusCacheKey(existing.StudentID, existing.ClassID, existing.Year))
	return s.loadDetail(ctx, paymentID)
}

// AdminMonthStatus is the staff view of one class month: derived status for
// every enrolled student plus any submitted request.
type AdminMonthStatus struct {
	Students []models.StudentMonthStatus `json:"students"`
	Pending  []models.PaymentDetail      `json:"pending_requests"`
}

// AdminMonth derives per-student status and pending requests for one month.
func (s *PaymentService) AdminMonth(ctx context.Context, classID string, year, month int) (*AdminMonthStatus, error) {
	if month < 1 || month > 12 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid month")
	}
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	students, err := s.classes.EnrolledStudents(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrolled students")
	}
	payments, err := s.payments.ListForClassMonth(ctx, classID, year, month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payments")
	}
	byStudent := make(map[string]models.PaymentDetail, len(payments))
	pending := make([]models.PaymentDetail, 0)
	for _, p := range payments {
		byStudent[p.StudentID] = p
		if p.Status == models.PaymentStatusPending {
			pending = append(pending, p)
		}
	}

	result := &AdminMonthStatus{Students: make([]models.StudentMonthStatus, 0, len(students)), Pending: pending}
	for _, student := range students {
		enrollment, err := s.students.FindEnrollment(ctx, student.ID, classID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		counts, err := s.CalculateAttendance(ctx, student.ID, classID, year, month)
		if err != nil {
			return nil, err
		}

		entry := models.StudentMonthStatus{
			StudentID:   student.ID,
			StudentName: student.FullName,
			AdmissionNo: student.AdmissionNo,
			MonthStatus: models.MonthStatus{
				Month:       month,
				Attendance:  *counts,
				IsFreeClass: enrollment.FreeClass || class.FreeClass,
				MonthlyFee:  class.MonthlyFee,
			},
		}
		if p, ok := byStudent[student.ID]; ok {
			payment := p.Payment
			entry.Payment = &payment
		}
		entry.RequiresPayment = counts.PresentDays >= s.minPresentDays && !entry.IsFreeClass
		entry.IsOverdue = entry.RequiresPayment && entry.Payment == nil && s.isPastMonth(year, month)
		result.Students = append(result.Students, entry)
	}
	return result, nil
}

// Process records a staff decision on one request. Accepted actions are
// APPROVED and REJECTED (lowercase input is normalised).
func (s *PaymentService) Process(ctx context.Context, paymentID, actorID string, req ProcessPaymentRequest) (*models.PaymentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid process payload")
	}
	status, ok := models.ParsePaymentStatus(req.Action)
	if !ok || status == models.PaymentStatusPending {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action must be APPROVED or REJECTED")
	}
	return s.applyDecision(ctx, paymentID, actorID, status, req.Note)
}

// UpdateStatus sets any valid status on one request, including moving a
// decided request back to PENDING. It exists for the admin status endpoint
// and shares the Process semantics otherwise.
func (s *PaymentService) UpdateStatus(ctx context.Context, paymentID, actorID string, rawStatus string, note *string) (*models.PaymentDetail, error) {
	status, ok := models.ParsePaymentStatus(rawStatus)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", rawStatus))
	}
	return s.applyDecision(ctx, paymentID, actorID, status, note)
}

func (s *PaymentService) applyDecision(ctx context.Context, paymentID, actorID string, status models.PaymentStatus, note *string) (*models.PaymentDetail, error) {
	existing, err := s.loadDetail(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if err := s.payments.Process(ctx, paymentID, status, actorID, note, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to process payment")
	}

	s.cache.Invalidate(ctx, statusCacheKey(existing.StudentID, existing.ClassID, existing.Year))

	detail, err := s.loadDetail(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil && status != models.PaymentStatusPending {
		s.notifier.PaymentDecided(ctx, detail)
	}
	return detail, nil
}

// BulkProcess applies one decision to many requests in a single update.
// Current state is not verified per record; the update is atomic per row
// but not across the set.
func (s *PaymentService) BulkProcess(ctx context.Context, actorID string, req BulkProcessPaymentRequest) (*BulkProcessResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	status, ok := models.ParsePaymentStatus(req.Action)
	if !ok || status == models.PaymentStatusPending {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action must be APPROVED or REJECTED")
	}

	modified, err := s.payments.BulkProcess(ctx, req.PaymentIDs, status, actorID, req.Note, s.now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bulk process payments")
	}

	s.cache.Invalidate(ctx, "payments:status:*")
	return &BulkProcessResult{ModifiedCount: modified}, nil
}

// AdminList returns the paginated cross-class request listing.
func (s *PaymentService) AdminList(ctx context.Context, req ListPaymentsRequest) ([]models.PaymentDetail, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid filter")
	}
	var status *models.PaymentStatus
	if req.Status != nil && *req.Status != "" {
		parsed, ok := models.ParsePaymentStatus(*req.Status)
		if !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", *req.Status))
		}
		status = &parsed
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 {
		size = 50
	}
	filter := models.PaymentFilter{
		ClassID:   req.ClassID,
		StudentID: req.StudentID,
		Status:    status,
		Year:      req.Year,
		Month:     req.Month,
		Page:      page,
		PageSize:  size,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}
	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return payments, pagination, nil
}

// Delete removes one request unconditionally.
func (s *PaymentService) Delete(ctx context.Context, paymentID string) error {
	existing, err := s.loadDetail(ctx, paymentID)
	if err != nil {
		return err
	}
	if err := s.payments.Delete(ctx, paymentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete payment")
	}
	s.cache.Invalidate(ctx, statusCacheKey(existing.StudentID, existing.ClassID, existing.Year))
	return nil
}

func (s *PaymentService) loadDetail(ctx context.Context, paymentID string) (*models.PaymentDetail, error) {
	detail, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return detail, nil
}

func statusCacheKey(studentID, classID string, year int) string {
	return fmt.Sprintf("payments:status:%s:%s:%d", studentID, classID, year)
}

// ClassStatusCachePattern matches every cached derivation for a class; used
// when attendance writes change the underlying counts.
func ClassStatusCachePattern(classID string) string {
	return fmt.Sprintf("payments:status:*:%s:*", classID)
}

// monthRange returns the inclusive bounds of a calendar month, ending at
// end-of-day on the last day.
func monthRange(year, month int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0).Add(-time.Second)
	return from, to
}
