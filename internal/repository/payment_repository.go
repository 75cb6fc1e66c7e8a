package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/classcove/tuition-api/internal/models"
)

const paymentDetailColumns = `p.id, p.student_id, p.class_id, p.year, p.month, p.amount, p.receipt_ref, p.note, p.status,
        p.present_days, p.total_class_days, p.action_by, p.action_date, p.action_note, p.created_at, p.updated_at,
        s.full_name AS student_name, s.admission_no, c.name AS class_name, u.full_name AS action_by_name`

const paymentDetailJoins = `FROM payments p
JOIN students s ON s.id = p.student_id
JOIN classes c ON c.id = p.class_id
LEFT JOIN users u ON u.id = p.action_by`

// PaymentRepository handles persistence for fee payment requests.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Insert stores a new payment request. The unique index on
// (student_id, class_id, year, month) makes the insert race-free: a
// concurrent duplicate loses the conflict and surfaces as sql.ErrNoRows.
func (r *PaymentRepository) Insert(ctx context.Context, payment *models.Payment) error {
	now := time.Now().UTC()
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.CreatedAt = now
	payment.UpdatedAt = now
	const query = `INSERT INTO payments (id, student_id, class_id, year, month, amount, receipt_ref, note, status, present_days, total_class_days, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (student_id, class_id, year, month) DO NOTHING
RETURNING id`
	var insertedID string
	if err := r.db.QueryRowxContext(ctx, query, payment.ID, payment.StudentID, payment.ClassID, payment.Year, payment.Month, payment.Amount, payment.ReceiptRef, payment.Note, payment.Status, payment.PresentDays, payment.TotalClassDays, payment.CreatedAt, payment.UpdatedAt).Scan(&insertedID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// FindByID returns a payment with populated student and class fields.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.PaymentDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE p.id = $1 LIMIT 1`, paymentDetailColumns, paymentDetailJoins)
	var payment models.PaymentDetail
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find payment by id: %w", err)
	}
	return &payment, nil
}

// FindForMonth returns the payment for one (student, class, year, month).
func (r *PaymentRepository) FindForMonth(ctx context.Context, studentID, classID string, year, month int) (*models.Payment, error) {
	const query = `SELECT id, student_id, class_id, year, month, amount, receipt_ref, note, status, present_days, total_class_days, action_by, action_date, action_note, created_at, updated_at
FROM payments WHERE student_id = $1 AND class_id = $2 AND year = $3 AND month = $4 LIMIT 1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, studentID, classID, year, month); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find payment for month: %w", err)
	}
	return &payment, nil
}

// ListForYear returns all of a student's payments for a class in one year.
func (r *PaymentRepository) ListForYear(ctx context.Context, studentID, classID string, year int) ([]models.Payment, error) {
	const query = `SELECT id, student_id, class_id, year, month, amount, receipt_ref, note, status, present_days, total_class_days, action_by, action_date, action_note, created_at, updated_at
FROM payments WHERE student_id = $1 AND class_id = $2 AND year = $3 ORDER BY month ASC`
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, studentID, classID, year); err != nil {
		return nil, fmt.Errorf("list payments for year: %w", err)
	}
	return payments, nil
}

// ListForClassMonth returns populated payments for one class month.
func (r *PaymentRepository) ListForClassMonth(ctx context.Context, classID string, year, month int) ([]models.PaymentDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE p.class_id = $1 AND p.year = $2 AND p.month = $3 ORDER BY s.full_name ASC`, paymentDetailColumns, paymentDetailJoins)
	var payments []models.PaymentDetail
	if err := r.db.SelectContext(ctx, &payments, query, classID, year, month); err != nil {
		return nil, fmt.Errorf("list payments for class month: %w", err)
	}
	return payments, nil
}

// UpdateSubmission replaces the owner-editable fields while the request is
// still pending. Zero rows affected means the payment was not pending.
func (r *PaymentRepository) UpdateSubmission(ctx context.Context, id string, amount int64, receiptRef string, note *string) error {
	const query = `UPDATE payments SET amount = $2, receipt_ref = $3, note = $4, updated_at = NOW()
WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, amount, receiptRef, note, models.PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("update payment submission: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Process records a staff decision on one payment. Re-processing an already
// decided request is allowed; the latest decision wins.
func (r *PaymentRepository) Process(ctx context.Context, id string, status models.PaymentStatus, actionBy string, actionNote *string, actionDate time.Time) error {
	const query = `UPDATE payments SET status = $2, action_by = $3, action_note = $4, action_date = $5, updated_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, actionBy, actionNote, actionDate)
	if err != nil {
		return fmt.Errorf("process payment: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// BulkProcess applies one decision to many payments in a single statement
// and reports how many rows changed. The update is atomic per row, not
// across the set.
func (r *PaymentRepository) BulkProcess(ctx context.Context, ids []string, status models.PaymentStatus, actionBy string, actionNote *string, actionDate time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE payments SET status = $2, action_by = $3, action_note = $4, action_date = $5, updated_at = $5 WHERE id = ANY($1)`
	res, err := r.db.ExecContext(ctx, query, pq.Array(ids), status, actionBy, actionNote, actionDate)
	if err != nil {
		return 0, fmt.Errorf("bulk process payments: %w", err)
	}
	modified, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk process payments: %w", err)
	}
	return modified, nil
}

// List returns populated payments across classes with a total count.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error) {
	where := []string{"1=1"}
	var args []interface{}

	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("p.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("p.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Year > 0 {
		where = append(where, fmt.Sprintf("p.year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Month > 0 {
		where = append(where, fmt.Sprintf("p.month = $%d", len(args)+1))
		args = append(args, filter.Month)
	}
	whereClause := strings.Join(where, " AND ")

	sortBy := filter.SortBy
	allowedSort := map[string]string{
		"created_at":  "p.created_at",
		"action_date": "p.action_date",
		"amount":      "p.amount",
		"status":      "p.status",
	}
	sortColumn, ok := allowedSort[sortBy]
	if !ok {
		sortColumn = "p.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		paymentDetailColumns, paymentDetailJoins, whereClause, sortColumn, order, size, offset)
	var payments []models.PaymentDetail
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", paymentDetailJoins, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// Delete removes one payment unconditionally.
func (r *PaymentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM payments WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
