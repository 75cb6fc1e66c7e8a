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
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classcove/tuition-api/internal/models"
)

func newPaymentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func paymentDetailRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "student_id", "class_id", "year", "month", "amount", "receipt_ref", "note", "status",
		"present_days", "total_class_days", "action_by", "action_date", "action_note", "created_at", "updated_at",
		"student_name", "admission_no", "class_name", "action_by_name",
	})
}

func TestPaymentRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery("INSERT INTO payments").
		WithArgs(sqlmock.AnyArg(), "s1", "c1", 2024, 3, int64(2000), "R-1", nil, models.PaymentStatusPending, 2, 3, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("pay-1"))

	payment := &models.Payment{
		StudentID: "s1", ClassID: "c1", Year: 2024, Month: 3,
		Amount: 2000, ReceiptRef: "R-1", Status: models.PaymentStatusPending,
		PresentDays: 2, TotalClassDays: 3,
	}
	err := repo.Insert(context.Background(), payment)
	require.NoError(t, err)
	assert.NotEmpty(t, payment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryInsertConflict(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	// ON CONFLICT DO NOTHING RETURNING id yields no row for the loser.
	mock.ExpectQuery("INSERT INTO payments").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	payment := &models.Payment{
		StudentID: "s1", ClassID: "c1", Year: 2024, Month: 3,
		Amount: 2000, ReceiptRef: "R-1", Status: models.PaymentStatusPending,
	}
	err := repo.Insert(context.Background(), payment)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.id = $1 LIMIT 1")).
		WithArgs("pay-1").
		WillReturnRows(paymentDetailRows().AddRow(
			"pay-1", "s1", "c1", 2024, 3, int64(2000), "R-1", nil, "PENDING",
			2, 3, nil, nil, nil, now, now,
			"Nimal Perera", "A-100", "Grade 10 English", nil,
		))

	detail, err := repo.FindByID(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, detail.Status)
	assert.Equal(t, "Nimal Perera", detail.StudentName)
	assert.Equal(t, "Grade 10 English", detail.ClassName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryFindForMonth(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 AND class_id = $2 AND year = $3 AND month = $4 LIMIT 1")).
		WithArgs("s1", "c1", 2024, 3).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "student_id", "class_id", "year", "month", "amount", "receipt_ref", "note", "status",
			"present_days", "total_class_days", "action_by", "action_date", "action_note", "created_at", "updated_at",
		}).AddRow("pay-1", "s1", "c1", 2024, 3, int64(2000), "R-1", nil, "APPROVED", 2, 3, "u-staff", now, nil, now, now))

	payment, err := repo.FindForMonth(context.Background(), "s1", "c1", 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, payment.Status)
	require.NotNil(t, payment.ActionBy)
	assert.Equal(t, "u-staff", *payment.ActionBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryFindForMonthMissing(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery("FROM payments WHERE student_id").
		WithArgs("s1", "c1", 2024, 3).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindForMonth(context.Background(), "s1", "c1", 2024, 3)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryUpdateSubmissionNotPending(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectExec("UPDATE payments SET amount").
		WithArgs("pay-1", int64(2500), "R-2", nil, models.PaymentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateSubmission(context.Background(), "pay-1", 2500, "R-2", nil)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryProcess(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	actionDate := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE payments SET status").
		WithArgs("pay-1", models.PaymentStatusApproved, "u-staff", nil, actionDate).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Process(context.Background(), "pay-1", models.PaymentStatusApproved, "u-staff", nil, actionDate)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryBulkProcess(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	actionDate := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	ids := []string{"pay-1", "pay-2"}
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ANY($1)")).
		WithArgs(pq.Array(ids), models.PaymentStatusRejected, "u-staff", nil, actionDate).
		WillReturnResult(sqlmock.NewResult(0, 2))

	modified, err := repo.BulkProcess(context.Background(), ids, models.PaymentStatusRejected, "u-staff", nil, actionDate)
	require.NoError(t, err)
	assert.Equal(t, int64(2), modified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryList(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	now := time.Now().UTC()
	status := models.PaymentStatusPending
	mock.ExpectQuery(regexp.QuoteMeta("p.class_id = $1 AND p.status = $2")).
		WithArgs("c1", status).
		WillReturnRows(paymentDetailRows().AddRow(
			"pay-1", "s1", "c1", 2024, 3, int64(2000), "R-1", nil, "PENDING",
			2, 3, nil, nil, nil, now, now,
			"Nimal Perera", "A-100", "Grade 10 English", nil,
		))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("c1", status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	payments, total, err := repo.List(context.Background(), models.PaymentFilter{ClassID: "c1", Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, payments, 1)
	assert.Equal(t, "pay-1", payments[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newPaymentMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectExec("DELETE FROM payments").
		WithArgs("pay-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "pay-404")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}
