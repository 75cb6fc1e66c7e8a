package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classcove/tuition-api/internal/middleware"
	"github.com/classcove/tuition-api/internal/models"
	"github.com/classcove/tuition-api/internal/service"
)

type fakePaymentStore struct {
	payments map[string]*models.Payment
	nextID   int
}

func (m *fakePaymentStore) Insert(ctx context.Context, payment *models.Payment) error {
	for _, p := range m.payments {
		if p.StudentID == payment.StudentID && p.ClassID == payment.ClassID && p.Year == payment.Year && p.Month == payment.Month {
			return sql.ErrNoRows
		}
	}
	m.nextID++
	payment.ID = fmt.Sprintf("pay-%d", m.nextID)
	stored := *payment
	m.payments[payment.ID] = &stored
	return nil
}

func (m *fakePaymentStore) FindByID(ctx context.Context, id string) (*models.PaymentDetail, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.PaymentDetail{Payment: *p, StudentName: "Nimal Perera", AdmissionNo: "A-100", ClassName: "Grade 10 English"}, nil
}

func (m *fakePaymentStore) ListForYear(ctx context.Context, studentID, classID string, year int) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range m.payments {
		if p.StudentID == studentID && p.ClassID == classID && p.Year == year {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *fakePaymentStore) ListForClassMonth(ctx context.Context, classID string, year, month int) ([]models.PaymentDetail, error) {
	return nil, nil
}

func (m *fakePaymentStore) UpdateSubmission(ctx context.Context, id string, amount int64, receiptRef string, note *string) error {
	p, ok := m.payments[id]
	if !ok || p.Status != models.PaymentStatusPending {
		return sql.ErrNoRows
	}
	p.Amount = amount
	p.ReceiptRef = receiptRef
	p.Note = note
	return nil
}

func (m *fakePaymentStore) Process(ctx context.Context, id string, status models.PaymentStatus, actionBy string, actionNote *string, actionDate time.Time) error {
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

func (m *fakePaymentStore) BulkProcess(ctx context.Context, ids []string, status models.PaymentStatus, actionBy string, actionNote *string, actionDate time.Time) (int64, error) {
	var modified int64
	for _, id := range ids {
		if p, ok := m.payments[id]; ok {
			p.Status = status
			modified++
		}
	}
	return modified, nil
}

func (m *fakePaymentStore) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error) {
	var out []models.PaymentDetail
	for _, p := range m.payments {
		out = append(out, models.PaymentDetail{Payment: *p})
	}
	return out, len(out), nil
}

func (m *fakePaymentStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.payments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.payments, id)
	return nil
}

type fakeAttendanceStore struct{}

func (m *fakeAttendanceStore) MonthlyCounts(ctx context.Context, studentID, classID string, from, to time.Time) (*models.MonthlyAttendance, error) {
	return &models.MonthlyAttendance{PresentDays: 2, TotalClassDays: 3}, nil
}

type fakeClassStore struct{}

func (m *fakeClassStore) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if id != "c1" {
		return nil, sql.ErrNoRows
	}
	return &models.Class{ID: "c1", Name: "Grade 10 English", MonthlyFee: 2000, Active: true}, nil
}

func (m *fakeClassStore) EnrolledStudents(ctx context.Context, classID string) ([]models.StudentDetail, error) {
	return []models.StudentDetail{{Student: models.Student{ID: "s1", FullName: "Nimal Perera", AdmissionNo: "A-100"}}}, nil
}

type fakeStudentStore struct{}

func (m *fakeStudentStore) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	return &models.StudentDetail{Student: models.Student{ID: id, FullName: "Nimal Perera", AdmissionNo: "A-100"}}, nil
}

func (m *fakeStudentStore) FindEnrollment(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	if studentID != "s1" || classID != "c1" {
		return nil, sql.ErrNoRows
	}
	return &models.Enrollment{ID: "e1", StudentID: "s1", ClassID: "c1"}, nil
}

func withClaims(claims *models.JWTClaims) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, claims)
		c.Next()
	}
}

func newPaymentTestRouter(t *testing.T, claims *models.JWTClaims) (*gin.Engine, *fakePaymentStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &fakePaymentStore{payments: make(map[string]*models.Payment)}
	cache := service.NewCacheService(nil, nil, 0, zap.NewNop(), false)
	svc := service.NewPaymentService(store, &fakeAttendanceStore{}, &fakeClassStore{}, &fakeStudentStore{}, cache, nil, nil, validator.New(), zap.NewNop(), 2)
	h := NewPaymentHandler(svc)

	r := gin.New()
	r.Use(withClaims(claims))
	r.GET("/payments/student/:classId/:year", h.StudentYear)
	r.POST("/payments/submit", h.Submit)
	r.PUT("/payments/:paymentId", h.UpdateOwn)
	r.GET("/payments/admin/:classId/:year/:month", h.AdminMonth)
	r.PUT("/payments/admin/:paymentId/process", h.Process)
	r.PUT("/admin/payment-requests/:paymentId/status", h.UpdateStatus)
	return r, store
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "u-s1", Role: models.RoleStudent, StudentID: "s1"}
}

func staffClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "u-staff", Role: models.RoleStaff}
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPaymentHandlerStudentYear(t *testing.T) {
	r, _ := newPaymentTestRouter(t, studentClaims())

	w := doJSON(r, http.MethodGet, "/payments/student/c1/2024", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []models.MonthStatus   `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 12)
	assert.Equal(t, false, envelope.Meta["cached"])
	assert.True(t, envelope.Data[0].RequiresPayment)
}

func TestPaymentHandlerStudentYearNoProfile(t *testing.T) {
	r, _ := newPaymentTestRouter(t, staffClaims())

	w := doJSON(r, http.MethodGet, "/payments/student/c1/2024", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPaymentHandlerStudentYearBadYear(t *testing.T) {
	r, _ := newPaymentTestRouter(t, studentClaims())

	w := doJSON(r, http.MethodGet, "/payments/student/c1/notayear", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentHandlerSubmitAndDuplicate(t *testing.T) {
	r, _ := newPaymentTestRouter(t, studentClaims())

	payload := map[string]interface{}{
		"class_id": "c1", "year": 2024, "month": 3, "amount": 2000, "receipt_ref": "R-1",
	}
	w := doJSON(r, http.MethodPost, "/payments/submit", payload)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data models.PaymentDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, models.PaymentStatusPending, created.Data.Status)
	assert.Equal(t, 2, created.Data.PresentDays)

	w = doJSON(r, http.MethodPost, "/payments/submit", payload)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var failed struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failed))
	assert.Equal(t, "PAYMENT_EXISTS", failed.Error.Code)
}

func TestPaymentHandlerSubmitInvalidPayload(t *testing.T) {
	r, _ := newPaymentTestRouter(t, studentClaims())

	w := doJSON(r, http.MethodPost, "/payments/submit", map[string]interface{}{"class_id": "c1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentHandlerProcess(t *testing.T) {
	r, store := newPaymentTestRouter(t, staffClaims())
	store.payments["pay-1"] = &models.Payment{
		ID: "pay-1", StudentID: "s1", ClassID: "c1", Year: 2024, Month: 3,
		Amount: 2000, ReceiptRef: "R-1", Status: models.PaymentStatusPending,
	}

	w := doJSON(r, http.MethodPut, "/payments/admin/pay-1/process", map[string]interface{}{"action": "approved"})
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.PaymentDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, models.PaymentStatusApproved, envelope.Data.Status)
	require.NotNil(t, envelope.Data.ActionBy)
	assert.Equal(t, "u-staff", *envelope.Data.ActionBy)
}

func TestPaymentHandlerProcessUnknownAction(t *testing.T) {
	r, store := newPaymentTestRouter(t, staffClaims())
	store.payments["pay-1"] = &models.Payment{
		ID: "pay-1", StudentID: "s1", ClassID: "c1", Year: 2024, Month: 3,
		Status: models.PaymentStatusPending,
	}

	w := doJSON(r, http.MethodPut, "/payments/admin/pay-1/process", map[string]interface{}{"action": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentHandlerAdminMonth(t *testing.T) {
	r, _ := newPaymentTestRouter(t, staffClaims())

	w := doJSON(r, http.MethodGet, "/payments/admin/c1/2024/3", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data service.AdminMonthStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Students, 1)
	assert.Equal(t, "s1", envelope.Data.Students[0].StudentID)
}

func TestPaymentHandlerUpdateStatusReopens(t *testing.T) {
	r, store := newPaymentTestRouter(t, staffClaims())
	actionBy := "u-staff"
	store.payments["pay-1"] = &models.Payment{
		ID: "pay-1", StudentID: "s1", ClassID: "c1", Year: 2024, Month: 3,
		Status: models.PaymentStatusApproved, ActionBy: &actionBy,
	}

	w := doJSON(r, http.MethodPut, "/admin/payment-requests/pay-1/status", map[string]interface{}{"status": "pending"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PaymentStatusPending, store.payments["pay-1"].Status)
}
