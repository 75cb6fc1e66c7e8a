package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/classcove/tuition-api/internal/service"
	appErrors "github.com/classcove/tuition-api/pkg/errors"
	"github.com/classcove/tuition-api/pkg/response"
)

// PaymentHandler wires HTTP endpoints to the payment service.
type PaymentHandler struct {
	service *service.PaymentService
}

// NewPaymentHandler creates a new handler.
func NewPaymentHandler(svc *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

func pathInt(c *gin.Context, name string) (int, bool) {
	value, err := strconv.Atoi(c.Param(name))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, name+" must be a number"))
		return 0, false
	}
	return value, true
}

// StudentYear godoc
// @Summary 12-month derived payment status for the current student
// @Tags Payments
// @Produce json
// @Param classId path string true "Class ID"
// @Param year path int true "Year"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /payments/student/{classId}/{year} [get]
func (h *PaymentHandler) StudentYear(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.StudentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "no student profile on this account"))
		return
	}
	year, ok := pathInt(c, "year")
	if !ok {
		return
	}

	statuses, cached, err := h.service.MonthlyStatuses(c.Request.Context(), claims.StudentID, c.Param("classId"), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, statuses, nil, map[string]interface{}{"cached": cached})
}

// Submit godoc
// @Summary Submit a monthly fee payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.SubmitPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /payments/submit [post]
func (h *PaymentHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.StudentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "no student profile on this account"))
		return
	}

	var req service.SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}

	payment, err := h.service.Submit(c.Request.Context(), claims.StudentID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// UpdateOwn godoc
// @Summary Edit a pending payment submission
// @Tags Payments
// @Accept json
// @Produce json
// @Param paymentId path string true "Payment ID"
// @Param payload body service.UpdatePaymentRequest true "Payment payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments/{paymentId} [put]
func (h *PaymentHandler) UpdateOwn(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.StudentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "no student profile on this account"))
		return
	}

	var req service.UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}

	payment, err := h.service.UpdateOwn(c.Request.Context(), c.Param("paymentId"), claims.StudentID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// AdminMonth godoc
// @Summary Per-student payment status for one class month
// @Tags Payments
// @Produce json
// @Param classId path string true "Class ID"
// @Param year path int true "Year"
// @Param month path int true "Month"
// @Success 200 {object} response.Envelope
// @Router /payments/admin/{classId}/{year}/{month} [get]
func (h *PaymentHandler) AdminMonth(c *gin.Context) {
	year, ok := pathInt(c, "year")
	if !ok {
		return
	}
	month, ok := pathInt(c, "month")
	if !ok {
		return
	}

	view, err := h.service.AdminMonth(c.Request.Context(), c.Param("classId"), year, month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Process godoc
// @Summary Approve or reject one payment request
// @Tags Payments
// @Accept json
// @Produce json
// @Param paymentId path string true "Payment ID"
// @Param payload body service.ProcessPaymentRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /payments/admin/{paymentId}/process [put]
func (h *PaymentHandler) Process(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid process payload"))
		return
	}

	payment, err := h.service.Process(c.Request.Context(), c.Param("paymentId"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// BulkProcess godoc
// @Summary Apply one decision to many payment requests
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.BulkProcessPaymentRequest true "Bulk decision payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /payments/admin/bulk-process [put]
func (h *PaymentHandler) BulkProcess(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.BulkProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk payload"))
		return
	}

	result, err := h.service.BulkProcess(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AdminList godoc
// @Summary Paginated cross-class payment request listing
// @Tags Payments
// @Produce json
// @Param class_id query string false "Class"
// @Param student_id query string false "Student"
// @Param status query string false "Status"
// @Param year query int false "Year"
// @Param month query int false "Month"
// @Success 200 {object} response.Envelope
// @Router /admin/payment-requests [get]
func (h *PaymentHandler) AdminList(c *gin.Context) {
	req := service.ListPaymentsRequest{
		ClassID:   c.Query("class_id"),
		StudentID: c.Query("student_id"),
		Year:      queryInt(c, "year", 0),
		Month:     queryInt(c, "month", 0),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 50),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := c.Query("status"); raw != "" {
		req.Status = &raw
	}

	payments, pagination, err := h.service.AdminList(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// UpdateStatus godoc
// @Summary Set any valid status on a payment request
// @Tags Payments
// @Accept json
// @Produce json
// @Param paymentId path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/payment-requests/{paymentId}/status [put]
func (h *PaymentHandler) UpdateStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Status string  `json:"status" binding:"required"`
		Note   *string `json:"note"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "status is required"))
		return
	}

	payment, err := h.service.UpdateStatus(c.Request.Context(), c.Param("paymentId"), claims.UserID, payload.Status, payload.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Delete godoc
// @Summary Delete a payment request
// @Tags Payments
// @Produce json
// @Param paymentId path string true "Payment ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/payment-requests/{paymentId} [delete]
func (h *PaymentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("paymentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
