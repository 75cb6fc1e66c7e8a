package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classcove/tuition-api/internal/service"
	appErrors "github.com/classcove/tuition-api/pkg/errors"
	"github.com/classcove/tuition-api/pkg/response"
)

// AttendanceHandler wires HTTP endpoints to the attendance service.
type AttendanceHandler struct {
	service *service.AttendanceService
}

// NewAttendanceHandler creates a new handler.
func NewAttendanceHandler(svc *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// CreateSheet godoc
// @Summary Open an attendance sheet for a class session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.CreateSheetRequest true "Sheet payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/sheets [post]
func (h *AttendanceHandler) CreateSheet(c *gin.Context) {
	var req service.CreateSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sheet payload"))
		return
	}

	sheet, err := h.service.CreateSheet(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sheet)
}

// GetSheet godoc
// @Summary Get a sheet with its marks
// @Tags Attendance
// @Produce json
// @Param sheetId path string true "Sheet ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/sheets/{sheetId} [get]
func (h *AttendanceHandler) GetSheet(c *gin.Context) {
	sheet, err := h.service.GetSheet(c.Request.Context(), c.Param("sheetId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// SheetsForMonth godoc
// @Summary List a class's sheets for one month
// @Tags Attendance
// @Produce json
// @Param classId path string true "Class ID"
// @Param year query int true "Year"
// @Param month query int true "Month"
// @Success 200 {object} response.Envelope
// @Router /attendance/classes/{classId}/sheets [get]
func (h *AttendanceHandler) SheetsForMonth(c *gin.Context) {
	now := time.Now()
	year := queryInt(c, "year", now.Year())
	month := queryInt(c, "month", int(now.Month()))

	sheets, err := h.service.SheetsForMonth(c.Request.Context(), c.Param("classId"), year, month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheets, nil)
}

// Mark godoc
// @Summary Record one student's mark on a sheet
// @Tags Attendance
// @Accept json
// @Produce json
// @Param sheetId path string true "Sheet ID"
// @Param payload body service.MarkEntryRequest true "Mark payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/sheets/{sheetId}/entries [put]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid mark payload"))
		return
	}

	entry, err := h.service.Mark(c.Request.Context(), actorFromContext(c), c.Param("sheetId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// BulkMark godoc
// @Summary Record many marks on a sheet
// @Tags Attendance
// @Accept json
// @Produce json
// @Param sheetId path string true "Sheet ID"
// @Param payload body service.BulkMarkRequest true "Marks payload"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/sheets/{sheetId}/entries/bulk [put]
func (h *AttendanceHandler) BulkMark(c *gin.Context) {
	var req service.BulkMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk mark payload"))
		return
	}

	if err := h.service.BulkMark(c.Request.Context(), actorFromContext(c), c.Param("sheetId"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Finalize godoc
// @Summary Lock a sheet against further edits
// @Tags Attendance
// @Produce json
// @Param sheetId path string true "Sheet ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/sheets/{sheetId}/finalize [post]
func (h *AttendanceHandler) Finalize(c *gin.Context) {
	if err := h.service.Finalize(c.Request.Context(), actorFromContext(c), c.Param("sheetId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentHistory godoc
// @Summary A student's session history for one class
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param classId path string true "Class ID"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/students/{studentId}/classes/{classId} [get]
func (h *AttendanceHandler) StudentHistory(c *gin.Context) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be YYYY-MM-DD"))
			return
		}
		from = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be YYYY-MM-DD"))
			return
		}
		to = &parsed
	}

	rows, err := h.service.StudentHistory(c.Request.Context(), c.Param("studentId"), c.Param("classId"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
