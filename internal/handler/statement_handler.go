package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classcove/tuition-api/internal/service"
	"github.com/classcove/tuition-api/pkg/response"
)

// StatementHandler serves PDF payment statements.
type StatementHandler struct {
	service *service.StatementService
}

// NewStatementHandler creates a new handler.
func NewStatementHandler(svc *service.StatementService) *StatementHandler {
	return &StatementHandler{service: svc}
}

// StudentYear godoc
// @Summary Yearly payment statement for one student in one class
// @Tags Statements
// @Produce application/pdf
// @Param studentId path string true "Student ID"
// @Param classId path string true "Class ID"
// @Param year path int true "Year"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /statements/students/{studentId}/classes/{classId}/{year} [get]
func (h *StatementHandler) StudentYear(c *gin.Context) {
	year, ok := pathInt(c, "year")
	if !ok {
		return
	}

	pdf, filename, err := h.service.YearlyStatement(c.Request.Context(), c.Param("studentId"), c.Param("classId"), year)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// ClassMonth godoc
// @Summary Month statement for one class
// @Tags Statements
// @Produce application/pdf
// @Param classId path string true "Class ID"
// @Param year path int true "Year"
// @Param month path int true "Month"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /statements/classes/{classId}/{year}/{month} [get]
func (h *StatementHandler) ClassMonth(c *gin.Context) {
	year, ok := pathInt(c, "year")
	if !ok {
		return
	}
	month, ok := pathInt(c, "month")
	if !ok {
		return
	}

	pdf, filename, err := h.service.ClassMonthStatement(c.Request.Context(), c.Param("classId"), year, month)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
