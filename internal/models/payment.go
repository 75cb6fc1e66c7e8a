package models

import (
	"strings"
	"time"
)

// PaymentStatus is the single canonical vocabulary for the payment request
// state machine: PENDING -> APPROVED | REJECTED.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusApproved PaymentStatus = "APPROVED"
	PaymentStatusRejected PaymentStatus = "REJECTED"
)

// Valid returns true when the status is a supported value.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusApproved, PaymentStatusRejected:
		return true
	default:
		return false
	}
}

// ParsePaymentStatus normalises legacy lowercase input to the canonical form.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	status := PaymentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// Payment is a student's fee submission for one (class, year, month).
// At most one row exists per tuple, enforced by a unique index.
type Payment struct {
	ID         string        `db:"id" json:"id"`
	StudentID  string        `db:"student_id" json:"student_id"`
	ClassID    string        `db:"class_id" json:"class_id"`
	Year       int           `db:"year" json:"year"`
	Month      int           `db:"month" json:"month"`
	Amount     int64         `db:"amount" json:"amount"`
	ReceiptRef string        `db:"receipt_ref" json:"receipt_ref"`
	Note       *string       `db:"note" json:"note,omitempty"`
	Status     PaymentStatus `db:"status" json:"status"`

	// Attendance snapshot captured at submission time, kept for audit.
	PresentDays    int `db:"present_days" json:"present_days"`
	TotalClassDays int `db:"total_class_days" json:"total_class_days"`

	// Staff decision audit fields.
	ActionBy   *string    `db:"action_by" json:"action_by,omitempty"`
	ActionDate *time.Time `db:"action_date" json:"action_date,omitempty"`
	ActionNote *string    `db:"action_note" json:"action_note,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PaymentDetail joins student and class display fields onto a payment.
type PaymentDetail struct {
	Payment
	StudentName  string  `db:"student_name" json:"student_name"`
	AdmissionNo  string  `db:"admission_no" json:"admission_no"`
	ClassName    string  `db:"class_name" json:"class_name"`
	ActionByName *string `db:"action_by_name" json:"action_by_name,omitempty"`
}

// PaymentFilter scopes the admin payment-request listing.
type PaymentFilter struct {
	ClassID   string
	StudentID string
	Status    *PaymentStatus
	Year      int
	Month     int
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// MonthStatus is the derived per-month payment position for one student in
// one class. It is recomputed on every read and never stored.
type MonthStatus struct {
	Month           int               `json:"month"`
	Attendance      MonthlyAttendance `json:"attendance"`
	IsFreeClass     bool              `json:"is_free_class"`
	MonthlyFee      int64             `json:"monthly_fee"`
	Payment         *Payment          `json:"payment"`
	RequiresPayment bool              `json:"requires_payment"`
	IsOverdue       bool              `json:"is_overdue"`
}

// StudentMonthStatus is the admin view of one student's month.
type StudentMonthStatus struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	AdmissionNo string `json:"admission_no"`
	MonthStatus
}
