package models

import "time"

// AttendanceStatus represents the status of a per-student attendance entry.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusAbsent
}

// AttendanceSheet is one class session. Identity is (class_id, date);
// entries stay mutable until the sheet is finalized.
type AttendanceSheet struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	Date      time.Time `db:"date" json:"date"`
	TakenBy   string    `db:"taken_by" json:"taken_by"`
	Finalized bool      `db:"finalized" json:"finalized"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AttendanceEntry marks one student on one sheet. A sheet with no entry for
// an enrolled student counts the student as implicitly absent.
type AttendanceEntry struct {
	ID        string           `db:"id" json:"id"`
	SheetID   string           `db:"sheet_id" json:"sheet_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceEntryDetail includes student display fields.
type AttendanceEntryDetail struct {
	AttendanceEntry
	StudentName string `db:"student_name" json:"student_name"`
	AdmissionNo string `db:"admission_no" json:"admission_no"`
}

// MonthlyAttendance holds per-month counts for one student in one class.
type MonthlyAttendance struct {
	PresentDays    int `db:"present_days" json:"present_days"`
	TotalClassDays int `db:"total_class_days" json:"total_class_days"`
}

// AttendanceHistoryRow is one session from a student's perspective.
type AttendanceHistoryRow struct {
	Date   time.Time        `db:"date" json:"date"`
	Status AttendanceStatus `db:"status" json:"status"`
}
