package models

import "time"

// Class represents a tuition class with its monthly fee configuration.
type Class struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Grade      string    `db:"grade" json:"grade"`
	Category   string    `db:"category" json:"category"`
	MonthlyFee int64     `db:"monthly_fee" json:"monthly_fee"`
	FreeClass  bool      `db:"free_class" json:"free_class"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with the enrolled-student count.
type ClassDetail struct {
	Class
	EnrolledCount int `db:"enrolled_count" json:"enrolled_count"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Grade     string
	Category  string
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ClassMonitor grants a student permission to record attendance for the class.
type ClassMonitor struct {
	ClassID   string    `db:"class_id" json:"class_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ClassMonitorDetail includes the monitor's display name.
type ClassMonitorDetail struct {
	ClassMonitor
	StudentName string `db:"student_name" json:"student_name"`
	AdmissionNo string `db:"admission_no" json:"admission_no"`
}
