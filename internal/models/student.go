package models

import "time"

// Student represents a learner registered at the institute.
type Student struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	AdmissionNo   string    `db:"admission_no" json:"admission_no"`
	FullName      string    `db:"full_name" json:"full_name"`
	Grade         string    `db:"grade" json:"grade"`
	GuardianName  string    `db:"guardian_name" json:"guardian_name"`
	GuardianPhone string    `db:"guardian_phone" json:"guardian_phone"`
	Approved      bool      `db:"approved" json:"approved"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail enriches a student with account contact fields.
type StudentDetail struct {
	Student
	Email string `db:"email" json:"email"`
	Phone string `db:"phone" json:"phone"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Grade     string
	ClassID   string
	Approved  *bool
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Enrollment is a student's membership in a class. FreeClass exempts this
// student from the class fee without marking the whole class free.
type Enrollment struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	FreeClass bool      `db:"free_class" json:"free_class"`
	JoinedAt  time.Time `db:"joined_at" json:"joined_at"`
}

// EnrollmentDetail includes class display fields for listings.
type EnrollmentDetail struct {
	Enrollment
	ClassName  string `db:"class_name" json:"class_name"`
	ClassGrade string `db:"class_grade" json:"class_grade"`
	MonthlyFee int64  `db:"monthly_fee" json:"monthly_fee"`
}
