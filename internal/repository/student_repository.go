package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classcove/tuition-api/internal/models"
)

// StudentRepository manages persistence for students and enrollments.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a new student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching filter criteria with a total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := `FROM students s JOIN users u ON u.id = s.user_id`
	where := []string{"1=1"}
	var args []interface{}

	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(LOWER(s.full_name) LIKE $%d OR LOWER(s.admission_no) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Grade != "" {
		where = append(where, fmt.Sprintf("s.grade = $%d", len(args)+1))
		args = append(args, filter.Grade)
	}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("EXISTS (SELECT 1 FROM enrollments e WHERE e.student_id = s.id AND e.class_id = $%d)", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Approved != nil {
		where = append(where, fmt.Sprintf("s.approved = $%d", len(args)+1))
		args = append(args, *filter.Approved)
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	whereClause := strings.Join(where, " AND ")

	sortBy := filter.SortBy
	allowedSort := map[string]string{
		"full_name":    "s.full_name",
		"admission_no": "s.admission_no",
		"grade":        "s.grade",
		"created_at":   "s.created_at",
	}
	sortColumn, ok := allowedSort[sortBy]
	if !ok {
		sortColumn = "s.created_at"
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
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.user_id, s.admission_no, s.full_name, s.grade, s.guardian_name, s.guardian_phone, s.approved, s.active, s.created_at, s.updated_at,
        u.email, u.phone
        %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID returns a student with account contact fields.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	const query = `SELECT s.id, s.user_id, s.admission_no, s.full_name, s.grade, s.guardian_name, s.guardian_phone, s.approved, s.active, s.created_at, s.updated_at,
        u.email, u.phone
        FROM students s JOIN users u ON u.id = s.user_id WHERE s.id = $1 LIMIT 1`
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by id: %w", err)
	}
	return &student, nil
}

// FindByUserID resolves the student profile behind a portal account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	const query = `SELECT id, user_id, admission_no, full_name, grade, guardian_name, guardian_phone, approved, active, created_at, updated_at FROM students WHERE user_id = $1 LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student by user id: %w", err)
	}
	return &student, nil
}

// Create inserts a new student profile.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, user_id, admission_no, full_name, grade, guardian_name, guardian_phone, approved, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.db.ExecContext(ctx, query, student.ID, student.UserID, student.AdmissionNo, student.FullName, student.Grade, student.GuardianName, student.GuardianPhone, student.Approved, student.Active, student.CreatedAt, student.UpdatedAt); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update persists mutable student fields.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET admission_no = $2, full_name = $3, grade = $4, guardian_name = $5, guardian_phone = $6, approved = $7, active = $8, updated_at = $9 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, student.ID, student.AdmissionNo, student.FullName, student.Grade, student.GuardianName, student.GuardianPhone, student.Approved, student.Active, student.UpdatedAt); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// ExistsByAdmissionNo checks admission number uniqueness.
func (r *StudentRepository) ExistsByAdmissionNo(ctx context.Context, admissionNo, excludeID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM students WHERE admission_no = $1 AND ($2 = '' OR id <> $2)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, admissionNo, excludeID); err != nil {
		return false, fmt.Errorf("check admission no: %w", err)
	}
	return count > 0, nil
}

// Enroll adds a student to a class. Duplicate memberships are rejected by
// the unique (student_id, class_id) index and reported as sql.ErrNoRows.
func (r *StudentRepository) Enroll(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.JoinedAt.IsZero() {
		enrollment.JoinedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (id, student_id, class_id, free_class, joined_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (student_id, class_id) DO NOTHING
RETURNING id`
	var insertedID string
	if err := r.db.QueryRowxContext(ctx, query, enrollment.ID, enrollment.StudentID, enrollment.ClassID, enrollment.FreeClass, enrollment.JoinedAt).Scan(&insertedID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("enroll student: %w", err)
	}
	return nil
}

// Unenroll removes a student from a class.
func (r *StudentRepository) Unenroll(ctx context.Context, studentID, classID string) error {
	const query = `DELETE FROM enrollments WHERE student_id = $1 AND class_id = $2`
	res, err := r.db.ExecContext(ctx, query, studentID, classID)
	if err != nil {
		return fmt.Errorf("unenroll student: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Enrollments lists a student's class memberships with class display fields.
func (r *StudentRepository) Enrollments(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.free_class, e.joined_at,
        c.name AS class_name, c.grade AS class_grade, c.monthly_fee
        FROM enrollments e JOIN classes c ON c.id = e.class_id
        WHERE e.student_id = $1 ORDER BY e.joined_at DESC`
	var rows []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return rows, nil
}

// FindEnrollment returns the membership row for a student/class pair.
func (r *StudentRepository) FindEnrollment(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, free_class, joined_at FROM enrollments WHERE student_id = $1 AND class_id = $2 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// SetFreeClass toggles the per-membership fee exemption.
func (r *StudentRepository) SetFreeClass(ctx context.Context, studentID, classID string, freeClass bool) error {
	const query = `UPDATE enrollments SET free_class = $3 WHERE student_id = $1 AND class_id = $2`
	res, err := r.db.ExecContext(ctx, query, studentID, classID, freeClass)
	if err != nil {
		return fmt.Errorf("set free class: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
