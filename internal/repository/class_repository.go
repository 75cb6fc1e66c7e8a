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

// ClassRepository manages persistence for classes and class monitors.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes matching filter criteria.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	base := "FROM classes c WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Grade != "" {
		conditions = append(conditions, fmt.Sprintf("c.grade = $%d", len(args)+1))
		args = append(args, filter.Grade)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("c.category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.name) LIKE $%d)", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("c.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":        true,
		"grade":       true,
		"category":    true,
		"monthly_fee": true,
		"created_at":  true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
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

	query := fmt.Sprintf(`SELECT c.id, c.name, c.grade, c.category, c.monthly_fee, c.free_class, c.active, c.created_at, c.updated_at,
        (SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id) AS enrolled_count
        %s ORDER BY c.%s %s LIMIT %d OFFSET %d`, base, sortBy, order, size, offset)
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns one class.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, grade, category, monthly_fee, free_class, active, created_at, updated_at FROM classes WHERE id = $1 LIMIT 1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find class by id: %w", err)
	}
	return &class, nil
}

// Create inserts a new class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	now := time.Now().UTC()
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	class.CreatedAt = now
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, grade, category, monthly_fee, free_class, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, class.ID, class.Name, class.Grade, class.Category, class.MonthlyFee, class.FreeClass, class.Active, class.CreatedAt, class.UpdatedAt); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update persists mutable class fields.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = $2, grade = $3, category = $4, monthly_fee = $5, free_class = $6, active = $7, updated_at = $8 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, class.ID, class.Name, class.Grade, class.Category, class.MonthlyFee, class.FreeClass, class.Active, class.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Deactivate soft-disables a class without touching its history.
func (r *ClassRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE classes SET active = FALSE, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate class: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// EnrolledStudents lists the students currently enrolled in a class.
func (r *ClassRepository) EnrolledStudents(ctx context.Context, classID string) ([]models.StudentDetail, error) {
	const query = `SELECT s.id, s.user_id, s.admission_no, s.full_name, s.grade, s.guardian_name, s.guardian_phone, s.approved, s.active, s.created_at, s.updated_at,
        u.email, u.phone
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN users u ON u.id = s.user_id
        WHERE e.class_id = $1 ORDER BY s.full_name ASC`
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return students, nil
}

// Monitors lists the students allowed to take attendance for a class.
func (r *ClassRepository) Monitors(ctx context.Context, classID string) ([]models.ClassMonitorDetail, error) {
	const query = `SELECT m.class_id, m.student_id, m.created_at, s.full_name AS student_name, s.admission_no
        FROM class_monitors m JOIN students s ON s.id = m.student_id
        WHERE m.class_id = $1 ORDER BY s.full_name ASC`
	var monitors []models.ClassMonitorDetail
	if err := r.db.SelectContext(ctx, &monitors, query, classID); err != nil {
		return nil, fmt.Errorf("list class monitors: %w", err)
	}
	return monitors, nil
}

// AddMonitor grants monitor permission; duplicates are ignored.
func (r *ClassRepository) AddMonitor(ctx context.Context, classID, studentID string) error {
	const query = `INSERT INTO class_monitors (class_id, student_id, created_at) VALUES ($1, $2, NOW())
ON CONFLICT (class_id, student_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, classID, studentID); err != nil {
		return fmt.Errorf("add class monitor: %w", err)
	}
	return nil
}

// RemoveMonitor revokes monitor permission.
func (r *ClassRepository) RemoveMonitor(ctx context.Context, classID, studentID string) error {
	const query = `DELETE FROM class_monitors WHERE class_id = $1 AND student_id = $2`
	res, err := r.db.ExecContext(ctx, query, classID, studentID)
	if err != nil {
		return fmt.Errorf("remove class monitor: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsMonitor reports whether the student may take attendance for the class.
func (r *ClassRepository) IsMonitor(ctx context.Context, classID, studentID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM class_monitors WHERE class_id = $1 AND student_id = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, classID, studentID); err != nil {
		return false, fmt.Errorf("check class monitor: %w", err)
	}
	return count > 0, nil
}
