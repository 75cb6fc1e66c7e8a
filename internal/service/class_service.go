package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classcove/tuition-api/internal/models"
	appErrors "github.com/classcove/tuition-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Deactivate(ctx context.Context, id string) error
	EnrolledStudents(ctx context.Context, classID string) ([]models.StudentDetail, error)
	Monitors(ctx context.Context, classID string) ([]models.ClassMonitorDetail, error)
	AddMonitor(ctx context.Context, classID, studentID string) error
	RemoveMonitor(ctx context.Context, classID, studentID string) error
}

type classStudentRepository interface {
	FindEnrollment(ctx context.Context, studentID, classID string) (*models.Enrollment, error)
}

// ClassService manages classes, their fee configuration and monitors.
type ClassService struct {
	classes   classRepository
	students  classStudentRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs the class service.
func NewClassService(classes classRepository, students classStudentRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{classes: classes, students: students, cache: cache, validator: validate, logger: logger}
}

// ClassRequest carries class create and update payloads.
type ClassRequest struct {
	Name       string `json:"name" validate:"required"`
	Grade      string `json:"grade" validate:"required"`
	Category   string `json:"category"`
	MonthlyFee int64  `json:"monthly_fee" validate:"min=0"`
	FreeClass  bool   `json:"free_class"`
	Active     *bool  `json:"active"`
}

// List returns classes matching the filter.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	classes, total, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one class.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create inserts a new class.
func (s *ClassService) Create(ctx context.Context, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class := &models.Class{
		Name:       req.Name,
		Grade:      req.Grade,
		Category:   req.Category,
		MonthlyFee: req.MonthlyFee,
		FreeClass:  req.FreeClass,
		Active:     true,
	}
	if req.Active != nil {
		class.Active = *req.Active
	}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Update persists class edits. Fee or exemption changes invalidate every
// cached derivation for the class.
func (s *ClassService) Update(ctx context.Context, id string, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	feeChanged := class.MonthlyFee != req.MonthlyFee || class.FreeClass != req.FreeClass

	class.Name = req.Name
	class.Grade = req.Grade
	class.Category = req.Category
	class.MonthlyFee = req.MonthlyFee
	class.FreeClass = req.FreeClass
	if req.Active != nil {
		class.Active = *req.Active
	}
	if err := s.classes.Update(ctx, class); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	if feeChanged {
		s.cache.Invalidate(ctx, ClassStatusCachePattern(id))
	}
	return class, nil
}

// Deactivate soft-disables a class.
func (s *ClassService) Deactivate(ctx context.Context, id string) error {
	if err := s.classes.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate class")
	}
	return nil
}

// EnrolledStudents lists a class's students.
func (s *ClassService) EnrolledStudents(ctx context.Context, classID string) ([]models.StudentDetail, error) {
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	students, err := s.classes.EnrolledStudents(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled students")
	}
	return students, nil
}

// Monitors lists a class's attendance monitors.
func (s *ClassService) Monitors(ctx context.Context, classID string) ([]models.ClassMonitorDetail, error) {
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	monitors, err := s.classes.Monitors(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list monitors")
	}
	return monitors, nil
}

// AddMonitor grants a student attendance-taking permission for the class.
// The student must be enrolled.
func (s *ClassService) AddMonitor(ctx context.Context, classID, studentID string) error {
	if _, err := s.students.FindEnrollment(ctx, studentID, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "monitor must be enrolled in the class")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.classes.AddMonitor(ctx, classID, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add monitor")
	}
	return nil
}

// RemoveMonitor revokes a student's monitor permission.
func (s *ClassService) RemoveMonitor(ctx context.Context, classID, studentID string) error {
	if err := s.classes.RemoveMonitor(ctx, classID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "monitor not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove monitor")
	}
	return nil
}
