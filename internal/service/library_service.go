package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classcove/tuition-api/internal/models"
	appErrors "github.com/classcove/tuition-api/pkg/errors"
)

type libraryRepository interface {
	ListFolders(ctx context.Context, category, search string) ([]models.LibraryFolderDetail, error)
	FindFolder(ctx context.Context, id string) (*models.LibraryFolder, error)
	CreateFolder(ctx context.Context, folder *models.LibraryFolder) error
	UpdateFolder(ctx context.Context, folder *models.LibraryFolder) error
	DeleteFolder(ctx context.Context, id string) error
	ListFiles(ctx context.Context, folderID string) ([]models.LibraryFile, error)
	FindFile(ctx context.Context, id string) (*models.LibraryFile, error)
	CreateFile(ctx context.Context, file *models.LibraryFile) error
	UpdateFile(ctx context.Context, file *models.LibraryFile) error
	DeleteFile(ctx context.Context, id string) error
}

// LibraryService serves the content library. One folder/file surface handles
// every configured category; the category is request data, not code.
type LibraryService struct {
	library    libraryRepository
	categories map[string]bool
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewLibraryService constructs the library service.
func NewLibraryService(library libraryRepository, categories []string, validate *validator.Validate, logger *zap.Logger) *LibraryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(categories))
	for _, category := range categories {
		allowed[category] = true
	}
	return &LibraryService{library: library, categories: allowed, validator: validate, logger: logger}
}

// FolderRequest carries folder create and update payloads.
type FolderRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// FileRequest carries file create and update payloads.
type FileRequest struct {
	Title    string `json:"title" validate:"required"`
	FileURL  string `json:"file_url" validate:"required,url"`
	MimeType string `json:"mime_type"`
}

// Categories returns the configured category slugs.
func (s *LibraryService) Categories() []string {
	out := make([]string, 0, len(s.categories))
	for category := range s.categories {
		out = append(out, category)
	}
	return out
}

func (s *LibraryService) checkCategory(category string) error {
	if !s.categories[category] {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown library category %q", category))
	}
	return nil
}

// ListFolders returns a category's folders.
func (s *LibraryService) ListFolders(ctx context.Context, category, search string) ([]models.LibraryFolderDetail, error) {
	if err := s.checkCategory(category); err != nil {
		return nil, err
	}
	folders, err := s.library.ListFolders(ctx, category, search)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folders")
	}
	return folders, nil
}

// CreateFolder inserts a folder into a category.
func (s *LibraryService) CreateFolder(ctx context.Context, category, createdBy string, req FolderRequest) (*models.LibraryFolder, error) {
	if err := s.checkCategory(category); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid folder payload")
	}
	folder := &models.LibraryFolder{
		Category:    category,
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   createdBy,
	}
	if err := s.library.CreateFolder(ctx, folder); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create folder")
	}
	return folder, nil
}

// UpdateFolder persists folder edits within its category.
func (s *LibraryService) UpdateFolder(ctx context.Context, category, folderID string, req FolderRequest) (*models.LibraryFolder, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid folder payload")
	}
	folder, err := s.loadFolder(ctx, category, folderID)
	if err != nil {
		return nil, err
	}
	folder.Name = req.Name
	folder.Description = req.Description
	if err := s.library.UpdateFolder(ctx, folder); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update folder")
	}
	return folder, nil
}

// DeleteFolder removes a folder and its files.
func (s *LibraryService) DeleteFolder(ctx context.Context, category, folderID string) error {
	if _, err := s.loadFolder(ctx, category, folderID); err != nil {
		return err
	}
	if err := s.library.DeleteFolder(ctx, folderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete folder")
	}
	return nil
}

// ListFiles returns a folder's files.
func (s *LibraryService) ListFiles(ctx context.Context, category, folderID string) ([]models.LibraryFile, error) {
	if _, err := s.loadFolder(ctx, category, folderID); err != nil {
		return nil, err
	}
	files, err := s.library.ListFiles(ctx, folderID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list files")
	}
	return files, nil
}

// CreateFile adds a file to a folder.
func (s *LibraryService) CreateFile(ctx context.Context, category, folderID, createdBy string, req FileRequest) (*models.LibraryFile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid file payload")
	}
	if _, err := s.loadFolder(ctx, category, folderID); err != nil {
		return nil, err
	}
	file := &models.LibraryFile{
		FolderID:  folderID,
		Title:     req.Title,
		FileURL:   req.FileURL,
		MimeType:  req.MimeType,
		CreatedBy: createdBy,
	}
	if err := s.library.CreateFile(ctx, file); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create file")
	}
	return file, nil
}

// UpdateFile persists file edits.
func (s *LibraryService) UpdateFile(ctx context.Context, category, folderID, fileID string, req FileRequest) (*models.LibraryFile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid file payload")
	}
	file, err := s.loadFile(ctx, category, folderID, fileID)
	if err != nil {
		return nil, err
	}
	file.Title = req.Title
	file.FileURL = req.FileURL
	file.MimeType = req.MimeType
	if err := s.library.UpdateFile(ctx, file); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update file")
	}
	return file, nil
}

// DeleteFile removes one file.
func (s *LibraryService) DeleteFile(ctx context.Context, category, folderID, fileID string) error {
	if _, err := s.loadFile(ctx, category, folderID, fileID); err != nil {
		return err
	}
	if err := s.library.DeleteFile(ctx, fileID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete file")
	}
	return nil
}

func (s *LibraryService) loadFolder(ctx context.Context, category, folderID string) (*models.LibraryFolder, error) {
	if err := s.checkCategory(category); err != nil {
		return nil, err
	}
	folder, err := s.library.FindFolder(ctx, folderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
	}
	if folder.Category != category {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found in this category")
	}
	return folder, nil
}

func (s *LibraryService) loadFile(ctx context.Context, category, folderID, fileID string) (*models.LibraryFile, error) {
	if _, err := s.loadFolder(ctx, category, folderID); err != nil {
		return nil, err
	}
	file, err := s.library.FindFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load file")
	}
	if file.FolderID != folderID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found in this folder")
	}
	return file, nil
}
