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

// LibraryRepository stores content folders and files for every category
// through one parameterized table pair.
type LibraryRepository struct {
	db *sqlx.DB
}

// NewLibraryRepository constructs the repository.
func NewLibraryRepository(db *sqlx.DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

// ListFolders returns a category's folders with file counts.
func (r *LibraryRepository) ListFolders(ctx context.Context, category, search string) ([]models.LibraryFolderDetail, error) {
	query := `SELECT f.id, f.category, f.name, f.description, f.created_by, f.created_at, f.updated_at,
        (SELECT COUNT(*) FROM library_files lf WHERE lf.folder_id = f.id) AS file_count
        FROM library_folders f WHERE f.category = $1`
	args := []interface{}{category}
	if search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		query += fmt.Sprintf(" AND LOWER(f.name) LIKE $%d", len(args))
	}
	query += " ORDER BY f.name ASC"
	var folders []models.LibraryFolderDetail
	if err := r.db.SelectContext(ctx, &folders, query, args...); err != nil {
		return nil, fmt.Errorf("list library folders: %w", err)
	}
	return folders, nil
}

// FindFolder returns one folder.
func (r *LibraryRepository) FindFolder(ctx context.Context, id string) (*models.LibraryFolder, error) {
	const query = `SELECT id, category, name, description, created_by, created_at, updated_at FROM library_folders WHERE id = $1 LIMIT 1`
	var folder models.LibraryFolder
	if err := r.db.GetContext(ctx, &folder, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find library folder: %w", err)
	}
	return &folder, nil
}

// CreateFolder inserts a folder.
func (r *LibraryRepository) CreateFolder(ctx context.Context, folder *models.LibraryFolder) error {
	now := time.Now().UTC()
	if folder.ID == "" {
		folder.ID = uuid.NewString()
	}
	folder.CreatedAt = now
	folder.UpdatedAt = now
	const query = `INSERT INTO library_folders (id, category, name, description, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query, folder.ID, folder.Category, folder.Name, folder.Description, folder.CreatedBy, folder.CreatedAt, folder.UpdatedAt); err != nil {
		return fmt.Errorf("create library folder: %w", err)
	}
	return nil
}

// UpdateFolder persists folder name and description.
func (r *LibraryRepository) UpdateFolder(ctx context.Context, folder *models.LibraryFolder) error {
	folder.UpdatedAt = time.Now().UTC()
	const query = `UPDATE library_folders SET name = $2, description = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, folder.ID, folder.Name, folder.Description, folder.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update library folder: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteFolder removes a folder and its files.
func (r *LibraryRepository) DeleteFolder(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete library folder: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM library_files WHERE folder_id = $1`, id); err != nil {
		return fmt.Errorf("delete library files: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM library_folders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete library folder: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete library folder: %w", err)
	}
	committed = true
	return nil
}

// ListFiles returns a folder's files.
func (r *LibraryRepository) ListFiles(ctx context.Context, folderID string) ([]models.LibraryFile, error) {
	const query = `SELECT id, folder_id, title, file_url, mime_type, created_by, created_at, updated_at
FROM library_files WHERE folder_id = $1 ORDER BY title ASC`
	var files []models.LibraryFile
	if err := r.db.SelectContext(ctx, &files, query, folderID); err != nil {
		return nil, fmt.Errorf("list library files: %w", err)
	}
	return files, nil
}

// FindFile returns one file.
func (r *LibraryRepository) FindFile(ctx context.Context, id string) (*models.LibraryFile, error) {
	const query = `SELECT id, folder_id, title, file_url, mime_type, created_by, created_at, updated_at FROM library_files WHERE id = $1 LIMIT 1`
	var file models.LibraryFile
	if err := r.db.GetContext(ctx, &file, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find library file: %w", err)
	}
	return &file, nil
}

// CreateFile inserts a file into a folder.
func (r *LibraryRepository) CreateFile(ctx context.Context, file *models.LibraryFile) error {
	now := time.Now().UTC()
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	file.CreatedAt = now
	file.UpdatedAt = now
	const query = `INSERT INTO library_files (id, folder_id, title, file_url, mime_type, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query, file.ID, file.FolderID, file.Title, file.FileURL, file.MimeType, file.CreatedBy, file.CreatedAt, file.UpdatedAt); err != nil {
		return fmt.Errorf("create library file: %w", err)
	}
	return nil
}

// UpdateFile persists file title and location.
func (r *LibraryRepository) UpdateFile(ctx context.Context, file *models.LibraryFile) error {
	file.UpdatedAt = time.Now().UTC()
	const query = `UPDATE library_files SET title = $2, file_url = $3, mime_type = $4, updated_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, file.ID, file.Title, file.FileURL, file.MimeType, file.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update library file: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteFile removes one file.
func (r *LibraryRepository) DeleteFile(ctx context.Context, id string) error {
	const query = `DELETE FROM library_files WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete library file: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
