package models

import "time"

// LibraryFolder groups files within one content category. The category is
// plain data so every subject area shares a single module instead of a
// copy of the CRUD surface per category.
type LibraryFolder struct {
	ID          string    `db:"id" json:"id"`
	Category    string    `db:"category" json:"category"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// LibraryFile is a stored document inside a folder.
type LibraryFile struct {
	ID        string    `db:"id" json:"id"`
	FolderID  string    `db:"folder_id" json:"folder_id"`
	Title     string    `db:"title" json:"title"`
	FileURL   string    `db:"file_url" json:"file_url"`
	MimeType  string    `db:"mime_type" json:"mime_type"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LibraryFolderDetail adds the contained file count.
type LibraryFolderDetail struct {
	LibraryFolder
	FileCount int `db:"file_count" json:"file_count"`
}
