package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavel-fokin/media-library/internal/media"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no media record matches
var ErrNotFound = errors.New("media not found")

// Repository implements media.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite repository
func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &Repository{db: db}

	// Initialize database schema
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// initSchema creates the necessary database tables
func (r *Repository) initSchema() error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		subject_type TEXT NOT NULL,
		subject_id INTEGER NOT NULL,
		collection_name TEXT NOT NULL,
		name TEXT NOT NULL,
		file_name TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT '',
		disk TEXT NOT NULL,
		size INTEGER NOT NULL,
		manipulations TEXT NOT NULL DEFAULT '{}',
		custom_properties TEXT NOT NULL DEFAULT '{}',
		order_column INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err := r.db.Exec(createTableQuery); err != nil {
		return fmt.Errorf("failed to create media table: %w", err)
	}

	createIndexesQuery := `
	CREATE INDEX IF NOT EXISTS idx_media_subject ON media(subject_type, subject_id, collection_name);
	`
	if _, err := r.db.Exec(createIndexesQuery); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

const selectColumns = `id, uuid, subject_type, subject_id, collection_name, name, file_name,
	mime_type, disk, size, manipulations, custom_properties, order_column, created_at, updated_at`

// Create stores a new media record and assigns its ID
func (r *Repository) Create(ctx context.Context, m *media.Media) error {
	manipulations, customProperties, err := encodeJSONColumns(m)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	query := `
	INSERT INTO media (uuid, subject_type, subject_id, collection_name, name, file_name,
		mime_type, disk, size, manipulations, custom_properties, order_column, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		m.UUID,
		m.SubjectType,
		m.SubjectID,
		m.CollectionName,
		m.Name,
		m.FileName,
		m.MimeType,
		m.Disk,
		m.Size,
		manipulations,
		customProperties,
		m.OrderColumn,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create media record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get media id: %w", err)
	}
	m.ID = id

	return nil
}

// Update overwrites the mutable fields of a media record
func (r *Repository) Update(ctx context.Context, m *media.Media) error {
	manipulations, customProperties, err := encodeJSONColumns(m)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()

	query := `
	UPDATE media SET collection_name = ?, name = ?, file_name = ?, mime_type = ?, disk = ?,
		size = ?, manipulations = ?, custom_properties = ?, order_column = ?, updated_at = ?
	WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		m.CollectionName,
		m.Name,
		m.FileName,
		m.MimeType,
		m.Disk,
		m.Size,
		manipulations,
		customProperties,
		m.OrderColumn,
		m.UpdatedAt,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update media record: %w", err)
	}

	return checkAffected(result)
}

// FindByID retrieves a media record by ID
func (r *Repository) FindByID(ctx context.Context, id int64) (*media.Media, error) {
	query := `SELECT ` + selectColumns + ` FROM media WHERE id = ?`

	m, err := scanMedia(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find media: %w", err)
	}

	return m, nil
}

// ListForSubject retrieves a subject's media ordered by order column.
// An empty collection lists every collection.
func (r *Repository) ListForSubject(ctx context.Context, subject media.Subject, collection string) ([]*media.Media, error) {
	query := `SELECT ` + selectColumns + ` FROM media
	WHERE subject_type = ? AND subject_id = ? AND (? = '' OR collection_name = ?)
	ORDER BY order_column, id
	`

	rows, err := r.db.QueryContext(ctx, query, subject.SubjectType(), subject.SubjectID(), collection, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query media: %w", err)
	}
	defer rows.Close()

	var list []*media.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media row: %w", err)
		}
		list = append(list, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media rows: %w", err)
	}

	return list, nil
}

// Delete removes a media record by ID
func (r *Repository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete media record: %w", err)
	}

	return checkAffected(result)
}

func checkAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMedia(row scanner) (*media.Media, error) {
	var m media.Media
	var manipulations, customProperties string

	err := row.Scan(
		&m.ID,
		&m.UUID,
		&m.SubjectType,
		&m.SubjectID,
		&m.CollectionName,
		&m.Name,
		&m.FileName,
		&m.MimeType,
		&m.Disk,
		&m.Size,
		&manipulations,
		&customProperties,
		&m.OrderColumn,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(manipulations), &m.Manipulations); err != nil {
		return nil, fmt.Errorf("failed to decode manipulations: %w", err)
	}
	m.CustomProperties = media.NewMap()
	if err := json.Unmarshal([]byte(customProperties), m.CustomProperties); err != nil {
		return nil, fmt.Errorf("failed to decode custom properties: %w", err)
	}

	return &m, nil
}

func encodeJSONColumns(m *media.Media) (string, string, error) {
	manipulations := m.Manipulations
	if manipulations == nil {
		manipulations = media.Manipulations{}
	}
	manipulationsJSON, err := json.Marshal(manipulations)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode manipulations: %w", err)
	}

	customProperties := m.CustomProperties
	if customProperties == nil {
		customProperties = media.NewMap()
	}
	customPropertiesJSON, err := json.Marshal(customProperties)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode custom properties: %w", err)
	}

	return string(manipulationsJSON), string(customPropertiesJSON), nil
}
