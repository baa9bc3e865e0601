package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrVersionConflict is returned when two uploads race for the same
// version number of a file. Callers may retry the upload.
var ErrVersionConflict = errors.New("file version conflict")

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) GetFile(ctx context.Context, fileID int64) (FileMetadata, error) {
	var item FileMetadata
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, filename, owner_id, created_at, updated_at
		FROM files
		WHERE id=$1
	`, fileID).Scan(&item.ID, &item.ProjectID, &item.Filename, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return FileMetadata{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetFileByName(ctx context.Context, projectID int64, filename string) (FileMetadata, error) {
	var item FileMetadata
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, filename, owner_id, created_at, updated_at
		FROM files
		WHERE project_id=$1 AND filename=$2
	`, projectID, filename).Scan(&item.ID, &item.ProjectID, &item.Filename, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return FileMetadata{}, err
	}
	return item, nil
}

// CreateFileVersion records a new version of a file, creating the
// metadata row on first upload. The file row is locked for the duration
// of the transaction so concurrent uploads of the same filename cannot
// observe the same max version; the unique (file_id, version) index is
// the backstop if they somehow do.
func (s *PostgresStore) CreateFileVersion(ctx context.Context, projectID int64, filename string, uploaderID int64, savedPath string, size int64) (FileMetadata, FileVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return FileMetadata{}, FileVersion{}, fmt.Errorf("begin file version: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var meta FileMetadata
	err = tx.QueryRowContext(ctx, `
		SELECT id, project_id, filename, owner_id, created_at, updated_at
		FROM files
		WHERE project_id=$1 AND filename=$2
		FOR UPDATE
	`, projectID, filename).Scan(&meta.ID, &meta.ProjectID, &meta.Filename, &meta.OwnerID, &meta.CreatedAt, &meta.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = tx.QueryRowContext(ctx, `
			INSERT INTO files (project_id, filename, owner_id)
			VALUES ($1, $2, $3)
			RETURNING id, project_id, filename, owner_id, created_at, updated_at
		`, projectID, filename, uploaderID).Scan(&meta.ID, &meta.ProjectID, &meta.Filename, &meta.OwnerID, &meta.CreatedAt, &meta.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return FileMetadata{}, FileVersion{}, ErrVersionConflict
			}
			return FileMetadata{}, FileVersion{}, fmt.Errorf("insert file: %w", err)
		}
	case err != nil:
		return FileMetadata{}, FileVersion{}, fmt.Errorf("lock file: %w", err)
	}

	var maxVersion int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM file_versions WHERE file_id=$1
	`, meta.ID).Scan(&maxVersion)
	if err != nil {
		return FileMetadata{}, FileVersion{}, fmt.Errorf("max file version: %w", err)
	}

	var version FileVersion
	err = tx.QueryRowContext(ctx, `
		INSERT INTO file_versions (file_id, version, saved_path, file_size, uploader_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, file_id, version, saved_path, file_size, uploader_id, created_at
	`, meta.ID, maxVersion+1, savedPath, size, uploaderID).Scan(
		&version.ID, &version.FileID, &version.Version, &version.SavedPath, &version.FileSize, &version.UploaderID, &version.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return FileMetadata{}, FileVersion{}, ErrVersionConflict
		}
		return FileMetadata{}, FileVersion{}, fmt.Errorf("insert file version: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE files SET updated_at=NOW() WHERE id=$1`, meta.ID); err != nil {
		return FileMetadata{}, FileVersion{}, fmt.Errorf("touch file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return FileMetadata{}, FileVersion{}, ErrVersionConflict
		}
		return FileMetadata{}, FileVersion{}, fmt.Errorf("commit file version: %w", err)
	}
	return meta, version, nil
}

// ListProjectFiles returns each file in the project paired with its
// latest version.
func (s *PostgresStore) ListProjectFiles(ctx context.Context, projectID int64) ([]FileMetadata, map[int64]FileVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, filename, owner_id, created_at, updated_at
		FROM files
		WHERE project_id=$1
		ORDER BY filename ASC
	`, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("list project files: %w", err)
	}
	defer rows.Close()

	files := make([]FileMetadata, 0)
	for rows.Next() {
		var item FileMetadata
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Filename, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, item)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate files: %w", err)
	}

	latest := make(map[int64]FileVersion, len(files))
	versionRows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (fv.file_id)
			fv.id, fv.file_id, fv.version, fv.saved_path, fv.file_size, fv.uploader_id, fv.created_at
		FROM file_versions fv
		JOIN files f ON f.id = fv.file_id
		WHERE f.project_id=$1
		ORDER BY fv.file_id, fv.version DESC
	`, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("list latest versions: %w", err)
	}
	defer versionRows.Close()

	for versionRows.Next() {
		var v FileVersion
		if err := versionRows.Scan(&v.ID, &v.FileID, &v.Version, &v.SavedPath, &v.FileSize, &v.UploaderID, &v.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan latest version: %w", err)
		}
		latest[v.FileID] = v
	}
	if err := versionRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate latest versions: %w", err)
	}
	return files, latest, nil
}

// ListFileVersions returns versions newest first.
func (s *PostgresStore) ListFileVersions(ctx context.Context, fileID int64) ([]FileVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, version, saved_path, file_size, uploader_id, created_at
		FROM file_versions
		WHERE file_id=$1
		ORDER BY version DESC
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list file versions: %w", err)
	}
	defer rows.Close()

	items := make([]FileVersion, 0)
	for rows.Next() {
		var v FileVersion
		if err := rows.Scan(&v.ID, &v.FileID, &v.Version, &v.SavedPath, &v.FileSize, &v.UploaderID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan file version: %w", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetFileVersion(ctx context.Context, fileID int64, version int) (FileVersion, error) {
	var v FileVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, file_id, version, saved_path, file_size, uploader_id, created_at
		FROM file_versions
		WHERE file_id=$1 AND version=$2
	`, fileID, version).Scan(&v.ID, &v.FileID, &v.Version, &v.SavedPath, &v.FileSize, &v.UploaderID, &v.CreatedAt)
	if err != nil {
		return FileVersion{}, err
	}
	return v, nil
}

func (s *PostgresStore) LatestFileVersion(ctx context.Context, fileID int64) (FileVersion, error) {
	var v FileVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, file_id, version, saved_path, file_size, uploader_id, created_at
		FROM file_versions
		WHERE file_id=$1
		ORDER BY version DESC
		LIMIT 1
	`, fileID).Scan(&v.ID, &v.FileID, &v.Version, &v.SavedPath, &v.FileSize, &v.UploaderID, &v.CreatedAt)
	if err != nil {
		return FileVersion{}, err
	}
	return v, nil
}

// DeleteFileRecords removes the version rows, card links and the
// metadata row, in that order, and returns the saved paths of the
// removed versions so the caller can reclaim the blobs.
func (s *PostgresStore) DeleteFileRecords(ctx context.Context, fileID int64) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete file: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT saved_path FROM file_versions WHERE file_id=$1`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list saved paths: %w", err)
	}
	paths := make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan saved path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate saved paths: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_versions WHERE file_id=$1`, fileID); err != nil {
		return nil, fmt.Errorf("delete file versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM card_file_links WHERE file_id=$1`, fileID); err != nil {
		return nil, fmt.Errorf("delete file links: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id=$1`, fileID)
	if err != nil {
		return nil, fmt.Errorf("delete file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("delete file rows: %w", err)
	}
	if affected == 0 {
		return nil, sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete file: %w", err)
	}
	return paths, nil
}
