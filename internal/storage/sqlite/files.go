package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sandevgo/botstudio/internal/core"
)

type FilesRepo struct {
	db *sql.DB
}

func NewFilesRepo(db *sql.DB) *FilesRepo {
	return &FilesRepo{db: db}
}

func (r *FilesRepo) GetFile(ctx context.Context, id int64) (core.File, error) {
	var f core.File
	err := r.db.QueryRowContext(ctx, `SELECT id, name, external_id FROM files WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &f.ExternalID)
	if err == sql.ErrNoRows {
		return core.File{}, core.ErrNotFound
	}
	if err != nil {
		return core.File{}, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

func (r *FilesRepo) GetFileByExternalID(ctx context.Context, externalID string) (core.File, error) {
	var f core.File
	err := r.db.QueryRowContext(ctx, `SELECT id, name, external_id FROM files WHERE external_id = ?`, externalID).
		Scan(&f.ID, &f.Name, &f.ExternalID)
	if err == sql.ErrNoRows {
		return core.File{}, core.ErrNotFound
	}
	if err != nil {
		return core.File{}, fmt.Errorf("failed to get file by external id: %w", err)
	}
	return f, nil
}

func (r *FilesRepo) CreateFile(ctx context.Context, file core.File, content []byte) (core.File, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO files (name, external_id, content) VALUES (?, ?, ?)`,
		file.Name, file.ExternalID, content)
	if err != nil {
		return core.File{}, fmt.Errorf("failed to insert file: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.File{}, err
	}

	file.ID = id
	return file, nil
}

func (r *FilesRepo) FileContent(ctx context.Context, id int64) ([]byte, error) {
	var content []byte
	err := r.db.QueryRowContext(ctx, `SELECT content FROM files WHERE id = ?`, id).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file content: %w", err)
	}
	return content, nil
}
