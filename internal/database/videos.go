package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const videoColumns = `id, uuid, title, file_name, original_file_name, thumbnail, width, height, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVideo(row rowScanner) (*Video, error) {
	var v Video
	var createdAt int64
	if err := row.Scan(&v.ID, &v.UUID, &v.Title, &v.FileName, &v.OriginalFileName,
		&v.Thumbnail, &v.Width, &v.Height, &createdAt); err != nil {
		return nil, err
	}
	v.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &v, nil
}

// Create inserts v and fills in its ID. A zero CreatedAt is set to now.
// Rows are never updated afterwards.
func (d *Database) Create(ctx context.Context, v *Video) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("create", start, err) }()

	if v.UUID == "" || v.FileName == "" {
		err = fmt.Errorf("uuid and file name are required")
		return err
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var res sql.Result
	res, err = d.db.ExecContext(ctx, `
		INSERT INTO videos (uuid, title, file_name, original_file_name, thumbnail, width, height, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.UUID, v.Title, v.FileName, v.OriginalFileName, v.Thumbnail, v.Width, v.Height, v.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("%w: %s", ErrConflict, v.FileName)
		}
		return err
	}

	v.ID, err = res.LastInsertId()
	return err
}

// GetByUUID returns the entry with the given identifier or ErrNotFound.
func (d *Database) GetByUUID(ctx context.Context, id string) (*Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_by_uuid", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var v *Video
	v, err = scanVideo(d.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE uuid = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	return v, err
}

// FindByFilename returns the entry stored under fileName or ErrNotFound.
func (d *Database) FindByFilename(ctx context.Context, fileName string) (*Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("find_by_filename", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var v *Video
	v, err = scanVideo(d.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE file_name = ?`, fileName))
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	return v, err
}

// ExistsByFilename reports whether an entry is stored under fileName.
func (d *Database) ExistsByFilename(ctx context.Context, fileName string) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("exists_by_filename", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var exists bool
	err = d.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM videos WHERE file_name = ?)`, fileName).Scan(&exists)
	return exists, err
}

// List returns every entry, newest first.
func (d *Database) List(ctx context.Context) ([]Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var rows *sql.Rows
	rows, err = d.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	videos := make([]Video, 0)
	for rows.Next() {
		var v *Video
		v, err = scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	err = rows.Err()
	return videos, err
}

// DeleteByFilename removes the entry stored under fileName and returns it.
// ErrNotFound is returned when no row matched.
func (d *Database) DeleteByFilename(ctx context.Context, fileName string) (*Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_by_filename", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var tx *sql.Tx
	tx, err = d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var v *Video
	v, err = scanVideo(tx.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE file_name = ?`, fileName))
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, v.ID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return v, nil
}

// Count returns the number of catalog entries.
func (d *Database) Count(ctx context.Context) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&n)
	return n, err
}
