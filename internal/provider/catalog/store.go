package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/fruitsalade/zipstream/internal/metrics"
	"github.com/fruitsalade/zipstream/internal/retry"
)

// ErrNoEntry is returned by a Store for paths with no live row.
var ErrNoEntry = errors.New("no catalog entry")

// Row is one entry of the files table.
type Row struct {
	Path       string
	ParentPath string
	Name       string
	IsDir      bool
	Size       int64
	ModTime    time.Time
	StorageKey string
}

// Store looks up catalog rows.
type Store interface {
	Lookup(ctx context.Context, path string) (Row, error)
	Children(ctx context.Context, parentPath string) ([]Row, error)
}

// PGStore is a PostgreSQL-backed Store.
type PGStore struct {
	db *sql.DB
}

// NewPGStore opens and pings the database.
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	_, err = retry.Do(ctx, retry.Default, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PGStore{db: db}, nil
}

// NewPGStoreFromDB wraps an open connection.
func NewPGStoreFromDB(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Lookup returns the live row at path.
func (s *PGStore) Lookup(ctx context.Context, path string) (Row, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("catalog_lookup", time.Since(start)) }()

	var r Row
	var storageKey sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT path, parent_path, name, is_dir, size, mod_time, storage_key
		 FROM files WHERE path = $1 AND deleted_at IS NULL`, path).
		Scan(&r.Path, &r.ParentPath, &r.Name, &r.IsDir, &r.Size, &r.ModTime, &storageKey)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, ErrNoEntry
	}
	if err != nil {
		return Row{}, fmt.Errorf("lookup %s: %w", path, err)
	}
	r.StorageKey = storageKey.String
	return r, nil
}

// Children returns the live rows directly under parentPath ordered by name.
func (s *PGStore) Children(ctx context.Context, parentPath string) ([]Row, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("catalog_children", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, parent_path, name, is_dir, size, mod_time, storage_key
		 FROM files WHERE parent_path = $1 AND path <> $1 AND deleted_at IS NULL
		 ORDER BY name`, parentPath)
	if err != nil {
		return nil, fmt.Errorf("query children of %s: %w", parentPath, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var storageKey sql.NullString
		if err := rows.Scan(&r.Path, &r.ParentPath, &r.Name, &r.IsDir, &r.Size, &r.ModTime, &storageKey); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.StorageKey = storageKey.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *PGStore) Close() error {
	return s.db.Close()
}
