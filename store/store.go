// Package store keeps projects in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// ErrProjectNotFound indicates the requested project doesn't exist.
var ErrProjectNotFound = errors.New("project not found")

// Project is one saved program. Document holds the serialized rows.
type Project struct {
	ID           string
	Name         string
	Created      time.Time
	LastModified time.Time
	Document     []byte
}

// Store is a handle on the projects database.
type Store struct {
	db  *sql.DB
	log commonlog.Logger
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created INTEGER NOT NULL,
		last_modified INTEGER NOT NULL,
		document BLOB
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	s := &Store{db: db, log: commonlog.GetLogger("touchscript.store")}
	s.log.Debugf("opened project store %s", path)
	return s, nil
}

// DefaultPath returns ~/.touchscript/projects.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}
	return filepath.Join(home, ".touchscript", "projects.db"), nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create adds a new project with an empty document.
func (s *Store) Create(ctx context.Context, name string) (*Project, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	p := &Project{
		ID:           uuid.NewString(),
		Name:         name,
		Created:      now,
		LastModified: now,
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO projects (id, name, created, last_modified, document) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.Name, now.UnixMilli(), now.UnixMilli(), []byte{},
	)
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	s.log.Infof("created project %s (%s)", p.Name, p.ID)
	return p, nil
}

// Save replaces the document of project id and bumps its modification time.
func (s *Store) Save(ctx context.Context, id string, document []byte) error {
	now := time.Now().UTC().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		"UPDATE projects SET document = ?, last_modified = ? WHERE id = ?",
		document, now, id,
	)
	if err != nil {
		return fmt.Errorf("saving project: %w", err)
	}
	return expectRow(res, id)
}

// Load returns the project with the given id, document included.
func (s *Store) Load(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, created, last_modified, document FROM projects WHERE id = ?", id)
	p, err := scanProject(row.Scan, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		return nil, fmt.Errorf("querying project: %w", err)
	}
	return p, nil
}

// List returns every project without its document, most recently
// modified first.
func (s *Store) List(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created, last_modified FROM projects ORDER BY last_modified DESC, name")
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows.Scan, false)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Rename changes a project's name.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE projects SET name = ?, last_modified = ? WHERE id = ?",
		name, time.Now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("renaming project: %w", err)
	}
	return expectRow(res, id)
}

// Delete removes a project.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	if err := expectRow(res, id); err != nil {
		return err
	}
	s.log.Infof("deleted project %s", id)
	return nil
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return nil
}

func scanProject(scan func(dest ...any) error, withDocument bool) (*Project, error) {
	var (
		p                 Project
		created, modified int64
	)
	dest := []any{&p.ID, &p.Name, &created, &modified}
	if withDocument {
		dest = append(dest, &p.Document)
	}
	if err := scan(dest...); err != nil {
		return nil, err
	}
	p.Created = time.UnixMilli(created).UTC()
	p.LastModified = time.UnixMilli(modified).UTC()
	return &p, nil
}
