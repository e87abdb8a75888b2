package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pbaille/todos/internal/domain"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Registered database/sql driver names.
const (
	DriverCGO  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

// Store handles database operations
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the clock used to stamp created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open connects to the database and makes sure the todos table exists.
//
// driver is one of DriverCGO or DriverPure; dsn is a file path or a
// "file:" URI understood by that driver.
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	switch driver {
	case DriverCGO, DriverPure:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// List returns every item, newest first
func (s *Store) List(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, text, created_at FROM todos ORDER BY created_at DESC, id DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", storageErr("query", err))
	}
	defer rows.Close()

	items := []domain.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("list items: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items: %w", storageErr("iterate", err))
	}

	return items, nil
}

// Get retrieves an item by ID
func (s *Store) Get(ctx context.Context, id int64) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, text, created_at FROM todos WHERE id = ?",
		id,
	)
	item, err := scanItem(row)
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return &item, nil
}

// Create inserts a new item and returns it
func (s *Store) Create(ctx context.Context, text string) (*domain.Item, error) {
	text, err := domain.NormalizeText(text)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO todos (text, created_at) VALUES (?, ?)",
		text, now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", storageErr("insert", err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create item: %w", storageErr("last insert id", err))
	}

	return &domain.Item{
		ID:        id,
		Text:      text,
		CreatedAt: time.Unix(0, now.UnixNano()).UTC(),
	}, nil
}

// Update replaces the text of an existing item.
// created_at is left untouched.
func (s *Store) Update(ctx context.Context, id int64, text string) (*domain.Item, error) {
	text, err := domain.NormalizeText(text)
	if err != nil {
		return nil, fmt.Errorf("update item %d: %w", id, err)
	}

	// RETURNING hands back the row this statement wrote; concurrent
	// updates to the same id are last-write-wins.
	row := s.db.QueryRowContext(ctx,
		"UPDATE todos SET text = ? WHERE id = ? RETURNING id, text, created_at",
		text, id,
	)
	item, err := scanItem(row)
	if err != nil {
		return nil, fmt.Errorf("update item %d: %w", id, err)
	}
	return &item, nil
}

// Delete removes an item
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM todos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, storageErr("delete", err))
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	return nil
}

// Count returns the number of stored items
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM todos").Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", storageErr("query", err))
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (domain.Item, error) {
	var (
		item    domain.Item
		created int64
	)
	err := sc.Scan(&item.ID, &item.Text, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return item, domain.ErrNotFound
	}
	if err != nil {
		return item, storageErr("scan", err)
	}
	item.CreatedAt = time.Unix(0, created).UTC()
	return item, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func storageErr(op string, err error) error {
	return &domain.StorageError{Op: op, Err: err}
}
