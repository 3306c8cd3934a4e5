// ABOUTME: SQLite-backed credential store using modernc.org/sqlite
// ABOUTME: Keeps one sealed row per namespace, replaced with an UPSERT in a transaction

package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/coven-client/internal/auth"
)

// defaultNamespace is the row key used when a store holds a single account.
const defaultNamespace = "default"

// SQLiteStore keeps the sealed pair in a SQLite database.
type SQLiteStore struct {
	db        *sql.DB
	sealer    *sealer
	namespace string
	logger    *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path.
// The schema is automatically created if it doesn't exist.
func NewSQLiteStore(path string, secret []byte) (*SQLiteStore, error) {
	s, err := newSealer(secret, "sqlite")
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	store := &SQLiteStore{
		db:        db,
		sealer:    s,
		namespace: defaultNamespace,
		logger:    slog.Default().With("component", "credstore", "backend", "sqlite"),
	}

	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	store.logger.Debug("credential database initialized", "path", path)
	return store, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS credentials (
			namespace TEXT PRIMARY KEY,
			sealed BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load reads the sealed row.
func (s *SQLiteStore) Load(ctx context.Context) (auth.TokenPair, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT sealed FROM credentials WHERE namespace = ?`, s.namespace,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.TokenPair{}, false, nil
	}
	if err != nil {
		return auth.TokenPair{}, false, fmt.Errorf("querying credentials: %w", err)
	}

	pair, err := s.sealer.open(blob)
	if err != nil {
		return auth.TokenPair{}, false, err
	}
	return pair, true, nil
}

// Save replaces the row inside a transaction.
func (s *SQLiteStore) Save(ctx context.Context, pair auth.TokenPair) error {
	if err := validate(pair); err != nil {
		return err
	}

	blob, err := s.sealer.seal(pair)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (namespace, sealed, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET sealed = excluded.sealed, updated_at = excluded.updated_at
	`, s.namespace, blob, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting credentials: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing credentials: %w", err)
	}
	return nil
}

// Clear deletes the row.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
