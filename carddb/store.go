package carddb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store persists the card corpus in SQLite so the service can come up
// offline between bulk refreshes.
type Store struct {
	db     *sql.DB
	dbPath string
}

// OpenStore opens (or creates) the corpus database at the given path.
func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create corpus directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open corpus database: %w", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		norm_name TEXT NOT NULL,
		front_face TEXT NOT NULL DEFAULT '',
		set_code TEXT NOT NULL DEFAULT '',
		collector_number TEXT NOT NULL DEFAULT '',
		lang TEXT NOT NULL DEFAULT 'en'
	);
	CREATE INDEX IF NOT EXISTS idx_cards_norm_name ON cards(norm_name);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize corpus schema: %w", err)
	}
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("set journal mode: %w", err)
	}
	return nil
}

// ReplaceAll swaps the persisted corpus for the given card set in one
// transaction.
func (s *Store) ReplaceAll(ctx context.Context, cards []Card) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin corpus replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cards`); err != nil {
		return fmt.Errorf("clear cards: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO cards (id, name, norm_name, front_face, set_code, collector_number, lang)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare card insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range cards {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.NormName, c.FrontFace, c.SetCode, c.CollectorNumber, c.Lang); err != nil {
			return fmt.Errorf("insert card %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit corpus replace: %w", err)
	}
	return nil
}

// LoadAll reads every card from the persisted corpus.
func (s *Store) LoadAll(ctx context.Context) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, norm_name, front_face, set_code, collector_number, lang
		FROM cards ORDER BY norm_name`)
	if err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.ID, &c.Name, &c.NormName, &c.FrontFace, &c.SetCode, &c.CollectorNumber, &c.Lang); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return cards, nil
}

// Count returns the number of persisted cards.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return n, nil
}

// Ping verifies the database is reachable, for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
