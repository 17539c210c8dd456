package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS banned_words (
    word       TEXT PRIMARY KEY,
    created_at TEXT NOT NULL
);
`

// SQLiteWordStore keeps the block-list in a local SQLite file. gatectl uses
// it for offline evaluation and for editing a list before publishing it.
type SQLiteWordStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the store at path.
func OpenSQLite(path string) (*SQLiteWordStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteWordStore{db: db}, nil
}

func (s *SQLiteWordStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteWordStore) BannedWords(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT word FROM banned_words ORDER BY word`)
	if err != nil {
		return nil, fmt.Errorf("query banned_words: %w", err)
	}
	defer rows.Close()

	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("scan banned_words: %w", err)
		}
		words = append(words, w)
	}
	return words, rows.Err()
}

func (s *SQLiteWordStore) AddWord(ctx context.Context, word string) (bool, error) {
	w, err := CleanWord(word)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO banned_words (word, created_at) VALUES (?, ?)`,
		w, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("insert banned word: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteWordStore) RemoveWord(ctx context.Context, word string) (bool, error) {
	w, err := CleanWord(word)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM banned_words WHERE word = ?`, w)
	if err != nil {
		return false, fmt.Errorf("delete banned word: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
