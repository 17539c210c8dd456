package store

import (
	"context"
	"errors"
	"strings"
)

// ErrNoBackend is returned when a store has neither Redis nor Postgres.
var ErrNoBackend = errors.New("no block-list backend configured")

// WordStore is the block-list as administered by gatectl. The gate itself
// only reads through BannedWords.
type WordStore interface {
	BannedWords(ctx context.Context) ([]string, error)
	AddWord(ctx context.Context, word string) (bool, error)
	RemoveWord(ctx context.Context, word string) (bool, error)
}

// CleanWord trims a word before it is stored. Matching normalizes further;
// storage keeps the word as the operator wrote it.
func CleanWord(word string) (string, error) {
	w := strings.TrimSpace(word)
	if w == "" {
		return "", errors.New("empty banned word")
	}
	return w, nil
}
