package dictionary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

//go:generate mockgen -source=repository.go -destination=../mocks/dictionary/mock_repository.go -package=mock_dictionary

// Repository defines operations for persisting canonical upstream responses.
type Repository interface {
	FindAll(ctx context.Context) ([]Entry, error)
	Find(ctx context.Context, word string, variant Variant) (*Entry, error)
	Upsert(ctx context.Context, entry *Entry) error
}

// DBRepository implements Repository using MySQL.
type DBRepository struct {
	db *sqlx.DB
}

// NewDBRepository creates a new DBRepository.
func NewDBRepository(db *sqlx.DB) *DBRepository {
	return &DBRepository{db: db}
}

// FindAll returns all persisted entries ordered by word.
func (r *DBRepository) FindAll(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := r.db.SelectContext(ctx, &entries, "SELECT * FROM dictionary_entries ORDER BY word, variant"); err != nil {
		return nil, fmt.Errorf("db.SelectContext(dictionary_entries) > %w", err)
	}
	return entries, nil
}

// Find returns the entry for a word and variant, or nil if not persisted.
func (r *DBRepository) Find(ctx context.Context, word string, variant Variant) (*Entry, error) {
	var entry Entry
	err := r.db.GetContext(ctx, &entry,
		"SELECT * FROM dictionary_entries WHERE word = ? AND variant = ?", word, variant.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db.GetContext(dictionary_entry) > %w", err)
	}
	return &entry, nil
}

// Upsert inserts or updates the canonical response for a word and variant.
func (r *DBRepository) Upsert(ctx context.Context, entry *Entry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dictionary_entries (word, variant, source_url, response)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE source_url = VALUES(source_url), response = VALUES(response)`,
		entry.Word, entry.Variant, entry.SourceURL, entry.Response)
	if err != nil {
		return fmt.Errorf("db.ExecContext(upsert dictionary_entry) > %w", err)
	}
	return nil
}
