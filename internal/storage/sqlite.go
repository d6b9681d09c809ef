package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/promptsmith/sdprompt/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps one row per saved prompt. Updates are compare-and-swap
// on the version column.
type SQLiteStore struct {
	base
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteStore(dataSourceName string, opts ...Option) (*SQLiteStore, error) {
	if dataSourceName != ":memory:" && !strings.HasPrefix(dataSourceName, "file:") {
		if err := os.MkdirAll(filepath.Dir(dataSourceName), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{base: newBase(opts), db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS saved_prompts (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		title TEXT NOT NULL,
		prompt TEXT NOT NULL,
		negative_prompt TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL,
		categories TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);`)
	return err
}

const selectColumns = `SELECT id, title, prompt, negative_prompt, model, categories, created_at, updated_at, version FROM saved_prompts`

type scanner interface {
	Scan(dest ...any) error
}

func scanPrompt(row scanner) (models.SavedPrompt, error) {
	var (
		p          models.SavedPrompt
		model      string
		categories string
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Prompt, &p.NegativePrompt, &model, &categories, &p.CreatedAt, &p.UpdatedAt, &p.Version); err != nil {
		return models.SavedPrompt{}, err
	}
	p.Model = models.SDModel(model)
	if err := json.Unmarshal([]byte(categories), &p.Categories); err != nil {
		return models.SavedPrompt{}, fmt.Errorf("failed to decode categories of %s: %w", p.ID, err)
	}
	return p, nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]models.SavedPrompt, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query saved prompts: %w", err)
	}
	defer rows.Close()

	list := []models.SavedPrompt{}
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (models.SavedPrompt, error) {
	p, err := scanPrompt(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.SavedPrompt{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, err
}

func (s *SQLiteStore) Upsert(ctx context.Context, p models.SavedPrompt) (models.SavedPrompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.newID()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.SavedPrompt{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanPrompt(tx.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, p.ID))
	var current []models.SavedPrompt
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return models.SavedPrompt{}, err
	default:
		current = []models.SavedPrompt{existing}
	}

	_, saved, err := s.upsertInto(current, p)
	if err != nil {
		return models.SavedPrompt{}, err
	}

	categories, err := json.Marshal(saved.Categories)
	if err != nil {
		return models.SavedPrompt{}, fmt.Errorf("failed to encode categories: %w", err)
	}

	if current == nil {
		_, err = tx.ExecContext(ctx, `INSERT INTO saved_prompts
			(id, position, title, prompt, negative_prompt, model, categories, created_at, updated_at, version)
			VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM saved_prompts), ?, ?, ?, ?, ?, ?, ?, ?)`,
			saved.ID, saved.Title, saved.Prompt, saved.NegativePrompt, string(saved.Model), string(categories),
			saved.CreatedAt, saved.UpdatedAt, saved.Version)
		if err != nil {
			return models.SavedPrompt{}, fmt.Errorf("failed to insert %s: %w", saved.ID, err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `UPDATE saved_prompts
			SET title = ?, prompt = ?, negative_prompt = ?, model = ?, categories = ?, updated_at = ?, version = ?
			WHERE id = ? AND version = ?`,
			saved.Title, saved.Prompt, saved.NegativePrompt, string(saved.Model), string(categories),
			saved.UpdatedAt, saved.Version, saved.ID, existing.Version)
		if err != nil {
			return models.SavedPrompt{}, fmt.Errorf("failed to update %s: %w", saved.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return models.SavedPrompt{}, fmt.Errorf("%w: %s", ErrVersionConflict, saved.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.SavedPrompt{}, fmt.Errorf("failed to commit: %w", err)
	}
	return saved, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM saved_prompts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) ImportMerge(ctx context.Context, records []models.SavedPrompt) (ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.LoadAll(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	merged, result := s.importInto(existing, records)
	if result.Imported == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var position int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM saved_prompts`).Scan(&position); err != nil {
		return ImportResult{}, fmt.Errorf("failed to read position: %w", err)
	}

	for _, p := range merged[len(existing):] {
		position++
		categories, err := json.Marshal(p.Categories)
		if err != nil {
			return ImportResult{}, fmt.Errorf("failed to encode categories: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO saved_prompts
			(id, position, title, prompt, negative_prompt, model, categories, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, position, p.Title, p.Prompt, p.NegativePrompt, string(p.Model), string(categories),
			p.CreatedAt, p.UpdatedAt, p.Version)
		if err != nil {
			return ImportResult{}, fmt.Errorf("failed to import %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ImportResult{}, fmt.Errorf("failed to commit: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
