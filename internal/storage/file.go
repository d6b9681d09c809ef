package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/promptsmith/sdprompt/internal/models"
)

// FileStore keeps the whole collection as one JSON array in one file. Every
// write re-reads the file, applies the change and replaces the file
// atomically.
type FileStore struct {
	base
	path string
	mu   sync.Mutex
}

func NewFileStore(path string, opts ...Option) *FileStore {
	return &FileStore{base: newBase(opts), path: path}
}

func (s *FileStore) LoadAll(ctx context.Context) ([]models.SavedPrompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) Get(ctx context.Context, id string) (models.SavedPrompt, error) {
	list, err := s.LoadAll(ctx)
	if err != nil {
		return models.SavedPrompt{}, err
	}
	return find(list, id)
}

func (s *FileStore) Upsert(ctx context.Context, p models.SavedPrompt) (models.SavedPrompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.read()
	if err != nil {
		return models.SavedPrompt{}, err
	}
	list, saved, err := s.upsertInto(list, p)
	if err != nil {
		return models.SavedPrompt{}, err
	}
	if err := s.write(list); err != nil {
		return models.SavedPrompt{}, err
	}
	return saved, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.read()
	if err != nil {
		return err
	}

	out := list[:0]
	for _, p := range list {
		if p.ID != id {
			out = append(out, p)
		}
	}
	if len(out) == len(list) {
		return nil
	}
	return s.write(out)
}

func (s *FileStore) ImportMerge(ctx context.Context, records []models.SavedPrompt) (ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.read()
	if err != nil {
		return ImportResult{}, err
	}
	list, result := s.importInto(list, records)
	if result.Imported == 0 {
		return result, nil
	}
	if err := s.write(list); err != nil {
		return ImportResult{}, err
	}
	return result, nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read() ([]models.SavedPrompt, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.SavedPrompt{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var list []models.SavedPrompt
	if err := json.Unmarshal(data, &list); err != nil {
		slog.Warn("saved prompts file is corrupt, treating as empty", "path", s.path, "err", err)
		return []models.SavedPrompt{}, nil
	}
	if list == nil {
		list = []models.SavedPrompt{}
	}
	return list, nil
}

func (s *FileStore) write(list []models.SavedPrompt) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal saved prompts: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".prompts-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
