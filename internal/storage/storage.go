package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/promptsmith/sdprompt/internal/models"
)

var (
	ErrNotFound        = errors.New("prompt not found")
	ErrVersionConflict = errors.New("prompt was modified by another writer")
	ErrEmptyCollection = errors.New("no saved prompts to export")
	ErrInvalid         = errors.New("invalid prompt")
)

// Repository persists the saved-prompt collection.
type Repository interface {
	LoadAll(ctx context.Context) ([]models.SavedPrompt, error)
	Get(ctx context.Context, id string) (models.SavedPrompt, error)
	// Upsert replaces the record with the same id or appends a new one. A
	// record without an id gets a fresh one. A non-zero Version must match
	// the stored version.
	Upsert(ctx context.Context, p models.SavedPrompt) (models.SavedPrompt, error)
	// Delete is a no-op when id is absent.
	Delete(ctx context.Context, id string) error
	ImportMerge(ctx context.Context, records []models.SavedPrompt) (ImportResult, error)
	Close() error
}

// ImportResult counts the outcome of an import.
type ImportResult struct {
	Imported int `json:"imported"`
	Dropped  int `json:"dropped"`
}

// IDFunc issues identifiers for new records.
type IDFunc func() string

// Clock returns the current time.
type Clock func() time.Time

// Option configures a store.
type Option func(*base)

// WithIDFunc overrides the identifier generator.
func WithIDFunc(fn IDFunc) Option {
	return func(b *base) { b.newID = fn }
}

// WithClock overrides the clock.
func WithClock(fn Clock) Option {
	return func(b *base) { b.now = fn }
}

type base struct {
	newID IDFunc
	now   Clock
}

func newBase(opts []Option) base {
	b := base{newID: uuid.NewString, now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) timestamp() string {
	return models.Timestamp(b.now())
}

// Validate checks the fields every stored record must carry.
func Validate(p models.SavedPrompt) error {
	var missing []string
	if strings.TrimSpace(p.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(p.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(p.Prompt) == "" {
		missing = append(missing, "prompt")
	}
	if strings.TrimSpace(string(p.Model)) == "" {
		missing = append(missing, "model")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}

// upsertInto applies an upsert to an in-memory collection.
func (b base) upsertInto(list []models.SavedPrompt, p models.SavedPrompt) ([]models.SavedPrompt, models.SavedPrompt, error) {
	if p.ID == "" {
		p.ID = b.newID()
	}
	if err := Validate(p); err != nil {
		return nil, models.SavedPrompt{}, err
	}

	now := b.timestamp()
	if p.Categories == nil {
		p.Categories = map[string]string{}
	}

	for i, existing := range list {
		if existing.ID != p.ID {
			continue
		}
		if p.Version != 0 && p.Version != existing.Version {
			return nil, models.SavedPrompt{}, fmt.Errorf("%w: %s has version %d, got %d", ErrVersionConflict, p.ID, existing.Version, p.Version)
		}
		p.CreatedAt = existing.CreatedAt
		p.UpdatedAt = now
		p.Version = existing.Version + 1
		out := append([]models.SavedPrompt(nil), list...)
		out[i] = p
		return out, p, nil
	}

	if p.CreatedAt == "" {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.Version = 1
	return append(append([]models.SavedPrompt(nil), list...), p), p, nil
}

// importInto validates candidates, fills defaults and appends survivors.
// Colliding ids are re-issued.
func (b base) importInto(list []models.SavedPrompt, records []models.SavedPrompt) ([]models.SavedPrompt, ImportResult) {
	taken := make(map[string]bool, len(list)+len(records))
	for _, p := range list {
		taken[p.ID] = true
	}

	out := append([]models.SavedPrompt(nil), list...)
	var result ImportResult
	now := b.timestamp()

	for _, p := range records {
		if Validate(p) != nil {
			result.Dropped++
			continue
		}
		for taken[p.ID] {
			p.ID = b.newID()
		}
		taken[p.ID] = true

		if p.Categories == nil {
			p.Categories = map[string]string{}
		}
		if p.CreatedAt == "" {
			p.CreatedAt = now
		}
		if p.UpdatedAt == "" {
			p.UpdatedAt = p.CreatedAt
		}
		p.Version = 1

		out = append(out, p)
		result.Imported++
	}
	return out, result
}

func find(list []models.SavedPrompt, id string) (models.SavedPrompt, error) {
	for _, p := range list {
		if p.ID == id {
			return p, nil
		}
	}
	return models.SavedPrompt{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Open returns the store for driver, "json" or "sqlite".
func Open(driver, path string, opts ...Option) (Repository, error) {
	switch driver {
	case "", "json":
		return NewFileStore(path, opts...), nil
	case "sqlite":
		return NewSQLiteStore(path, opts...)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
