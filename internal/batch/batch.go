package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/promptsmith/sdprompt/internal/analysis"
	"github.com/promptsmith/sdprompt/internal/models"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxImages = 6
	DefaultTTL       = time.Hour
)

var (
	ErrNotFound          = errors.New("batch not found")
	ErrImageNotFound     = errors.New("image not found")
	ErrBatchFull         = errors.New("batch is full")
	ErrEmptyImage        = errors.New("image data is required")
	ErrNotEnoughAnalyses = errors.New("at least two analyzed images are required")
	ErrSuperseded        = errors.New("analysis superseded by a newer request")
)

// Analyzer analyzes one image.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, imageData, model string) (models.AnalysisResult, error)
}

// Batch is a snapshot of one batch analysis session.
type Batch struct {
	ID        string                     `json:"id"`
	Model     string                     `json:"model"`
	Images    []models.ImageWithAnalysis `json:"images"`
	Mixed     *models.AnalysisResult     `json:"mixed,omitempty"`
	CreatedAt string                     `json:"createdAt"`
}

// Summary reports an AnalyzeAll run.
type Summary struct {
	Analyzed int   `json:"analyzed"`
	Failed   int   `json:"failed"`
	Batch    Batch `json:"batch"`
}

type image struct {
	models.ImageWithAnalysis
	token uint64
}

type session struct {
	mu        sync.Mutex
	id        string
	model     string
	createdAt time.Time
	nextID    int64
	images    []*image
	mixed     *models.AnalysisResult
}

func (s *session) find(imageID int64) *image {
	for _, img := range s.images {
		if img.ID == imageID {
			return img
		}
	}
	return nil
}

// snapshot must be called with s.mu held.
func (s *session) snapshot() Batch {
	b := Batch{
		ID:        s.id,
		Model:     s.model,
		Images:    make([]models.ImageWithAnalysis, 0, len(s.images)),
		CreatedAt: models.Timestamp(s.createdAt),
	}
	for _, img := range s.images {
		b.Images = append(b.Images, copyImage(img))
	}
	if s.mixed != nil {
		mixed := *s.mixed
		b.Mixed = &mixed
	}
	return b
}

func copyImage(img *image) models.ImageWithAnalysis {
	out := img.ImageWithAnalysis
	if img.Analysis != nil {
		result := *img.Analysis
		out.Analysis = &result
	}
	return out
}

// Config controls a Manager.
type Config struct {
	MaxImages int
	// Interval is the minimum gap between upstream analyze calls.
	Interval time.Duration
	TTL      time.Duration
	NewID    func() string
	// Pick chooses an index in [0, n) when mixing.
	Pick func(n int) int
}

// Manager owns the in-memory batch sessions.
type Manager struct {
	analyzer  Analyzer
	sessions  *cache.Cache
	limiter   *rate.Limiter
	maxImages int
	newID     func() string
	pick      func(n int) int
}

func NewManager(analyzer Analyzer, cfg Config) *Manager {
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = DefaultMaxImages
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Pick == nil {
		cfg.Pick = rand.IntN
	}

	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}

	return &Manager{
		analyzer:  analyzer,
		sessions:  cache.New(cfg.TTL, cfg.TTL/2),
		limiter:   rate.NewLimiter(limit, 1),
		maxImages: cfg.MaxImages,
		newID:     cfg.NewID,
		pick:      cfg.Pick,
	}
}

// MaxImages is the per-batch image limit.
func (m *Manager) MaxImages() int {
	return m.maxImages
}

func (m *Manager) session(id string) (*session, error) {
	v, ok := m.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s := v.(*session)
	m.sessions.SetDefault(id, s)
	return s, nil
}

// Create starts an empty batch analyzed with model.
func (m *Manager) Create(model string) Batch {
	s := &session{
		id:        m.newID(),
		model:     model,
		createdAt: time.Now(),
		nextID:    1,
	}
	m.sessions.SetDefault(s.id, s)
	slog.Debug("created batch", "batch", s.id, "model", model)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (m *Manager) Get(id string) (Batch, error) {
	s, err := m.session(id)
	if err != nil {
		return Batch{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Delete drops a batch. Unknown ids are ignored.
func (m *Manager) Delete(id string) {
	m.sessions.Delete(id)
}

// AddImage appends an image to the batch.
func (m *Manager) AddImage(batchID, imageData string) (models.ImageWithAnalysis, error) {
	if strings.TrimSpace(imageData) == "" {
		return models.ImageWithAnalysis{}, ErrEmptyImage
	}
	s, err := m.session(batchID)
	if err != nil {
		return models.ImageWithAnalysis{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.images) >= m.maxImages {
		return models.ImageWithAnalysis{}, fmt.Errorf("%w: limit is %d images", ErrBatchFull, m.maxImages)
	}

	img := &image{ImageWithAnalysis: models.ImageWithAnalysis{ID: s.nextID, ImageData: imageData}}
	s.nextID++
	s.images = append(s.images, img)
	return copyImage(img), nil
}

// RemoveImage drops an image and clears any mixed result.
func (m *Manager) RemoveImage(batchID string, imageID int64) error {
	s, err := m.session(batchID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, img := range s.images {
		if img.ID == imageID {
			s.images = append(s.images[:i], s.images[i+1:]...)
			s.mixed = nil
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrImageNotFound, imageID)
}

// Analyze runs one analysis for an image. A newer request for the same image
// supersedes this one; a superseded result is discarded and ErrSuperseded is
// returned.
func (m *Manager) Analyze(ctx context.Context, batchID string, imageID int64) (models.ImageWithAnalysis, error) {
	s, err := m.session(batchID)
	if err != nil {
		return models.ImageWithAnalysis{}, err
	}

	s.mu.Lock()
	img := s.find(imageID)
	if img == nil {
		s.mu.Unlock()
		return models.ImageWithAnalysis{}, fmt.Errorf("%w: %d", ErrImageNotFound, imageID)
	}
	img.token++
	token := img.token
	img.IsAnalyzing = true
	img.Error = ""
	data, model := img.ImageData, s.model
	s.mu.Unlock()

	var result models.AnalysisResult
	callErr := m.limiter.Wait(ctx)
	if callErr == nil {
		result, callErr = m.analyzer.AnalyzeImage(ctx, data, model)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	img = s.find(imageID)
	if img == nil {
		return models.ImageWithAnalysis{}, fmt.Errorf("%w: %d", ErrImageNotFound, imageID)
	}
	if img.token != token {
		slog.Debug("discarding superseded analysis", "batch", batchID, "image", imageID)
		return copyImage(img), ErrSuperseded
	}

	img.IsAnalyzing = false
	if callErr != nil {
		img.Error = callErr.Error()
		return copyImage(img), callErr
	}
	img.Analysis = &result
	return copyImage(img), nil
}

// AnalyzeAll analyzes every image that has no analysis and none in progress,
// one at a time.
func (m *Manager) AnalyzeAll(ctx context.Context, batchID string) (Summary, error) {
	s, err := m.session(batchID)
	if err != nil {
		return Summary{}, err
	}

	s.mu.Lock()
	var pending []int64
	for _, img := range s.images {
		if img.Analysis == nil && !img.IsAnalyzing {
			pending = append(pending, img.ID)
		}
	}
	s.mu.Unlock()

	var summary Summary
	for _, id := range pending {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		_, err := m.Analyze(ctx, batchID, id)
		switch {
		case err == nil:
			summary.Analyzed++
		case errors.Is(err, ErrSuperseded), errors.Is(err, ErrImageNotFound):
		default:
			slog.Warn("batch image analysis failed", "batch", batchID, "image", id, "err", err)
			summary.Failed++
		}
	}

	s.mu.Lock()
	summary.Batch = s.snapshot()
	s.mu.Unlock()
	return summary, nil
}

// Mix combines the analyzed images into one result and stores it on the
// batch.
func (m *Manager) Mix(batchID string) (models.AnalysisResult, error) {
	s, err := m.session(batchID)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var results []models.AnalysisResult
	for _, img := range s.images {
		if img.Analysis != nil {
			results = append(results, *img.Analysis)
		}
	}
	if len(results) < 2 {
		return models.AnalysisResult{}, ErrNotEnoughAnalyses
	}

	mixed, err := analysis.Mix(results, m.pick)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	s.mixed = &mixed
	return mixed, nil
}
