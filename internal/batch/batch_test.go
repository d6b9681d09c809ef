package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/promptsmith/sdprompt/internal/models"
)

type countingAnalyzer struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	fail     map[string]bool
}

func (a *countingAnalyzer) AnalyzeImage(_ context.Context, imageData, model string) (models.AnalysisResult, error) {
	a.calls.Add(1)
	n := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	for {
		max := a.maxSeen.Load()
		if n <= max || a.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}

	if a.fail[imageData] {
		return models.AnalysisResult{}, errors.New("upstream exploded")
	}
	return models.AnalysisResult{
		Composition:     "composition of " + imageData,
		Lighting:        "lighting",
		Colors:          "colors",
		Style:           "style",
		SuggestedPrompt: "prompt for " + imageData,
	}, nil
}

func newTestManager(a Analyzer) *Manager {
	n := 0
	return NewManager(a, Config{
		NewID: func() string {
			n++
			return fmt.Sprintf("batch-%d", n)
		},
		Pick: func(int) int { return 0 },
	})
}

func TestAddImageLimit(t *testing.T) {
	m := newTestManager(&countingAnalyzer{})
	b := m.Create("llava")

	for i := range DefaultMaxImages {
		img, err := m.AddImage(b.ID, fmt.Sprintf("img-%d", i))
		if err != nil {
			t.Fatalf("AddImage(%d) error = %v", i, err)
		}
		if img.ID != int64(i+1) {
			t.Errorf("image ID = %d, want %d", img.ID, i+1)
		}
	}

	if _, err := m.AddImage(b.ID, "one too many"); !errors.Is(err, ErrBatchFull) {
		t.Errorf("AddImage() error = %v, want ErrBatchFull", err)
	}
	if _, err := m.AddImage(b.ID, " "); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("AddImage() error = %v, want ErrEmptyImage", err)
	}
	if _, err := m.AddImage("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddImage() error = %v, want ErrNotFound", err)
	}
}

func TestAnalyzeAllIsSequential(t *testing.T) {
	analyzer := &countingAnalyzer{fail: map[string]bool{"img-2": true}}
	m := newTestManager(analyzer)
	b := m.Create("llava")

	const n = 5
	for i := range n {
		m.AddImage(b.ID, fmt.Sprintf("img-%d", i))
	}

	summary, err := m.AnalyzeAll(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("AnalyzeAll() error = %v", err)
	}

	if got := analyzer.calls.Load(); got != n {
		t.Errorf("analyze calls = %d, want %d", got, n)
	}
	if got := analyzer.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent analyze calls = %d, want 1", got)
	}
	if summary.Analyzed != n-1 || summary.Failed != 1 {
		t.Errorf("summary = %d analyzed, %d failed", summary.Analyzed, summary.Failed)
	}
	for _, img := range summary.Batch.Images {
		if img.IsAnalyzing {
			t.Errorf("image %d still marked analyzing", img.ID)
		}
		if img.ImageData == "img-2" && img.Error == "" {
			t.Error("failed image has no error")
		}
	}

	again, err := m.AnalyzeAll(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("AnalyzeAll() error = %v", err)
	}
	if got := analyzer.calls.Load(); got != n+1 {
		t.Errorf("second run made %d calls in total, want only the failed image retried", got)
	}
	if again.Failed != 1 {
		t.Errorf("second run failed = %d", again.Failed)
	}
}

type gatedAnalyzer struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (a *gatedAnalyzer) AnalyzeImage(ctx context.Context, imageData, model string) (models.AnalysisResult, error) {
	a.mu.Lock()
	a.calls++
	call := a.calls
	a.mu.Unlock()

	if call == 1 {
		close(a.started)
		<-a.release
		return models.AnalysisResult{SuggestedPrompt: "stale"}, nil
	}
	return models.AnalysisResult{SuggestedPrompt: "fresh"}, nil
}

func TestSupersededResultDiscarded(t *testing.T) {
	analyzer := &gatedAnalyzer{started: make(chan struct{}), release: make(chan struct{})}
	m := newTestManager(analyzer)
	b := m.Create("llava")
	img, _ := m.AddImage(b.ID, "img")

	firstErr := make(chan error, 1)
	go func() {
		_, err := m.Analyze(context.Background(), b.ID, img.ID)
		firstErr <- err
	}()
	<-analyzer.started

	fresh, err := m.Analyze(context.Background(), b.ID, img.ID)
	if err != nil {
		t.Fatalf("second Analyze() error = %v", err)
	}
	if fresh.Analysis.SuggestedPrompt != "fresh" {
		t.Errorf("second Analyze() = %+v", fresh.Analysis)
	}

	close(analyzer.release)
	if err := <-firstErr; !errors.Is(err, ErrSuperseded) {
		t.Errorf("first Analyze() error = %v, want ErrSuperseded", err)
	}

	got, _ := m.Get(b.ID)
	if got.Images[0].Analysis.SuggestedPrompt != "fresh" {
		t.Errorf("stored analysis = %q, want fresh", got.Images[0].Analysis.SuggestedPrompt)
	}
}

func TestMixAndRemove(t *testing.T) {
	m := newTestManager(&countingAnalyzer{})
	b := m.Create("llava")
	first, _ := m.AddImage(b.ID, "a")
	m.AddImage(b.ID, "b")

	if _, err := m.Mix(b.ID); !errors.Is(err, ErrNotEnoughAnalyses) {
		t.Errorf("Mix() before analysis error = %v, want ErrNotEnoughAnalyses", err)
	}

	if _, err := m.AnalyzeAll(context.Background(), b.ID); err != nil {
		t.Fatalf("AnalyzeAll() error = %v", err)
	}

	mixed, err := m.Mix(b.ID)
	if err != nil {
		t.Fatalf("Mix() error = %v", err)
	}
	if mixed.Composition != "composition of a" {
		t.Errorf("Composition = %q", mixed.Composition)
	}

	got, _ := m.Get(b.ID)
	if got.Mixed == nil {
		t.Fatal("mixed result not stored")
	}

	if err := m.RemoveImage(b.ID, first.ID); err != nil {
		t.Fatalf("RemoveImage() error = %v", err)
	}
	got, _ = m.Get(b.ID)
	if got.Mixed != nil {
		t.Error("mixed result not cleared after removal")
	}
	if len(got.Images) != 1 {
		t.Errorf("images = %d, want 1", len(got.Images))
	}
	if err := m.RemoveImage(b.ID, first.ID); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("RemoveImage() error = %v, want ErrImageNotFound", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	m := newTestManager(&countingAnalyzer{})
	b := m.Create("llava")
	img, _ := m.AddImage(b.ID, "a")
	analyzed, err := m.Analyze(context.Background(), b.ID, img.ID)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	analyzed.Analysis.Style = "mutated"

	got, _ := m.Get(b.ID)
	if got.Images[0].Analysis.Style != "style" {
		t.Error("caller mutation leaked into the stored batch")
	}
}
