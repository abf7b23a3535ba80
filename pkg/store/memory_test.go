package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gridpulse/resload/pkg/forecast"
	"github.com/gridpulse/resload/pkg/scenario"
)

func testEntry(model string, issue time.Time) Entry {
	return Entry{
		Model: model,
		Issue: issue,
		Scenarios: []scenario.Residual{
			{
				Model: model,
				Issue: issue,
				Kind:  scenario.KindPercentile,
				Label: "P90",
				Series: forecast.HourlySeries{
					Start:  issue,
					Values: []float64{42, 43, 44},
				},
			},
		},
		ComputedAt: time.Now().UTC(),
	}
}

func TestNewMemoryStore(t *testing.T) {
	s := NewMemoryStore(3)
	if s == nil {
		t.Fatal("NewMemoryStore() returned nil")
	}
	if s.Len() != 0 {
		t.Errorf("new store should be empty, got %d entries", s.Len())
	}
}

func TestNewMemoryStore_InvalidRetention(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewMemoryStore(0) should panic")
		}
	}()
	NewMemoryStore(0)
}

func TestMemoryStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)
	issue := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	if err := s.Put(ctx, testEntry("eceps", issue)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, found, err := s.Get(ctx, "eceps", issue)
	if err != nil || !found {
		t.Fatalf("Get() = found %v, err %v", found, err)
	}
	if got.Model != "eceps" || !got.Issue.Equal(issue) {
		t.Errorf("Get() = %s/%v, want eceps/%v", got.Model, got.Issue, issue)
	}
	if len(got.Scenarios) != 1 || got.Scenarios[0].Label != "P90" {
		t.Errorf("Get() scenarios = %+v, want one P90 row", got.Scenarios)
	}
}

func TestMemoryStore_Put_EmptyModel(t *testing.T) {
	s := NewMemoryStore(3)
	if err := s.Put(context.Background(), Entry{}); err == nil {
		t.Error("Put() with empty model should fail")
	}
}

func TestMemoryStore_GetLatest(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Insert out of order; latest must win regardless.
	for _, h := range []int{6, 18, 12} {
		if err := s.Put(ctx, testEntry("eceps", base.Add(time.Duration(h)*time.Hour))); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	got, found, err := s.GetLatest(ctx, "eceps")
	if err != nil || !found {
		t.Fatalf("GetLatest() = found %v, err %v", found, err)
	}
	if want := base.Add(18 * time.Hour); !got.Issue.Equal(want) {
		t.Errorf("GetLatest() issue = %v, want %v", got.Issue, want)
	}
}

func TestMemoryStore_GetLatest_NotFound(t *testing.T) {
	s := NewMemoryStore(3)
	_, found, err := s.GetLatest(context.Background(), "nonexistent")
	if err != nil {
		t.Errorf("GetLatest() unexpected error = %v", err)
	}
	if found {
		t.Error("GetLatest() found = true for unknown model, want false")
	}
}

func TestMemoryStore_Retention(t *testing.T) {
	ctx := context.Background()
	retention := 3
	s := NewMemoryStore(retention)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// K+1 entries: the oldest must be evicted.
	for i := 0; i <= retention; i++ {
		if err := s.Put(ctx, testEntry("eceps", base.Add(time.Duration(i*6)*time.Hour))); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	latest, found, _ := s.GetLatest(ctx, "eceps")
	if !found || !latest.Issue.Equal(base.Add(18*time.Hour)) {
		t.Errorf("GetLatest() issue = %v, want newest", latest.Issue)
	}

	if _, found, _ := s.Get(ctx, "eceps", base); found {
		t.Error("oldest entry should have been evicted")
	}

	issues, err := s.IssueTimes(ctx, "eceps")
	if err != nil {
		t.Fatalf("IssueTimes() error = %v", err)
	}
	if len(issues) != retention {
		t.Errorf("IssueTimes() returned %d, want %d", len(issues), retention)
	}
	for i := 1; i < len(issues); i++ {
		if !issues[i].Before(issues[i-1]) {
			t.Errorf("IssueTimes() not most-recent-first: %v", issues)
		}
	}
}

func TestMemoryStore_SameIssueReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)
	issue := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	e := testEntry("eceps", issue)
	if err := s.Put(ctx, e); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	e.Scenarios[0].Label = "P10"
	if err := s.Put(ctx, e); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after re-put of same issue", s.Len())
	}
	got, _, _ := s.Get(ctx, "eceps", issue)
	if got.Scenarios[0].Label != "P10" {
		t.Errorf("re-put did not replace entry, label = %q", got.Scenarios[0].Label)
	}
}

func TestMemoryStore_ModelsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)
	issue := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	if err := s.Put(ctx, testEntry("eceps", issue)); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, testEntry("gfsens", issue.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	e1, found1, _ := s.GetLatest(ctx, "eceps")
	e2, found2, _ := s.GetLatest(ctx, "gfsens")
	if !found1 || !found2 {
		t.Fatal("both models should have entries")
	}
	if e1.Model == e2.Model {
		t.Error("models should be stored independently")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	models := []string{"eceps", "ec46", "gfsens"}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				model := models[i%len(models)]
				issue := base.Add(time.Duration(i) * time.Hour)
				if err := s.Put(ctx, testEntry(model, issue)); err != nil {
					t.Errorf("worker %d: Put() error = %v", w, err)
					return
				}
				if _, _, err := s.GetLatest(ctx, model); err != nil {
					t.Errorf("worker %d: GetLatest() error = %v", w, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for _, model := range models {
		if _, found, _ := s.GetLatest(ctx, model); !found {
			t.Errorf("model %s should have an entry after concurrent writes", model)
		}
	}
}

func TestMemoryStore_ContextCanceled(t *testing.T) {
	s := NewMemoryStore(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Put(ctx, testEntry("eceps", time.Now())); err == nil {
		t.Error("Put() with canceled context should fail")
	}
	if _, _, err := s.GetLatest(ctx, "eceps"); err == nil {
		t.Error("GetLatest() with canceled context should fail")
	}
}

func BenchmarkMemoryStore_Put(b *testing.B) {
	ctx := context.Background()
	s := NewMemoryStore(8)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		model := fmt.Sprintf("model-%d", i%4)
		_ = s.Put(ctx, testEntry(model, base.Add(time.Duration(i)*time.Hour)))
	}
}
