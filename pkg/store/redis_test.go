//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

// setupRedisContainer starts a Redis container for testing
func setupRedisContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	endpoint, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}

	// Strip "redis://" prefix if present
	addr := endpoint
	if len(endpoint) > 8 && endpoint[:8] == "redis://" {
		addr = endpoint[8:]
	}

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(redisContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return addr
}

func TestRedisStore_New_Success(t *testing.T) {
	addr := setupRedisContainer(t)

	s, err := NewRedisStore(addr, "", 0, 3)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer s.Close()

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestRedisStore_New_InvalidParams(t *testing.T) {
	if _, err := NewRedisStore("", "", 0, 3); err == nil {
		t.Error("expected error for empty address")
	}
	if _, err := NewRedisStore("localhost:6379", "", -1, 3); err == nil {
		t.Error("expected error for negative db")
	}
	if _, err := NewRedisStore("localhost:6379", "", 0, 0); err == nil {
		t.Error("expected error for zero retention")
	}
}

func TestRedisStore_PutGetRoundTrip(t *testing.T) {
	addr := setupRedisContainer(t)
	s, err := NewRedisStore(addr, "", 0, 3)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
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
	if len(got.Scenarios) != 1 || got.Scenarios[0].Series.Values[0] != 42 {
		t.Errorf("scenario payload did not survive the round trip: %+v", got.Scenarios)
	}
}

func TestRedisStore_GetLatest_NotFound(t *testing.T) {
	addr := setupRedisContainer(t)
	s, err := NewRedisStore(addr, "", 0, 3)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer s.Close()

	_, found, err := s.GetLatest(context.Background(), "nonexistent")
	if err != nil {
		t.Errorf("GetLatest() unexpected error = %v", err)
	}
	if found {
		t.Error("GetLatest() found = true for unknown model")
	}
}

func TestRedisStore_Retention(t *testing.T) {
	addr := setupRedisContainer(t)
	retention := 3
	s, err := NewRedisStore(addr, "", 0, retention)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i <= retention; i++ {
		if err := s.Put(ctx, testEntry("eceps", base.Add(time.Duration(i*6)*time.Hour))); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	latest, found, err := s.GetLatest(ctx, "eceps")
	if err != nil || !found {
		t.Fatalf("GetLatest() = found %v, err %v", found, err)
	}
	if want := base.Add(18 * time.Hour); !latest.Issue.Equal(want) {
		t.Errorf("GetLatest() issue = %v, want %v", latest.Issue, want)
	}

	if _, found, _ := s.Get(ctx, "eceps", base); found {
		t.Error("oldest entry should have been evicted from redis")
	}

	issues, err := s.IssueTimes(ctx, "eceps")
	if err != nil {
		t.Fatalf("IssueTimes() error = %v", err)
	}
	if len(issues) != retention {
		t.Errorf("IssueTimes() returned %d, want %d", len(issues), retention)
	}
}

func TestRedisStore_InvalidModelName(t *testing.T) {
	addr := setupRedisContainer(t)
	s, err := NewRedisStore(addr, "", 0, 3)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer s.Close()

	e := testEntry("bad model!", time.Now())
	if err := s.Put(context.Background(), e); err == nil {
		t.Error("Put() with invalid model name should fail")
	}
}

func TestRedisStore_Close_Idempotent(t *testing.T) {
	addr := setupRedisContainer(t)
	s, err := NewRedisStore(addr, "", 0, 3)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
