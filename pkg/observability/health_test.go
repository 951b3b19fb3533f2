package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
)

func TestNewHealthChecker(t *testing.T) {
	t.Run("with nil dependencies", func(t *testing.T) {
		checker := NewHealthChecker(nil, nil)
		if checker == nil {
			t.Fatal("expected non-nil checker")
		}
		if checker.db != nil {
			t.Error("expected nil db")
		}
		if checker.redis != nil {
			t.Error("expected nil redis")
		}
	})
}

func TestHealthCheck(t *testing.T) {
	t.Run("no dependencies is healthy", func(t *testing.T) {
		checker := NewHealthChecker(nil, nil)
		status := checker.Check(context.Background())
		if status.Status != StatusHealthy {
			t.Errorf("expected %s, got %s", StatusHealthy, status.Status)
		}
		if len(status.Dependencies) != 0 {
			t.Errorf("expected no dependency entries, got %d", len(status.Dependencies))
		}
	})

	t.Run("healthy database and redis", func(t *testing.T) {
		db, err := sql.Open("sqlite3", ":memory:")
		if err != nil {
			t.Fatalf("failed to open sqlite: %v", err)
		}
		defer db.Close()

		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("failed to start miniredis: %v", err)
		}
		defer mr.Close()
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		checker := NewHealthChecker(db, client)
		status := checker.Check(context.Background())
		if status.Status != StatusHealthy {
			t.Errorf("expected %s, got %s", StatusHealthy, status.Status)
		}
		if status.Dependencies["realm_db"].Status != StatusHealthy {
			t.Error("expected healthy realm_db")
		}
		if status.Dependencies["ban_redis"].Status != StatusHealthy {
			t.Error("expected healthy ban_redis")
		}
	})

	t.Run("unreachable redis is unhealthy", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("failed to start miniredis: %v", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		mr.Close()

		checker := NewHealthChecker(nil, client)
		status := checker.Check(context.Background())
		if status.Status != StatusUnhealthy {
			t.Errorf("expected %s, got %s", StatusUnhealthy, status.Status)
		}
		dep := status.Dependencies["ban_redis"]
		if dep.Status != StatusUnhealthy || dep.Message == "" {
			t.Errorf("expected unhealthy ban_redis with message, got %+v", dep)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("liveness always 200", func(t *testing.T) {
		checker := NewHealthChecker(nil, nil)
		rr := httptest.NewRecorder()
		checker.Liveness(rr, httptest.NewRequest("GET", "/health/live", nil))
		if rr.Code != 200 {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("readiness reports 503 on failure", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("failed to start miniredis: %v", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		mr.Close()

		checker := NewHealthChecker(nil, client)
		rr := httptest.NewRecorder()
		checker.Readiness(rr, httptest.NewRequest("GET", "/health/ready", nil))
		if rr.Code != 503 {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
		var status HealthStatus
		if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if status.Status != StatusUnhealthy {
			t.Errorf("expected %s, got %s", StatusUnhealthy, status.Status)
		}
	})
}
