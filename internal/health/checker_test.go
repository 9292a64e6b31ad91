package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

func TestChecker_Check_Shallow(t *testing.T) {
	checker := NewChecker(DefaultConfig("test-service", testLogger()))
	checker.Register("database", func(ctx context.Context) error { return nil })

	status := checker.Check(context.Background(), false)

	if status.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", status.Status)
	}
	if status.Service != "test-service" {
		t.Errorf("Service = %s, want test-service", status.Service)
	}
	if len(status.Checks) != 0 {
		t.Errorf("Checks should be empty for shallow check, got %d", len(status.Checks))
	}
}

func TestChecker_Check_Deep_AllHealthy(t *testing.T) {
	config := &Config{
		ServiceName:    "test-service",
		Logger:         testLogger(),
		CacheTTL:       time.Second,
		CheckTimeout:   time.Second,
		DeepCheckLimit: time.Millisecond,
	}
	checker := NewChecker(config)
	checker.Register("database", func(ctx context.Context) error { return nil })
	checker.Register("queue", func(ctx context.Context) error { return nil })
	checker.Register("storage", func(ctx context.Context) error { return nil })

	status := checker.Check(context.Background(), true)

	if status.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", status.Status)
	}
	if len(status.Checks) != 3 {
		t.Errorf("Checks should have 3 entries, got %d", len(status.Checks))
	}
	for name, check := range status.Checks {
		if check.Status != "healthy" {
			t.Errorf("%s check status = %s, want healthy", name, check.Status)
		}
	}
}

func TestChecker_Check_Deep_DependencyUnhealthy(t *testing.T) {
	config := &Config{
		ServiceName:    "test-service",
		Logger:         testLogger(),
		CacheTTL:       time.Second,
		CheckTimeout:   time.Second,
		DeepCheckLimit: time.Millisecond,
	}
	checker := NewChecker(config)
	checker.Register("database", func(ctx context.Context) error { return errors.New("connection refused") })
	checker.Register("queue", func(ctx context.Context) error { return nil })

	status := checker.Check(context.Background(), true)

	if status.Status != "degraded" {
		t.Errorf("Status = %s, want degraded", status.Status)
	}
	if status.Checks["database"].Status != "unhealthy" {
		t.Errorf("database check status = %s, want unhealthy", status.Checks["database"].Status)
	}
	if status.Checks["database"].Error != "connection refused" {
		t.Errorf("database check error = %s, want 'connection refused'", status.Checks["database"].Error)
	}
	if status.Checks["queue"].Status != "healthy" {
		t.Errorf("queue check status = %s, want healthy", status.Checks["queue"].Status)
	}
}

func TestChecker_Check_Caching(t *testing.T) {
	config := &Config{
		ServiceName:    "test-service",
		Logger:         testLogger(),
		CacheTTL:       time.Hour,
		CheckTimeout:   time.Second,
		DeepCheckLimit: time.Millisecond,
	}
	checker := NewChecker(config)

	calls := 0
	checker.Register("database", func(ctx context.Context) error {
		calls++
		return nil
	})

	status1 := checker.Check(context.Background(), false)
	status2 := checker.Check(context.Background(), false)

	if status1.Timestamp != status2.Timestamp {
		t.Error("cached result should have same timestamp")
	}
	if calls != 0 {
		t.Errorf("shallow checks must not run probes, got %d calls", calls)
	}
}

func TestChecker_CheckTimeoutApplied(t *testing.T) {
	config := &Config{
		ServiceName:    "test-service",
		Logger:         testLogger(),
		CacheTTL:       time.Second,
		CheckTimeout:   20 * time.Millisecond,
		DeepCheckLimit: time.Millisecond,
	}
	checker := NewChecker(config)
	checker.Register("database", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := checker.Check(context.Background(), true)

	if status.Status != "degraded" {
		t.Errorf("Status = %s, want degraded", status.Status)
	}
	if status.Checks["database"].Status != "unhealthy" {
		t.Errorf("database check status = %s, want unhealthy", status.Checks["database"].Status)
	}
}

func TestChecker_CanPerformDeepCheck(t *testing.T) {
	checker := NewChecker(&Config{
		ServiceName:    "test-service",
		DeepCheckLimit: 50 * time.Millisecond,
	})

	if !checker.CanPerformDeepCheck() {
		t.Error("CanPerformDeepCheck() = false initially")
	}

	checker.RecordDeepCheck()

	if checker.CanPerformDeepCheck() {
		t.Error("CanPerformDeepCheck() = true immediately after recording")
	}

	time.Sleep(60 * time.Millisecond)

	if !checker.CanPerformDeepCheck() {
		t.Error("CanPerformDeepCheck() = false after limit passed")
	}
}

func TestChecker_Handler(t *testing.T) {
	checker := NewChecker(DefaultConfig("test-service", testLogger()))

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()

	checker.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Handler returned %d, want %d", rr.Code, http.StatusOK)
	}

	var status Status
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if status.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", status.Status)
	}
}

func TestChecker_DeepHandler_RateLimited(t *testing.T) {
	config := &Config{
		ServiceName:    "test-service",
		Logger:         testLogger(),
		CacheTTL:       time.Second,
		CheckTimeout:   time.Second,
		DeepCheckLimit: time.Hour,
	}
	checker := NewChecker(config)
	checker.RecordDeepCheck()

	req := httptest.NewRequest("GET", "/health/deep", nil)
	rr := httptest.NewRecorder()

	checker.DeepHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Handler returned %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if rr.Header().Get("Retry-After") != "10" {
		t.Errorf("Retry-After = %s, want 10", rr.Header().Get("Retry-After"))
	}
}

func TestChecker_DeepHandler_Degraded(t *testing.T) {
	config := &Config{
		ServiceName:    "test-service",
		Logger:         testLogger(),
		CacheTTL:       time.Second,
		CheckTimeout:   time.Second,
		DeepCheckLimit: time.Millisecond,
	}
	checker := NewChecker(config)
	checker.Register("storage", func(ctx context.Context) error { return errors.New("bucket missing") })

	req := httptest.NewRequest("GET", "/health/deep", nil)
	rr := httptest.NewRecorder()

	checker.DeepHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Handler returned %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}
