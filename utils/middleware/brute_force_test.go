package middleware

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

// fakeAttemptStore is an in-memory AttemptStore for exercising the lockout
// logic without Redis.
type fakeAttemptStore struct {
	values   map[string]string
	counters map[string]int64
	ttls     map[string]time.Duration
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{
		values:   make(map[string]string),
		counters: make(map[string]int64),
		ttls:     make(map[string]time.Duration),
	}
}

func (f *fakeAttemptStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := f.values[key]
	return ok, nil
}

func (f *fakeAttemptStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return f.ttls[key], nil
}

func (f *fakeAttemptStore) Increment(ctx context.Context, key string) (int64, error) {
	f.counters[key]++
	return f.counters[key], nil
}

func (f *fakeAttemptStore) Expire(ctx context.Context, key string, expiration time.Duration) error {
	f.ttls[key] = expiration
	return nil
}

func (f *fakeAttemptStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.values[key] = fmt.Sprint(value)
	f.ttls[key] = expiration
	return nil
}

func (f *fakeAttemptStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
		delete(f.counters, key)
		delete(f.ttls, key)
	}
	return nil
}

// newProtectedApp wires CheckLockout in front of a route that records a failed
// attempt when asked to, mirroring how the secret handlers use the protection.
func newProtectedApp(bfp *BruteForceProtection) *fiber.App {
	app := fiber.New()
	app.Get("/reveal", bfp.CheckLockout(), func(c *fiber.Ctx) error {
		if c.Query("fail") == "1" {
			bfp.RecordFailedAttempt(c, c.IP(), "openai_api_key")
			return c.SendStatus(fiber.StatusNotFound)
		}
		bfp.RecordSuccessfulAttempt(c, c.IP())
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestLockoutEngagesAfterRepeatedFailures(t *testing.T) {
	store := newFakeAttemptStore()
	bfp := NewBruteForceProtection(store)
	app := newProtectedApp(bfp)

	// First four failures pass through; the fifth sets the lock
	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/reveal?fail=1", nil))
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if resp.StatusCode != fiber.StatusNotFound {
			t.Fatalf("request %d: expected 404 before lockout, got %d", i, resp.StatusCode)
		}
	}

	// Locked out now, even for a request that would succeed
	resp, err := app.Test(httptest.NewRequest("GET", "/reveal", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 after five failures, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header on lockout response")
	}
}

func TestSuccessClearsFailedAttempts(t *testing.T) {
	store := newFakeAttemptStore()
	bfp := NewBruteForceProtection(store)
	app := newProtectedApp(bfp)

	// A few failures, but below the lockout threshold
	for i := 0; i < 3; i++ {
		if _, err := app.Test(httptest.NewRequest("GET", "/reveal?fail=1", nil)); err != nil {
			t.Fatalf("request failed: %v", err)
		}
	}

	// A success resets the counter
	resp, err := app.Test(httptest.NewRequest("GET", "/reveal", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 below the lockout threshold, got %d", resp.StatusCode)
	}
	if len(store.counters) != 0 {
		t.Errorf("expected attempt counter cleared after success, got %v", store.counters)
	}

	// The previous failures no longer count toward a lockout
	for i := 0; i < 4; i++ {
		if _, err := app.Test(httptest.NewRequest("GET", "/reveal?fail=1", nil)); err != nil {
			t.Fatalf("request failed: %v", err)
		}
	}
	resp, err = app.Test(httptest.NewRequest("GET", "/reveal", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 after counter reset, got %d", resp.StatusCode)
	}
}

func TestStoreFailureNeverBlocksRequests(t *testing.T) {
	bfp := NewBruteForceProtection(failingAttemptStore{})
	app := newProtectedApp(bfp)

	resp, err := app.Test(httptest.NewRequest("GET", "/reveal", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected request to pass when the store is down, got %d", resp.StatusCode)
	}
}

type failingAttemptStore struct{}

var errStoreDown = fmt.Errorf("store down")

func (failingAttemptStore) Exists(ctx context.Context, key string) (bool, error) {
	return false, errStoreDown
}

func (failingAttemptStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return 0, errStoreDown
}

func (failingAttemptStore) Increment(ctx context.Context, key string) (int64, error) {
	return 0, errStoreDown
}

func (failingAttemptStore) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return errStoreDown
}

func (failingAttemptStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return errStoreDown
}

func (failingAttemptStore) Delete(ctx context.Context, keys ...string) error {
	return errStoreDown
}
