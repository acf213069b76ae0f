// Package testutil provides in-memory backends, fixtures and HTTP helpers
// for package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/handspm/internal/app/system/docstore/memstore"
)

// SetupTestDB returns a fresh in-memory document store.
func SetupTestDB(t *testing.T) *memstore.Store {
	t.Helper()
	return memstore.New()
}

// TestContext returns a context with a generous timeout for tests.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// Eventually polls cond until it returns true or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
