package testutil

import (
	"context"
	"testing"
	"time"
)

// TestContext returns a context bounded for slow integration tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)
	return ctx
}
