package timeouts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestConfigureKeepsZeroFields(t *testing.T) {
	defer Reset()
	Configure(Config{Short: time.Second})
	if Short() != time.Second {
		t.Errorf("Short = %v, want 1s", Short())
	}
	if Long() != Defaults.Long {
		t.Errorf("Long = %v, want default %v", Long(), Defaults.Long)
	}
	Reset()
	if Current() != Defaults {
		t.Errorf("Current after Reset = %+v", Current())
	}
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), time.Millisecond, zap.NewNop(), "test")
	<-ctx.Done()
	cancel()
	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("ctx.Err = %v", ctx.Err())
	}
}
