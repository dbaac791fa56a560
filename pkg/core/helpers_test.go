package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stepClock advances by step on every reading
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	return newTestStoreWith(t, Config{Now: newStepClock(time.Millisecond).Now})
}

func newTestStoreWith(t *testing.T, cfg Config) *SQLiteStore {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = MemoryPath
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
