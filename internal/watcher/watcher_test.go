package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interlink/internal/logger"
)

type changes struct {
	mu    sync.Mutex
	paths []string
}

func (c *changes) add(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *changes) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func startWatcher(t *testing.T, paths []string, c *changes) context.CancelFunc {
	t.Helper()
	w := New(paths, c.add, logger.NewTestLogger()).WithDebounce(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Watch(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give fsnotify time to register the directories
	time.Sleep(50 * time.Millisecond)
	return cancel
}

func TestWatcher_DetectsWrite(t *testing.T) {
	dir := t.TempDir()
	table := filepath.Join(dir, "oracle.yaml")
	require.NoError(t, os.WriteFile(table, []byte("protocols: {}\n"), 0644))

	c := &changes{}
	startWatcher(t, []string{table}, c)

	require.NoError(t, os.WriteFile(table, []byte("protocols:\n  http: [http]\n"), 0644))

	require.Eventually(t, func() bool { return len(c.get()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, table, c.get()[0])
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	table := filepath.Join(dir, "oracle.yaml")
	require.NoError(t, os.WriteFile(table, nil, 0644))

	c := &changes{}
	startWatcher(t, []string{table}, c)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(table, []byte{byte('a' + i)}, 0644))
	}

	require.Eventually(t, func() bool { return len(c.get()) >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, c.get(), 1)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	table := filepath.Join(dir, "oracle.yaml")
	inventory := filepath.Join(dir, "inventory.yaml")
	require.NoError(t, os.WriteFile(table, nil, 0644))

	c := &changes{}
	startWatcher(t, []string{table, inventory}, c)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(inventory, []byte("systems: []\n"), 0644))

	require.Eventually(t, func() bool { return len(c.get()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{inventory}, c.get())
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	w := New([]string{filepath.Join(t.TempDir(), "x.yaml")}, func(string) {}, logger.NewTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Watch(ctx), context.Canceled)
}
