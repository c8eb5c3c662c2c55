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
)

const testDebounce = 50 * time.Millisecond

// collector gathers change batches for assertions.
type collector struct {
	mu      sync.Mutex
	batches [][]ChangeEvent
}

func (c *collector) handle(events []ChangeEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, events)
	return nil
}

func (c *collector) allEvents() []ChangeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ChangeEvent
	for _, batch := range c.batches {
		out = append(out, batch...)
	}
	return out
}

func (c *collector) waitForEvents(t *testing.T, min int) []ChangeEvent {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if events := c.allEvents(); len(events) >= min {
			return events
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %v", min, c.allEvents())
	return nil
}

func startWatcher(t *testing.T, root string) (*ContentWatcher, *collector) {
	t.Helper()

	cw, err := New(root, testDebounce, nil)
	require.NoError(t, err)

	c := &collector{}
	cw.AddHandler(c.handle)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, cw.Start(ctx))
	t.Cleanup(func() { _ = cw.Stop() })

	return cw, c
}

func TestNewRejectsMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), testDebounce, nil)
	assert.Error(t, err)
}

func TestNewRejectsFileRoot(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := New(file, testDebounce, nil)
	assert.Error(t, err)
}

func TestWatcherReportsCreatedFile(t *testing.T) {
	root := t.TempDir()
	_, c := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "page.tmpl"), []byte("x"), 0o644))

	events := c.waitForEvents(t, 1)
	found := false
	for _, e := range events {
		if e.RelPath == "page.tmpl" {
			found = true
		}
	}
	assert.True(t, found, "expected event for page.tmpl, got %v", events)
}

func TestWatcherReportsNestedChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))

	_, c := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "guide.txt"), []byte("x"), 0o644))

	events := c.waitForEvents(t, 1)
	found := false
	for _, e := range events {
		if e.RelPath == "docs/guide.txt" {
			found = true
		}
	}
	assert.True(t, found, "expected event for docs/guide.txt, got %v", events)
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	_, c := startWatcher(t, root)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "blog"), 0o755))
	c.waitForEvents(t, 1)

	// Changes inside a directory created after Start must be observed.
	require.NoError(t, os.WriteFile(filepath.Join(root, "blog", "post.tmpl"), []byte("x"), 0o644))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range c.allEvents() {
			if e.RelPath == "blog/post.tmpl" {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no event for blog/post.tmpl, got %v", c.allEvents())
}

func TestWatcherIgnoresHiddenEntries(t *testing.T) {
	root := t.TempDir()
	_, c := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "_draft.tmpl"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "visible.txt"), []byte("x"), 0o644))

	events := c.waitForEvents(t, 1)
	for _, e := range events {
		assert.Equal(t, "visible.txt", e.RelPath)
	}
}

func TestWatcherDebouncesBurst(t *testing.T) {
	root := t.TempDir()
	_, c := startWatcher(t, root)

	path := filepath.Join(root, "busy.txt")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte(i)}, 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	c.waitForEvents(t, 1)
	time.Sleep(3 * testDebounce)

	c.mu.Lock()
	batches := len(c.batches)
	c.mu.Unlock()
	assert.LessOrEqual(t, batches, 2, "burst of writes should coalesce into few batches")

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, batch := range c.batches {
		seen := make(map[string]bool)
		for _, e := range batch {
			assert.False(t, seen[e.RelPath], "paths within a batch are deduplicated")
			seen[e.RelPath] = true
		}
	}
}

func TestWatcherReportsDeletion(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "doomed.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, c := startWatcher(t, root)
	require.NoError(t, os.Remove(path))

	events := c.waitForEvents(t, 1)
	found := false
	for _, e := range events {
		if e.RelPath == "doomed.txt" && e.Type == EventTypeDeleted {
			found = true
		}
	}
	assert.True(t, found, "expected deletion event, got %v", events)
}

func TestAddRecursiveRejectsOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	cw, err := New(root, testDebounce, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cw.Stop() })

	assert.Error(t, cw.AddRecursive(outside))
}

func TestHiddenPath(t *testing.T) {
	assert.True(t, hiddenPath("_drafts/a.txt"))
	assert.True(t, hiddenPath("docs/_internal/b.txt"))
	assert.True(t, hiddenPath(".git/config"))
	assert.False(t, hiddenPath("docs/guide.txt"))
	assert.False(t, hiddenPath("a_b/c.txt"))
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "created", EventTypeCreated.String())
	assert.Equal(t, "modified", EventTypeModified.String())
	assert.Equal(t, "deleted", EventTypeDeleted.String())
	assert.Equal(t, "renamed", EventTypeRenamed.String())
	assert.Equal(t, "unknown", EventType(42).String())
}
