package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T, root string, onChange func([]string)) *Watcher {
	t.Helper()
	config := DefaultConfig()
	config.DebounceMs = 50
	w, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), root, config, onChange)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestWatcher_ReportsChanges(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "blog"), 0755); err != nil {
		t.Fatal(err)
	}

	changes := make(chan []string, 4)
	w := newTestWatcher(t, root, func(paths []string) { changes <- paths })
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "blog", "post.gohtml"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "blog", "post.gohtml.swp"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case paths := <-changes:
		if !reflect.DeepEqual(paths, []string{"blog/post.gohtml"}) {
			t.Errorf("changed paths = %v", paths)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestWatcher_NewDirectory(t *testing.T) {
	root := t.TempDir()
	changes := make(chan []string, 8)
	w := newTestWatcher(t, root, func(paths []string) { changes <- paths })
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := os.Mkdir(filepath.Join(root, "docs"), 0755); err != nil {
		t.Fatal(err)
	}
	// Let the directory creation flush and the new directory be watched.
	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("directory creation not reported")
	}

	if err := os.WriteFile(filepath.Join(root, "docs", "page.gohtml"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case paths := <-changes:
			for _, p := range paths {
				if p == "docs/page.gohtml" {
					return
				}
			}
		case <-deadline:
			t.Fatal("change in new directory not reported")
		}
	}
}

func TestWatcher_ShouldIgnore(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, root, nil)

	testCases := []struct {
		path string
		want bool
	}{
		{"index.gohtml", false},
		{"blog/post.gohtml", false},
		{"blog/post.gohtml.swp", true},
		{"blog/post.gohtml~", true},
		{".git/HEAD", true},
		{"blog/.#post.gohtml", true},
	}
	for _, tc := range testCases {
		if got := w.shouldIgnore(filepath.Join(root, filepath.FromSlash(tc.path))); got != tc.want {
			t.Errorf("shouldIgnore(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestDebouncer_Batches(t *testing.T) {
	var mu sync.Mutex
	var batches [][]string
	done := make(chan struct{}, 1)
	d := newDebouncer(30*time.Millisecond, func(paths []string) {
		mu.Lock()
		batches = append(batches, paths)
		mu.Unlock()
		done <- struct{}{}
	})

	d.add("b")
	d.add("a")
	d.add("b")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never flushed")
	}

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(batches, [][]string{{"a", "b"}}) {
		t.Errorf("batches = %v", batches)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	called := make(chan struct{}, 1)
	d := newDebouncer(20*time.Millisecond, func([]string) { called <- struct{}{} })
	d.add("a")
	d.stop()
	d.add("b")

	select {
	case <-called:
		t.Error("stopped debouncer flushed")
	case <-time.After(100 * time.Millisecond):
	}
}
