package location

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFetchPathSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dl-tasks.yml")
	if err := os.WriteFile(path, []byte("tasks: []\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f := New()
	got, err := f.Fetch(context.Background(), dir, Location{Kind: KindPath, At: "dl-tasks.yml"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 result, got %d", len(got))
	}
	if string(got[0].Body) != "tasks: []\n" {
		t.Errorf("unexpected body: %q", got[0].Body)
	}
}

func TestFetchPathRecurseSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.sh", "a.sh", "c.sh"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	f := New()
	got, err := f.Fetch(context.Background(), dir, Location{Kind: KindPath, At: ".", Recurse: true})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 results, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Path > got[i].Path {
			t.Errorf("results not sorted: %q before %q", got[i-1].Path, got[i].Path)
		}
	}
}

func TestFetchPathDirectoryWithoutRecurseFails(t *testing.T) {
	dir := t.TempDir()
	f := New()
	_, err := f.Fetch(context.Background(), dir, Location{Kind: KindPath, At: "."})
	if err == nil {
		t.Fatal("expected error fetching a directory without recurse")
	}
}

func TestFetchCollapsesConcurrentReads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "helper.sh")
	if err := os.WriteFile(path, []byte("echo hi\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f := New()
	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := f.Fetch(context.Background(), dir, Location{Kind: KindPath, At: "helper.sh"})
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent Fetch: %v", err)
		}
	}
}
