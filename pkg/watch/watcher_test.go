package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLinkFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.txt")
	content := `# dropped by the phone shortcut
https://instagram.com/reel/abc123/

https://www.instagram.com/p/xyz_9/
not a link
https://youtube.com/watch?v=zzz
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	urls, err := ParseLinkFile(path)
	if err != nil {
		t.Fatalf("ParseLinkFile: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("urls = %d, want 2: %v", len(urls), urls)
	}
	if urls[0] != "https://instagram.com/reel/abc123/" {
		t.Errorf("urls[0] = %q", urls[0])
	}
}

func TestIsSpoolFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/spool/links.txt", true},
		{"/spool/batch.url", true},
		{"/spool/list.links", true},
		{"/spool/links.txt.done", false},
		{"/spool/links.txt.failed", false},
		{"/spool/.hidden.txt", false},
		{"/spool/video.mp4", false},
	}
	for _, tt := range tests {
		if got := isSpoolFile(tt.path); got != tt.want {
			t.Errorf("isSpoolFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDrainExisting_ProcessesAndRenames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "links.txt")
	if err := os.WriteFile(path, []byte("https://instagram.com/reel/abc/\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewSpoolWatcher(dir, nil)
	if err != nil {
		t.Fatalf("NewSpoolWatcher: %v", err)
	}
	defer w.Close()

	var got []string
	w.OnURL = func(ctx context.Context, url string) error {
		got = append(got, url)
		return nil
	}

	w.drainExisting(context.Background())

	if len(got) != 1 || got[0] != "https://instagram.com/reel/abc/" {
		t.Errorf("processed urls = %v", got)
	}
	if _, err := os.Stat(path + ".done"); err != nil {
		t.Error("processed file should be renamed to .done")
	}
}

func TestDrainExisting_FailureKeepsFileAsFailed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "links.txt")
	if err := os.WriteFile(path, []byte("https://instagram.com/reel/abc/\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewSpoolWatcher(dir, nil)
	if err != nil {
		t.Fatalf("NewSpoolWatcher: %v", err)
	}
	defer w.Close()

	w.OnURL = func(ctx context.Context, url string) error {
		return os.ErrDeadlineExceeded
	}

	w.drainExisting(context.Background())

	if _, err := os.Stat(path + ".failed"); err != nil {
		t.Error("failed file should be renamed to .failed")
	}
}
