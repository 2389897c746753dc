package acquire

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
)

func TestFetch_RejectsBadURL(t *testing.T) {
	f := NewYTDLPFetcher("", 0, nil)

	_, err := f.Fetch(context.Background(), "https://example.com/watch?v=abc", t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
	if !rserrors.IsCode(err, rserrors.CodeAcquisitionFailed) {
		t.Errorf("code = %v, want %v", rserrors.GetCode(err), rserrors.CodeAcquisitionFailed)
	}
}

func TestCollect_VideoAndCaption(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "media.mp4"), []byte("fake"))
	info, _ := json.Marshal(map[string]interface{}{
		"description": "Best tacos in town",
		"uploader":    "foodie",
		"duration":    12.5,
	})
	writeFile(t, filepath.Join(dir, "media.info.json"), info)

	f := NewYTDLPFetcher("", 0, nil)
	post, err := f.collect(dir)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if post.Caption != "Best tacos in town" {
		t.Errorf("caption = %q", post.Caption)
	}
	if post.VideoPath != filepath.Join(dir, "media.mp4") {
		t.Errorf("video = %q", post.VideoPath)
	}
	if post.Uploader != "foodie" || post.Duration != 12.5 {
		t.Errorf("metadata not parsed: %+v", post)
	}
}

func TestCollect_CaptionOnly(t *testing.T) {
	dir := t.TempDir()
	info, _ := json.Marshal(map[string]interface{}{"description": "photo post"})
	writeFile(t, filepath.Join(dir, "media.info.json"), info)

	f := NewYTDLPFetcher("", 0, nil)
	post, err := f.collect(dir)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if post.VideoPath != "" {
		t.Errorf("video = %q, want empty", post.VideoPath)
	}
	if post.Caption != "photo post" {
		t.Errorf("caption = %q", post.Caption)
	}
}

func TestCollect_TitleFallback(t *testing.T) {
	dir := t.TempDir()
	info, _ := json.Marshal(map[string]interface{}{"title": "Hidden ramen bar"})
	writeFile(t, filepath.Join(dir, "media.info.json"), info)

	f := NewYTDLPFetcher("", 0, nil)
	post, err := f.collect(dir)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if post.Caption != "Hidden ramen bar" {
		t.Errorf("caption = %q, want title fallback", post.Caption)
	}
}

func TestCollect_DescriptionBeatsTitle(t *testing.T) {
	dir := t.TempDir()
	info, _ := json.Marshal(map[string]interface{}{
		"title":       "short title",
		"description": "the full caption",
	})
	writeFile(t, filepath.Join(dir, "media.info.json"), info)

	f := NewYTDLPFetcher("", 0, nil)
	post, err := f.collect(dir)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if post.Caption != "the full caption" {
		t.Errorf("caption = %q, want description", post.Caption)
	}
}

func TestCollect_NothingDownloaded(t *testing.T) {
	f := NewYTDLPFetcher("", 0, nil)
	_, err := f.collect(t.TempDir())
	if err == nil {
		t.Fatal("expected error for empty work dir")
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}
