// Package acquire resolves a social post URL into local media and caption
// text by shelling out to yt-dlp.
package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/reelsheet/reelsheet/internal/model"
	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
)

// Post is the acquisition result: a downloaded video (possibly absent for
// image posts), the caption, and the raw uploader metadata.
type Post struct {
	VideoPath string
	Caption   string
	Uploader  string
	Duration  float64
	Metadata  map[string]interface{}
}

// Fetcher resolves a post reference into local content.
type Fetcher interface {
	Fetch(ctx context.Context, postURL, workDir string) (*Post, error)
}

// YTDLPFetcher shells out to yt-dlp. The binary writes the media file plus
// an info JSON sidecar; the caption comes from the sidecar's description.
type YTDLPFetcher struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewYTDLPFetcher creates a fetcher using the given yt-dlp binary path
// (empty means "yt-dlp" from PATH).
func NewYTDLPFetcher(binary string, timeout time.Duration, logger *slog.Logger) *YTDLPFetcher {
	if binary == "" {
		binary = "yt-dlp"
	}
	if timeout == 0 {
		timeout = 3 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &YTDLPFetcher{binary: binary, timeout: timeout, logger: logger}
}

// Fetch implements Fetcher. The post URL must be a recognized reel or post
// link; anything else fails before the subprocess runs.
func (f *YTDLPFetcher) Fetch(ctx context.Context, postURL, workDir string) (*Post, error) {
	if !model.IsValidReelURL(postURL) {
		return nil, rserrors.New(rserrors.CodeAcquisitionFailed, "not a recognized reel or post URL").
			WithContext("url", postURL)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	outTmpl := filepath.Join(workDir, "media.%(ext)s")
	cmd := exec.CommandContext(ctx, f.binary,
		"--no-playlist",
		"--write-info-json",
		"--no-progress",
		"-o", outTmpl,
		postURL,
	)

	f.logger.Info("acquire.fetch.start", "url", postURL)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, rserrors.Wrap(ctx.Err(), rserrors.CodeTimeout, "download timed out").
				WithContext("url", postURL)
		}
		return nil, rserrors.Wrap(err, rserrors.CodeAcquisitionFailed, "yt-dlp failed").
			WithContext("url", postURL).
			WithContext("output", tailOf(string(output), 400))
	}

	post, err := f.collect(workDir)
	if err != nil {
		return nil, err
	}
	f.logger.Info("acquire.fetch.done", "url", postURL,
		"video", post.VideoPath != "", "caption_chars", len(post.Caption))
	return post, nil
}

// collect locates the downloaded media and parses the info sidecar.
func (f *YTDLPFetcher) collect(workDir string) (*Post, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return nil, rserrors.Wrap(err, rserrors.CodeAcquisitionFailed, "read work directory").
			WithContext("dir", workDir)
	}

	post := &Post{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		path := filepath.Join(workDir, name)
		switch {
		case filepath.Ext(name) == ".json":
			if err := f.parseInfo(path, post); err != nil {
				f.logger.Warn("acquire.info.parse.failed", "path", path, "error", err)
			}
		case isVideoExt(filepath.Ext(name)):
			post.VideoPath = path
		}
	}

	if post.VideoPath == "" && post.Caption == "" {
		return nil, rserrors.New(rserrors.CodeAcquisitionFailed, "download produced neither media nor caption").
			WithContext("dir", workDir)
	}
	return post, nil
}

func (f *YTDLPFetcher) parseInfo(path string, post *Post) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var info map[string]interface{}
	if err := json.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("parse info JSON: %w", err)
	}

	post.Metadata = info
	if v, ok := info["description"].(string); ok {
		post.Caption = v
	}
	// Some posts carry no description; the title is the next best caption.
	if post.Caption == "" {
		if v, ok := info["title"].(string); ok {
			post.Caption = v
		}
	}
	if v, ok := info["uploader"].(string); ok {
		post.Uploader = v
	}
	if v, ok := info["duration"].(float64); ok {
		post.Duration = v
	}
	return nil
}

func isVideoExt(ext string) bool {
	switch ext {
	case ".mp4", ".mkv", ".webm", ".mov", ".avi":
		return true
	}
	return false
}

func tailOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
