package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// ocrKeyframes samples up to MaxKeyframes frames from the video and runs
// tesseract over each, deduplicating the recovered lines. Captions and
// overlays repeat across frames, so dedup matters more than order.
func (e *FFmpegExtractor) ocrKeyframes(ctx context.Context, videoPath, workDir string) (string, error) {
	if _, err := exec.LookPath(e.cfg.TesseractPath); err != nil {
		// OCR is optional tooling; absence is a silent no-op.
		return "", nil
	}

	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, e.cfg.FFmpegPath,
		"-y", "-i", videoPath,
		"-vf", "fps=1/2",
		"-frames:v", fmt.Sprintf("%d", e.cfg.MaxKeyframes),
		filepath.Join(framesDir, "frame-%03d.png"),
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("keyframe sampling: %s: %w", tailOf(string(output), 200), err)
	}

	frames, err := filepath.Glob(filepath.Join(framesDir, "frame-*.png"))
	if err != nil || len(frames) == 0 {
		return "", err
	}
	sort.Strings(frames)

	seen := make(map[string]struct{})
	var lines []string
	for _, frame := range frames {
		text, err := e.ocrFrame(ctx, frame)
		if err != nil {
			e.logger.Warn("media.ocr.frame.failed", "frame", frame, "error", err)
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if len(line) < 3 {
				continue
			}
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (e *FFmpegExtractor) ocrFrame(ctx context.Context, framePath string) (string, error) {
	cmd := exec.CommandContext(ctx, e.cfg.TesseractPath, framePath, "stdout")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
