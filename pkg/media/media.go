// Package media turns a downloaded video into text: an audio transcript
// and any on-screen text found in keyframes. Extraction is best effort by
// contract; every internal failure degrades to empty output instead of
// failing the caller, which then proceeds caption-only.
package media

import (
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
)

// Extraction is the text recovered from a video.
type Extraction struct {
	Transcript   string
	OnScreenText string
}

// Extractor recovers text from a local video file.
type Extractor interface {
	Extract(ctx context.Context, videoPath, workDir string) (Extraction, error)
}

// Config configures the ffmpeg-based extractor.
type Config struct {
	FFmpegPath    string
	TesseractPath string
	MaxKeyframes  int
}

// FFmpegExtractor extracts audio with ffmpeg, transcribes it, and OCRs
// sampled keyframes with tesseract.
type FFmpegExtractor struct {
	cfg         Config
	transcriber Transcriber
	logger      *slog.Logger
}

// NewFFmpegExtractor creates an extractor. A nil transcriber disables
// transcription; OCR is disabled when tesseract is not on PATH.
func NewFFmpegExtractor(cfg Config, transcriber Transcriber, logger *slog.Logger) *FFmpegExtractor {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.TesseractPath == "" {
		cfg.TesseractPath = "tesseract"
	}
	if cfg.MaxKeyframes <= 0 {
		cfg.MaxKeyframes = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegExtractor{cfg: cfg, transcriber: transcriber, logger: logger}
}

// Extract implements Extractor. The returned error is always nil; partial
// or empty results stand in for failures.
func (e *FFmpegExtractor) Extract(ctx context.Context, videoPath, workDir string) (Extraction, error) {
	var out Extraction

	if transcript, err := e.transcribe(ctx, videoPath, workDir); err != nil {
		e.logger.Warn("media.transcribe.failed", "video", videoPath, "error", err)
	} else {
		out.Transcript = transcript
	}

	if text, err := e.ocrKeyframes(ctx, videoPath, workDir); err != nil {
		e.logger.Warn("media.ocr.failed", "video", videoPath, "error", err)
	} else {
		out.OnScreenText = text
	}

	return out, nil
}

// transcribe extracts a 16kHz mono WAV and hands it to the transcriber.
func (e *FFmpegExtractor) transcribe(ctx context.Context, videoPath, workDir string) (string, error) {
	if e.transcriber == nil {
		return "", nil
	}

	wavPath := filepath.Join(workDir, "audio.wav")
	cmd := exec.CommandContext(ctx, e.cfg.FFmpegPath,
		"-y", "-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		wavPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		e.logger.Warn("media.audio.extract.failed", "video", videoPath,
			"error", err, "output", tailOf(string(output), 300))
		return "", err
	}

	return e.transcriber.Transcribe(ctx, wavPath)
}

func tailOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
