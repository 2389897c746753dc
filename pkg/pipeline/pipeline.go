// Package pipeline orchestrates one post-to-sheet run: acquire content,
// extract and enrich items, allocate indices, encode rows, and write them
// to the routed destination with a local backup.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reelsheet/reelsheet/internal/model"
	"github.com/reelsheet/reelsheet/pkg/acquire"
	"github.com/reelsheet/reelsheet/pkg/backup"
	"github.com/reelsheet/reelsheet/pkg/enrich"
	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
	"github.com/reelsheet/reelsheet/pkg/extract"
	"github.com/reelsheet/reelsheet/pkg/media"
	"github.com/reelsheet/reelsheet/pkg/route"
	"github.com/reelsheet/reelsheet/pkg/seq"
	"github.com/reelsheet/reelsheet/pkg/sheets"
)

// StepStatus classifies how a pipeline step concluded.
type StepStatus string

const (
	StepOK       StepStatus = "ok"
	StepDegraded StepStatus = "degraded"
	StepFailed   StepStatus = "failed"
)

// StepOutcome records one step's conclusion. Degradations that older
// designs buried in catch-all handlers are visible here.
type StepOutcome struct {
	Step   string     `json:"step"`
	Status StepStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
}

// Result is what a completed run returns to its caller.
type Result struct {
	RunID        string        `json:"run_id"`
	PostURL      string        `json:"post_url"`
	SheetID      string        `json:"sheet_id"`
	StartIndex   int64         `json:"start_index"`
	EndIndex     int64         `json:"end_index"`
	WrittenRange string        `json:"written_range,omitempty"`
	Items        []model.Item  `json:"items"`
	Outcomes     []StepOutcome `json:"outcomes"`
	Timestamp    string        `json:"timestamp"`
	Duration     time.Duration `json:"duration"`
}

// Recorder persists run results for later summaries. Recording failures
// never fail a run.
type Recorder interface {
	RecordRun(ctx context.Context, result *Result) error
}

// Replicator copies the backup file off host after a successful append.
type Replicator interface {
	Replicate(ctx context.Context, localPath string) error
}

// Processor wires the collaborators into the run sequence.
type Processor struct {
	fetcher   acquire.Fetcher
	media     media.Extractor
	extractor extract.Extractor
	enricher  enrich.Enricher

	opener       sheets.Opener
	allocator    seq.Allocator
	backup       *backup.CSVBackup
	replicator   Replicator
	recorder     Recorder
	destinations route.Destinations

	tempDir      string
	excerptChars int
	logger       *slog.Logger
	tracer       trace.Tracer
}

// Options configures a Processor. Fetcher, Extractor, Opener, and Backup
// are required; the rest degrade gracefully when absent.
type Options struct {
	Fetcher      acquire.Fetcher
	Media        media.Extractor
	Extractor    extract.Extractor
	Enricher     enrich.Enricher
	Opener       sheets.Opener
	Allocator    seq.Allocator
	Backup       *backup.CSVBackup
	Replicator   Replicator
	Recorder     Recorder
	Destinations route.Destinations
	TempDir      string
	ExcerptChars int
	Logger       *slog.Logger
}

// New creates a Processor.
func New(opts Options) (*Processor, error) {
	if opts.Fetcher == nil {
		return nil, rserrors.New(rserrors.CodeConfig, "pipeline requires a content fetcher")
	}
	if opts.Extractor == nil {
		return nil, rserrors.New(rserrors.CodeConfig, "pipeline requires an item extractor")
	}
	if opts.Opener == nil {
		return nil, rserrors.New(rserrors.CodeConfig, "pipeline requires a store opener")
	}
	if opts.Backup == nil {
		return nil, rserrors.New(rserrors.CodeConfig, "pipeline requires a backup writer")
	}
	if opts.Allocator == nil {
		opts.Allocator = seq.NewTailAllocator()
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.ExcerptChars <= 0 {
		opts.ExcerptChars = 500
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Processor{
		fetcher:      opts.Fetcher,
		media:        opts.Media,
		extractor:    opts.Extractor,
		enricher:     opts.Enricher,
		opener:       opts.Opener,
		allocator:    opts.Allocator,
		backup:       opts.Backup,
		replicator:   opts.Replicator,
		recorder:     opts.Recorder,
		destinations: opts.Destinations,
		tempDir:      opts.TempDir,
		excerptChars: opts.ExcerptChars,
		logger:       opts.Logger,
		tracer:       otel.Tracer("reelsheet/pipeline"),
	}, nil
}

// Process runs the full sequence for one post. On a store write failure
// the batch reaches the local backup before the error reaches the caller.
func (p *Processor) Process(ctx context.Context, postURL string, originLat, originLng *float64) (*Result, error) {
	started := time.Now()
	result := &Result{
		RunID:     uuid.NewString(),
		PostURL:   postURL,
		Timestamp: started.UTC().Format(time.RFC3339),
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(
			attribute.String("run.id", result.RunID),
			attribute.String("post.url", postURL),
		))
	defer span.End()

	logger := p.logger.With("run_id", result.RunID, "url", postURL)
	logger.Info("pipeline.start")

	workDir := filepath.Join(p.tempDir, "run-"+result.RunID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, rserrors.Wrap(err, rserrors.CodeConfig, "create work directory").
			WithContext("dir", workDir)
	}
	defer os.RemoveAll(workDir)

	// 1. Acquisition is fatal for the run.
	post, err := p.fetcher.Fetch(ctx, postURL, workDir)
	if err != nil {
		result.Outcomes = append(result.Outcomes, StepOutcome{Step: "acquire", Status: StepFailed, Detail: err.Error()})
		return result, err
	}
	result.Outcomes = append(result.Outcomes, StepOutcome{Step: "acquire", Status: StepOK})

	// 2. Media extraction degrades to caption-only.
	var extraction media.Extraction
	if post.VideoPath != "" && p.media != nil {
		extraction, err = p.media.Extract(ctx, post.VideoPath, workDir)
		switch {
		case err != nil:
			logger.Warn("pipeline.media.failed", "error", err)
			result.Outcomes = append(result.Outcomes, StepOutcome{Step: "media", Status: StepDegraded, Detail: err.Error()})
		case extraction.Transcript == "" && extraction.OnScreenText == "":
			result.Outcomes = append(result.Outcomes, StepOutcome{Step: "media", Status: StepDegraded, Detail: "no text recovered from video"})
		default:
			result.Outcomes = append(result.Outcomes, StepOutcome{Step: "media", Status: StepOK})
		}
	}

	// 3. Item extraction; an empty result is a validation failure and
	// nothing is written anywhere.
	blob := buildSourceBlob(post.Caption, extraction.Transcript, extraction.OnScreenText)
	items, err := p.extractor.Infer(ctx, blob)
	if err != nil {
		result.Outcomes = append(result.Outcomes, StepOutcome{Step: "extract", Status: StepFailed, Detail: err.Error()})
		return result, rserrors.Wrap(err, rserrors.CodeExtractionEmpty, "item extraction failed").
			WithContext("url", postURL)
	}
	if len(items) == 0 {
		err := rserrors.NoItems(postURL)
		result.Outcomes = append(result.Outcomes, StepOutcome{Step: "extract", Status: StepFailed, Detail: err.Message})
		return result, err
	}
	result.Outcomes = append(result.Outcomes, StepOutcome{Step: "extract", Status: StepOK, Detail: fmt.Sprintf("%d items", len(items))})

	// 4. Per-item enrichment failures are swallowed; the item keeps its
	// pre-enrichment values.
	excerpt := truncate(blob, p.excerptChars)
	degradedEnrich := 0
	for i := range items {
		if items[i].SourceText == "" {
			items[i].SourceText = excerpt
		}
		if p.enricher == nil {
			continue
		}
		enriched, err := p.enricher.Enrich(ctx, items[i], originLat, originLng)
		if err != nil {
			logger.Warn("pipeline.enrich.failed", "item", items[i].Name, "error", err)
			degradedEnrich++
			continue
		}
		items[i] = enriched
	}
	if degradedEnrich > 0 {
		result.Outcomes = append(result.Outcomes, StepOutcome{Step: "enrich", Status: StepDegraded,
			Detail: fmt.Sprintf("%d of %d items kept pre-enrichment values", degradedEnrich, len(items))})
	} else if p.enricher != nil {
		result.Outcomes = append(result.Outcomes, StepOutcome{Step: "enrich", Status: StepOK})
	}
	result.Items = items

	// 5. Routing.
	sheetID, err := route.Pick(items, p.destinations)
	if err != nil {
		result.Outcomes = append(result.Outcomes, StepOutcome{Step: "route", Status: StepFailed, Detail: err.Error()})
		return result, err
	}
	result.SheetID = sheetID
	span.SetAttributes(attribute.String("sheet.id", sheetID))

	store, err := p.opener(ctx, sheetID)
	if err != nil {
		result.Outcomes = append(result.Outcomes, StepOutcome{Step: "route", Status: StepFailed, Detail: err.Error()})
		return result, err
	}
	result.Outcomes = append(result.Outcomes, StepOutcome{Step: "route", Status: StepOK, Detail: sheetID})

	// 6. Index allocation, falling back to the sheet tail and then to 1.
	start, outcome := p.allocate(ctx, store, len(items))
	result.Outcomes = append(result.Outcomes, outcome)
	result.StartIndex = start
	result.EndIndex = start + int64(len(items)) - 1

	// 7. Row encoding.
	rows := make([][]string, len(items))
	for i, it := range items {
		rows[i] = model.EncodeRow(start+int64(i), result.Timestamp, postURL, it)
	}

	// 8. Store write, with the backup taken either way.
	writer := sheets.NewWriter(store, p.logger)
	writtenRange, writeErr := writer.Append(ctx, rows)
	p.writeBackup(ctx, rows, result, logger)
	if writeErr != nil {
		result.Outcomes = append(result.Outcomes, StepOutcome{Step: "store", Status: StepFailed, Detail: writeErr.Error()})
		p.record(ctx, result, logger)
		return result, writeErr
	}
	result.WrittenRange = writtenRange
	result.Outcomes = append(result.Outcomes, StepOutcome{Step: "store", Status: StepOK, Detail: writtenRange})

	// 9. Report.
	result.Duration = time.Since(started)
	p.record(ctx, result, logger)
	logger.Info("pipeline.done",
		"sheet", sheetID,
		"start", result.StartIndex,
		"end", result.EndIndex,
		"items", len(items),
		"duration", result.Duration)
	return result, nil
}

// allocate reserves the starting index. A primary allocator failure falls
// back to reading the sheet tail; a tail failure starts at 1.
func (p *Processor) allocate(ctx context.Context, store sheets.Store, n int) (int64, StepOutcome) {
	start, err := p.allocator.Next(ctx, store, n)
	if err == nil {
		return start, StepOutcome{Step: "allocate", Status: StepOK,
			Detail: fmt.Sprintf("%s allocator", p.allocator.Name())}
	}

	p.logger.Warn("pipeline.allocate.fallback", "allocator", p.allocator.Name(), "error", err)
	if p.allocator.Name() != "tail" {
		if start, tailErr := seq.NewTailAllocator().Next(ctx, store, n); tailErr == nil {
			return start, StepOutcome{Step: "allocate", Status: StepDegraded,
				Detail: fmt.Sprintf("%s allocator failed, used sheet tail", p.allocator.Name())}
		}
	}
	return 1, StepOutcome{Step: "allocate", Status: StepDegraded,
		Detail: "allocation failed, restarted sequence at 1"}
}

// writeBackup appends the batch to the local CSV and replicates it. Backup
// failures are degradations, never run failures.
func (p *Processor) writeBackup(ctx context.Context, rows [][]string, result *Result, logger *slog.Logger) {
	if err := p.backup.Append(rows); err != nil {
		logger.Error("pipeline.backup.failed", "error", err)
		result.Outcomes = append(result.Outcomes, StepOutcome{Step: "backup", Status: StepFailed, Detail: err.Error()})
		return
	}
	result.Outcomes = append(result.Outcomes, StepOutcome{Step: "backup", Status: StepOK, Detail: p.backup.Path()})

	if p.replicator != nil {
		if err := p.replicator.Replicate(ctx, p.backup.Path()); err != nil {
			logger.Warn("pipeline.replicate.failed", "error", err)
			result.Outcomes = append(result.Outcomes, StepOutcome{Step: "replicate", Status: StepDegraded, Detail: err.Error()})
		}
	}
}

func (p *Processor) record(ctx context.Context, result *Result, logger *slog.Logger) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordRun(ctx, result); err != nil {
		logger.Warn("pipeline.record.failed", "error", err)
	}
}

// buildSourceBlob concatenates the labeled text sources, omitting empty
// ones.
func buildSourceBlob(caption, transcript, onScreen string) string {
	var parts []string
	if s := strings.TrimSpace(caption); s != "" {
		parts = append(parts, "CAPTION: "+s)
	}
	if s := strings.TrimSpace(transcript); s != "" {
		parts = append(parts, "TRANSCRIPT: "+s)
	}
	if s := strings.TrimSpace(onScreen); s != "" {
		parts = append(parts, "ON-SCREEN TEXT: "+s)
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
