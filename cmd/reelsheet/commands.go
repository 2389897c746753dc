package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/reelsheet/reelsheet/pkg/acquire"
	"github.com/reelsheet/reelsheet/pkg/backup"
	"github.com/reelsheet/reelsheet/pkg/bot"
	"github.com/reelsheet/reelsheet/pkg/config"
	"github.com/reelsheet/reelsheet/pkg/enrich"
	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
	"github.com/reelsheet/reelsheet/pkg/export"
	"github.com/reelsheet/reelsheet/pkg/extract"
	"github.com/reelsheet/reelsheet/pkg/ledger"
	"github.com/reelsheet/reelsheet/pkg/lifecycle"
	"github.com/reelsheet/reelsheet/pkg/media"
	"github.com/reelsheet/reelsheet/pkg/pipeline"
	"github.com/reelsheet/reelsheet/pkg/route"
	"github.com/reelsheet/reelsheet/pkg/seq"
	"github.com/reelsheet/reelsheet/pkg/server"
	"github.com/reelsheet/reelsheet/pkg/sheets"
	"github.com/reelsheet/reelsheet/pkg/telemetry"
	"github.com/reelsheet/reelsheet/pkg/tui"
	"github.com/reelsheet/reelsheet/pkg/watch"
)

// app holds the wired pipeline and its supporting stores for the
// lifetime of a command.
type app struct {
	cfg       *config.Config
	processor *pipeline.Processor
	backup    *backup.CSVBackup
	ledger    *ledger.Ledger

	redisAlloc      *seq.RedisAllocator
	shutdownTracing func(context.Context) error
}

// buildApp assembles the pipeline from configuration. Optional backends
// that fail to come up (redis, S3, the run ledger) degrade to their
// fallbacks with a warning instead of blocking the run.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := slog.Default()
	a := &app{cfg: cfg}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			Endpoint:       cfg.Telemetry.Endpoint,
			ServiceName:    "reelsheet",
			ServiceVersion: version,
			InsecureTLS:    true,
			BatchTimeout:   5 * time.Second,
			ExportTimeout:  30 * time.Second,
			SamplingRatio:  1.0,
		})
		if err != nil {
			logger.Warn("telemetry.init.failed", "error", err)
		} else {
			a.shutdownTracing = shutdown
		}
	}

	a.backup = backup.NewCSVBackup(cfg.Storage.BackupPath)

	led, err := ledger.Open(cfg.Storage.LedgerPath)
	if err != nil {
		logger.Warn("ledger.open.failed", "path", cfg.Storage.LedgerPath, "error", err)
	} else {
		a.ledger = led
	}

	fetcher := acquire.NewYTDLPFetcher("", 0, logger)

	var transcriber media.Transcriber
	if cfg.Media.WhisperBackend == "openai" && cfg.Extraction.OpenAIKey != "" {
		w, err := media.NewOpenAIWhisper(cfg.Extraction.OpenAIKey, cfg.Media.WhisperModel)
		if err != nil {
			logger.Warn("media.whisper.unavailable", "error", err)
		} else {
			transcriber = w
		}
	}
	mediaExtractor := media.NewFFmpegExtractor(media.Config{
		FFmpegPath:    cfg.Media.FFmpegPath,
		TesseractPath: cfg.Media.TesseractPath,
		MaxKeyframes:  cfg.Media.MaxKeyframes,
	}, transcriber, logger)

	var extractor extract.Extractor
	if cfg.Extraction.UseLLM {
		x, err := extract.NewOpenAIExtractor(cfg.Extraction.OpenAIKey, extract.Config{
			Model:              cfg.Extraction.Model,
			Temperature:        float32(cfg.Extraction.Temperature),
			MaxSourceChars:     cfg.Extraction.MaxSourceChars,
			FallbackConfidence: cfg.Extraction.FallbackConfidence,
		}, logger)
		if err != nil {
			return nil, err
		}
		extractor = x
	} else {
		extractor = &extract.ReviewExtractor{Confidence: cfg.Extraction.FallbackConfidence}
	}

	enricher := enrich.NewNominatimEnricher(enrich.Config{
		BaseURL:         cfg.Enrichment.NominatimURL,
		UserAgent:       cfg.Enrichment.UserAgent,
		ConfidenceFloor: cfg.Enrichment.ConfidenceFloor,
		Timeout:         cfg.Enrichment.Timeout,
	}, logger)

	var allocator seq.Allocator
	if cfg.Sequence.RedisAddr != "" {
		ra, err := seq.NewRedisAllocator(seq.RedisConfig{
			Address:  cfg.Sequence.RedisAddr,
			Password: cfg.Sequence.RedisPassword,
			Database: cfg.Sequence.RedisDB,
			Prefix:   cfg.Sequence.Prefix,
			Timeout:  cfg.Sequence.Timeout,
		})
		if err != nil {
			logger.Warn("seq.redis.unavailable", "addr", cfg.Sequence.RedisAddr, "error", err)
		} else {
			a.redisAlloc = ra
			allocator = ra
		}
	}

	var replicator pipeline.Replicator
	if cfg.Storage.S3.Bucket != "" {
		r, err := backup.NewS3Replicator(ctx, backup.S3Config{
			Bucket:          cfg.Storage.S3.Bucket,
			Prefix:          cfg.Storage.S3.Prefix,
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			UsePathStyle:    cfg.Storage.S3.UsePathStyle,
		})
		if err != nil {
			logger.Warn("backup.s3.unavailable", "bucket", cfg.Storage.S3.Bucket, "error", err)
		} else {
			replicator = r
		}
	}

	var recorder pipeline.Recorder
	if a.ledger != nil {
		recorder = a.ledger
	}

	proc, err := pipeline.New(pipeline.Options{
		Fetcher:    fetcher,
		Media:      mediaExtractor,
		Extractor:  extractor,
		Enricher:   enricher,
		Opener:     sheets.OpenerFromConfig(cfg.Sheets.CredentialsPath, cfg.Sheets.Tab),
		Allocator:  allocator,
		Backup:     a.backup,
		Replicator: replicator,
		Recorder:   recorder,
		Destinations: route.Destinations{
			General:  cfg.Sheets.GeneralID,
			Travel:   cfg.Sheets.TravelID,
			Commerce: cfg.Sheets.ProductsID,
		},
		TempDir: cfg.Storage.TempDir,
		Logger:  logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.processor = proc
	return a, nil
}

// Close releases backend connections and flushes pending traces. It
// satisfies lifecycle.Closer so serve mode can close through the
// shutdown manager.
func (a *app) Close() error {
	var firstErr error
	if a.redisAlloc != nil {
		if err := a.redisAlloc.Close(); err != nil {
			firstErr = err
		}
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.shutdownTracing(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// origin returns the enrichment origin coordinates, if set on the
// command line.
func origin() (lat, lng *float64) {
	if !withOrigin {
		return nil, nil
	}
	la, ln := originLat, originLng
	return &la, &ln
}

var processCmd = &cobra.Command{
	Use:   "process <post-url>...",
	Short: "Process one or more post URLs into sheet rows",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := buildApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		lat, lng := origin()

		if jsonOutput {
			results := make([]*pipeline.Result, 0, len(args))
			for _, url := range args {
				result, err := a.processor.Process(cmd.Context(), url, lat, lng)
				if err != nil {
					return err
				}
				results = append(results, result)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if len(results) == 1 {
				return enc.Encode(results[0])
			}
			return enc.Encode(results)
		}

		tui.PrintHeader(version)

		if len(args) == 1 {
			done := make(chan bool)
			stopped := make(chan struct{})
			go func() {
				tui.Spinner("Downloading and extracting", done)
				close(stopped)
			}()
			result, err := a.processor.Process(cmd.Context(), args[0], lat, lng)
			close(done)
			<-stopped
			if err != nil {
				tui.PrintError(rserrors.UserMessage(err, 0))
				return err
			}
			tui.PrintRunReport(result)
			return nil
		}

		bar := tui.ShowProgress(int64(len(args)), "processing posts")
		var results []*pipeline.Result
		var firstErr error
		for _, url := range args {
			result, err := a.processor.Process(cmd.Context(), url, lat, lng)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				slog.Warn("process.failed", "url", url, "error", err)
			} else {
				results = append(results, result)
			}
			bar.Add(1)
		}
		tui.ClearLine()
		for _, r := range results {
			tui.PrintRunReport(r)
		}
		if firstErr != nil {
			tui.PrintError(rserrors.UserMessage(firstErr, 0))
			return firstErr
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, optionally with the Telegram bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		switch serveMode {
		case "api", "bot", "both":
		default:
			return fmt.Errorf("invalid --mode %q: want api, bot, or both", serveMode)
		}

		return lifecycle.RunWithSignalHandling(func(ctx context.Context) error {
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}

			// Jobs started through the API are drained before the
			// backends close. Budgets stay inside the 30s signal window.
			mgr := lifecycle.NewShutdownManager(15*time.Second, slog.Default())
			mgr.RegisterCloser(a)
			defer func() {
				drainCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
				defer cancel()
				if err := mgr.Shutdown(drainCtx); err != nil {
					slog.Warn("serve.shutdown.incomplete", "error", err)
				}
			}()

			g, ctx := errgroup.WithContext(ctx)

			if serveMode == "api" || serveMode == "both" {
				srv := server.NewServer(a.processor, a.backup, a.ledger, slog.Default())
				srv.Lifecycle = mgr
				httpSrv := &http.Server{
					Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
					Handler: srv,
				}
				g.Go(func() error {
					slog.Info("server.listening", "addr", httpSrv.Addr)
					if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return httpSrv.Shutdown(shutdownCtx)
				})
			}

			if serveMode == "bot" || serveMode == "both" {
				adminID, err := strconv.ParseInt(cfg.Bot.AdminChatID, 10, 64)
				if err != nil && cfg.Bot.AdminChatID != "" {
					return fmt.Errorf("invalid admin chat ID %q: %w", cfg.Bot.AdminChatID, err)
				}
				b, err := bot.New(cfg.Bot.Token, a.processor, a.backup, a.ledger, adminID, slog.Default())
				if err != nil {
					return err
				}
				b.Destinations = route.Destinations{
					General:  cfg.Sheets.GeneralID,
					Travel:   cfg.Sheets.TravelID,
					Commerce: cfg.Sheets.ProductsID,
				}
				g.Go(func() error {
					return b.Run(ctx)
				})
			}

			if err := g.Wait(); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show run and item totals from the local ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		led, err := ledger.Open(cfg.Storage.LedgerPath)
		if err != nil {
			// No ledger yet; fall back to counting the backup file.
			bk := backup.NewCSVBackup(cfg.Storage.BackupPath)
			count, countErr := bk.Count()
			if countErr != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			fmt.Printf("Items captured so far: %d (run ledger unavailable)\n", count)
			return nil
		}
		defer led.Close()

		s, err := led.Summarize(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Print(ledger.FormatSummary(s))

		if summaryRuns > 0 {
			runs, err := led.RecentRuns(cmd.Context(), summaryRuns)
			if err != nil {
				return err
			}
			if len(runs) > 0 {
				fmt.Println("\nRecent runs:")
				for _, r := range runs {
					fmt.Printf("  %s  rows %d-%d  %s\n",
						r.Timestamp.Format(time.RFC3339), r.StartIndex, r.EndIndex, r.PostURL)
				}
			}
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the CSV backup to an Excel workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		bk := backup.NewCSVBackup(cfg.Storage.BackupPath)
		n, err := export.ToXLSX(bk, exportOutput)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d rows to %s\n", n, exportOutput)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [spool-dir]",
	Short: "Watch a spool directory for dropped link files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			spoolDir = args[0]
		}

		return lifecycle.RunWithSignalHandling(func(ctx context.Context) error {
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := watch.NewSpoolWatcher(spoolDir, slog.Default())
			if err != nil {
				return err
			}
			defer w.Close()

			lat, lng := origin()
			w.OnURL = func(ctx context.Context, url string) error {
				result, err := a.processor.Process(ctx, url, lat, lng)
				if err != nil {
					return err
				}
				slog.Info("watch.appended",
					"url", url,
					"rows", fmt.Sprintf("%d-%d", result.StartIndex, result.EndIndex),
					"sheet", result.SheetID)
				return nil
			}

			slog.Info("watch.started", "dir", spoolDir)
			err = w.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	},
}

func init() {
	processCmd.Flags().Float64Var(&originLat, "origin-lat", 0, "Origin latitude for distance columns")
	processCmd.Flags().Float64Var(&originLng, "origin-lng", 0, "Origin longitude for distance columns")
	processCmd.Flags().BoolVar(&withOrigin, "with-origin", false, "Compute distance from the origin coordinates")
	processCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run result as JSON")

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port (overrides config)")
	serveCmd.Flags().StringVar(&serveMode, "mode", "api", "What to run: api, bot, or both")

	summaryCmd.Flags().IntVarP(&summaryRuns, "runs", "n", 10, "Recent runs to list (0 disables)")

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "reelsheet.xlsx", "Output workbook path")

	watchCmd.Flags().StringVarP(&spoolDir, "dir", "d", "./spool", "Spool directory to watch")
	watchCmd.Flags().Float64Var(&originLat, "origin-lat", 0, "Origin latitude for distance columns")
	watchCmd.Flags().Float64Var(&originLng, "origin-lng", 0, "Origin longitude for distance columns")
	watchCmd.Flags().BoolVar(&withOrigin, "with-origin", false, "Compute distance from the origin coordinates")
}
