// reelsheet - Reel links in, spreadsheet rows out.
// Extracts places and products from social video posts and appends them
// to a Google Sheet with a local CSV backup.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reelsheet/reelsheet/pkg/config"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	configFile string
	verbose    bool

	// process flags
	originLat  float64
	originLng  float64
	withOrigin bool
	jsonOutput bool

	// export flags
	exportOutput string

	// watch flags
	spoolDir string

	// summary flags
	summaryRuns int

	// serve flags
	servePort int
	serveMode string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reelsheet",
	Short: "reelsheet - Turn reel links into spreadsheet rows",
	Long: `reelsheet downloads a social video post, extracts the places and
products it mentions, enriches them with coordinates, and appends one row
per item to a Google Sheet. Every appended row is mirrored to a local CSV
backup.`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reelsheet %s (%s)\n", version, commit)
	},
}

// loadConfig loads configuration into the global manager and installs
// the logger.
func loadConfig() (*config.Config, error) {
	mgr := config.Global()
	if err := mgr.Load(configFile); err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	level := parseLogLevel(cfg.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	return cfg, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
