// Package tui renders CLI output for interactive runs: styled run
// reports, progress for batch processing, and a spinner for the long
// download/transcribe phases.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/reelsheet/reelsheet/pkg/pipeline"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAA00")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(warning)
)

// PrintHeader prints the banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  REELSHEET") + mutedStyle.Render(" "+version))
	fmt.Println(mutedStyle.Render("  Reel links in, spreadsheet rows out"))
	fmt.Println()
}

// PrintRunReport renders a completed pipeline run.
func PrintRunReport(r *pipeline.Result) {
	fmt.Println()
	fmt.Println(successStyle.Render("  ✓ APPENDED") +
		titleStyle.Render(fmt.Sprintf(" rows %d-%d", r.StartIndex, r.EndIndex)) +
		mutedStyle.Render(fmt.Sprintf(" (%d items, %s)", len(r.Items), formatDuration(r.Duration))))
	fmt.Println()

	for _, it := range r.Items {
		loc := ""
		if it.City != "" {
			loc = ", " + it.City
		}
		fmt.Printf("  %s %s %s\n",
			accentStyle.Render("▸"),
			titleStyle.Render(it.Name),
			mutedStyle.Render(fmt.Sprintf("(%s%s, conf %.2f)", it.Type, loc, it.Confidence)))
	}

	degraded := false
	for _, o := range r.Outcomes {
		if o.Status == pipeline.StepDegraded {
			if !degraded {
				fmt.Println()
				degraded = true
			}
			fmt.Printf("  %s %s: %s\n", warnStyle.Render("⚠"), o.Step, mutedStyle.Render(o.Detail))
		}
	}

	if r.WrittenRange != "" {
		fmt.Println()
		fmt.Printf("  %s %s\n", mutedStyle.Render("Range:"), titleStyle.Render(r.WrittenRange))
	}
	fmt.Println()
}

// PrintError renders a failure.
func PrintError(msg string) {
	fmt.Println()
	fmt.Println(accentStyle.Render("  ✗ " + msg))
	fmt.Println()
}

// ShowProgress creates a progress bar for batch processing.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// Spinner shows a loading indicator until done is closed, then clears
// the line so the run report or error can take its place.
func Spinner(message string, done chan bool) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	i := 0
	for {
		select {
		case <-done:
			ClearLine()
			return
		default:
			fmt.Printf("\r%s %s", accentStyle.Render(frames[i]), message)
			i = (i + 1) % len(frames)
			time.Sleep(80 * time.Millisecond)
		}
	}
}

// ClearLine clears the current line.
func ClearLine() {
	fmt.Print("\r\033[K")
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
