// Package bot runs the Telegram front end: users send a reel link and get
// back a summary of what was appended to the sheet.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/reelsheet/reelsheet/internal/model"
	"github.com/reelsheet/reelsheet/pkg/backup"
	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
	"github.com/reelsheet/reelsheet/pkg/ledger"
	"github.com/reelsheet/reelsheet/pkg/pipeline"
	"github.com/reelsheet/reelsheet/pkg/route"
)

// Bot is the Telegram front end.
type Bot struct {
	api         *tgbotapi.BotAPI
	processor   *pipeline.Processor
	backup      *backup.CSVBackup
	ledger      *ledger.Ledger
	adminChatID int64
	logger      *slog.Logger

	// Destinations, when set, lets /sheet link the configured spreadsheets.
	Destinations route.Destinations
}

// New creates the bot. adminChatID of 0 means any chat may use it.
func New(token string, processor *pipeline.Processor, bk *backup.CSVBackup, led *ledger.Ledger, adminChatID int64, logger *slog.Logger) (*Bot, error) {
	if token == "" {
		return nil, rserrors.MissingSetting("Telegram bot token", "TELEGRAM_TOKEN")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create Telegram client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:         api,
		processor:   processor,
		backup:      bk,
		ledger:      led,
		adminChatID: adminChatID,
		logger:      logger,
	}, nil
}

// Run polls for updates until the context is canceled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("bot.started", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if b.adminChatID != 0 && msg.Chat.ID != b.adminChatID {
		b.logger.Warn("bot.unauthorized", "chat", msg.Chat.ID)
		return
	}

	switch msg.Command() {
	case "start", "help":
		b.reply(msg.Chat.ID, "Send me an Instagram reel link and I will extract the places and products into your sheet.\n\nCommands:\n/health - service status\n/sheet - destination spreadsheet links\n/summary - run and item totals\n/download - backup CSV file")
	case "health":
		b.handleHealth(msg.Chat.ID)
	case "sheet":
		b.handleSheet(msg.Chat.ID)
	case "summary":
		b.handleSummary(ctx, msg.Chat.ID)
	case "download":
		b.handleDownload(msg.Chat.ID)
	case "":
		b.handleLink(ctx, msg)
	default:
		b.reply(msg.Chat.ID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleHealth(chatID int64) {
	count, err := b.backup.Count()
	if err != nil {
		b.reply(chatID, "Running. Backup unreadable: "+rserrors.UserMessage(err, 200))
		return
	}
	b.reply(chatID, fmt.Sprintf("Running. %d items in the local backup.", count))
}

func (b *Bot) handleSheet(chatID int64) {
	var sb strings.Builder
	appendSheet := func(label, id string) {
		if id != "" {
			fmt.Fprintf(&sb, "%s: https://docs.google.com/spreadsheets/d/%s\n", label, id)
		}
	}
	appendSheet("General", b.Destinations.General)
	appendSheet("Travel", b.Destinations.Travel)
	appendSheet("Products", b.Destinations.Commerce)
	if sb.Len() == 0 {
		b.reply(chatID, "No destination sheets configured.")
		return
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) handleSummary(ctx context.Context, chatID int64) {
	if b.ledger == nil {
		count, err := b.backup.Count()
		if err != nil {
			b.reply(chatID, "Summary unavailable: "+rserrors.UserMessage(err, 200))
			return
		}
		b.reply(chatID, fmt.Sprintf("Items captured so far: %d", count))
		return
	}

	summary, err := b.ledger.Summarize(ctx)
	if err != nil {
		b.reply(chatID, "Summary unavailable: "+rserrors.UserMessage(err, 200))
		return
	}
	b.reply(chatID, ledger.FormatSummary(summary))
}

func (b *Bot) handleDownload(chatID int64) {
	n, err := b.backup.Count()
	if err != nil || n == 0 {
		b.reply(chatID, "No backup file yet.")
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(b.backup.Path()))
	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error("bot.download.failed", "error", err)
		b.reply(chatID, "Could not send the backup file.")
	}
}

func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message) {
	url := extractReelURL(msg.Text)
	if url == "" {
		b.reply(msg.Chat.ID, "That does not look like an Instagram reel or post link.")
		return
	}

	b.reply(msg.Chat.ID, "Processing, this can take a minute...")
	result, err := b.processor.Process(ctx, url, nil, nil)
	if err != nil {
		b.reply(msg.Chat.ID, "Failed: "+rserrors.UserMessage(err, 500))
		return
	}
	b.reply(msg.Chat.ID, formatResult(result))
}

// extractReelURL pulls the first reel link out of a message.
func extractReelURL(text string) string {
	for _, field := range strings.Fields(text) {
		if model.IsValidReelURL(field) {
			return field
		}
	}
	return ""
}

// formatResult renders a run result for chat.
func formatResult(r *pipeline.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Added rows %d-%d (%d items)\n", r.StartIndex, r.EndIndex, len(r.Items))
	for _, it := range r.Items {
		fmt.Fprintf(&sb, "• %s (%s", it.Name, it.Type)
		if it.City != "" {
			fmt.Fprintf(&sb, ", %s", it.City)
		}
		fmt.Fprintf(&sb, ") conf %.2f\n", it.Confidence)
	}
	for _, o := range r.Outcomes {
		if o.Status == pipeline.StepDegraded {
			fmt.Fprintf(&sb, "⚠ %s: %s\n", o.Step, o.Detail)
		}
	}
	return sb.String()
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("bot.reply.failed", "error", err)
	}
}
