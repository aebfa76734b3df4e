// Package bot implements the conversational surface: command routing, mode
// toggles, and the glue between incoming chat updates and the media
// pipeline. Only the configured admin account can drive media operations;
// anyone may /start to receive broadcasts.
package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"skiff/internal/caption"
	"skiff/internal/config"
	"skiff/internal/logging"
	"skiff/internal/pipeline"
	"skiff/internal/staging"
	"skiff/internal/tasks"
	"skiff/internal/tracks"
	"skiff/internal/transport"
)

// Runner executes one pipeline delivery.
type Runner interface {
	Run(ctx context.Context, ownerID, chatID int64, ws *staging.Workspace, inputPath, declaredName string, opts pipeline.Options) error
}

// FileResolver turns a transport file id into a downloadable URL.
type FileResolver interface {
	FileURL(fileID string) (string, error)
}

// Downloader streams a URL into a local file.
type Downloader interface {
	Download(ctx context.Context, url, outPath string, token *tasks.CancelToken) error
}

// SubscriberStore persists broadcast recipients.
type SubscriberStore interface {
	AddSubscriber(ctx context.Context, chatID int64) error
	RemoveSubscriber(ctx context.Context, chatID int64) error
	Subscribers(ctx context.Context) ([]int64, error)
}

// Deps bundles the bot's collaborators.
type Deps struct {
	Messenger   transport.Messenger
	Files       FileResolver
	Fetcher     Downloader
	Runner      Runner
	Negotiator  *tracks.Negotiator
	Registry    *tasks.Registry
	Captions    *caption.Engine
	Subscribers SubscriberStore
	Logger      *slog.Logger
}

// Bot routes chat updates to handlers.
type Bot struct {
	cfg        *config.Config
	messenger  transport.Messenger
	files      FileResolver
	fetcher    Downloader
	runner     Runner
	negotiator *tracks.Negotiator
	registry   *tasks.Registry
	captions   *caption.Engine
	subs       SubscriberStore
	modes      *ownerState
	logger     *slog.Logger
}

// New assembles a Bot.
func New(cfg *config.Config, deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bot{
		cfg:        cfg,
		messenger:  deps.Messenger,
		files:      deps.Files,
		fetcher:    deps.Fetcher,
		runner:     deps.Runner,
		negotiator: deps.Negotiator,
		registry:   deps.Registry,
		captions:   deps.Captions,
		subs:       deps.Subscribers,
		modes:      newOwnerState(),
		logger:     logger.With(logging.String(logging.FieldComponent, "bot")),
	}
}

// Run consumes the update stream until the context ends or the stream
// closes.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches one update. Long-running media work is spawned on
// its own goroutine so the update loop stays responsive.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil || !msg.Chat.IsPrivate() {
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	case msg.Video != nil || msg.Document != nil:
		b.handleMedia(ctx, msg)
	case msg.Text != "":
		b.handleText(ctx, msg)
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	return userID == b.cfg.Telegram.AdminID
}

// reply sends a plain response, logging rather than propagating transport
// errors so handlers stay linear.
func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.messenger.SendText(chatID, text); err != nil {
		b.logger.Warn("reply failed", logging.Error(err))
	}
}

func cancelRow() []transport.Button {
	return []transport.Button{{Label: "Cancel ❌", Data: "cancel_task"}}
}
