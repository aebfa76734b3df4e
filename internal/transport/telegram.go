package transport

import (
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"skiff/internal/config"
	"skiff/internal/logging"
	"skiff/internal/services"
)

// Telegram implements Messenger over the Bot API.
type Telegram struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewTelegram authenticates against the Bot API.
func NewTelegram(cfg *config.Config, logger *slog.Logger) (*Telegram, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transport", "connect", "authenticating bot", err)
	}
	t := &Telegram{
		api:    api,
		logger: logger.With(logging.String(logging.FieldComponent, "transport")),
	}
	t.logger.Info("authenticated", logging.String("username", api.Self.UserName))
	return t, nil
}

// Username returns the authenticated bot account name.
func (t *Telegram) Username() string {
	return t.api.Self.UserName
}

// Updates returns the long-poll update stream.
func (t *Telegram) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	return t.api.GetUpdatesChan(u)
}

// Stop shuts down the update stream.
func (t *Telegram) Stop() {
	t.api.StopReceivingUpdates()
}

func (t *Telegram) SendText(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, markdown(text))
	msg.ParseMode = tgbotapi.ModeMarkdown
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "transport", "send", "sending message", err)
	}
	return sent.MessageID, nil
}

func (t *Telegram) SendTextWithButtons(chatID int64, text string, rows ...[]Button) (int, error) {
	msg := tgbotapi.NewMessage(chatID, markdown(text))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = keyboard(rows)
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "transport", "send", "sending message", err)
	}
	return sent.MessageID, nil
}

func (t *Telegram) EditText(chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, markdown(text))
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.api.Send(edit); err != nil {
		return services.Wrap(services.ErrTransient, "transport", "edit", "editing message", err)
	}
	return nil
}

func (t *Telegram) DeleteMessage(chatID int64, messageID int) error {
	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return services.Wrap(services.ErrTransient, "transport", "delete", "deleting message", err)
	}
	return nil
}

func (t *Telegram) SendVideo(chatID int64, video Video) error {
	cfg := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(video.Path))
	cfg.Caption = markdown(video.Caption)
	cfg.ParseMode = tgbotapi.ModeMarkdown
	cfg.SupportsStreaming = true
	cfg.Duration = video.Duration
	if video.ThumbPath != "" {
		cfg.Thumb = tgbotapi.FilePath(video.ThumbPath)
	}
	if _, err := t.api.Send(cfg); err != nil {
		return services.Wrap(services.ErrTransient, "transport", "send_video", "uploading video", err)
	}
	return nil
}

func (t *Telegram) SendDocument(chatID int64, document Document) error {
	cfg := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(document.Path))
	cfg.Caption = markdown(document.Caption)
	cfg.ParseMode = tgbotapi.ModeMarkdown
	if document.ThumbPath != "" {
		cfg.Thumb = tgbotapi.FilePath(document.ThumbPath)
	}
	if _, err := t.api.Send(cfg); err != nil {
		return services.Wrap(services.ErrTransient, "transport", "send_document", "uploading document", err)
	}
	return nil
}

func (t *Telegram) SendPhoto(chatID int64, path, caption string) (int, error) {
	cfg := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	cfg.Caption = markdown(caption)
	sent, err := t.api.Send(cfg)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "transport", "send_photo", "uploading photo", err)
	}
	return sent.MessageID, nil
}

func (t *Telegram) ResendVideo(chatID int64, fileID, caption string, duration, width, height int) error {
	cfg := tgbotapi.NewVideo(chatID, tgbotapi.FileID(fileID))
	cfg.Caption = markdown(caption)
	cfg.ParseMode = tgbotapi.ModeMarkdown
	cfg.SupportsStreaming = true
	cfg.Duration = duration
	if _, err := t.api.Send(cfg); err != nil {
		return services.Wrap(services.ErrTransient, "transport", "resend_video", "re-sending video", err)
	}
	return nil
}

func (t *Telegram) ResendDocument(chatID int64, fileID, caption string) error {
	cfg := tgbotapi.NewDocument(chatID, tgbotapi.FileID(fileID))
	cfg.Caption = markdown(caption)
	cfg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.api.Send(cfg); err != nil {
		return services.Wrap(services.ErrTransient, "transport", "resend_document", "re-sending document", err)
	}
	return nil
}

func (t *Telegram) CopyMessage(toChatID, fromChatID int64, messageID int) error {
	if _, err := t.api.Request(tgbotapi.NewCopyMessage(toChatID, fromChatID, messageID)); err != nil {
		return services.Wrap(services.ErrTransient, "transport", "copy", "copying message", err)
	}
	return nil
}

// FileURL resolves a transport file id to a direct download URL.
func (t *Telegram) FileURL(fileID string) (string, error) {
	url, err := t.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transport", "file_url", "resolving file", err)
	}
	return url, nil
}

func (t *Telegram) AnswerCallback(callbackID, text string) error {
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return services.Wrap(services.ErrTransient, "transport", "callback", "answering callback", err)
	}
	return nil
}

func keyboard(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	markup := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		markup = append(markup, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(markup...)
}

// markdown rewrites double-asterisk emphasis into the Bot API's single
// asterisk form.
func markdown(text string) string {
	return strings.ReplaceAll(text, "**", "*")
}
