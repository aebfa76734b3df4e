package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"skiff/internal/logging"
)

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	ownerID := msg.From.ID
	if !b.isAdmin(ownerID) {
		return
	}
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if b.modes.takeCaptionRequest(ownerID) {
		b.captions.SetTemplate(ownerID, text)
		b.reply(chatID, "Caption saved.")
		return
	}

	if msg.ReplyToMessage != nil {
		promptID := int64(msg.ReplyToMessage.MessageID)
		commitment, err := b.negotiator.Commit(promptID, ownerID, text)
		if err != nil {
			b.reply(chatID, "Bad selection: "+err.Error()+"\nExample: `1, 3`")
			return
		}
		if commitment != nil {
			b.deleteStatus(chatID, int(promptID))
			go b.processCommitted(ctx, chatID, commitment)
			return
		}
		// Stale prompt id; fall through so a pasted URL still works.
	}

	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		go b.processURL(ctx, ownerID, chatID, text)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}
	ownerID := cb.From.ID
	if !b.isAdmin(ownerID) {
		b.answer(cb.ID, "")
		return
	}
	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID

	switch cb.Data {
	case "cancel_task":
		if entry, ok := b.negotiator.Cancel(int64(messageID)); ok {
			removeWorkspaceOf(entry.InputPath)
			b.answer(cb.ID, "Cancelled audio order.")
			b.deleteStatus(chatID, messageID)
			return
		}
		if cancelled := b.registry.CancelAll(ownerID); cancelled > 0 {
			b.answer(cb.ID, "Task cancelled.")
		} else {
			b.answer(cb.ID, "Nothing to cancel.")
		}
	case "delete_caption":
		b.captions.DeleteTemplate(ownerID)
		b.answer(cb.ID, "Caption deleted.")
		b.deleteStatus(chatID, messageID)
	case "toggle_audio_mode":
		if b.modes.toggleAudioChange(ownerID) {
			b.answer(cb.ID, "MKV Audio Change Mode: ON")
		} else {
			b.releasePending(ownerID)
			b.answer(cb.ID, "MKV Audio Change Mode: OFF")
		}
		b.refreshModeMessage(chatID, messageID, ownerID)
	case "toggle_caption_mode":
		if b.modes.toggleEditCaption(ownerID) {
			b.answer(cb.ID, "Caption Edit Mode: ON")
		} else {
			b.answer(cb.ID, "Caption Edit Mode: OFF")
		}
		b.refreshModeMessage(chatID, messageID, ownerID)
	}
}

func (b *Bot) refreshModeMessage(chatID int64, messageID int, ownerID int64) {
	var lines []string
	for _, row := range b.modeRows(ownerID) {
		for _, button := range row {
			lines = append(lines, button.Label)
		}
	}
	b.editStatus(chatID, messageID, "Mode status:\n"+strings.Join(lines, "\n"))
}

func (b *Bot) answer(callbackID, text string) {
	if err := b.messenger.AnswerCallback(callbackID, text); err != nil {
		b.logger.Warn("callback answer failed", logging.Error(err))
	}
}
