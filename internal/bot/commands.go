package bot

import (
	"context"
	"fmt"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"skiff/internal/logging"
	"skiff/internal/transport"
)

const helpText = `Hi! I relay and standardize media files.

Commands:
/upload_url <url> - download a URL and re-upload it
/setthumb [5s 1m] - set the thumbnail capture time, or send a photo
/view_thumb - show the saved thumbnail
/del_thumb - delete the saved thumbnail
/set_caption - save a caption template
/view_caption - show the saved caption
/edit_caption_mode - caption-only mode for forwarded files
/rename <name.ext> - re-deliver a replied file under a new name
/mkv_video_audio_change - audio track change mode
/mode_check - show mode status
/broadcast - reply to a message to broadcast it`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	ownerID := msg.From.ID
	command := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())

	if command == "start" || command == "help" {
		if err := b.subs.AddSubscriber(ctx, chatID); err != nil {
			b.logger.Warn("subscriber insert failed", logging.Error(err))
		}
		b.reply(chatID, helpText)
		return
	}

	if !b.isAdmin(ownerID) {
		return
	}

	switch command {
	case "set_caption":
		b.modes.expectCaption(ownerID)
		b.reply(chatID, "Send the caption. Codes: `[01]`, `[re (480p, 720p)]`, `[End (02)]`")
	case "view_caption":
		if template, ok := b.captions.Template(ownerID); ok {
			if _, err := b.messenger.SendTextWithButtons(chatID, template,
				[]transport.Button{{Label: "Delete Caption 🗑️", Data: "delete_caption"}}); err != nil {
				b.logger.Warn("reply failed", logging.Error(err))
			}
		} else {
			b.reply(chatID, "No caption saved.")
		}
	case "edit_caption_mode":
		if b.modes.toggleEditCaption(ownerID) {
			b.reply(chatID, "Caption Edit Mode: ON")
		} else {
			b.reply(chatID, "Caption Edit Mode: OFF")
		}
	case "mkv_video_audio_change":
		if b.modes.toggleAudioChange(ownerID) {
			b.reply(chatID, "MKV Audio Change Mode: ON")
		} else {
			b.releasePending(ownerID)
			b.reply(chatID, "MKV Audio Change Mode: OFF")
		}
	case "mode_check":
		rows := b.modeRows(ownerID)
		if _, err := b.messenger.SendTextWithButtons(chatID, "Mode status:", rows...); err != nil {
			b.logger.Warn("reply failed", logging.Error(err))
		}
	case "upload_url":
		if args == "" {
			b.reply(chatID, "/upload_url <url>")
			return
		}
		go b.processURL(ctx, ownerID, chatID, args)
	case "rename":
		b.handleRename(ctx, msg, args)
	case "setthumb":
		b.handleSetThumb(chatID, ownerID, args)
	case "view_thumb":
		b.handleViewThumb(chatID, ownerID)
	case "del_thumb":
		if path := b.modes.clearThumb(ownerID); path != "" {
			os.Remove(path)
		}
		b.reply(chatID, "Thumbnail deleted.")
	case "broadcast":
		b.handleBroadcast(ctx, msg)
	}
}

// releasePending cancels every held track prompt for the owner and deletes
// the held files.
func (b *Bot) releasePending(ownerID int64) {
	for _, entry := range b.negotiator.CancelOwner(ownerID) {
		removeWorkspaceOf(entry.InputPath)
	}
}

func (b *Bot) modeRows(ownerID int64) [][]transport.Button {
	audio := "❌ OFF"
	if b.modes.audioChangeOn(ownerID) {
		audio = "✅ ON"
	}
	if pending := b.negotiator.PendingCount(); pending > 0 {
		audio += fmt.Sprintf(" (%d waiting)", pending)
	}
	capt := "❌ OFF"
	if b.modes.editCaptionOn(ownerID) {
		capt = "✅ ON"
	}
	return [][]transport.Button{
		{{Label: "MKV Audio Change Mode " + audio, Data: "toggle_audio_mode"}},
		{{Label: "Edit Caption Mode " + capt, Data: "toggle_caption_mode"}},
	}
}

func (b *Bot) handleSetThumb(chatID, ownerID int64, args string) {
	if args == "" {
		b.reply(chatID, "Send a photo to set it as the thumbnail, or give a capture time like `5s` or `1m 30s`.")
		return
	}
	seconds, ok := parseTimeSpec(args)
	if !ok || seconds <= 0 {
		b.reply(chatID, "Bad time format. Examples: `5s`, `1m`, `1m 30s`")
		return
	}
	b.modes.setThumbSeconds(ownerID, seconds)
	b.reply(chatID, fmt.Sprintf("Thumbnail capture time set to %ds.", seconds))
}

func (b *Bot) handleViewThumb(chatID, ownerID int64) {
	if path := b.modes.thumbPath(ownerID); path != "" {
		if _, err := b.messenger.SendPhoto(chatID, path, "Saved thumbnail"); err != nil {
			b.logger.Warn("send thumbnail failed", logging.Error(err))
		}
		return
	}
	if seconds, ok := b.modes.thumbSecondsFor(ownerID); ok {
		b.reply(chatID, fmt.Sprintf("Thumbnail capture time: %ds", seconds))
		return
	}
	b.reply(chatID, "No thumbnail set.")
}

func (b *Bot) handleBroadcast(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.ReplyToMessage == nil {
		b.reply(chatID, "Reply to the message you want to broadcast.")
		return
	}

	chats, err := b.subs.Subscribers(ctx)
	if err != nil {
		b.reply(chatID, "Could not load subscribers.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Broadcasting to %d chats...", len(chats)))

	sent := 0
	for _, target := range chats {
		if err := b.messenger.CopyMessage(target, chatID, msg.ReplyToMessage.MessageID); err != nil {
			// A dead chat stays dead; stop broadcasting to it.
			if rerr := b.subs.RemoveSubscriber(ctx, target); rerr != nil {
				b.logger.Warn("subscriber removal failed", logging.Error(rerr))
			}
			continue
		}
		sent++
	}
	b.reply(chatID, fmt.Sprintf("Sent to %d chats.", sent))
}
