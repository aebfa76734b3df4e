package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"skiff/internal/fetch"
	"skiff/internal/logging"
	"skiff/internal/pipeline"
	"skiff/internal/staging"
	"skiff/internal/standardize"
	"skiff/internal/thumbnail"
	"skiff/internal/tracks"
)

// mediaInfo extracts the transport facts for a video or document message.
func mediaInfo(msg *tgbotapi.Message) (fileID, fileName string, isVideo bool, ok bool) {
	switch {
	case msg.Video != nil:
		name := msg.Video.FileName
		if name == "" {
			name = "video.mp4"
		}
		return msg.Video.FileID, name, true, true
	case msg.Document != nil:
		name := msg.Document.FileName
		if name == "" {
			name = "file.bin"
		}
		return msg.Document.FileID, name, false, true
	}
	return "", "", false, false
}

func (b *Bot) handleMedia(ctx context.Context, msg *tgbotapi.Message) {
	ownerID := msg.From.ID
	if !b.isAdmin(ownerID) {
		return
	}

	if b.modes.audioChangeOn(ownerID) {
		go b.processAudioChange(ctx, msg)
		return
	}
	if b.modes.editCaptionOn(ownerID) && msg.ForwardDate != 0 {
		b.captionOnlyResend(msg)
		return
	}
	if msg.ForwardDate != 0 {
		go b.processIncoming(ctx, msg)
	}
}

// processIncoming downloads a forwarded file and hands it to the pipeline.
func (b *Bot) processIncoming(ctx context.Context, msg *tgbotapi.Message) {
	ownerID := msg.From.ID
	chatID := msg.Chat.ID
	fileID, fileName, isVideo, ok := mediaInfo(msg)
	if !ok {
		return
	}

	statusID, _ := b.messenger.SendTextWithButtons(chatID, "Downloading...", cancelRow())

	ws, path, err := b.downloadByFileID(ctx, ownerID, fileID, fileName)
	if err != nil {
		b.editStatus(chatID, statusID, "Download failed: "+err.Error())
		return
	}

	b.editStatus(chatID, statusID, "Processing...")
	b.runPipeline(ctx, ownerID, chatID, ws, path, fileName, pipeline.Options{TransportVideo: isVideo})
	b.deleteStatus(chatID, statusID)
}

// processAudioChange runs the track-change flow: probe, then either
// auto-commit, prompt, or abort on missing audio.
func (b *Bot) processAudioChange(ctx context.Context, msg *tgbotapi.Message) {
	ownerID := msg.From.ID
	chatID := msg.Chat.ID
	fileID, fileName, _, ok := mediaInfo(msg)
	if !ok {
		return
	}
	fileName = standardize.NormalizeName(fileName)

	statusID, _ := b.messenger.SendTextWithButtons(chatID, "Downloading & analyzing...", cancelRow())

	ws, path, err := b.downloadByFileID(ctx, ownerID, fileID, fileName)
	if err != nil {
		b.editStatus(chatID, statusID, "Download failed: "+err.Error())
		return
	}

	decision, err := b.negotiator.Begin(ctx, ownerID, path)
	if err != nil {
		b.editStatus(chatID, statusID, "No usable audio: "+err.Error())
		ws.Remove()
		return
	}

	if decision.Auto {
		b.editStatus(chatID, statusID, "One audio track. Processing...")
		b.runPipeline(ctx, ownerID, chatID, ws, path, fileName, pipeline.Options{
			TransportVideo: true,
			AudioSelection: decision.Selection,
		})
		b.deleteStatus(chatID, statusID)
		return
	}

	prompt := "Audio track list:\n\n" + tracks.Listing(decision.Tracks) +
		"\n\n**Reply with numbers to KEEP & REORDER.**\nExamples: `2` (keep only the 2nd), `3,1` (3rd then 1st)."
	promptID, err := b.messenger.SendTextWithButtons(chatID, prompt, cancelRow())
	if err != nil {
		b.logger.Warn("prompt send failed", logging.Error(err))
		ws.Remove()
		return
	}
	b.deleteStatus(chatID, statusID)
	b.negotiator.Hold(int64(promptID), ownerID, path, decision.Tracks)
}

// processCommitted remuxes with the validated track order and delivers.
func (b *Bot) processCommitted(ctx context.Context, chatID int64, commitment *tracks.Commitment) {
	ws := &staging.Workspace{OwnerID: commitment.OwnerID, Path: filepath.Dir(commitment.InputPath)}
	statusID, _ := b.messenger.SendTextWithButtons(chatID, "Remuxing & renaming audio...", cancelRow())

	b.runPipeline(ctx, commitment.OwnerID, chatID, ws, commitment.InputPath,
		filepath.Base(commitment.InputPath), pipeline.Options{
			TransportVideo: true,
			AudioSelection: commitment.Selection,
		})
	b.deleteStatus(chatID, statusID)
}

// processURL fetches a remote file and hands it to the pipeline.
func (b *Bot) processURL(ctx context.Context, ownerID, chatID int64, url string) {
	statusID, _ := b.messenger.SendTextWithButtons(chatID, "Download started...", cancelRow())

	fileName := fetch.FilenameFromURL(url)
	ws, err := staging.NewWorkspace(b.cfg.Paths.StagingDir, ownerID)
	if err != nil {
		b.editStatus(chatID, statusID, "Error: "+err.Error())
		return
	}
	path := ws.File(fileName)

	token := b.registry.Register(ownerID)
	err = b.fetcher.Download(ctx, url, path, token)
	b.registry.Unregister(ownerID, token)
	if err != nil {
		b.editStatus(chatID, statusID, "Download failed: "+err.Error())
		ws.Remove()
		return
	}

	b.editStatus(chatID, statusID, "Processing & uploading...")
	b.runPipeline(ctx, ownerID, chatID, ws, path, fileName, pipeline.Options{})
	b.deleteStatus(chatID, statusID)
}

func (b *Bot) handleRename(ctx context.Context, msg *tgbotapi.Message, newName string) {
	chatID := msg.Chat.ID
	if msg.ReplyToMessage == nil {
		return
	}
	if newName == "" {
		b.reply(chatID, "/rename name.mp4")
		return
	}
	fileID, _, isVideo, ok := mediaInfo(msg.ReplyToMessage)
	if !ok {
		b.reply(chatID, "Reply to a video or document.")
		return
	}

	go func() {
		ownerID := msg.From.ID
		statusID, _ := b.messenger.SendTextWithButtons(chatID, "Downloading for rename...", cancelRow())

		ws, path, err := b.downloadByFileID(ctx, ownerID, fileID, newName)
		if err != nil {
			b.editStatus(chatID, statusID, "Download failed: "+err.Error())
			return
		}
		b.editStatus(chatID, statusID, "Processing...")
		b.runPipeline(ctx, ownerID, chatID, ws, path, newName, pipeline.Options{TransportVideo: isVideo})
		b.deleteStatus(chatID, statusID)
	}()
}

// handlePhoto saves an incoming photo as the owner's delivery thumbnail.
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	ownerID := msg.From.ID
	if !b.isAdmin(ownerID) {
		return
	}
	chatID := msg.Chat.ID
	photo := msg.Photo[len(msg.Photo)-1]

	go func() {
		statusID, _ := b.messenger.SendText(chatID, "Downloading photo...")

		ws, raw, err := b.downloadByFileID(ctx, ownerID, photo.FileID, "thumb_raw.jpg")
		if err != nil {
			b.editStatus(chatID, statusID, "Download failed: "+err.Error())
			return
		}
		defer ws.Remove()

		// The thumbnail lives as a plain file in the staging root, out of
		// reach of the workspace sweep.
		dest := filepath.Join(b.cfg.Paths.StagingDir, fmt.Sprintf("thumb_%d.jpg", ownerID))
		if err := thumbnail.Fit(raw, dest, thumbnail.MaxDimension); err != nil {
			b.editStatus(chatID, statusID, "Bad image: "+err.Error())
			return
		}
		b.modes.setThumbPath(ownerID, dest)
		b.editStatus(chatID, statusID, "Thumbnail saved.")
	}()
}

// captionOnlyResend re-sends a forwarded file by its transport id with a
// freshly expanded caption; the bytes never leave the transport.
func (b *Bot) captionOnlyResend(msg *tgbotapi.Message) {
	ownerID := msg.From.ID
	chatID := msg.Chat.ID

	template, ok := b.captions.Template(ownerID)
	if !ok {
		b.reply(chatID, "No saved caption.")
		return
	}
	text := b.captions.Expand(ownerID, template)

	var err error
	if msg.Video != nil {
		err = b.messenger.ResendVideo(chatID, msg.Video.FileID, text,
			msg.Video.Duration, msg.Video.Width, msg.Video.Height)
	} else if msg.Document != nil {
		err = b.messenger.ResendDocument(chatID, msg.Document.FileID, text)
	} else {
		return
	}
	if err != nil {
		b.reply(chatID, "Error: "+err.Error())
		return
	}
	b.reply(chatID, "✅ Done.")
}

// downloadByFileID resolves a transport file id and streams it into a fresh
// workspace, honouring owner cancellation.
func (b *Bot) downloadByFileID(ctx context.Context, ownerID int64, fileID, fileName string) (*staging.Workspace, string, error) {
	url, err := b.files.FileURL(fileID)
	if err != nil {
		return nil, "", err
	}
	ws, err := staging.NewWorkspace(b.cfg.Paths.StagingDir, ownerID)
	if err != nil {
		return nil, "", err
	}
	path := ws.File(fileName)

	token := b.registry.Register(ownerID)
	err = b.fetcher.Download(ctx, url, path, token)
	b.registry.Unregister(ownerID, token)
	if err != nil {
		ws.Remove()
		return nil, "", err
	}
	return ws, path, nil
}

func (b *Bot) runPipeline(ctx context.Context, ownerID, chatID int64, ws *staging.Workspace, path, declaredName string, opts pipeline.Options) {
	opts.ThumbPath = b.modes.thumbPath(ownerID)
	if seconds, ok := b.modes.thumbSecondsFor(ownerID); ok {
		opts.ThumbSeconds = seconds
	}
	if err := b.runner.Run(ctx, ownerID, chatID, ws, path, declaredName, opts); err != nil {
		b.reply(chatID, "Error: "+err.Error())
	}
}

func (b *Bot) editStatus(chatID int64, messageID int, text string) {
	if messageID == 0 {
		return
	}
	if err := b.messenger.EditText(chatID, messageID, text); err != nil {
		b.logger.Warn("status edit failed", logging.Error(err))
	}
}

func (b *Bot) deleteStatus(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if err := b.messenger.DeleteMessage(chatID, messageID); err != nil {
		b.logger.Warn("status delete failed", logging.Error(err))
	}
}

// removeWorkspaceOf deletes the workspace directory holding a staged file.
func removeWorkspaceOf(inputPath string) {
	if inputPath == "" {
		return
	}
	os.RemoveAll(filepath.Dir(inputPath))
}
