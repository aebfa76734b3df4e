package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"skiff/internal/caption"
	"skiff/internal/config"
	"skiff/internal/media/probe"
	"skiff/internal/pipeline"
	"skiff/internal/staging"
	"skiff/internal/tasks"
	"skiff/internal/tracks"
	"skiff/internal/transport"
)

const adminID = int64(99)

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int
	texts   []string
	edits   []string
	deleted []int
	resent  []string
	copies  []int64
	failCopyTo map[int64]bool
}

func (f *fakeMessenger) record(text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.texts = append(f.texts, text)
	return f.nextID, nil
}

func (f *fakeMessenger) SendText(chatID int64, text string) (int, error) { return f.record(text) }
func (f *fakeMessenger) SendTextWithButtons(chatID int64, text string, rows ...[]transport.Button) (int, error) {
	return f.record(text)
}
func (f *fakeMessenger) EditText(chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}
func (f *fakeMessenger) DeleteMessage(chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}
func (f *fakeMessenger) SendVideo(chatID int64, video transport.Video) error       { return nil }
func (f *fakeMessenger) SendDocument(chatID int64, document transport.Document) error { return nil }
func (f *fakeMessenger) SendPhoto(chatID int64, path, caption string) (int, error) {
	return f.record(caption)
}
func (f *fakeMessenger) ResendVideo(chatID int64, fileID, caption string, duration, width, height int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resent = append(f.resent, caption)
	return nil
}
func (f *fakeMessenger) ResendDocument(chatID int64, fileID, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resent = append(f.resent, caption)
	return nil
}
func (f *fakeMessenger) CopyMessage(toChatID, fromChatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCopyTo[toChatID] {
		return errors.New("chat not found")
	}
	f.copies = append(f.copies, toChatID)
	return nil
}
func (f *fakeMessenger) AnswerCallback(callbackID, text string) error { return nil }

func (f *fakeMessenger) lastText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		t.Fatal("no messages sent")
	}
	return f.texts[len(f.texts)-1]
}

type runCall struct {
	ownerID   int64
	name      string
	selection []int
	opts      pipeline.Options
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []runCall
	done  chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{done: make(chan struct{}, 8)}
}

func (f *fakeRunner) Run(ctx context.Context, ownerID, chatID int64, ws *staging.Workspace, inputPath, declaredName string, opts pipeline.Options) error {
	f.mu.Lock()
	f.calls = append(f.calls, runCall{ownerID: ownerID, name: declaredName, selection: opts.AudioSelection, opts: opts})
	f.mu.Unlock()
	ws.Remove()
	f.done <- struct{}{}
	return nil
}

func (f *fakeRunner) wait(t *testing.T) runCall {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline run never happened")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeResolver struct{}

func (fakeResolver) FileURL(fileID string) (string, error) {
	return "https://files.example/" + fileID, nil
}

type fakeDownloader struct{}

func (fakeDownloader) Download(ctx context.Context, url, outPath string, token *tasks.CancelToken) error {
	return os.WriteFile(outPath, []byte("payload"), 0o644)
}

type fakeSubs struct {
	mu    sync.Mutex
	chats map[int64]bool
}

func newFakeSubs() *fakeSubs { return &fakeSubs{chats: make(map[int64]bool)} }

func (f *fakeSubs) AddSubscriber(ctx context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats[chatID] = true
	return nil
}
func (f *fakeSubs) RemoveSubscriber(ctx context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chats, chatID)
	return nil
}
func (f *fakeSubs) Subscribers(ctx context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for chat := range f.chats {
		out = append(out, chat)
	}
	return out, nil
}

type stubLister struct {
	tracks []probe.Track
}

func (s *stubLister) ListAudioTracks(ctx context.Context, path string) ([]probe.Track, error) {
	return s.tracks, nil
}

type fixture struct {
	bot        *Bot
	cfg        config.Config
	messenger  *fakeMessenger
	runner     *fakeRunner
	subs       *fakeSubs
	captions   *caption.Engine
	registry   *tasks.Registry
	negotiator *tracks.Negotiator
	lister     *stubLister
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Telegram.AdminID = adminID
	cfg.Paths.StagingDir = t.TempDir()

	f := &fixture{
		cfg:       cfg,
		messenger: &fakeMessenger{failCopyTo: make(map[int64]bool)},
		runner:    newFakeRunner(),
		subs:      newFakeSubs(),
		captions:  caption.NewEngine(),
		registry:  tasks.NewRegistry(),
		lister:    &stubLister{},
	}
	f.negotiator = tracks.NewNegotiator(f.lister, &f.cfg, nil)
	f.bot = New(&f.cfg, Deps{
		Messenger:   f.messenger,
		Files:       fakeResolver{},
		Fetcher:     fakeDownloader{},
		Runner:      f.runner,
		Negotiator:  f.negotiator,
		Registry:    f.registry,
		Captions:    f.captions,
		Subscribers: f.subs,
	})
	return f
}

func command(from int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	if i := strings.IndexAny(text, " "); i > 0 {
		cmdLen = i
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func plainText(from int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 2,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
		Text:      text,
	}}
}

func TestParseTimeSpec(t *testing.T) {
	cases := []struct {
		spec  string
		want  int
		valid bool
	}{
		{"5s", 5, true},
		{"1m", 60, true},
		{"2h", 7200, true},
		{"1m 30s", 90, true},
		{"garbage", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseTimeSpec(tc.spec)
		if got != tc.want || ok != tc.valid {
			t.Errorf("parseTimeSpec(%q) = %d, %v; want %d, %v", tc.spec, got, ok, tc.want, tc.valid)
		}
	}
}

func TestStartRecordsSubscriber(t *testing.T) {
	f := newFixture(t)
	f.bot.HandleUpdate(context.Background(), command(12345, "/start"))

	chats, _ := f.subs.Subscribers(context.Background())
	if len(chats) != 1 || chats[0] != 12345 {
		t.Fatalf("subscribers = %v, want [12345]", chats)
	}
	if !strings.Contains(f.messenger.lastText(t), "/upload_url") {
		t.Fatal("help text not sent")
	}
}

func TestNonAdminCommandsIgnored(t *testing.T) {
	f := newFixture(t)
	f.bot.HandleUpdate(context.Background(), command(12345, "/set_caption"))
	if len(f.messenger.texts) != 0 {
		t.Fatalf("non-admin got a reply: %v", f.messenger.texts)
	}
}

func TestSetCaptionFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, command(adminID, "/set_caption"))
	f.bot.HandleUpdate(ctx, plainText(adminID, "[01] Episode"))

	if got := f.messenger.lastText(t); got != "Caption saved." {
		t.Fatalf("reply = %q", got)
	}
	if template, ok := f.captions.Template(adminID); !ok || template != "[01] Episode" {
		t.Fatalf("template = %q, %v", template, ok)
	}
}

func TestEditCaptionModeToggle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, command(adminID, "/edit_caption_mode"))
	if got := f.messenger.lastText(t); got != "Caption Edit Mode: ON" {
		t.Fatalf("reply = %q", got)
	}
	f.bot.HandleUpdate(ctx, command(adminID, "/edit_caption_mode"))
	if got := f.messenger.lastText(t); got != "Caption Edit Mode: OFF" {
		t.Fatalf("reply = %q", got)
	}
}

func TestAudioModeToggleOffReleasesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ws, err := staging.NewWorkspace(f.cfg.Paths.StagingDir, adminID)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	held := ws.File("held.mkv")
	os.WriteFile(held, []byte("x"), 0o644)
	f.negotiator.Hold(500, adminID, held, []probe.Track{{SourceIndex: 1}, {SourceIndex: 2}})

	f.bot.HandleUpdate(ctx, command(adminID, "/mkv_video_audio_change")) // ON
	f.bot.HandleUpdate(ctx, command(adminID, "/mkv_video_audio_change")) // OFF

	if f.negotiator.PendingCount() != 0 {
		t.Fatal("pending prompt should be cancelled on toggle off")
	}
	if _, err := os.Stat(ws.Path); !os.IsNotExist(err) {
		t.Fatal("held workspace should be deleted")
	}
}

func TestTrackReplyCommitsAndRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ws, _ := staging.NewWorkspace(f.cfg.Paths.StagingDir, adminID)
	held := ws.File("show.mkv")
	os.WriteFile(held, []byte("x"), 0o644)
	f.negotiator.Hold(700, adminID, held, []probe.Track{
		{SourceIndex: 1}, {SourceIndex: 2}, {SourceIndex: 4},
	})

	update := plainText(adminID, "3, 1")
	update.Message.ReplyToMessage = &tgbotapi.Message{MessageID: 700}
	f.bot.HandleUpdate(ctx, update)

	call := f.runner.wait(t)
	if call.name != "show.mkv" {
		t.Fatalf("declared name = %q", call.name)
	}
	if len(call.selection) != 2 || call.selection[0] != 4 || call.selection[1] != 1 {
		t.Fatalf("selection = %v, want [4 1]", call.selection)
	}
	if !call.opts.TransportVideo {
		t.Fatal("committed remux must be treated as video")
	}
}

func TestBadTrackReplyKeepsPrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ws, _ := staging.NewWorkspace(f.cfg.Paths.StagingDir, adminID)
	held := ws.File("show.mkv")
	os.WriteFile(held, []byte("x"), 0o644)
	f.negotiator.Hold(700, adminID, held, []probe.Track{{SourceIndex: 1}, {SourceIndex: 2}})

	update := plainText(adminID, "9")
	update.Message.ReplyToMessage = &tgbotapi.Message{MessageID: 700}
	f.bot.HandleUpdate(ctx, update)

	if !strings.Contains(f.messenger.lastText(t), "Bad selection") {
		t.Fatalf("reply = %q", f.messenger.lastText(t))
	}
	if f.negotiator.PendingCount() != 1 {
		t.Fatal("prompt must stay pending after a rejected reply")
	}
}

func TestURLTextStartsPipeline(t *testing.T) {
	f := newFixture(t)
	f.bot.HandleUpdate(context.Background(), plainText(adminID, "https://example.com/show.mkv"))

	call := f.runner.wait(t)
	if call.name != "show.mkv" {
		t.Fatalf("declared name = %q, want show.mkv", call.name)
	}
}

func TestUploadURLCommand(t *testing.T) {
	f := newFixture(t)
	f.bot.HandleUpdate(context.Background(), command(adminID, "/upload_url https://example.com/a.mp4"))

	call := f.runner.wait(t)
	if call.name != "a.mp4" {
		t.Fatalf("declared name = %q", call.name)
	}
}

func TestCancelCallbackForPendingPrompt(t *testing.T) {
	f := newFixture(t)

	ws, _ := staging.NewWorkspace(f.cfg.Paths.StagingDir, adminID)
	held := ws.File("held.mkv")
	os.WriteFile(held, []byte("x"), 0o644)
	f.negotiator.Hold(800, adminID, held, []probe.Track{{SourceIndex: 1}, {SourceIndex: 2}})

	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb1",
		From: &tgbotapi.User{ID: adminID},
		Data: "cancel_task",
		Message: &tgbotapi.Message{
			MessageID: 800,
			Chat:      &tgbotapi.Chat{ID: adminID, Type: "private"},
		},
	}})

	if f.negotiator.PendingCount() != 0 {
		t.Fatal("pending entry should be removed")
	}
	if _, err := os.Stat(ws.Path); !os.IsNotExist(err) {
		t.Fatal("held workspace should be deleted")
	}
	if len(f.messenger.deleted) != 1 || f.messenger.deleted[0] != 800 {
		t.Fatalf("deleted = %v, want [800]", f.messenger.deleted)
	}
}

func TestDeleteCaptionCallback(t *testing.T) {
	f := newFixture(t)
	f.captions.SetTemplate(adminID, "[01]")

	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb2",
		From: &tgbotapi.User{ID: adminID},
		Data: "delete_caption",
		Message: &tgbotapi.Message{
			MessageID: 10,
			Chat:      &tgbotapi.Chat{ID: adminID, Type: "private"},
		},
	}})

	if _, ok := f.captions.Template(adminID); ok {
		t.Fatal("template should be deleted")
	}
}

func TestBroadcastCopiesAndPrunes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subs.AddSubscriber(ctx, 100)
	f.subs.AddSubscriber(ctx, 200)
	f.messenger.failCopyTo[200] = true

	update := command(adminID, "/broadcast")
	update.Message.ReplyToMessage = &tgbotapi.Message{MessageID: 55}
	f.bot.HandleUpdate(ctx, update)

	if len(f.messenger.copies) != 1 || f.messenger.copies[0] != 100 {
		t.Fatalf("copies = %v, want [100]", f.messenger.copies)
	}
	chats, _ := f.subs.Subscribers(ctx)
	if len(chats) != 1 || chats[0] != 100 {
		t.Fatalf("subscribers after prune = %v, want [100]", chats)
	}
	if !strings.Contains(f.messenger.lastText(t), "Sent to 1") {
		t.Fatalf("summary = %q", f.messenger.lastText(t))
	}
}

func TestCaptionOnlyResendUsesExpandedTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.captions.SetTemplate(adminID, "[01] Episode")
	f.bot.modes.toggleEditCaption(adminID)

	update := tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID:   3,
		From:        &tgbotapi.User{ID: adminID},
		Chat:        &tgbotapi.Chat{ID: adminID, Type: "private"},
		ForwardDate: 1700000000,
		Video:       &tgbotapi.Video{FileID: "vid1", Duration: 60, Width: 1280, Height: 720},
	}}
	f.bot.HandleUpdate(ctx, update)

	if len(f.messenger.resent) != 1 {
		t.Fatalf("resent %d items, want 1", len(f.messenger.resent))
	}
	if f.messenger.resent[0] != "**01 Episode**" {
		t.Fatalf("caption = %q", f.messenger.resent[0])
	}
	if len(f.runner.calls) != 0 {
		t.Fatal("caption-only must not run the pipeline")
	}
}

func TestForwardedFileRunsPipeline(t *testing.T) {
	f := newFixture(t)

	update := tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID:   4,
		From:        &tgbotapi.User{ID: adminID},
		Chat:        &tgbotapi.Chat{ID: adminID, Type: "private"},
		ForwardDate: 1700000000,
		Document:    &tgbotapi.Document{FileID: "doc1", FileName: "movie.avi"},
	}}
	f.bot.HandleUpdate(context.Background(), update)

	call := f.runner.wait(t)
	if call.name != "movie.avi" {
		t.Fatalf("declared name = %q", call.name)
	}
}

func TestDirectFileIgnoredOutsideModes(t *testing.T) {
	f := newFixture(t)

	update := tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 5,
		From:      &tgbotapi.User{ID: adminID},
		Chat:      &tgbotapi.Chat{ID: adminID, Type: "private"},
		Document:  &tgbotapi.Document{FileID: "doc1", FileName: "movie.avi"},
	}}
	f.bot.HandleUpdate(context.Background(), update)

	select {
	case <-f.runner.done:
		t.Fatal("direct file must not start the pipeline")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAudioChangeModePrompts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.lister.tracks = []probe.Track{
		{SourceIndex: 1, Language: "eng"},
		{SourceIndex: 2, Language: "jpn"},
	}
	f.bot.HandleUpdate(ctx, command(adminID, "/mkv_video_audio_change"))

	update := tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 6,
		From:      &tgbotapi.User{ID: adminID},
		Chat:      &tgbotapi.Chat{ID: adminID, Type: "private"},
		Video:     &tgbotapi.Video{FileID: "vid2", FileName: "dual.mkv"},
	}}
	f.bot.HandleUpdate(ctx, update)

	deadline := time.Now().Add(5 * time.Second)
	for f.negotiator.PendingCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no prompt was held")
		}
		time.Sleep(5 * time.Millisecond)
	}

	found := false
	f.messenger.mu.Lock()
	for _, text := range f.messenger.texts {
		if strings.Contains(text, "Audio track list") && strings.Contains(text, "English") {
			found = true
		}
	}
	f.messenger.mu.Unlock()
	if !found {
		t.Fatal("track listing prompt not sent")
	}
}

func TestSetThumbTimestamp(t *testing.T) {
	f := newFixture(t)
	f.bot.HandleUpdate(context.Background(), command(adminID, "/setthumb 1m 30s"))

	if got := f.messenger.lastText(t); !strings.Contains(got, "90") {
		t.Fatalf("reply = %q, want 90s confirmation", got)
	}
	if seconds, ok := f.bot.modes.thumbSecondsFor(adminID); !ok || seconds != 90 {
		t.Fatalf("thumbSeconds = %d, %v", seconds, ok)
	}
}

func TestDelThumbRemovesFile(t *testing.T) {
	f := newFixture(t)
	thumb := filepath.Join(t.TempDir(), "thumb.jpg")
	os.WriteFile(thumb, []byte("jpeg"), 0o644)
	f.bot.modes.setThumbPath(adminID, thumb)

	f.bot.HandleUpdate(context.Background(), command(adminID, "/del_thumb"))

	if _, err := os.Stat(thumb); !os.IsNotExist(err) {
		t.Fatal("thumbnail file should be deleted")
	}
	if got := f.bot.modes.thumbPath(adminID); got != "" {
		t.Fatalf("thumbPath = %q, want cleared", got)
	}
}

func TestGroupChatIgnored(t *testing.T) {
	f := newFixture(t)
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: adminID},
		Chat:      &tgbotapi.Chat{ID: -100, Type: "supergroup"},
		Text:      "https://example.com/a.mp4",
	}}
	f.bot.HandleUpdate(context.Background(), update)

	select {
	case <-f.runner.done:
		t.Fatal("group messages must be ignored")
	case <-time.After(100 * time.Millisecond):
	}
}
