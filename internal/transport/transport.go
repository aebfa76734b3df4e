// Package transport abstracts the chat transport used for prompts and final
// deliveries so the pipeline and bot logic can be tested against a fake.
package transport

// Button is one inline keyboard button carrying callback data.
type Button struct {
	Label string
	Data  string
}

// Video describes a video delivery.
type Video struct {
	Path      string
	Caption   string
	ThumbPath string
	Duration  int
	Width     int
	Height    int
}

// Document describes an opaque file delivery.
type Document struct {
	Path      string
	Caption   string
	ThumbPath string
}

// Messenger is the sending half of the chat transport.
type Messenger interface {
	SendText(chatID int64, text string) (int, error)
	SendTextWithButtons(chatID int64, text string, rows ...[]Button) (int, error)
	EditText(chatID int64, messageID int, text string) error
	DeleteMessage(chatID int64, messageID int) error
	SendVideo(chatID int64, video Video) error
	SendDocument(chatID int64, document Document) error
	SendPhoto(chatID int64, path, caption string) (int, error)
	// ResendVideo and ResendDocument reuse an already-uploaded file by its
	// transport file id, avoiding a re-upload.
	ResendVideo(chatID int64, fileID, caption string, duration, width, height int) error
	ResendDocument(chatID int64, fileID, caption string) error
	CopyMessage(toChatID, fromChatID int64, messageID int) error
	AnswerCallback(callbackID, text string) error
}
