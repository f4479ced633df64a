// Package bot implements the chat front end: category selection, template
// rendering with live progress, PDF delivery and contact forwarding.
//
// The package talks to a Messenger, so handlers are tested without a chat
// backend. Telegram is the production Messenger.
package bot

import (
	"context"
	"errors"

	site2pdf "github.com/alnah/go-site2pdf"
)

// ErrRejected marks a chat API error that retrying cannot fix
// (unknown chat, blocked bot, malformed request).
var ErrRejected = errors.New("rejected by chat API")

// InlineButton is a button attached to a message that posts Data back.
type InlineButton struct {
	Text string
	Data string
}

// Keyboard is either a reply keyboard (rows of labels sent back as text)
// or an inline keyboard. Reply wins when both are set.
type Keyboard struct {
	Reply  [][]string
	Inline [][]InlineButton
}

// Messenger sends and removes chat messages. Message IDs are scoped to a chat.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, kb *Keyboard) (int, error)
	SendDocument(ctx context.Context, chatID int64, path, caption string, kb *Keyboard) (int, error)
	Delete(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Update is one incoming event: a text message, a command or a button press.
type Update struct {
	ChatID    int64
	UserID    int64
	MessageID int
	Text      string
	Command   string // without the leading slash

	CallbackID   string
	CallbackData string
}

// IsCallback reports whether the update is an inline button press.
func (u Update) IsCallback() bool { return u.CallbackID != "" }

// progressSink shows render milestones as standalone chat messages.
type progressSink struct {
	m      Messenger
	chatID int64
}

// Compile-time interface check.
var _ site2pdf.ProgressSink = progressSink{}

func (s progressSink) Show(ctx context.Context, text string) (site2pdf.MessageHandle, error) {
	id, err := s.m.SendText(ctx, s.chatID, text, nil)
	if err != nil {
		return nil, err
	}
	return id, nil
}

func (s progressSink) Remove(ctx context.Context, h site2pdf.MessageHandle) error {
	id, ok := h.(int)
	if !ok {
		return nil
	}
	return s.m.Delete(ctx, s.chatID, id)
}
