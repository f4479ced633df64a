package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// The library logger is process-global; the first Telegram sets it.
var libLoggerOnce sync.Once

// Telegram is the Bot API Messenger.
type Telegram struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

// Compile-time interface check.
var _ Messenger = (*Telegram)(nil)

// TelegramOption configures NewTelegram.
type TelegramOption func(*telegramConfig)

type telegramConfig struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// WithEndpoint overrides the Bot API URL format (token, method).
func WithEndpoint(format string) TelegramOption {
	return func(c *telegramConfig) { c.endpoint = format }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(h *http.Client) TelegramOption {
	return func(c *telegramConfig) { c.client = h }
}

// WithTelegramLogger sets the logger, also used for the library's own output.
func WithTelegramLogger(l *zap.Logger) TelegramOption {
	return func(c *telegramConfig) { c.logger = l }
}

// NewTelegram authenticates with token (one getMe call).
func NewTelegram(token string, opts ...TelegramOption) (*Telegram, error) {
	cfg := telegramConfig{
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: 90 * time.Second},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: empty bot token", ErrRejected)
	}
	libLoggerOnce.Do(func() {
		_ = tgbotapi.SetLogger(zap.NewStdLog(cfg.logger.Named("tgbotapi")))
	})

	api, err := tgbotapi.NewBotAPIWithClient(token, cfg.endpoint, cfg.client)
	if err != nil {
		return nil, fmt.Errorf("connecting to Telegram: %w", classify(err))
	}
	cfg.logger.Info("authorized", zap.String("username", api.Self.UserName))
	return &Telegram{api: api, logger: cfg.logger}, nil
}

// Username returns the bot account name.
func (t *Telegram) Username() string { return t.api.Self.UserName }

// Updates long-polls for updates until ctx ends. The channel is closed on exit.
func (t *Telegram) Updates(ctx context.Context, pollTimeout time.Duration) <-chan Update {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = max(int(pollTimeout.Seconds()), 1)
	in := t.api.GetUpdatesChan(cfg)

	out := make(chan Update)
	go func() {
		defer close(out)
		defer t.api.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				u, ok := convertUpdate(raw)
				if !ok {
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// SendText implements Messenger.
func (t *Telegram) SendText(ctx context.Context, chatID int64, text string, kb *Keyboard) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if m := markup(kb); m != nil {
		msg.ReplyMarkup = m
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, classify(err)
	}
	return sent.MessageID, nil
}

// SendDocument implements Messenger.
func (t *Telegram) SendDocument(ctx context.Context, chatID int64, path, caption string, kb *Keyboard) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = caption
	if m := markup(kb); m != nil {
		doc.ReplyMarkup = m
	}
	sent, err := t.api.Send(doc)
	if err != nil {
		return 0, classify(err)
	}
	return sent.MessageID, nil
}

// Delete implements Messenger.
func (t *Telegram) Delete(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return classify(err)
}

// AnswerCallback implements Messenger.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.Request(tgbotapi.NewCallback(callbackID, text))
	return classify(err)
}

// classify marks client-side API errors as ErrRejected.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: %d %s", ErrRejected, apiErr.Code, apiErr.Message)
		}
	}
	return err
}

// markup converts a Keyboard to the API's reply markup, or nil.
func markup(kb *Keyboard) any {
	switch {
	case kb == nil:
		return nil
	case len(kb.Reply) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Reply))
		for _, r := range kb.Reply {
			row := make([]tgbotapi.KeyboardButton, 0, len(r))
			for _, label := range r {
				row = append(row, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, row)
		}
		m := tgbotapi.NewReplyKeyboard(rows...)
		m.OneTimeKeyboard = true
		m.ResizeKeyboard = true
		return m
	case len(kb.Inline) > 0:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Inline))
		for _, r := range kb.Inline {
			row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
			for _, b := range r {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
			rows = append(rows, row)
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	default:
		return nil
	}
}

// convertUpdate keeps text messages and button presses; everything else is dropped.
func convertUpdate(raw tgbotapi.Update) (Update, bool) {
	switch {
	case raw.CallbackQuery != nil:
		cq := raw.CallbackQuery
		u := Update{CallbackID: cq.ID, CallbackData: cq.Data}
		if cq.From != nil {
			u.UserID = cq.From.ID
		}
		if cq.Message != nil {
			u.MessageID = cq.Message.MessageID
			if cq.Message.Chat != nil {
				u.ChatID = cq.Message.Chat.ID
			}
		}
		return u, u.ChatID != 0
	case raw.Message != nil && raw.Message.Chat != nil && raw.Message.Text != "":
		m := raw.Message
		u := Update{ChatID: m.Chat.ID, MessageID: m.MessageID, Text: m.Text}
		if m.From != nil {
			u.UserID = m.From.ID
		} else {
			u.UserID = m.Chat.ID
		}
		if m.IsCommand() {
			u.Command = m.Command()
		}
		return u, true
	default:
		return Update{}, false
	}
}
