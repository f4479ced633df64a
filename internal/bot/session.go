package bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alnah/go-site2pdf/internal/store"
)

// DefaultHistoryLimit bounds the per-user list of delivered PDFs.
const DefaultHistoryLimit = 50

// sessions maps chat state onto store keys. Every key carries the TTL.
type sessions struct {
	st           store.Store
	ttl          time.Duration
	historyLimit int
}

func templateKey(chatID int64, messageID int) string {
	return fmt.Sprintf("msg:%d:%d", chatID, messageID)
}

func historyKey(userID int64) string  { return "hist:" + strconv.FormatInt(userID, 10) }
func categoryKey(userID int64) string { return "cat:" + strconv.FormatInt(userID, 10) }
func lastKey(userID int64) string     { return "last:" + strconv.FormatInt(userID, 10) }
func emailKey(userID int64) string    { return "email:" + strconv.FormatInt(userID, 10) }
func busyKey(userID int64) string     { return "busy:" + strconv.FormatInt(userID, 10) }

// recordDelivery remembers which template a PDF message shows.
func (s sessions) recordDelivery(ctx context.Context, chatID, userID int64, messageID int, template string) error {
	if err := s.st.Set(ctx, templateKey(chatID, messageID), template, s.ttl); err != nil {
		return err
	}
	if err := s.st.Set(ctx, lastKey(userID), template, s.ttl); err != nil {
		return err
	}
	entry := fmt.Sprintf("%d:%d", chatID, messageID)
	return s.st.PushCapped(ctx, historyKey(userID), entry, s.historyLimit, s.ttl)
}

// templateFor resolves the template behind a PDF message, falling back to
// the user's most recent one.
func (s sessions) templateFor(ctx context.Context, chatID, userID int64, messageID int) (string, bool, error) {
	if messageID != 0 {
		v, ok, err := s.st.Get(ctx, templateKey(chatID, messageID))
		if err != nil || ok {
			return v, ok, err
		}
	}
	return s.st.Get(ctx, lastKey(userID))
}

func (s sessions) setCategory(ctx context.Context, userID int64, slug string) error {
	return s.st.Set(ctx, categoryKey(userID), slug, s.ttl)
}

func (s sessions) category(ctx context.Context, userID int64) (string, bool, error) {
	return s.st.Get(ctx, categoryKey(userID))
}

// awaitEmail stores the template an email reply will refer to.
func (s sessions) awaitEmail(ctx context.Context, userID int64, template string) error {
	return s.st.Set(ctx, emailKey(userID), template, s.ttl)
}

func (s sessions) pendingEmail(ctx context.Context, userID int64) (string, bool, error) {
	return s.st.Get(ctx, emailKey(userID))
}

func (s sessions) clearEmail(ctx context.Context, userID int64) error {
	return s.st.Delete(ctx, emailKey(userID))
}

// lock takes the per-user render slot. ttl bounds a lock left by a crash.
func (s sessions) lock(ctx context.Context, userID int64, ttl time.Duration) (bool, error) {
	return s.st.SetNX(ctx, busyKey(userID), strconv.FormatInt(time.Now().Unix(), 10), ttl)
}

func (s sessions) unlock(ctx context.Context, userID int64) error {
	return s.st.Delete(ctx, busyKey(userID))
}
