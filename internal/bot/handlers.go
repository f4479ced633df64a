package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	site2pdf "github.com/alnah/go-site2pdf"
	"github.com/alnah/go-site2pdf/internal/catalog"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Handle dispatches one update. Renders are started in the background.
func (b *Bot) Handle(ctx context.Context, u Update) {
	log := b.logger.With(zap.Int64("chat_id", u.ChatID), zap.Int64("user_id", u.UserID))

	switch {
	case u.IsCallback():
		b.handleCallback(ctx, log, u)
	case u.Command == "start":
		b.reply(ctx, u.ChatID, textGreeting, categoryKeyboard())
	case u.Command != "":
		b.reply(ctx, u.ChatID, textUnknownInput, categoryKeyboard())
	default:
		b.handleText(ctx, log, u)
	}
}

func (b *Bot) handleCallback(ctx context.Context, log *zap.Logger, u Update) {
	if err := b.msg.AnswerCallback(ctx, u.CallbackID, ""); err != nil {
		log.Debug("answering callback failed", zap.Error(err))
	}

	switch u.CallbackData {
	case actionContact:
		template, ok, err := b.sess.templateFor(ctx, u.ChatID, u.UserID, u.MessageID)
		if err != nil {
			log.Error("reading session failed", zap.Error(err))
		}
		if !ok {
			b.reply(ctx, u.ChatID, textTemplateNotFound, nil)
			return
		}
		if err := b.sess.awaitEmail(ctx, u.UserID, template); err != nil {
			log.Error("saving session failed", zap.Error(err))
			b.reply(ctx, u.ChatID, textForwardFailed, nil)
			return
		}
		log.Info("waiting for email", zap.String("template", template))
		b.reply(ctx, u.ChatID, textAskEmail, nil)

	case actionNewPDF:
		slug, ok, err := b.sess.category(ctx, u.UserID)
		if err != nil {
			log.Error("reading session failed", zap.Error(err))
		}
		cat, known := catalog.BySlug(slug)
		if !ok || !known {
			b.reply(ctx, u.ChatID, textCategoryNotFound, categoryKeyboard())
			return
		}
		b.startRender(ctx, log, u, cat)

	case actionChooseCategory:
		b.reply(ctx, u.ChatID, textChooseCategory, categoryKeyboard())

	default:
		log.Debug("unknown callback", zap.String("data", u.CallbackData))
	}
}

func (b *Bot) handleText(ctx context.Context, log *zap.Logger, u Update) {
	text := strings.TrimSpace(u.Text)

	if cat, ok := catalog.ByName(text); ok {
		if err := b.sess.setCategory(ctx, u.UserID, cat.Slug); err != nil {
			log.Error("saving session failed", zap.Error(err))
		}
		b.startRender(ctx, log, u, cat)
		return
	}

	template, waiting, err := b.sess.pendingEmail(ctx, u.UserID)
	if err != nil {
		log.Error("reading session failed", zap.Error(err))
	}
	switch {
	case waiting && emailPattern.MatchString(text):
		b.forwardContact(ctx, log, u, text, template)
	case waiting:
		b.reply(ctx, u.ChatID, textInvalidEmail, nil)
	case emailPattern.MatchString(text):
		log.Info("email received outside a contact request, ignoring")
	default:
		b.reply(ctx, u.ChatID, textUnknownInput, categoryKeyboard())
	}
}

// forwardContact sends the email and template to the operator chat.
func (b *Bot) forwardContact(ctx context.Context, log *zap.Logger, u Update, email, template string) {
	if b.cfg.OperatorChatID == 0 {
		log.Error("operator chat not configured, contact request dropped")
		b.reply(ctx, u.ChatID, textForwardFailed, nil)
		return
	}
	text := fmt.Sprintf(textOperatorContact, email, template)
	if _, err := b.msg.SendText(ctx, b.cfg.OperatorChatID, text, nil); err != nil {
		log.Error("forwarding contact failed", zap.Error(err))
		b.reply(ctx, u.ChatID, textForwardFailed, nil)
		return
	}
	if err := b.sess.clearEmail(ctx, u.UserID); err != nil {
		log.Warn("clearing session failed", zap.Error(err))
	}
	log.Info("contact forwarded", zap.String("template", template))
	b.reply(ctx, u.ChatID, textThanks, nil)
}

// startRender applies the rate limit and the single in-flight rule, then
// renders in the background.
func (b *Bot) startRender(ctx context.Context, log *zap.Logger, u Update, cat catalog.Category) {
	if !b.allow(u.UserID) {
		b.metrics.Throttled()
		log.Info("render throttled")
		b.reply(ctx, u.ChatID, textThrottled, nil)
		return
	}

	locked, err := b.sess.lock(ctx, u.UserID, b.cfg.JobTimeout+b.cfg.Grace)
	if err != nil {
		log.Error("taking render lock failed", zap.Error(err))
		b.reply(ctx, u.ChatID, fmt.Sprintf(textRenderFailed, cat.Name), nil)
		return
	}
	if !locked {
		b.reply(ctx, u.ChatID, textBusy, nil)
		return
	}

	b.renders.Add(1)
	go func() {
		defer b.renders.Done()
		defer func() {
			// The lock must go even if ctx is already cancelled.
			if err := b.sess.unlock(context.WithoutCancel(ctx), u.UserID); err != nil {
				log.Warn("releasing render lock failed", zap.Error(err))
			}
		}()
		b.render(ctx, log.With(zap.String("category", cat.Slug)), u, cat)
	}()
}

// render picks a template, renders it and delivers the PDF.
func (b *Bot) render(ctx context.Context, log *zap.Logger, u Update, cat catalog.Category) {
	template, err := b.catalog.Random(ctx, cat.Slug)
	if err != nil {
		log.Warn("no template", zap.Error(err))
		b.reply(ctx, u.ChatID, fmt.Sprintf(textNoTemplates, cat.Name), nil)
		return
	}
	log = log.With(zap.String("template", template))

	waitingID, err := b.msg.SendText(ctx, u.ChatID, fmt.Sprintf(textWaiting, cat.Name, template), nil)
	if err != nil {
		log.Warn("sending waiting message failed", zap.Error(err))
	} else {
		defer b.remove(context.WithoutCancel(ctx), u.ChatID, waitingID)
	}

	jobCtx, cancel := context.WithTimeout(ctx, b.cfg.JobTimeout)
	defer cancel()

	progress := site2pdf.NewReporter(progressSink{m: b.msg, chatID: u.ChatID}, log)
	dir, art, err := b.renderer.RenderIn(jobCtx, site2pdf.RenderJob{URL: template, Progress: progress}, b.ws.Allocate)
	progress.Clear(context.WithoutCancel(ctx))
	if err != nil {
		if dir != "" {
			b.ws.Reclaim(dir)
		}
		log.Error("render failed", zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			b.reply(ctx, u.ChatID, textRenderTimeout, nil)
			return
		}
		b.reply(ctx, u.ChatID, fmt.Sprintf(textRenderFailed, template), nil)
		return
	}

	messageID, err := b.deliver(ctx, u.ChatID, art.Path)
	if err != nil {
		b.ws.Reclaim(dir)
		log.Error("delivery failed", zap.Error(err))
		b.reply(ctx, u.ChatID, textDeliveryFailed, nil)
		return
	}
	b.ws.ReclaimAfter(dir, b.cfg.Grace)

	if err := b.sess.recordDelivery(ctx, u.ChatID, u.UserID, messageID, template); err != nil {
		log.Warn("saving delivery failed", zap.Error(err))
	}
	log.Info("pdf delivered",
		zap.Int("message_id", messageID),
		zap.Int("bands", art.Bands),
		zap.Duration("duration", art.Duration))
}
