package bot

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alex-mextner/expensesyncbot/internal/confirm"
	"github.com/alex-mextner/expensesyncbot/internal/entity"
	"github.com/alex-mextner/expensesyncbot/internal/repository"
)

// Router turns incoming updates into queued jobs and confirmation events.
// It never does recognition work itself; photos and links only become rows
// in jobs, picked up later by the dispatcher.
type Router struct {
	api    *tgbotapi.BotAPI
	jobs   repository.JobRepository
	flow   *confirm.Flow
	logger *slog.Logger
}

func NewRouter(api *tgbotapi.BotAPI, jobs repository.JobRepository, flow *confirm.Flow, logger *slog.Logger) *Router {
	return &Router{api: api, jobs: jobs, flow: flow, logger: logger}
}

// Run consumes the long-poll update channel until ctx is cancelled.
func (r *Router) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := r.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			r.api.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			r.handleUpdate(ctx, upd)
		}
	}
}

func (r *Router) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		r.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		r.handleMessage(ctx, upd.Message)
	}
}

func (r *Router) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	action, err := confirm.ParseAction(cq.Data)
	if err != nil {
		r.logger.Warn("bot.callback.malformed", "data", cq.Data, "error", err)
		r.answerCallback(cq.ID)
		return
	}
	if err := r.flow.HandleAction(ctx, action); err != nil {
		r.logger.Error("bot.callback.failed", "data", cq.Data, "error", err)
	}
	r.answerCallback(cq.ID)
}

// answerCallback stops the client-side spinner; failures are non-fatal.
func (r *Router) answerCallback(id string) {
	if _, err := r.api.Request(tgbotapi.NewCallback(id, "")); err != nil {
		r.logger.Warn("bot.callback.answer_failed", "error", err)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if fileID, ok := largestPhoto(msg); ok {
		r.enqueue(ctx, msg, entity.PayloadFile, fileID)
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if isReceiptURL(text) {
		r.enqueue(ctx, msg, entity.PayloadURL, text)
		return
	}

	consumed, err := r.flow.HandleText(ctx, msg.Chat.ID, text)
	if err != nil {
		r.logger.Error("bot.text.failed", "chat_id", msg.Chat.ID, "error", err)
		return
	}
	if !consumed {
		// Not part of any confirmation dialog; the surrounding chat
		// handles ordinary expense messages.
		r.logger.Debug("bot.text.unconsumed", "chat_id", msg.Chat.ID)
	}
}

func (r *Router) enqueue(ctx context.Context, msg *tgbotapi.Message, kind entity.PayloadKind, payload string) {
	var submitter int64
	if msg.From != nil {
		submitter = msg.From.ID
	}
	job := &entity.Job{
		GroupID:         msg.Chat.ID,
		SubmitterID:     submitter,
		SourceMessageID: msg.MessageID,
		PayloadKind:     kind,
		Payload:         payload,
	}
	id, err := r.jobs.Enqueue(ctx, job)
	if err != nil {
		r.logger.Error("bot.enqueue.failed", "chat_id", msg.Chat.ID, "kind", kind, "error", err)
		return
	}
	r.logger.Info("bot.enqueue", "job_id", id, "chat_id", msg.Chat.ID, "kind", kind)
}

// largestPhoto picks the biggest size variant of an attached photo, or an
// attached image document.
func largestPhoto(msg *tgbotapi.Message) (string, bool) {
	if len(msg.Photo) > 0 {
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		return best.FileID, true
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		return msg.Document.FileID, true
	}
	return "", false
}

func isReceiptURL(text string) bool {
	if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
		return false
	}
	if strings.ContainsAny(text, " \n\t") {
		return false
	}
	u, err := url.Parse(text)
	return err == nil && u.Host != ""
}
