package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/alex-mextner/expensesyncbot/internal/confirm"
	"github.com/alex-mextner/expensesyncbot/internal/entity"
)

const (
	reactionSeen     = "👀"
	reactionNoResult = "🤷"
)

// Telegram implements confirm.Notifier over the bot API. It also resolves
// photo file handles for the recognition chain (recognition.MediaFetcher).
type Telegram struct {
	api  *tgbotapi.BotAPI
	http *http.Client
}

var _ confirm.Notifier = (*Telegram)(nil)

func NewTelegram(api *tgbotapi.BotAPI) *Telegram {
	return &Telegram{
		api:  api,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *Telegram) ShowItem(_ context.Context, job *entity.Job, item *entity.Item, options []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "🧾 %s\n", item.Name)
	if item.NameOriginal != "" && item.NameOriginal != item.Name {
		fmt.Fprintf(&b, "(%s)\n", item.NameOriginal)
	}
	fmt.Fprintf(&b, "%s × %s = %s %s\n\nPick a category:",
		item.Quantity.String(), item.UnitPrice.String(), item.Total.String(), item.Currency)

	var rows [][]tgbotapi.InlineKeyboardButton
	for i, opt := range options {
		data := confirm.ConfirmItem{ItemID: item.ID, OptionIndex: i}.Encode()
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(opt, data)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✏️ Other", confirm.OtherItem{ItemID: item.ID}.Encode()),
		tgbotapi.NewInlineKeyboardButtonData("➡️ Skip", confirm.SkipItem{ItemID: item.ID}.Encode()),
	))

	msg := tgbotapi.NewMessage(job.GroupID, b.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err := t.api.Send(msg)
	return err
}

func (t *Telegram) ShowSummary(_ context.Context, job *entity.Job, summary *entity.Summary) (int, error) {
	msg := tgbotapi.NewMessage(job.GroupID, renderSummary(summary))
	msg.ReplyMarkup = summaryKeyboard(job.ID)
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (t *Telegram) ReplaceSummary(ctx context.Context, job *entity.Job, messageID int, summary *entity.Summary) (int, error) {
	if messageID == 0 {
		return t.ShowSummary(ctx, job, summary)
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(job.GroupID, messageID,
		renderSummary(summary), summaryKeyboard(job.ID))
	if _, err := t.api.Send(edit); err != nil {
		// Message may be too old to edit; fall back to a fresh one.
		return t.ShowSummary(ctx, job, summary)
	}
	return messageID, nil
}

func (t *Telegram) NotifyError(_ context.Context, job *entity.Job, message string) error {
	msg := tgbotapi.NewMessage(job.GroupID, "❌ "+message)
	msg.ReplyToMessageID = job.SourceMessageID
	_, err := t.api.Send(msg)
	return err
}

func (t *Telegram) NotifyDone(_ context.Context, job *entity.Job) error {
	msg := tgbotapi.NewMessage(job.GroupID, "✅ Receipt processed, all items confirmed.")
	msg.ReplyToMessageID = job.SourceMessageID
	_, err := t.api.Send(msg)
	return err
}

func (t *Telegram) PromptCategoryConfirm(_ context.Context, job *entity.Job, item *entity.Item, typed, matched string) error {
	msg := tgbotapi.NewMessage(job.GroupID,
		fmt.Sprintf("Did you mean “%s”?", matched))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, use "+matched,
				confirm.UseCategory{ItemID: item.ID, Name: matched}.Encode()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("No, create "+typed,
				confirm.NewCategory{ItemID: item.ID, Name: typed}.Encode()),
		),
	)
	_, err := t.api.Send(msg)
	return err
}

func (t *Telegram) PromptCategoryInput(_ context.Context, job *entity.Job, item *entity.Item) error {
	msg := tgbotapi.NewMessage(job.GroupID,
		fmt.Sprintf("Send the category name for “%s” as a message.", item.Name))
	_, err := t.api.Send(msg)
	return err
}

func (t *Telegram) PromptCorrection(_ context.Context, job *entity.Job) error {
	msg := tgbotapi.NewMessage(job.GroupID,
		"Describe the correction in one message, e.g. “move salad to Household”.")
	_, err := t.api.Send(msg)
	return err
}

func (t *Telegram) NotifyCorrectionRejected(_ context.Context, job *entity.Job, reason string) error {
	msg := tgbotapi.NewMessage(job.GroupID, "⚠️ Correction rejected: "+reason)
	_, err := t.api.Send(msg)
	return err
}

func (t *Telegram) SetProcessingReaction(_ context.Context, job *entity.Job) error {
	return t.setReaction(job, reactionSeen)
}

func (t *Telegram) SetNoResultReaction(_ context.Context, job *entity.Job) error {
	return t.setReaction(job, reactionNoResult)
}

// setReaction goes through the raw endpoint; the bot API package predates
// setMessageReaction.
func (t *Telegram) setReaction(job *entity.Job, emoji string) error {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", job.GroupID)
	params.AddNonZero("message_id", job.SourceMessageID)
	params["reaction"] = fmt.Sprintf(`[{"type":"emoji","emoji":"%s"}]`, emoji)
	_, err := t.api.MakeRequest("setMessageReaction", params)
	return err
}

// FetchMedia implements recognition.MediaFetcher: resolves a Telegram
// file id into image bytes.
func (t *Telegram) FetchMedia(ctx context.Context, fileID string) ([]byte, error) {
	url, err := t.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolving file %s: %w", fileID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading file: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 20<<20))
}

func renderSummary(s *entity.Summary) string {
	var b strings.Builder
	b.WriteString("🧾 Receipt summary\n\n")
	for _, cat := range s.Categories {
		catTotal := decimal.Zero
		for _, it := range cat.Items {
			catTotal = catTotal.Add(it.Total)
		}
		fmt.Fprintf(&b, "▪️ %s — %s %s\n", cat.Name, catTotal.String(), s.Currency)
		for _, it := range cat.Items {
			fmt.Fprintf(&b, "    %s: %s\n", it.Name, it.Total.String())
		}
	}
	fmt.Fprintf(&b, "\nTotal: %s %s", s.TotalAmount.String(), s.Currency)
	return b.String()
}

func summaryKeyboard(jobID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Accept all",
				confirm.AcceptSummary{JobID: jobID}.Encode()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ Correct",
				confirm.CorrectSummary{JobID: jobID}.Encode()),
			tgbotapi.NewInlineKeyboardButtonData("📋 One by one",
				confirm.ItemizeSummary{JobID: jobID}.Encode()),
		),
	)
}
