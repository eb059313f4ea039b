package confirm

import (
	"context"

	"github.com/alex-mextner/expensesyncbot/internal/entity"
)

// Notifier is the chat boundary as the flow consumes it. The flow decides
// what to say; delivery, formatting and retries belong to the
// implementation. Duplicate sends after a crash are acceptable.
type Notifier interface {
	// ShowItem presents one pending item with its category options, an
	// "other" free-text affordance and a skip option.
	ShowItem(ctx context.Context, job *entity.Job, item *entity.Item, options []string) error
	// ShowSummary sends the bulk summary with accept/correct/itemwise
	// actions and returns the message id so it can be replaced later.
	ShowSummary(ctx context.Context, job *entity.Job, summary *entity.Summary) (int, error)
	// ReplaceSummary renders a corrected summary in place of the prior one.
	ReplaceSummary(ctx context.Context, job *entity.Job, messageID int, summary *entity.Summary) (int, error)
	NotifyError(ctx context.Context, job *entity.Job, message string) error
	NotifyDone(ctx context.Context, job *entity.Job) error
	// PromptCategoryConfirm offers a close textual match for confirmation
	// before it is used instead of creating a new category.
	PromptCategoryConfirm(ctx context.Context, job *entity.Job, item *entity.Item, typed, matched string) error
	PromptCategoryInput(ctx context.Context, job *entity.Job, item *entity.Item) error
	PromptCorrection(ctx context.Context, job *entity.Job) error
	NotifyCorrectionRejected(ctx context.Context, job *entity.Job, reason string) error
	SetProcessingReaction(ctx context.Context, job *entity.Job) error
	SetNoResultReaction(ctx context.Context, job *entity.Job) error
}
