package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alex-mextner/expensesyncbot/internal/entity"
	"github.com/alex-mextner/expensesyncbot/internal/llm"
	"github.com/alex-mextner/expensesyncbot/internal/match"
	"github.com/alex-mextner/expensesyncbot/internal/repository"
)

// Result is a populated currency plus the extracted items, ready for the
// item store.
type Result struct {
	Currency string
	Items    []*entity.Item
}

// Recognizer drives the ordered fallback chain over a job payload and
// turns the resolved text into line items.
type Recognizer struct {
	qr        QRDecoder
	pages     PageFetcher
	vision    TextRecognizer
	extractor llm.ItemExtractor
	cats      repository.CategoryRepository
	matcher   match.Matcher
	language  string
	logger    *slog.Logger
}

func NewRecognizer(
	qr QRDecoder,
	pages PageFetcher,
	vision TextRecognizer,
	extractor llm.ItemExtractor,
	cats repository.CategoryRepository,
	matcher match.Matcher,
	language string,
	logger *slog.Logger,
) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if matcher == nil {
		matcher = match.NewHeuristic()
	}
	return &Recognizer{
		qr:        qr,
		pages:     pages,
		vision:    vision,
		extractor: extractor,
		cats:      cats,
		matcher:   matcher,
		language:  language,
		logger:    logger,
	}
}

// Recognize resolves the payload to text and extracts items. A nil error
// guarantees at least one item.
func (r *Recognizer) Recognize(ctx context.Context, job *entity.Job, in Input) (*Result, error) {
	text, trail, err := r.resolve(ctx, in)
	if err != nil {
		return nil, err
	}
	r.logger.Info("recognize.resolved", "job_id", job.ID, "trail", strings.Join(trail, ","), "text_len", len(text))
	return r.extract(ctx, job, text)
}

// resolve runs the fallback steps in order and returns the first usable
// text together with the names of the steps attempted.
func (r *Recognizer) resolve(ctx context.Context, in Input) (string, []string, error) {
	steps := r.steps(in)
	var trail []string
	var causes []string
	for _, step := range steps {
		trail = append(trail, step.Name)
		text, err := step.Run(ctx)
		if err != nil {
			r.logger.Warn("recognize.step_failed", "step", step.Name, "error", err)
			causes = append(causes, step.Name+": "+err.Error())
			continue
		}
		if text == "" {
			r.logger.Info("recognize.step_empty", "step", step.Name)
			causes = append(causes, step.Name+": nothing found")
			continue
		}
		return text, trail, nil
	}
	return "", trail, fmt.Errorf("receipt could not be read (%s)", strings.Join(causes, "; "))
}

// steps builds the chain for one payload. For photos the order is QR
// decode (including link resolution) then vision OCR; OCR is reached only
// when the QR step yields nothing or its fetch fails.
func (r *Recognizer) steps(in Input) []Step {
	switch in.Kind {
	case entity.PayloadFile:
		steps := []Step{
			{Name: "qr", Run: func(ctx context.Context) (string, error) {
				payload, err := r.qr.DecodeQR(ctx, in.Image)
				if err != nil || payload == "" {
					return "", err
				}
				if isURL(payload) {
					return r.pages.FetchText(ctx, payload)
				}
				return payload, nil
			}},
		}
		if r.vision != nil {
			steps = append(steps, Step{Name: "ocr", Run: func(ctx context.Context) (string, error) {
				return r.vision.RecognizeText(ctx, in.Image, "jpeg")
			}})
		}
		return steps
	case entity.PayloadURL:
		return []Step{
			{Name: "fetch", Run: func(ctx context.Context) (string, error) {
				return r.pages.FetchText(ctx, in.Payload)
			}},
		}
	default:
		return []Step{
			{Name: "text", Run: func(ctx context.Context) (string, error) {
				return strings.TrimSpace(in.Payload), nil
			}},
		}
	}
}

func (r *Recognizer) extract(ctx context.Context, job *entity.Job, text string) (*Result, error) {
	known, err := r.knownCategories(ctx, job.GroupID)
	if err != nil {
		return nil, err
	}
	res, err := r.extractor.ExtractItems(ctx, llm.ExtractRequest{
		Text:            text,
		KnownCategories: known,
		DisplayLanguage: r.language,
	})
	if err != nil {
		return nil, fmt.Errorf("extracting items: %w", err)
	}
	if len(res.Items) == 0 {
		return nil, fmt.Errorf("no items found on the receipt")
	}

	items := make([]*entity.Item, 0, len(res.Items))
	for i, raw := range res.Items {
		item, err := r.toItem(ctx, job, raw, res.Currency, known)
		if err != nil {
			return nil, fmt.Errorf("item %d (%s): %w", i, raw.Name, err)
		}
		items = append(items, item)
	}
	return &Result{Currency: res.Currency, Items: items}, nil
}

func (r *Recognizer) toItem(ctx context.Context, job *entity.Job, raw llm.ExtractedItem, currency string, known []string) (*entity.Item, error) {
	qty, err := decimal.NewFromString(raw.Quantity)
	if err != nil {
		return nil, fmt.Errorf("bad quantity %q", raw.Quantity)
	}
	unit, err := decimal.NewFromString(raw.UnitPrice)
	if err != nil {
		return nil, fmt.Errorf("bad unit price %q", raw.UnitPrice)
	}
	total, err := decimal.NewFromString(raw.Total)
	if err != nil {
		return nil, fmt.Errorf("bad total %q", raw.Total)
	}

	category := raw.Category
	if len(known) > 0 {
		category, err = r.remapCategory(ctx, job.GroupID, raw.Category, known)
		if err != nil {
			return nil, err
		}
	}
	return &entity.Item{
		JobID:              job.ID,
		Name:               raw.Name,
		NameOriginal:       raw.NameOriginal,
		Quantity:           qty,
		UnitPrice:          unit,
		Total:              total,
		Currency:           currency,
		SuggestedCategory:  category,
		PossibleCategories: raw.Alternatives,
		Status:             entity.ItemStatusPending,
	}, nil
}

// remapCategory substitutes a model-proposed category outside the known
// set with the closest existing match, or the default bucket. Not an
// error: logged as a soft warning.
func (r *Recognizer) remapCategory(ctx context.Context, groupID int64, proposed string, known []string) (string, error) {
	if name, ok := r.matcher.Exact(proposed, known); ok {
		return name, nil
	}
	if name, ok := r.matcher.Closest(proposed, known); ok {
		r.logger.Warn("recognize.category_remapped", "proposed", proposed, "used", name)
		return name, nil
	}
	def, err := r.cats.EnsureDefault(ctx, groupID)
	if err != nil {
		return "", err
	}
	r.logger.Warn("recognize.category_defaulted", "proposed", proposed, "used", def.Name)
	return def.Name, nil
}

func (r *Recognizer) knownCategories(ctx context.Context, groupID int64) ([]string, error) {
	cats, err := r.cats.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return names, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
