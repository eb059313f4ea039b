package confirm

import (
	"fmt"
	"strconv"
	"strings"
)

// Callback data travels as "<action>:<entityId>:<parameter>". It is parsed
// once, here, into a closed set of action kinds; downstream handlers never
// re-parse strings.

type Action interface {
	isAction()
	Encode() string
}

// ConfirmItem confirms an item under one of its presented category options.
type ConfirmItem struct {
	ItemID      int64
	OptionIndex int
}

// OtherItem arms waitingForCategoryInput on the item.
type OtherItem struct{ ItemID int64 }

// SkipItem confirms the item without category-driven persistence.
type SkipItem struct{ ItemID int64 }

// AcceptSummary commits every item under its summary category.
type AcceptSummary struct{ JobID int64 }

// CorrectSummary asks the operator for a free-text correction.
type CorrectSummary struct{ JobID int64 }

// ItemizeSummary falls back from bulk mode to item-by-item.
type ItemizeSummary struct{ JobID int64 }

// UseCategory accepts the close textual match offered for a typed name.
type UseCategory struct {
	ItemID int64
	Name   string
}

// NewCategory creates the typed name as a new category instead.
type NewCategory struct {
	ItemID int64
	Name   string
}

func (ConfirmItem) isAction()    {}
func (OtherItem) isAction()      {}
func (SkipItem) isAction()       {}
func (AcceptSummary) isAction()  {}
func (CorrectSummary) isAction() {}
func (ItemizeSummary) isAction() {}
func (UseCategory) isAction()    {}
func (NewCategory) isAction()    {}

const (
	kindConfirm = "cat"
	kindOther   = "other"
	kindSkip    = "skip"
	kindAccept  = "accept"
	kindCorrect = "correct"
	kindItemize = "itemize"
	kindUseCat  = "usecat"
	kindNewCat  = "newcat"
)

func (a ConfirmItem) Encode() string {
	return fmt.Sprintf("%s:%d:%d", kindConfirm, a.ItemID, a.OptionIndex)
}
func (a OtherItem) Encode() string      { return fmt.Sprintf("%s:%d:", kindOther, a.ItemID) }
func (a SkipItem) Encode() string       { return fmt.Sprintf("%s:%d:", kindSkip, a.ItemID) }
func (a AcceptSummary) Encode() string  { return fmt.Sprintf("%s:%d:", kindAccept, a.JobID) }
func (a CorrectSummary) Encode() string { return fmt.Sprintf("%s:%d:", kindCorrect, a.JobID) }
func (a ItemizeSummary) Encode() string { return fmt.Sprintf("%s:%d:", kindItemize, a.JobID) }
func (a UseCategory) Encode() string {
	return fmt.Sprintf("%s:%d:%s", kindUseCat, a.ItemID, a.Name)
}
func (a NewCategory) Encode() string {
	return fmt.Sprintf("%s:%d:%s", kindNewCat, a.ItemID, a.Name)
}

// ParseAction decodes callback data. The parameter segment may itself
// contain colons (category names), so the split is bounded at three parts.
func ParseAction(data string) (Action, error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed action data %q", data)
	}
	kind, idStr, param := parts[0], parts[1], parts[2]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed entity id in %q: %w", data, err)
	}
	switch kind {
	case kindConfirm:
		idx, err := strconv.Atoi(param)
		if err != nil {
			return nil, fmt.Errorf("malformed option index in %q: %w", data, err)
		}
		return ConfirmItem{ItemID: id, OptionIndex: idx}, nil
	case kindOther:
		return OtherItem{ItemID: id}, nil
	case kindSkip:
		return SkipItem{ItemID: id}, nil
	case kindAccept:
		return AcceptSummary{JobID: id}, nil
	case kindCorrect:
		return CorrectSummary{JobID: id}, nil
	case kindItemize:
		return ItemizeSummary{JobID: id}, nil
	case kindUseCat:
		return UseCategory{ItemID: id, Name: param}, nil
	case kindNewCat:
		return NewCategory{ItemID: id, Name: param}, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
}
