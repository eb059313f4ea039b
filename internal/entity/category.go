package entity

// DefaultCategory is the bucket used when the extraction model proposes a
// category outside the group's known set and no close match exists.
const DefaultCategory = "misc"

// Category is a per-group spending category.
type Category struct {
	ID      int64
	GroupID int64
	Name    string
}
