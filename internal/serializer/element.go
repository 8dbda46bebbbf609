// Package serializer renders pages and elements into their JSON wire shape.
// All functions here are pure transforms: no store access, no mutation of the
// input entities.
package serializer

import (
	"time"

	"github.com/your-org/contentd/internal/domain"
	"github.com/your-org/contentd/internal/essence"
)

// ElementJSON is the wire representation of one element. ContentIDs and
// Ingredients are index-aligned: the ingredient at position i belongs to the
// content at position i. NestedElements is only populated by the tree
// builder; flat listings leave it nil.
type ElementJSON struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Position       int            `json:"position"`
	PageID         int64          `json:"page_id"`
	CellID         *int64         `json:"cell_id"`
	TagList        []string       `json:"tag_list"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ContentIDs     []int64        `json:"content_ids"`
	Ingredients    []interface{}  `json:"ingredients"`
	NestedElements []*ElementJSON `json:"nested_elements,omitempty"`
}

// SerializeElement converts one element to its JSON shape. The element's own
// contents are always serialized, whether or not it nests children; nested
// children are a separate relation attached by the tree builder.
//
// A content whose essence cannot produce a JSON-safe value does not abort the
// element: its slot in Ingredients holds an error marker and every sibling
// still serializes normally.
func SerializeElement(el *domain.Element) *ElementJSON {
	out := &ElementJSON{
		ID:          el.ID,
		Name:        el.Name,
		Position:    el.Position,
		PageID:      el.PageID,
		TagList:     tagList(el.TagList),
		CreatedAt:   el.CreatedAt,
		UpdatedAt:   el.UpdatedAt,
		ContentIDs:  make([]int64, 0, len(el.Contents)),
		Ingredients: make([]interface{}, 0, len(el.Contents)),
	}
	if el.CellID != 0 {
		cellID := el.CellID
		out.CellID = &cellID
	}

	for _, content := range el.Contents {
		out.ContentIDs = append(out.ContentIDs, content.ID)
		out.Ingredients = append(out.Ingredients, ingredientValue(content))
	}

	return out
}

// ingredientValue renders one content's essence, isolating any failure into
// an explicit per-ingredient marker.
func ingredientValue(content domain.Content) interface{} {
	value, err := essence.Decode(content.EssenceKind, content.EssenceData)
	if err != nil {
		return ingredientError(content, err)
	}
	rendered, err := value.IngredientValue()
	if err != nil {
		return ingredientError(content, err)
	}
	return rendered
}

// ingredientError is the marker emitted in place of an unserializable
// ingredient.
func ingredientError(content domain.Content, err error) map[string]interface{} {
	return map[string]interface{}{
		"error":      err.Error(),
		"content_id": content.ID,
		"name":       content.Name,
	}
}

// tagList never emits null for an element without tags.
func tagList(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
