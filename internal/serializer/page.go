package serializer

import (
	"time"

	"github.com/your-org/contentd/internal/domain"
)

// PageJSON is the wire representation of a page's own fields, without its
// element tree.
type PageJSON struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Urlname      string    `json:"urlname"`
	PageLayout   string    `json:"page_layout"`
	LanguageCode string    `json:"language_code"`
	ParentID     *int64    `json:"parent_id"`
	Level        int       `json:"level"`
	Restricted   bool      `json:"restricted"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PageTreeJSON is a page together with its serialized element tree.
type PageTreeJSON struct {
	PageJSON
	Elements []*ElementJSON `json:"elements"`
}

// SerializePage converts a page's own fields to their JSON shape.
func SerializePage(p *domain.Page) *PageJSON {
	out := &PageJSON{
		ID:           p.ID,
		Name:         p.Name,
		Urlname:      p.Urlname,
		PageLayout:   p.PageLayout,
		LanguageCode: p.LanguageCode,
		Level:        p.Level,
		Restricted:   p.Restricted,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.ParentID != 0 {
		parentID := p.ParentID
		out.ParentID = &parentID
	}
	return out
}
