package domain

import "time"

// Page is one localized page of the content tree.
// Elements are stored separately keyed by PageID, not embedded, so a page
// record stays cheap to list. Lft/Rgt are nested-set ordering keys maintained
// by the external content-management layer; this service only reads them.
type Page struct {
	ID           int64     `json:"id" reindex:"id,,pk"`
	Name         string    `json:"name" reindex:"name"`
	Urlname      string    `json:"urlname" reindex:"urlname"`
	PageLayout   string    `json:"page_layout" reindex:"page_layout"`
	LanguageCode string    `json:"language_code" reindex:"language_code"`
	ParentID     int64     `json:"parent_id" reindex:"parent_id"` // 0 = locale root
	Level        int       `json:"level" reindex:"level"`
	Lft          int       `json:"lft" reindex:"lft"`
	Rgt          int       `json:"rgt" reindex:"rgt"`
	Restricted   bool      `json:"restricted" reindex:"restricted"`
	CreatedAt    time.Time `json:"created_at" reindex:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" reindex:"updated_at"`
}

// Element is a building block placed on a page. Elements are self-referential:
// a nestable element may own child elements via their ParentElementID.
// Children are reached by lookup over the page's flat element slice, never by
// embedded sub-objects, so corrupted parent references cannot produce an
// unbounded structure in memory.
type Element struct {
	ID              int64     `json:"id" reindex:"id,,pk"`
	Name            string    `json:"name" reindex:"name"`
	PageID          int64     `json:"page_id" reindex:"page_id"`
	CellID          int64     `json:"cell_id" reindex:"cell_id"`                   // 0 = not placed in a cell
	ParentElementID int64     `json:"parent_element_id" reindex:"parent_element_id"` // 0 = not nested
	Position        int       `json:"position" reindex:"position"` // sibling order within parent scope
	Nestable        bool      `json:"nestable" reindex:"nestable"` // definition allows child elements
	Public          bool      `json:"public" reindex:"public"`
	TagList         []string  `json:"tag_list" reindex:"tag_list"`
	CreatedAt       time.Time `json:"created_at" reindex:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" reindex:"updated_at"`
	Contents        []Content `json:"contents" reindex:"contents"`
}

// Content is one typed field of an element. The actual stored value lives in
// EssenceData and is interpreted by the essence registry according to
// EssenceKind. An empty EssenceKind is a data-integrity defect, distinct from
// an intentionally blank value.
type Content struct {
	ID          int64                  `json:"id"`
	Name        string                 `json:"name"`
	ElementID   int64                  `json:"element_id"`
	Position    int                    `json:"position"`
	EssenceKind string                 `json:"essence_kind"`
	EssenceData map[string]interface{} `json:"essence_data"`
}

// ElementFilter narrows an element listing. All set fields apply conjunctively;
// a zero field imposes no constraint.
type ElementFilter struct {
	PageID    int64
	Names     []string
	NotNested bool // only elements that are not a child of another element
}

// PageFilter narrows a page listing. All set fields apply conjunctively.
type PageFilter struct {
	PageLayout   string
	LanguageCode string
}
