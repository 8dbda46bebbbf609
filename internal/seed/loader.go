package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"go.uber.org/zap"

	"github.com/your-org/contentd/internal/domain"
)

// Selectors into the dump document. The dump format is the JSON export of the
// external content-management layer: a single object carrying flat "pages" and
// "elements" arrays, with contents embedded inside each element record.
var (
	pagesPath    = jp.MustParseString("$.pages[*]")
	elementsPath = jp.MustParseString("$.elements[*]")
)

// Dump is a parsed content dump ready to be applied to a store.
type Dump struct {
	Pages    []*domain.Page
	Elements []*domain.Element
}

// Loader reads JSON content dumps and writes them into a store through the
// seeder interface.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a new Loader.
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{logger: logger}
}

// LoadFile parses the dump file at path.
func (l *Loader) LoadFile(path string) (*Dump, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dump file: %w", err)
	}
	return l.Parse(raw)
}

// Parse parses a raw JSON dump.
func (l *Loader) Parse(raw []byte) (*Dump, error) {
	doc, err := oj.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dump: %w", err)
	}

	dump := &Dump{}

	for i, node := range pagesPath.Get(doc) {
		record, ok := node.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("pages[%d]: expected object, got %T", i, node)
		}
		page, err := pageFromRecord(record)
		if err != nil {
			return nil, fmt.Errorf("pages[%d]: %w", i, err)
		}
		dump.Pages = append(dump.Pages, page)
	}

	for i, node := range elementsPath.Get(doc) {
		record, ok := node.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("elements[%d]: expected object, got %T", i, node)
		}
		element, err := elementFromRecord(record)
		if err != nil {
			return nil, fmt.Errorf("elements[%d]: %w", i, err)
		}
		dump.Elements = append(dump.Elements, element)
	}

	l.logger.Info("Parsed content dump",
		zap.Int("pages", len(dump.Pages)),
		zap.Int("elements", len(dump.Elements)))

	return dump, nil
}

// Apply writes the dump into the store. Pages go first so that element
// records never reference a page the store has not seen yet.
func (l *Loader) Apply(ctx context.Context, dump *Dump, seeder domain.ContentSeeder) error {
	for _, page := range dump.Pages {
		if err := seeder.UpsertPage(ctx, page); err != nil {
			return fmt.Errorf("failed to upsert page %d: %w", page.ID, err)
		}
	}
	for _, element := range dump.Elements {
		if err := seeder.UpsertElement(ctx, element); err != nil {
			return fmt.Errorf("failed to upsert element %d: %w", element.ID, err)
		}
	}

	l.logger.Info("Applied content dump",
		zap.Int("pages", len(dump.Pages)),
		zap.Int("elements", len(dump.Elements)))

	return nil
}

func pageFromRecord(record map[string]interface{}) (*domain.Page, error) {
	id, err := requireInt64(record, "id")
	if err != nil {
		return nil, err
	}
	name, err := requireString(record, "name")
	if err != nil {
		return nil, err
	}
	return &domain.Page{
		ID:           id,
		Name:         name,
		Urlname:      stringField(record, "urlname"),
		PageLayout:   stringField(record, "page_layout"),
		LanguageCode: stringField(record, "language_code"),
		ParentID:     int64Field(record, "parent_id"),
		Level:        intField(record, "level"),
		Lft:          intField(record, "lft"),
		Rgt:          intField(record, "rgt"),
		Restricted:   boolField(record, "restricted"),
		CreatedAt:    timeField(record, "created_at"),
		UpdatedAt:    timeField(record, "updated_at"),
	}, nil
}

func elementFromRecord(record map[string]interface{}) (*domain.Element, error) {
	id, err := requireInt64(record, "id")
	if err != nil {
		return nil, err
	}
	name, err := requireString(record, "name")
	if err != nil {
		return nil, err
	}
	pageID, err := requireInt64(record, "page_id")
	if err != nil {
		return nil, err
	}

	element := &domain.Element{
		ID:              id,
		Name:            name,
		PageID:          pageID,
		CellID:          int64Field(record, "cell_id"),
		ParentElementID: int64Field(record, "parent_element_id"),
		Position:        intField(record, "position"),
		Nestable:        boolField(record, "nestable"),
		Public:          boolField(record, "public"),
		TagList:         stringSliceField(record, "tag_list"),
		CreatedAt:       timeField(record, "created_at"),
		UpdatedAt:       timeField(record, "updated_at"),
	}

	rawContents, ok := record["contents"].([]interface{})
	if !ok {
		return element, nil
	}
	for i, node := range rawContents {
		contentRecord, ok := node.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("contents[%d]: expected object, got %T", i, node)
		}
		content, err := contentFromRecord(contentRecord)
		if err != nil {
			return nil, fmt.Errorf("contents[%d]: %w", i, err)
		}
		element.Contents = append(element.Contents, content)
	}
	return element, nil
}

func contentFromRecord(record map[string]interface{}) (domain.Content, error) {
	id, err := requireInt64(record, "id")
	if err != nil {
		return domain.Content{}, err
	}
	name, err := requireString(record, "name")
	if err != nil {
		return domain.Content{}, err
	}
	data, _ := record["essence_data"].(map[string]interface{})
	return domain.Content{
		ID:          id,
		Name:        name,
		ElementID:   int64Field(record, "element_id"),
		Position:    intField(record, "position"),
		EssenceKind: stringField(record, "essence_kind"),
		EssenceData: data,
	}, nil
}

func requireInt64(record map[string]interface{}, key string) (int64, error) {
	value, ok := record[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	n, ok := coerceInt64(value)
	if !ok {
		return 0, fmt.Errorf("field %q: expected integer, got %T", key, value)
	}
	return n, nil
}

func requireString(record map[string]interface{}, key string) (string, error) {
	value, ok := record[key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("missing field %q", key)
	}
	return value, nil
}

func int64Field(record map[string]interface{}, key string) int64 {
	n, _ := coerceInt64(record[key])
	return n
}

func intField(record map[string]interface{}, key string) int {
	n, _ := coerceInt64(record[key])
	return int(n)
}

func stringField(record map[string]interface{}, key string) string {
	s, _ := record[key].(string)
	return s
}

func boolField(record map[string]interface{}, key string) bool {
	b, _ := record[key].(bool)
	return b
}

func stringSliceField(record map[string]interface{}, key string) []string {
	raw, ok := record[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func timeField(record map[string]interface{}, key string) time.Time {
	s, ok := record[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// coerceInt64 accepts the numeric shapes a JSON parser may produce.
func coerceInt64(value interface{}) (int64, bool) {
	switch n := value.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
