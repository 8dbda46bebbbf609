// Package essence interprets the typed value payload attached to a content.
// Each kind implements the same JSON-safe serialization contract; unknown or
// missing kinds surface as per-ingredient errors instead of crashing the
// surrounding element.
package essence

import (
	"fmt"
	"time"
)

// Value is the serialization capability every essence kind implements.
type Value interface {
	// IngredientValue returns the JSON-safe scalar or object for this essence.
	IngredientValue() (interface{}, error)
}

// Factory builds a Value from the raw essence payload of a content.
type Factory func(data map[string]interface{}) Value

// registry is the closed-but-extensible set of known essence kinds.
// Register may be called from init() of an extension package; the map is
// never mutated after startup, so reads need no locking.
var registry = map[string]Factory{
	"text":     func(d map[string]interface{}) Value { return Text{Body: str(d, "body")} },
	"richtext": func(d map[string]interface{}) Value { return Richtext{Body: str(d, "body"), StrippedBody: str(d, "stripped_body")} },
	"html":     func(d map[string]interface{}) Value { return HTML{Source: str(d, "source")} },
	"date":     func(d map[string]interface{}) Value { return Date{Raw: str(d, "date")} },
	"boolean":  func(d map[string]interface{}) Value { return Boolean{Value: boolean(d, "value")} },
	"select":   func(d map[string]interface{}) Value { return Select{Value: str(d, "value")} },
	"link":     func(d map[string]interface{}) Value { return Link{URL: str(d, "link"), Title: str(d, "link_title"), Target: str(d, "link_target")} },
	"picture":  func(d map[string]interface{}) Value { return Picture{PictureID: integer(d, "picture_id"), Caption: str(d, "caption"), Title: str(d, "title"), AltTag: str(d, "alt_tag")} },
	"file":     func(d map[string]interface{}) Value { return File{FileID: integer(d, "file_id"), Title: str(d, "title")} },
}

// Register adds a custom essence kind. Registering an already-known kind
// replaces it.
func Register(kind string, factory Factory) {
	registry[kind] = factory
}

// Decode resolves a content's essence payload into its typed Value.
// A missing kind means the content lost its essence reference (a
// data-integrity defect); an unknown kind means the store holds data this
// build cannot interpret. Both are reported distinctly.
func Decode(kind string, data map[string]interface{}) (Value, error) {
	if kind == "" {
		return nil, fmt.Errorf("content has no essence")
	}
	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown essence kind %q", kind)
	}
	return factory(data), nil
}

// Text holds a plain text body.
type Text struct {
	Body string
}

// IngredientValue implements Value.
func (t Text) IngredientValue() (interface{}, error) {
	return t.Body, nil
}

// Richtext holds formatted text plus its tag-stripped form.
type Richtext struct {
	Body         string
	StrippedBody string
}

// IngredientValue implements Value.
func (r Richtext) IngredientValue() (interface{}, error) {
	return map[string]interface{}{
		"body":          r.Body,
		"stripped_body": r.StrippedBody,
	}, nil
}

// HTML holds raw markup stored verbatim.
type HTML struct {
	Source string
}

// IngredientValue implements Value.
func (h HTML) IngredientValue() (interface{}, error) {
	return h.Source, nil
}

// Date holds a calendar date stored as a string.
type Date struct {
	Raw string
}

// IngredientValue implements Value. The stored form is normalized to
// YYYY-MM-DD; an unparsable date cannot be rendered JSON-safe.
func (d Date) IngredientValue() (interface{}, error) {
	if d.Raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, d.Raw); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return nil, fmt.Errorf("unparsable date %q", d.Raw)
}

// Boolean holds a true/false toggle.
type Boolean struct {
	Value bool
}

// IngredientValue implements Value.
func (b Boolean) IngredientValue() (interface{}, error) {
	return b.Value, nil
}

// Select holds one value chosen from a definition-provided list.
type Select struct {
	Value string
}

// IngredientValue implements Value.
func (s Select) IngredientValue() (interface{}, error) {
	return s.Value, nil
}

// Link holds an URL plus display metadata.
type Link struct {
	URL    string
	Title  string
	Target string
}

// IngredientValue implements Value.
func (l Link) IngredientValue() (interface{}, error) {
	return map[string]interface{}{
		"link":        l.URL,
		"link_title":  l.Title,
		"link_target": l.Target,
	}, nil
}

// Picture references an image asset owned by the external store.
type Picture struct {
	PictureID int64
	Caption   string
	Title     string
	AltTag    string
}

// IngredientValue implements Value.
func (p Picture) IngredientValue() (interface{}, error) {
	return map[string]interface{}{
		"picture_id": p.PictureID,
		"caption":    p.Caption,
		"title":      p.Title,
		"alt_tag":    p.AltTag,
	}, nil
}

// File references a binary asset owned by the external store.
type File struct {
	FileID int64
	Title  string
}

// IngredientValue implements Value.
func (f File) IngredientValue() (interface{}, error) {
	return map[string]interface{}{
		"file_id": f.FileID,
		"title":   f.Title,
	}, nil
}

// str reads a string field from the raw payload, tolerating absence.
func str(d map[string]interface{}, key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// boolean reads a bool field from the raw payload, tolerating absence.
func boolean(d map[string]interface{}, key string) bool {
	if v, ok := d[key].(bool); ok {
		return v
	}
	return false
}

// integer reads a numeric field from the raw payload. JSON decoding yields
// float64, seed dumps may carry int64, so both are accepted.
func integer(d map[string]interface{}, key string) int64 {
	switch v := d[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
