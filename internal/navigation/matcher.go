// Package navigation holds the declarative admin menu definition and the
// matcher that decides which entry is active for the current request.
package navigation

import "strings"

// Entry is one menu entry. Sub entries and nested sibling groups recurse with
// the same shape. Entries are configuration data loaded from a YAML file,
// never persisted.
type Entry struct {
	Name          string   `yaml:"name" json:"name"`
	Controller    string   `yaml:"controller" json:"controller"`
	Action        string   `yaml:"action" json:"action"`
	NestedActions []string `yaml:"nested_actions" json:"nested_actions,omitempty"`
	Sub           []Entry  `yaml:"sub_navigation" json:"sub_navigation,omitempty"`
	Nested        []Entry  `yaml:"nested" json:"nested,omitempty"`
}

// RequestContext is the current request as the matcher sees it: no ambient
// globals, just the routed controller/action pair and the query params.
type RequestContext struct {
	Controller string
	Action     string
	Params     map[string]string
}

// Active reports whether this entry is the active one for the request.
// An entry is active when it matches the request directly, when any of its
// direct sub entries matches (exact action or an action listed among the sub
// entry's nested actions), or when any entry of its nested sibling group
// matches by the same rule. The decision is pure and deterministic.
func (e Entry) Active(rc RequestContext) bool {
	if e.matches(rc) {
		return true
	}
	for _, sub := range e.Sub {
		if sub.matches(rc) {
			return true
		}
	}
	for _, nested := range e.Nested {
		if nested.matches(rc) {
			return true
		}
	}
	return false
}

// matches checks one entry against the request: controller equality plus
// either exact action equality or the current action being declared among the
// entry's nested actions.
func (e Entry) matches(rc RequestContext) bool {
	if normalizeController(e.Controller) != normalizeController(rc.Controller) {
		return false
	}
	if e.Action == rc.Action {
		return true
	}
	for _, action := range e.NestedActions {
		if action == rc.Action {
			return true
		}
	}
	return false
}

// normalizeController strips the optional leading path separator so that
// "/admin/pages" and "admin/pages" compare equal.
func normalizeController(controller string) string {
	return strings.TrimPrefix(controller, "/")
}
