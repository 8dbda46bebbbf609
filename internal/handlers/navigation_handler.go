package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/your-org/contentd/internal/middleware"
	"github.com/your-org/contentd/internal/navigation"
)

// NavigationHandler serves the menu definition annotated with active state.
type NavigationHandler struct {
	provider *navigation.Provider
	logger   *zap.Logger
}

// NewNavigationHandler creates a new navigation handler
func NewNavigationHandler(provider *navigation.Provider, logger *zap.Logger) *NavigationHandler {
	return &NavigationHandler{
		provider: provider,
		logger:   logger,
	}
}

// entryView is one menu entry plus its matcher verdict for this request.
type entryView struct {
	navigation.Entry
	Active bool `json:"active"`
}

// GetNavigation handles GET /navigation. The caller supplies the current
// routed controller/action pair; the matcher decides which entries are
// active.
func (h *NavigationHandler) GetNavigation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	rc := navigation.RequestContext{
		Controller: r.URL.Query().Get("controller"),
		Action:     r.URL.Query().Get("action"),
		Params:     singleValued(r.URL.Query()),
	}

	entries := h.provider.Entries()
	views := make([]entryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, entryView{Entry: entry, Active: entry.Active(rc)})
	}

	respondJSON(w, h.logger, http.StatusOK, views, requestID)
}

func singleValued(values map[string][]string) map[string]string {
	params := make(map[string]string, len(values))
	for key, list := range values {
		if len(list) > 0 {
			params[key] = list[0]
		}
	}
	return params
}
