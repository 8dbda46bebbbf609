package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/contentd/internal/domain"
	"github.com/your-org/contentd/internal/middleware"
	"github.com/your-org/contentd/internal/usecases"
)

// PageHandler handles HTTP requests for pages
type PageHandler struct {
	usecase *usecases.PageUsecase
	logger  *zap.Logger
}

// NewPageHandler creates a new page handler
func NewPageHandler(usecase *usecases.PageUsecase, logger *zap.Logger) *PageHandler {
	return &PageHandler{
		usecase: usecase,
		logger:  logger,
	}
}

// ListPages handles GET /pages: authorized page records, own fields only.
func (h *PageHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	identity := middleware.GetIdentity(ctx)

	filter := domain.PageFilter{
		PageLayout:   r.URL.Query().Get("page_layout"),
		LanguageCode: r.URL.Query().Get("locale"),
	}

	pages, err := h.usecase.ListPages(ctx, identity, filter)
	if err != nil {
		h.logger.Error("failed to list pages",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		respondDomainError(w, h.logger, err, requestID)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, pages, requestID)
}

// GetPage handles GET /pages/{id_or_urlname}: numeric ID first, then
// (urlname, locale).
func (h *PageHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	identity := middleware.GetIdentity(ctx)

	ref := usecases.PageRef{
		IDOrUrlname: chi.URLParam(r, "id_or_urlname"),
		Locale:      r.URL.Query().Get("locale"),
	}
	if ref.IDOrUrlname == "" {
		respondError(w, h.logger, http.StatusBadRequest, "id_or_urlname parameter is required", requestID)
		return
	}

	page, err := h.usecase.GetPage(ctx, identity, ref)
	if err != nil {
		h.logger.Warn("failed to get page",
			zap.String("request_id", requestID),
			zap.String("id_or_urlname", ref.IDOrUrlname),
			zap.Error(err),
		)
		respondDomainError(w, h.logger, err, requestID)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, page, requestID)
}

// GetPageTree handles GET /pages/{page_id}/nested and GET /pages/nested
// (locale root). The elements filter restricts which element names expand;
// full selects deep traversal.
func (h *PageHandler) GetPageTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	identity := middleware.GetIdentity(ctx)

	ref := usecases.PageRef{
		IDOrUrlname: chi.URLParam(r, "page_id"),
		Locale:      r.URL.Query().Get("locale"),
	}
	query := usecases.TreeQuery{
		Full:         r.URL.Query().Get("full") == "true",
		ElementNames: parseNames(r.URL.Query()["elements"]),
	}

	tree, err := h.usecase.GetPageTree(ctx, identity, ref, query)
	if err != nil {
		h.logger.Warn("failed to build page tree",
			zap.String("request_id", requestID),
			zap.String("page_id", ref.IDOrUrlname),
			zap.Error(err),
		)
		respondDomainError(w, h.logger, err, requestID)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, tree, requestID)
}
