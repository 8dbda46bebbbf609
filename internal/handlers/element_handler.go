package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/contentd/internal/domain"
	"github.com/your-org/contentd/internal/middleware"
	"github.com/your-org/contentd/internal/usecases"
)

// ElementHandler handles HTTP requests for elements
type ElementHandler struct {
	usecase *usecases.ElementUsecase
	logger  *zap.Logger
}

// NewElementHandler creates a new element handler
func NewElementHandler(usecase *usecases.ElementUsecase, logger *zap.Logger) *ElementHandler {
	return &ElementHandler{
		usecase: usecase,
		logger:  logger,
	}
}

// ListElements handles GET /elements. Only not-nested elements are listed;
// nested children belong to their parent's tree. The page_id and named
// filters narrow conjunctively.
func (h *ElementHandler) ListElements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	identity := middleware.GetIdentity(ctx)

	filter := domain.ElementFilter{NotNested: true}

	if pageIDStr := r.URL.Query().Get("page_id"); pageIDStr != "" {
		pageID, err := strconv.ParseInt(pageIDStr, 10, 64)
		if err != nil || pageID < 1 {
			respondError(w, h.logger, http.StatusBadRequest, "invalid page_id parameter: must be a positive integer", requestID)
			return
		}
		filter.PageID = pageID
	}

	filter.Names = parseNames(r.URL.Query()["named"])

	elements, err := h.usecase.ListElements(ctx, identity, filter)
	if err != nil {
		h.logger.Error("failed to list elements",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		respondDomainError(w, h.logger, err, requestID)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, elements, requestID)
}

// GetElement handles GET /elements/{id}. With ?full=true the element's own
// nested subtree is expanded.
func (h *ElementHandler) GetElement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	identity := middleware.GetIdentity(ctx)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, h.logger, http.StatusBadRequest, "invalid id parameter: must be a positive integer", requestID)
		return
	}
	full := r.URL.Query().Get("full") == "true"

	element, err := h.usecase.GetElement(ctx, identity, id, full)
	if err != nil {
		h.logger.Warn("failed to get element",
			zap.String("request_id", requestID),
			zap.Int64("id", id),
			zap.Error(err),
		)
		respondDomainError(w, h.logger, err, requestID)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, element, requestID)
}

// parseNames accepts both repeated named= params and comma-joined lists.
func parseNames(raw []string) []string {
	var names []string
	for _, value := range raw {
		for _, name := range strings.Split(value, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
