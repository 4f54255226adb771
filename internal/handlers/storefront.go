package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taxonomy/internal/hierarchy"
	"taxonomy/internal/models"
)

// StorefrontService is the read-only slice of the hierarchy service
// exposed to shoppers.
type StorefrontService interface {
	GetPublicTree(ctx context.Context, rootID *string) ([]*models.TreeNode, error)
	GetBreadcrumbs(ctx context.Context, id string) ([]models.Breadcrumb, error)
	ListProductsUnderNode(ctx context.Context, id string, q hierarchy.ProductQuery) (*hierarchy.ProductPage, error)
}

// Storefront groups the public node endpoints.
type Storefront struct {
	svc    StorefrontService
	logger *slog.Logger
}

// NewStorefront creates the storefront handlers.
func NewStorefront(svc StorefrontService, logger *slog.Logger) *Storefront {
	if logger == nil {
		logger = slog.Default()
	}
	return &Storefront{svc: svc, logger: logger}
}

// Tree returns the public forest (or subtree) with hidden nodes pruned.
func (h *Storefront) Tree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.svc.GetPublicTree(r.Context(), queryID(r, "root_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tree": tree})
}

// Breadcrumbs returns the trail from the root down to the node.
func (h *Storefront) Breadcrumbs(w http.ResponseWriter, r *http.Request) {
	crumbs, err := h.svc.GetBreadcrumbs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"breadcrumbs": crumbs})
}

// Products pages the catalog products of every collection under the node.
func (h *Storefront) Products(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pq := hierarchy.ProductQuery{
		RegionID:     q.Get("region_id"),
		CurrencyCode: q.Get("currency_code"),
		CartID:       q.Get("cart_id"),
	}

	var err error
	if pq.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if pq.Offset, err = queryInt(r, "offset"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	page, err := h.svc.ListProductsUnderNode(r.Context(), chi.URLParam(r, "id"), pq)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Routes mounts the storefront endpoints on r.
func (h *Storefront) Routes(r chi.Router) {
	r.Get("/tree", h.Tree)
	r.Get("/{id}/breadcrumbs", h.Breadcrumbs)
	r.Get("/{id}/products", h.Products)
}
