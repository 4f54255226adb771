// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taxonomy/internal/hierarchy"
	"taxonomy/internal/models"
)

// NodeService is the slice of the hierarchy service the admin API needs.
type NodeService interface {
	CreateNode(ctx context.Context, in hierarchy.CreateNodeInput) (*models.Node, error)
	GetNode(ctx context.Context, id string) (*models.Node, error)
	ListNodes(ctx context.Context, in hierarchy.ListNodesInput) (*hierarchy.NodeList, error)
	UpdateNode(ctx context.Context, id string, in hierarchy.UpdateNodeInput) (*models.Node, error)
	DeleteNode(ctx context.Context, id string, cascade bool) error
	MoveNode(ctx context.Context, id string, in hierarchy.MoveNodeInput) (*models.Node, error)
	ReorderSiblings(ctx context.Context, in hierarchy.ReorderSiblingsInput) error
	GetTree(ctx context.Context, rootID *string) ([]*models.TreeNode, error)
	ListDescendantNodes(ctx context.Context, id string) ([]*models.Node, error)
}

// Nodes groups the admin node endpoints.
type Nodes struct {
	svc    NodeService
	logger *slog.Logger
}

// NewNodes creates the admin node handlers.
func NewNodes(svc NodeService, logger *slog.Logger) *Nodes {
	if logger == nil {
		logger = slog.Default()
	}
	return &Nodes{svc: svc, logger: logger}
}

// List returns a page of nodes. parent_id present but empty lists the
// roots; absent lists every node.
func (h *Nodes) List(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.ListNodesInput
	q := r.URL.Query()
	if q.Has("parent_id") {
		if id := q.Get("parent_id"); id != "" && id != "null" {
			in.ParentID = models.Some(id)
		} else {
			in.ParentID = models.Null[string]()
		}
	}

	var err error
	if in.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if in.Offset, err = queryInt(r, "offset"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	list, err := h.svc.ListNodes(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Create adds a node and returns it with 201.
func (h *Nodes) Create(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.CreateNodeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	node, err := h.svc.CreateNode(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"node": node})
}

// Get returns a single node.
func (h *Nodes) Get(w http.ResponseWriter, r *http.Request) {
	node, err := h.svc.GetNode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"node": node})
}

// Update applies a partial update. Fields absent from the body are left
// untouched; explicit nulls clear them.
func (h *Nodes) Update(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.UpdateNodeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	node, err := h.svc.UpdateNode(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"node": node})
}

// Delete removes a node. Nodes with children need cascade=true.
func (h *Nodes) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cascade := r.URL.Query().Get("cascade") == "true"

	if err := h.svc.DeleteNode(r.Context(), id, cascade); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Move reparents and/or repositions a node.
func (h *Nodes) Move(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.MoveNodeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	node, err := h.svc.MoveNode(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"node": node})
}

// Reorder assigns positions to a set of siblings.
func (h *Nodes) Reorder(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.ReorderSiblingsInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.svc.ReorderSiblings(r.Context(), in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Tree returns the full forest, or the subtree under root_id.
func (h *Nodes) Tree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.svc.GetTree(r.Context(), queryID(r, "root_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tree": tree})
}

// Descendants returns every node under id ordered by depth then position.
func (h *Nodes) Descendants(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.svc.ListDescendantNodes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

// Routes mounts the admin node endpoints on r.
func (h *Nodes) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/tree", h.Tree)
	r.Post("/reorder", h.Reorder)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/move", h.Move)
	r.Get("/{id}/descendants", h.Descendants)
}
