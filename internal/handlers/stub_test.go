package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"taxonomy/internal/hierarchy"
	"taxonomy/internal/models"
)

// stubService records the inputs it receives and returns canned results.
type stubService struct {
	node  *models.Node
	nodes []*models.Node
	tree  []*models.TreeNode
	page  *hierarchy.ProductPage
	err   error

	gotID      string
	gotCascade bool
	gotRootID  *string
	gotCreate  hierarchy.CreateNodeInput
	gotUpdate  hierarchy.UpdateNodeInput
	gotMove    hierarchy.MoveNodeInput
	gotReorder hierarchy.ReorderSiblingsInput
	gotList    hierarchy.ListNodesInput
	gotProduct hierarchy.ProductQuery
}

func (s *stubService) CreateNode(_ context.Context, in hierarchy.CreateNodeInput) (*models.Node, error) {
	s.gotCreate = in
	return s.node, s.err
}

func (s *stubService) GetNode(_ context.Context, id string) (*models.Node, error) {
	s.gotID = id
	return s.node, s.err
}

func (s *stubService) ListNodes(_ context.Context, in hierarchy.ListNodesInput) (*hierarchy.NodeList, error) {
	s.gotList = in
	if s.err != nil {
		return nil, s.err
	}
	return &hierarchy.NodeList{Nodes: s.nodes, Count: len(s.nodes), Limit: 50}, nil
}

func (s *stubService) UpdateNode(_ context.Context, id string, in hierarchy.UpdateNodeInput) (*models.Node, error) {
	s.gotID, s.gotUpdate = id, in
	return s.node, s.err
}

func (s *stubService) DeleteNode(_ context.Context, id string, cascade bool) error {
	s.gotID, s.gotCascade = id, cascade
	return s.err
}

func (s *stubService) MoveNode(_ context.Context, id string, in hierarchy.MoveNodeInput) (*models.Node, error) {
	s.gotID, s.gotMove = id, in
	return s.node, s.err
}

func (s *stubService) ReorderSiblings(_ context.Context, in hierarchy.ReorderSiblingsInput) error {
	s.gotReorder = in
	return s.err
}

func (s *stubService) GetTree(_ context.Context, rootID *string) ([]*models.TreeNode, error) {
	s.gotRootID = rootID
	return s.tree, s.err
}

func (s *stubService) ListDescendantNodes(_ context.Context, id string) ([]*models.Node, error) {
	s.gotID = id
	return s.nodes, s.err
}

func (s *stubService) GetPublicTree(_ context.Context, rootID *string) ([]*models.TreeNode, error) {
	s.gotRootID = rootID
	return s.tree, s.err
}

func (s *stubService) GetBreadcrumbs(_ context.Context, id string) ([]models.Breadcrumb, error) {
	s.gotID = id
	if s.err != nil {
		return nil, s.err
	}
	crumbs := make([]models.Breadcrumb, 0, len(s.nodes))
	for _, n := range s.nodes {
		crumbs = append(crumbs, n.Breadcrumb())
	}
	return crumbs, nil
}

func (s *stubService) ListProductsUnderNode(_ context.Context, id string, q hierarchy.ProductQuery) (*hierarchy.ProductPage, error) {
	s.gotID, s.gotProduct = id, q
	return s.page, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serve mounts the admin and storefront routes over svc and runs one
// request against them.
func serve(t *testing.T, svc *stubService, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.Route("/admin/nodes", NewNodes(svc, quietLogger()).Routes)
	r.Route("/store/nodes", NewStorefront(svc, quietLogger()).Routes)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	require.Equal(t, status, w.Code, "body: %s", w.Body.String())
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	body := decodeBody(t, w)
	require.Equal(t, code, body["code"])
	require.NotEmpty(t, body["message"])
	require.NotEmpty(t, body["error"])
	return body
}

