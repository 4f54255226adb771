package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"taxonomy/internal/models"
	"taxonomy/internal/store"
)

// memRepo is an in-memory Repository enforcing the same unique
// constraints and foreign-key cascade as the PostgreSQL schema.
type memRepo struct {
	mu    sync.Mutex
	nodes map[string]*models.Node
	locks int

	// failRepath, when set, is returned by RepathDescendants.
	failRepath error
}

func newMemRepo() *memRepo {
	return &memRepo{nodes: map[string]*models.Node{}}
}

func clone(n *models.Node) *models.Node {
	c := *n
	if n.Metadata != nil {
		c.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// sorted returns every stored node ordered by id.
func (r *memRepo) sorted() []*models.Node {
	out := make([]*models.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepo) find(f store.Filter, order store.Order) []*models.Node {
	out := []*models.Node{}
	for _, n := range r.sorted() {
		if f.Match(n) {
			out = append(out, clone(n))
		}
	}
	order.Sort(out)
	return out
}

func (r *memRepo) violation(n *models.Node) error {
	for _, o := range r.nodes {
		if o.ID == n.ID {
			continue
		}
		switch {
		case o.Slug == n.Slug:
			return &store.UniqueViolationError{Constraint: store.ConstraintSlug, Err: errors.New("duplicate key")}
		case o.Path == n.Path:
			return &store.UniqueViolationError{Constraint: store.ConstraintPath, Err: errors.New("duplicate key")}
		case o.Name == n.Name && models.SameParent(o.ParentID, n.ParentID):
			return &store.UniqueViolationError{Constraint: store.ConstraintParentName, Err: errors.New("duplicate key")}
		}
	}
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id string) (*models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[id]; ok {
		return clone(n), nil
	}
	return nil, nil
}

func (r *memRepo) FindOne(_ context.Context, f store.Filter) (*models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if found := r.find(f, nil); len(found) > 0 {
		return found[0], nil
	}
	return nil, nil
}

func (r *memRepo) FindAndCount(_ context.Context, f store.Filter, order store.Order, limit, offset int) ([]*models.Node, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.find(f, order)
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (r *memRepo) Insert(_ context.Context, n *models.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.violation(n); err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	n.CreatedAt = time.Now()
	n.UpdatedAt = n.CreatedAt
	r.nodes[n.ID] = clone(n)
	return nil
}

func (r *memRepo) Update(_ context.Context, n *models.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[n.ID]; !ok {
		return store.ErrNotFound
	}
	if err := r.violation(n); err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	n.UpdatedAt = time.Now()
	r.nodes[n.ID] = clone(n)
	return nil
}

// deleteCascade removes id and, like ON DELETE CASCADE, its children.
func (r *memRepo) deleteCascade(id string) int64 {
	if _, ok := r.nodes[id]; !ok {
		return 0
	}
	delete(r.nodes, id)
	removed := int64(1)
	for _, n := range r.sorted() {
		if n.ParentID != nil && *n.ParentID == id {
			removed += r.deleteCascade(n.ID)
		}
	}
	return removed
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteCascade(id) == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *memRepo) DeleteMany(_ context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for _, id := range ids {
		if _, ok := r.nodes[id]; ok {
			delete(r.nodes, id)
			removed++
		}
	}
	return removed, nil
}

func (r *memRepo) FindChildren(_ context.Context, parentID *string) ([]*models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(store.Filter{store.ParentIs(parentID)}, store.ByPosition), nil
}

func (r *memRepo) FindAncestors(_ context.Context, id string) ([]*models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return []*models.Node{}, nil
	}
	paths := models.AncestorPaths(n.Path)
	if len(paths) == 0 {
		return []*models.Node{}, nil
	}
	return r.find(store.Filter{store.In(store.FieldPath, paths)}, store.ByDepth), nil
}

func (r *memRepo) FindDescendants(_ context.Context, id string) ([]*models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return []*models.Node{}, nil
	}
	return r.find(store.Filter{store.PathPrefix(n.DescendantPrefix())}, store.ByDepthPosition), nil
}

func (r *memRepo) GetTreeFrom(_ context.Context, rootID *string) ([]*models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rootID == nil {
		return r.find(nil, store.ByDepthPosition), nil
	}
	root, ok := r.nodes[*rootID]
	if !ok {
		return []*models.Node{}, nil
	}
	return r.find(store.Filter{store.Subtree(root)}, store.ByDepthPosition), nil
}

func (r *memRepo) GetDescendantCollectionIDs(_ context.Context, id string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return []string{}, nil
	}
	return store.CollectionIDs(r.find(store.Filter{store.Subtree(n), store.NotNull(store.FieldCollectionID)}, store.ByDepthPosition)), nil
}

func (r *memRepo) WouldCreateCycle(_ context.Context, id, parentID string) (bool, error) {
	if id == parentID {
		return true, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return false, nil
	}
	p, ok := r.nodes[parentID]
	return ok && strings.HasPrefix(p.Path, n.DescendantPrefix()), nil
}

func (r *memRepo) GetNextPosition(_ context.Context, parentID *string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.find(store.Filter{store.ParentIs(parentID)}, nil)), nil
}

func (r *memRepo) ReorderSiblings(_ context.Context, parentID *string, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var moved int64
	for i, id := range ids {
		n, ok := r.nodes[id]
		if !ok || !models.SameParent(n.ParentID, parentID) {
			continue
		}
		n.Position = i
		moved++
	}
	return moved, nil
}

func (r *memRepo) RepathDescendants(_ context.Context, oldPath, newPath string, depthDelta int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRepath != nil {
		return 0, r.failRepath
	}
	prefix := oldPath + models.PathSeparator
	var count int64
	for _, n := range r.nodes {
		if strings.HasPrefix(n.Path, prefix) {
			n.Path = models.SplicePath(n.Path, oldPath, newPath)
			n.Depth += depthDelta
			count++
		}
	}
	return count, nil
}

func (r *memRepo) LockTree(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks++
	return nil
}

func (r *memRepo) SlugExists(_ context.Context, s string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.nodes {
		if n.Slug == s {
			return true, nil
		}
	}
	return false, nil
}

// memTx snapshots the repository and restores it when fn fails.
type memTx struct {
	repo      *memRepo
	commits   int
	rollbacks int
	reads     int
}

// InReadTransaction counts read transactions. The in-memory repository
// needs no snapshot for reads.
func (t *memTx) InReadTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.repo.mu.Lock()
	t.reads++
	t.repo.mu.Unlock()
	return fn(ctx)
}

func (t *memTx) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.repo.mu.Lock()
	snapshot := make(map[string]*models.Node, len(t.repo.nodes))
	for id, n := range t.repo.nodes {
		snapshot[id] = clone(n)
	}
	t.repo.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.repo.mu.Lock()
		t.repo.nodes = snapshot
		t.repo.mu.Unlock()
		t.rollbacks++
		return err
	}
	t.commits++
	return nil
}

// memCache is an in-memory TreeCache.
type memCache struct {
	trees       map[string][]*models.TreeNode
	invalidated int
}

func newMemCache() *memCache {
	return &memCache{trees: map[string][]*models.TreeNode{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]*models.TreeNode, bool) {
	t, ok := c.trees[key]
	return t, ok
}

func (c *memCache) Set(_ context.Context, key string, tree []*models.TreeNode) {
	c.trees[key] = tree
}

func (c *memCache) InvalidateAll(context.Context) {
	c.trees = map[string][]*models.TreeNode{}
	c.invalidated++
}

// memCatalog returns one product per requested collection.
type memCatalog struct {
	gotIDs   []string
	gotQuery ProductQuery
}

func (c *memCatalog) ListProducts(_ context.Context, ids []string, q ProductQuery) ([]Product, int, error) {
	c.gotIDs = ids
	c.gotQuery = q
	products := make([]Product, 0, len(ids))
	for _, id := range ids {
		products = append(products, Product{"id": "prod_" + id, "collection_id": id})
	}
	return products, len(products), nil
}

// hookRepo runs afterTreeRead once a tree read has loaded its nodes and
// before it returns them, standing in for a writer that commits while the
// reader assembles the tree.
type hookRepo struct {
	*memRepo
	afterTreeRead func()
}

func (r *hookRepo) GetTreeFrom(ctx context.Context, rootID *string) ([]*models.Node, error) {
	nodes, err := r.memRepo.GetTreeFrom(ctx, rootID)
	if hook := r.afterTreeRead; hook != nil {
		r.afterTreeRead = nil
		hook()
	}
	return nodes, err
}
