// Package hierarchy implements the collection hierarchy: a forest of named
// nodes indexed by materialized path. The Service keeps path, depth, slug
// and sibling-name invariants intact across every mutation.
package hierarchy

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"taxonomy/internal/cache"
	"taxonomy/internal/metrics"
	"taxonomy/internal/models"
	"taxonomy/internal/slug"
	"taxonomy/internal/store"
)

// IDPrefix is prepended to every generated node id.
const IDPrefix = "chn_"

// NewID returns a fresh node id.
func NewID() string {
	return IDPrefix + ulid.Make().String()
}

// Repository is the query layer the Service depends on. *store.NodeStore
// implements it.
type Repository interface {
	FindByID(ctx context.Context, id string) (*models.Node, error)
	FindOne(ctx context.Context, f store.Filter) (*models.Node, error)
	FindAndCount(ctx context.Context, f store.Filter, order store.Order, limit, offset int) ([]*models.Node, int, error)
	Insert(ctx context.Context, n *models.Node) error
	Update(ctx context.Context, n *models.Node) error
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) (int64, error)
	FindChildren(ctx context.Context, parentID *string) ([]*models.Node, error)
	FindAncestors(ctx context.Context, id string) ([]*models.Node, error)
	FindDescendants(ctx context.Context, id string) ([]*models.Node, error)
	GetTreeFrom(ctx context.Context, rootID *string) ([]*models.Node, error)
	GetDescendantCollectionIDs(ctx context.Context, id string) ([]string, error)
	WouldCreateCycle(ctx context.Context, id, parentID string) (bool, error)
	GetNextPosition(ctx context.Context, parentID *string) (int, error)
	ReorderSiblings(ctx context.Context, parentID *string, ids []string) (int64, error)
	RepathDescendants(ctx context.Context, oldPath, newPath string, depthDelta int) (int64, error)
	LockTree(ctx context.Context) error
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// Transactor runs fn inside one storage transaction. Read transactions
// give fn a single snapshot of the tree.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	InReadTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// TreeCache caches assembled trees. *cache.TreeCache implements it.
type TreeCache interface {
	Get(ctx context.Context, key string) ([]*models.TreeNode, bool)
	Set(ctx context.Context, key string, tree []*models.TreeNode)
	InvalidateAll(ctx context.Context)
}

// Product is an opaque catalog product.
type Product map[string]any

// Catalog lists the products belonging to a set of collections.
type Catalog interface {
	ListProducts(ctx context.Context, collectionIDs []string, q ProductQuery) ([]Product, int, error)
}

// NodeList is one page of ListNodes.
type NodeList struct {
	Nodes  []*models.Node `json:"nodes"`
	Count  int            `json:"count"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ProductPage is one page of products under a node.
type ProductPage struct {
	Products      []Product `json:"products"`
	Count         int       `json:"count"`
	Limit         int       `json:"limit"`
	Offset        int       `json:"offset"`
	CollectionIDs []string  `json:"collection_ids"`
}

// ServiceConfig holds dependencies for Service. Repo and Tx are required;
// the rest are optional.
type ServiceConfig struct {
	Repo    Repository
	Tx      Transactor
	Cache   TreeCache
	Catalog Catalog
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	NewID   func() string
}

// Service orchestrates hierarchy operations. Every mutation runs in one
// transaction holding the tree lock.
type Service struct {
	repo    Repository
	tx      Transactor
	cache   TreeCache
	catalog Catalog
	metrics *metrics.Metrics
	logger  *slog.Logger
	newID   func() string

	// generation changes around every commit. A tree read only fills the
	// cache if no write committed while it ran.
	generation atomic.Uint64
}

// NewService creates a new Service with the given configuration.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:    cfg.Repo,
		tx:      cfg.Tx,
		cache:   cfg.Cache,
		catalog: cfg.Catalog,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		newID:   cfg.NewID,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.newID == nil {
		s.newID = NewID
	}
	return s
}

// track records the operation outcome and attaches the operation name to
// infrastructure failures. Domain errors pass through untouched.
func (s *Service) track(op string, start time.Time, errp *error) {
	if *errp != nil && KindOf(*errp) == KindInternal {
		*errp = oops.In("hierarchy").With("operation", op).Wrap(*errp)
	}
	s.metrics.ObserveOperation(op, *errp, time.Since(start))
}

// mutate runs fn in a locked transaction and clears cached trees once it
// commits. The generation is bumped before the commit and again after it,
// so a tree read overlapping the commit never fills the cache.
func (s *Service) mutate(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockTree(ctx); err != nil {
			return err
		}
		if err := fn(ctx); err != nil {
			return err
		}
		s.generation.Add(1)
		return nil
	})
	if err != nil {
		return err
	}
	s.generation.Add(1)
	if s.cache != nil {
		s.cache.InvalidateAll(ctx)
	}
	return nil
}

// read runs fn against one consistent snapshot of the tree.
func (s *Service) read(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.InReadTransaction(ctx, fn)
}

// uniqueToDomain turns a storage unique violation into the matching
// domain error. Other errors are returned unchanged.
func uniqueToDomain(err error, n *models.Node) error {
	var uv *store.UniqueViolationError
	if !errors.As(err, &uv) {
		return err
	}
	switch uv.Constraint {
	case store.ConstraintParentName:
		return duplicateName(n.ParentID, n.Name)
	case store.ConstraintSlug, store.ConstraintPath:
		return duplicateSlug(n.Slug)
	}
	return err
}

func (s *Service) mustFind(ctx context.Context, id string) (*models.Node, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, nodeNotFound(id)
	}
	return n, nil
}

// checkSiblingName fails when another node under parentID already has name.
func (s *Service) checkSiblingName(ctx context.Context, parentID *string, name, excludeID string) error {
	f := store.Filter{store.ParentIs(parentID), store.Eq(store.FieldName, name)}
	if excludeID != "" {
		f = append(f, store.Ne(store.FieldID, excludeID))
	}
	clash, err := s.repo.FindOne(ctx, f)
	if err != nil {
		return err
	}
	if clash != nil {
		return duplicateName(parentID, name)
	}
	return nil
}

// checkSlugFree fails when slug is used by any node other than excludeID.
func (s *Service) checkSlugFree(ctx context.Context, nodeSlug, excludeID string) error {
	f := store.Filter{store.Eq(store.FieldSlug, nodeSlug)}
	if excludeID != "" {
		f = append(f, store.Ne(store.FieldID, excludeID))
	}
	clash, err := s.repo.FindOne(ctx, f)
	if err != nil {
		return err
	}
	if clash != nil {
		return duplicateSlug(nodeSlug)
	}
	return nil
}

// CreateNode creates a node under in.ParentID (or as a root), resolving
// its slug and appending it after its siblings unless a position is given.
func (s *Service) CreateNode(ctx context.Context, in CreateNodeInput) (node *models.Node, err error) {
	defer s.track("create_node", time.Now(), &err)

	if err := in.Validate(); err != nil {
		return nil, err
	}

	err = s.mutate(ctx, func(ctx context.Context) error {
		var nodeSlug string
		if in.Slug != nil {
			if err := s.checkSlugFree(ctx, *in.Slug, ""); err != nil {
				return err
			}
			nodeSlug = *in.Slug
		} else {
			generated, err := slug.Unique(ctx, in.Name, s.repo.SlugExists)
			if err != nil {
				return err
			}
			nodeSlug = generated
		}

		var parent *models.Node
		if in.ParentID != nil {
			p, err := s.repo.FindByID(ctx, *in.ParentID)
			if err != nil {
				return err
			}
			if p == nil {
				return parentNotFound(*in.ParentID)
			}
			parent = p
		}

		if err := s.checkSiblingName(ctx, in.ParentID, in.Name, ""); err != nil {
			return err
		}

		var position int
		if in.Position != nil {
			position = *in.Position
		} else {
			next, err := s.repo.GetNextPosition(ctx, in.ParentID)
			if err != nil {
				return err
			}
			position = next
		}

		n := &models.Node{
			ID:           s.newID(),
			CollectionID: in.CollectionID,
			ParentID:     in.ParentID,
			Name:         in.Name,
			Slug:         nodeSlug,
			Position:     position,
			Metadata:     in.Metadata,
		}
		n.Apply(parent)

		if err := s.repo.Insert(ctx, n); err != nil {
			return uniqueToDomain(err, n)
		}
		node = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("node created", "node_id", node.ID, "path", node.Path, "position", node.Position)
	return node, nil
}

// GetNode returns a single node.
func (s *Service) GetNode(ctx context.Context, id string) (node *models.Node, err error) {
	defer s.track("get_node", time.Now(), &err)
	return s.mustFind(ctx, id)
}

// ListNodes returns one page of nodes ordered by position.
func (s *Service) ListNodes(ctx context.Context, in ListNodesInput) (list *NodeList, err error) {
	defer s.track("list_nodes", time.Now(), &err)

	if err := in.Validate(); err != nil {
		return nil, err
	}

	var f store.Filter
	if in.ParentID.Set {
		f = append(f, store.ParentIs(in.ParentID.Value))
	}
	limit, offset := pageOf(in.Limit, in.Offset)

	var nodes []*models.Node
	var count int
	err = s.read(ctx, func(ctx context.Context) error {
		var err error
		nodes, count, err = s.repo.FindAndCount(ctx, f, store.ByPosition, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &NodeList{Nodes: nodes, Count: count, Limit: limit, Offset: offset}, nil
}

// UpdateNode applies a partial update. A slug change rewrites the path of
// the node and of all its descendants in the same transaction.
func (s *Service) UpdateNode(ctx context.Context, id string, in UpdateNodeInput) (node *models.Node, err error) {
	defer s.track("update_node", time.Now(), &err)

	if err := in.Validate(); err != nil {
		return nil, err
	}

	var repathed int64
	err = s.mutate(ctx, func(ctx context.Context) error {
		n, err := s.mustFind(ctx, id)
		if err != nil {
			return err
		}
		oldPath := n.Path

		if in.Name.Set && *in.Name.Value != n.Name {
			if err := s.checkSiblingName(ctx, n.ParentID, *in.Name.Value, n.ID); err != nil {
				return err
			}
			n.Name = *in.Name.Value
		}

		slugChanged := in.Slug.Set && *in.Slug.Value != n.Slug
		if slugChanged {
			if err := s.checkSlugFree(ctx, *in.Slug.Value, n.ID); err != nil {
				return err
			}
			n.Slug = *in.Slug.Value
		}

		if in.CollectionID.Set {
			n.CollectionID = in.CollectionID.Value
		}
		if in.Metadata.Set {
			n.Metadata = nil
			if in.Metadata.Value != nil {
				n.Metadata = *in.Metadata.Value
			}
		}

		if slugChanged {
			var parent *models.Node
			if n.ParentID != nil {
				if parent, err = s.repo.FindByID(ctx, *n.ParentID); err != nil {
					return err
				}
			}
			n.Apply(parent)
		}

		if err := s.repo.Update(ctx, n); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nodeNotFound(id)
			}
			return uniqueToDomain(err, n)
		}

		if n.Path != oldPath {
			count, err := s.repo.RepathDescendants(ctx, oldPath, n.Path, 0)
			if err != nil {
				return uniqueToDomain(err, n)
			}
			repathed = count
		}
		node = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddRepathed(repathed)
	s.logger.Info("node updated", "node_id", node.ID, "path", node.Path, "repathed", repathed)
	return node, nil
}

// DeleteNode removes a node. Nodes with children are only removed when
// cascade is set, in which case the whole subtree goes with them.
func (s *Service) DeleteNode(ctx context.Context, id string, cascade bool) (err error) {
	defer s.track("delete_node", time.Now(), &err)

	var removed int64
	err = s.mutate(ctx, func(ctx context.Context) error {
		if _, err := s.mustFind(ctx, id); err != nil {
			return err
		}

		children, err := s.repo.FindChildren(ctx, &id)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			if !cascade {
				return hasChildren(id, len(children))
			}
			descendants, err := s.repo.FindDescendants(ctx, id)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(descendants))
			for _, d := range descendants {
				ids = append(ids, d.ID)
			}
			if removed, err = s.repo.DeleteMany(ctx, ids); err != nil {
				return err
			}
		}

		if err := s.repo.Delete(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nodeNotFound(id)
			}
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("node deleted", "node_id", id, "cascade", cascade, "removed", removed)
	return nil
}

// MoveNode reparents a node, or makes it a root when the new parent is
// null, and rewrites the paths and depths of its whole subtree.
func (s *Service) MoveNode(ctx context.Context, id string, in MoveNodeInput) (node *models.Node, err error) {
	defer s.track("move_node", time.Now(), &err)

	if err := in.Validate(); err != nil {
		return nil, err
	}
	newParentID := in.NewParentID.Value

	var repathed int64
	err = s.mutate(ctx, func(ctx context.Context) error {
		n, err := s.mustFind(ctx, id)
		if err != nil {
			return err
		}

		var parent *models.Node
		if newParentID != nil {
			if parent, err = s.repo.FindByID(ctx, *newParentID); err != nil {
				return err
			}
			if parent == nil {
				return parentNotFound(*newParentID)
			}
			cycle, err := s.repo.WouldCreateCycle(ctx, id, *newParentID)
			if err != nil {
				return err
			}
			if cycle {
				return cycleDetected(id, *newParentID)
			}
		}

		if !models.SameParent(n.ParentID, newParentID) {
			if err := s.checkSiblingName(ctx, newParentID, n.Name, n.ID); err != nil {
				return err
			}
		}

		position := 0
		if in.NewPosition != nil {
			position = *in.NewPosition
		} else if position, err = s.repo.GetNextPosition(ctx, newParentID); err != nil {
			return err
		}

		oldPath, oldDepth := n.Path, n.Depth
		n.ParentID = newParentID
		n.Position = position
		n.Apply(parent)

		if err := s.repo.Update(ctx, n); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nodeNotFound(id)
			}
			return uniqueToDomain(err, n)
		}

		if n.Path != oldPath {
			count, err := s.repo.RepathDescendants(ctx, oldPath, n.Path, n.Depth-oldDepth)
			if err != nil {
				return uniqueToDomain(err, n)
			}
			repathed = count
		}
		node = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddRepathed(repathed)
	s.logger.Info("node moved", "node_id", node.ID, "path", node.Path, "depth", node.Depth, "repathed", repathed)
	return node, nil
}

// ReorderSiblings assigns positions by index in in.OrderedIDs. Ids that
// belong to another parent are skipped.
func (s *Service) ReorderSiblings(ctx context.Context, in ReorderSiblingsInput) (err error) {
	defer s.track("reorder_siblings", time.Now(), &err)

	if err := in.Validate(); err != nil {
		return err
	}

	var moved int64
	err = s.mutate(ctx, func(ctx context.Context) error {
		var err error
		moved, err = s.repo.ReorderSiblings(ctx, in.ParentID, in.OrderedIDs)
		return err
	})
	if err != nil {
		return err
	}

	if skipped := int64(len(in.OrderedIDs)) - moved; skipped > 0 {
		s.logger.Debug("reorder skipped foreign ids", "skipped", skipped)
	}
	s.logger.Info("siblings reordered", "count", moved)
	return nil
}

// GetTree returns the forest, or the subtree rooted at rootID. A missing
// root yields an empty tree.
func (s *Service) GetTree(ctx context.Context, rootID *string) (tree []*models.TreeNode, err error) {
	defer s.track("get_tree", time.Now(), &err)

	key := cache.TreeKey(rootID)
	if s.cache != nil {
		cached, ok := s.cache.Get(ctx, key)
		s.metrics.ObserveTreeCache(ok)
		if ok {
			return cached, nil
		}
	}

	gen := s.generation.Load()
	var nodes []*models.Node
	err = s.read(ctx, func(ctx context.Context) error {
		var err error
		nodes, err = s.repo.GetTreeFrom(ctx, rootID)
		return err
	})
	if err != nil {
		return nil, err
	}
	tree = BuildTree(nodes)

	if s.cache != nil && s.generation.Load() == gen {
		s.cache.Set(ctx, key, tree)
	}
	return tree, nil
}

// GetPublicTree is GetTree restricted to storefront-visible nodes.
func (s *Service) GetPublicTree(ctx context.Context, rootID *string) ([]*models.TreeNode, error) {
	tree, err := s.GetTree(ctx, rootID)
	if err != nil {
		return nil, err
	}
	return PublicTree(tree), nil
}

// GetBreadcrumbs returns the ancestors of id from the root down, followed
// by the node itself.
func (s *Service) GetBreadcrumbs(ctx context.Context, id string) (crumbs []models.Breadcrumb, err error) {
	defer s.track("get_breadcrumbs", time.Now(), &err)

	var n *models.Node
	var ancestors []*models.Node
	err = s.read(ctx, func(ctx context.Context) error {
		var err error
		if n, err = s.mustFind(ctx, id); err != nil {
			return err
		}
		ancestors, err = s.repo.FindAncestors(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	crumbs = make([]models.Breadcrumb, 0, len(ancestors)+1)
	for _, a := range ancestors {
		crumbs = append(crumbs, a.Breadcrumb())
	}
	return append(crumbs, n.Breadcrumb()), nil
}

// ListDescendantNodes returns every strict descendant of id ordered by
// depth then position. Empty for unknown ids.
func (s *Service) ListDescendantNodes(ctx context.Context, id string) (nodes []*models.Node, err error) {
	defer s.track("list_descendants", time.Now(), &err)
	err = s.read(ctx, func(ctx context.Context) error {
		var err error
		nodes, err = s.repo.FindDescendants(ctx, id)
		return err
	})
	return nodes, err
}

// ListDescendantCollectionIDs returns the collection ids referenced by id
// and its descendants. Empty for unknown ids.
func (s *Service) ListDescendantCollectionIDs(ctx context.Context, id string) (ids []string, err error) {
	defer s.track("list_collection_ids", time.Now(), &err)
	err = s.read(ctx, func(ctx context.Context) error {
		var err error
		ids, err = s.repo.GetDescendantCollectionIDs(ctx, id)
		return err
	})
	return ids, err
}

// ListProductsUnderNode pages the catalog products of every collection
// under id. Without a catalog only the collection ids are resolved.
func (s *Service) ListProductsUnderNode(ctx context.Context, id string, q ProductQuery) (page *ProductPage, err error) {
	defer s.track("list_products", time.Now(), &err)

	if err := q.Validate(); err != nil {
		return nil, err
	}
	limit, offset := pageOf(q.Limit, q.Offset)
	q.Limit, q.Offset = &limit, &offset

	var ids []string
	err = s.read(ctx, func(ctx context.Context) error {
		var err error
		ids, err = s.repo.GetDescendantCollectionIDs(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	page = &ProductPage{
		Products:      []Product{},
		Limit:         limit,
		Offset:        offset,
		CollectionIDs: ids,
	}
	if len(ids) == 0 || s.catalog == nil {
		return page, nil
	}

	products, count, err := s.catalog.ListProducts(ctx, ids, q)
	if err != nil {
		return nil, err
	}
	if products != nil {
		page.Products = products
	}
	page.Count = count
	return page, nil
}
