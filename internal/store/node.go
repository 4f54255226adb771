// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"taxonomy/internal/models"
)

// treeLockKey identifies the advisory lock held by structural writers.
const treeLockKey int64 = 0x7461786f6e // "taxon"

const nodeColumns = `id, collection_id, parent_id, name, slug, path, depth, position, metadata, created_at, updated_at`

// NodeStore persists collection hierarchy nodes. Every method runs inside
// the transaction carried by ctx when there is one.
type NodeStore struct {
	pool Pool
}

// NewNodeStore returns a new NodeStore.
func NewNodeStore(pool Pool) *NodeStore {
	return &NodeStore{pool: pool}
}

func (s *NodeStore) q(ctx context.Context) querier {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return s.pool
}

// scanNode scans a row into a Node struct.
func scanNode(scanner interface{ Scan(...any) error }) (*models.Node, error) {
	var (
		n    models.Node
		meta []byte
	)
	err := scanner.Scan(
		&n.ID, &n.CollectionID, &n.ParentID, &n.Name, &n.Slug,
		&n.Path, &n.Depth, &n.Position, &meta, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &n, nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

// FindOne returns the first node matching f. Returns nil, nil if none.
func (s *NodeStore) FindOne(ctx context.Context, f Filter) (*models.Node, error) {
	var args []any
	query := `SELECT ` + nodeColumns + ` FROM collection_hierarchy_node` + f.whereSQL(&args) + ` LIMIT 1`

	n, err := scanNode(s.q(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find node: %w", err)
	}
	return n, nil
}

// FindByID returns the node with the given id. Returns nil, nil if missing.
func (s *NodeStore) FindByID(ctx context.Context, id string) (*models.Node, error) {
	return s.FindOne(ctx, Filter{Eq(FieldID, id)})
}

// Find returns every node matching f in the given order.
func (s *NodeStore) Find(ctx context.Context, f Filter, order Order) ([]*models.Node, error) {
	var args []any
	query := `SELECT ` + nodeColumns + ` FROM collection_hierarchy_node` + f.whereSQL(&args) + order.orderSQL()
	return s.list(ctx, query, args...)
}

// FindAndCount returns one page of nodes matching f plus the total number
// of matches ignoring limit and offset.
func (s *NodeStore) FindAndCount(ctx context.Context, f Filter, order Order, limit, offset int) ([]*models.Node, int, error) {
	total, err := s.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	var args []any
	query := `SELECT ` + nodeColumns + ` FROM collection_hierarchy_node` + f.whereSQL(&args) + order.orderSQL()
	args = append(args, limit, offset)
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	nodes, err := s.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return nodes, total, nil
}

// Count returns the number of nodes matching f.
func (s *NodeStore) Count(ctx context.Context, f Filter) (int, error) {
	var args []any
	query := `SELECT COUNT(*) FROM collection_hierarchy_node` + f.whereSQL(&args)

	var count int
	if err := s.q(ctx).QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return count, nil
}

func (s *NodeStore) list(ctx context.Context, query string, args ...any) ([]*models.Node, error) {
	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	nodes := []*models.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return nodes, nil
}

// Insert creates a node. The caller supplies id and the derived fields;
// timestamps are filled in by the database.
func (s *NodeStore) Insert(ctx context.Context, n *models.Node) error {
	meta, err := encodeMetadata(n.Metadata)
	if err != nil {
		return err
	}

	err = s.q(ctx).QueryRow(ctx, `
		INSERT INTO collection_hierarchy_node
			(id, collection_id, parent_id, name, slug, path, depth, position, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		n.ID, n.CollectionID, n.ParentID, n.Name, n.Slug, n.Path, n.Depth, n.Position, meta,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert node: %w", translate(err))
	}
	return nil
}

// Update writes every mutable column of n and refreshes UpdatedAt.
func (s *NodeStore) Update(ctx context.Context, n *models.Node) error {
	meta, err := encodeMetadata(n.Metadata)
	if err != nil {
		return err
	}

	err = s.q(ctx).QueryRow(ctx, `
		UPDATE collection_hierarchy_node
		SET collection_id = $2, parent_id = $3, name = $4, slug = $5, path = $6,
		    depth = $7, position = $8, metadata = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		n.ID, n.CollectionID, n.ParentID, n.Name, n.Slug, n.Path, n.Depth, n.Position, meta,
	).Scan(&n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update node: %w", translate(err))
	}
	return nil
}

// Delete removes a single node. The foreign key cascades to any children
// still attached to it.
func (s *NodeStore) Delete(ctx context.Context, id string) error {
	tag, err := s.q(ctx).Exec(ctx, `DELETE FROM collection_hierarchy_node WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMany removes every listed node and returns how many were removed.
func (s *NodeStore) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.q(ctx).Exec(ctx, `DELETE FROM collection_hierarchy_node WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete nodes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FindChildren returns the direct children of parentID ordered by
// position. A nil parentID lists the roots.
func (s *NodeStore) FindChildren(ctx context.Context, parentID *string) ([]*models.Node, error) {
	return s.Find(ctx, Filter{ParentIs(parentID)}, ByPosition)
}

// FindSiblings returns the nodes sharing id's parent, excluding id itself.
// Empty if id does not exist.
func (s *NodeStore) FindSiblings(ctx context.Context, id string) ([]*models.Node, error) {
	n, err := s.FindByID(ctx, id)
	if err != nil || n == nil {
		return []*models.Node{}, err
	}
	return s.Find(ctx, Filter{ParentIs(n.ParentID), Ne(FieldID, id)}, ByPosition)
}

// FindAncestors returns the ancestors of id from the root down.
// Empty for roots and missing nodes.
func (s *NodeStore) FindAncestors(ctx context.Context, id string) ([]*models.Node, error) {
	n, err := s.FindByID(ctx, id)
	if err != nil || n == nil {
		return []*models.Node{}, err
	}
	paths := models.AncestorPaths(n.Path)
	if len(paths) == 0 {
		return []*models.Node{}, nil
	}
	return s.Find(ctx, Filter{In(FieldPath, paths)}, ByDepth)
}

// FindDescendants returns every strict descendant of id ordered by depth
// then position. Empty if id does not exist.
func (s *NodeStore) FindDescendants(ctx context.Context, id string) ([]*models.Node, error) {
	n, err := s.FindByID(ctx, id)
	if err != nil || n == nil {
		return []*models.Node{}, err
	}
	return s.Find(ctx, Filter{PathPrefix(n.DescendantPrefix())}, ByDepthPosition)
}

// GetTreeFrom returns the flat node list of the subtree rooted at rootID,
// or of the whole forest when rootID is nil, ordered by depth then
// position. Empty if the root does not exist.
func (s *NodeStore) GetTreeFrom(ctx context.Context, rootID *string) ([]*models.Node, error) {
	if rootID == nil {
		return s.Find(ctx, nil, ByDepthPosition)
	}
	root, err := s.FindByID(ctx, *rootID)
	if err != nil || root == nil {
		return []*models.Node{}, err
	}
	return s.Find(ctx, Filter{Subtree(root)}, ByDepthPosition)
}

// GetDescendantCollectionIDs returns the distinct collection ids referenced
// by id and its descendants, in depth/position order.
func (s *NodeStore) GetDescendantCollectionIDs(ctx context.Context, id string) ([]string, error) {
	n, err := s.FindByID(ctx, id)
	if err != nil || n == nil {
		return []string{}, err
	}
	nodes, err := s.Find(ctx, Filter{Subtree(n), NotNull(FieldCollectionID)}, ByDepthPosition)
	if err != nil {
		return nil, err
	}
	return CollectionIDs(nodes), nil
}

// CollectionIDs extracts the distinct non-empty collection ids of nodes,
// keeping first-seen order.
func CollectionIDs(nodes []*models.Node) []string {
	seen := make(map[string]bool, len(nodes))
	ids := []string{}
	for _, n := range nodes {
		if !n.HasCollection() || seen[*n.CollectionID] {
			continue
		}
		seen[*n.CollectionID] = true
		ids = append(ids, *n.CollectionID)
	}
	return ids
}

// WouldCreateCycle reports whether making parentID the parent of id would
// place id beneath itself.
func (s *NodeStore) WouldCreateCycle(ctx context.Context, id, parentID string) (bool, error) {
	if id == parentID {
		return true, nil
	}
	n, err := s.FindByID(ctx, id)
	if err != nil || n == nil {
		return false, err
	}
	hit, err := s.FindOne(ctx, Filter{Eq(FieldID, parentID), PathPrefix(n.DescendantPrefix())})
	if err != nil {
		return false, err
	}
	return hit != nil, nil
}

// GetNextPosition returns the position that appends a node at the end of
// parentID's children.
func (s *NodeStore) GetNextPosition(ctx context.Context, parentID *string) (int, error) {
	return s.Count(ctx, Filter{ParentIs(parentID)})
}

// ReorderSiblings assigns each id its index in ids as position. Ids that
// don't belong to parentID are skipped. Returns how many nodes moved.
func (s *NodeStore) ReorderSiblings(ctx context.Context, parentID *string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE collection_hierarchy_node AS n
		SET position = o.ord - 1, updated_at = NOW()
		FROM unnest($1::text[]) WITH ORDINALITY AS o(id, ord)
		WHERE n.id = o.id AND n.parent_id IS NOT DISTINCT FROM $2`,
		ids, parentID,
	)
	if err != nil {
		return 0, fmt.Errorf("reorder siblings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RepathDescendants rewrites the paths of every strict descendant of the
// node whose path was oldPath, replacing that prefix with newPath and
// shifting depth by depthDelta. Returns the number of rewritten rows.
func (s *NodeStore) RepathDescendants(ctx context.Context, oldPath, newPath string, depthDelta int) (int64, error) {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE collection_hierarchy_node
		SET path = $2 || substr(path, $3), depth = depth + $4, updated_at = NOW()
		WHERE path LIKE $1 ESCAPE '\'`,
		escapeLike(oldPath+models.PathSeparator)+"%", newPath, utf8.RuneCountInString(oldPath)+1, depthDelta,
	)
	if err != nil {
		return 0, fmt.Errorf("repath descendants: %w", translate(err))
	}
	return tag.RowsAffected(), nil
}

// LockTree takes the transaction-scoped advisory lock that serializes
// structural writes. Only meaningful inside InTransaction.
func (s *NodeStore) LockTree(ctx context.Context) error {
	if _, err := s.q(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, treeLockKey); err != nil {
		return fmt.Errorf("lock tree: %w", err)
	}
	return nil
}

// SlugExists reports whether any node uses slug.
func (s *NodeStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.q(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM collection_hierarchy_node WHERE slug = $1)`, slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}
