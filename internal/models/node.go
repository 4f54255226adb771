// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"strings"
	"time"

	"taxonomy/internal/slug"
)

// PathSeparator joins slugs into a materialized path.
const PathSeparator = "/"

// Node is one entry of the collection hierarchy. Path and Depth are derived
// from the parent chain and are never written directly by callers.
type Node struct {
	ID           string         `json:"id"`
	CollectionID *string        `json:"collection_id"`
	ParentID     *string        `json:"parent_id"`
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	Path         string         `json:"path"`
	Depth        int            `json:"depth"`
	Position     int            `json:"position"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TreeNode is a Node with its children attached, as returned by tree reads.
type TreeNode struct {
	Node
	Children []*TreeNode `json:"children"`
}

// Breadcrumb is the trimmed node shape used for navigation trails.
type Breadcrumb struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Path string `json:"path"`
}

// Derived holds the fields computed from a node's parent.
type Derived struct {
	Path  string
	Depth int
}

// Derive computes path and depth for a node with the given slug placed
// under parent. A nil parent makes the node a root.
func Derive(nodeSlug string, parent *Node) Derived {
	if parent == nil {
		return Derived{Path: nodeSlug, Depth: 0}
	}
	return Derived{
		Path:  parent.Path + PathSeparator + nodeSlug,
		Depth: parent.Depth + 1,
	}
}

// Apply fills in the derived fields using the current parent snapshot.
// An empty slug is generated from the name.
func (n *Node) Apply(parent *Node) {
	if n.Slug == "" {
		n.Slug = slug.Generate(n.Name)
	}
	d := Derive(n.Slug, parent)
	n.Path = d.Path
	n.Depth = d.Depth
}

// IsRoot returns true if the node has no parent.
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// HasCollection returns true if the node references a catalog collection.
func (n *Node) HasCollection() bool {
	return n.CollectionID != nil && *n.CollectionID != ""
}

// Breadcrumb returns the navigation shape of the node.
func (n *Node) Breadcrumb() Breadcrumb {
	return Breadcrumb{ID: n.ID, Name: n.Name, Slug: n.Slug, Path: n.Path}
}

// DescendantPrefix is the prefix every descendant path starts with.
func (n *Node) DescendantPrefix() string {
	return n.Path + PathSeparator
}

// AncestorPaths returns every proper prefix of path, root first.
// "a/b/c" → ["a", "a/b"].
func AncestorPaths(path string) []string {
	parts := strings.Split(path, PathSeparator)
	out := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], PathSeparator))
	}
	return out
}

// SplicePath replaces oldPrefix at the start of path with newPrefix.
// Paths that don't start with oldPrefix are returned unchanged.
func SplicePath(path, oldPrefix, newPrefix string) string {
	rest, ok := strings.CutPrefix(path, oldPrefix)
	if !ok {
		return path
	}
	return newPrefix + rest
}

// SameParent compares two optional parent ids (both nil or equal).
func SameParent(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
