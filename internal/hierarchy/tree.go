package hierarchy

import (
	"sort"

	"taxonomy/internal/models"
)

// BuildTree assembles a flat node list into a forest. The input may come
// in any order: every node is indexed first and linked to its parent in a
// second pass. Nodes whose parent is absent from the list become roots.
// Children and roots are sorted by position.
func BuildTree(nodes []*models.Node) []*models.TreeNode {
	byID := make(map[string]*models.TreeNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = &models.TreeNode{Node: *n, Children: []*models.TreeNode{}}
	}

	roots := []*models.TreeNode{}
	for _, n := range nodes {
		tn := byID[n.ID]
		if n.ParentID != nil {
			if parent, ok := byID[*n.ParentID]; ok {
				parent.Children = append(parent.Children, tn)
				continue
			}
		}
		roots = append(roots, tn)
	}

	sortTree(roots)
	return roots
}

func sortTree(level []*models.TreeNode) {
	sort.SliceStable(level, func(i, j int) bool {
		return level[i].Position < level[j].Position
	})
	for _, tn := range level {
		sortTree(tn.Children)
	}
}

// IsPublic reports whether the node is visible on the storefront. Nodes
// are public unless their metadata sets is_public to false.
func IsPublic(n *models.Node) bool {
	v, ok := n.Metadata["is_public"].(bool)
	return !ok || v
}

// PublicTree returns a copy of tree without hidden nodes. Hiding a node
// hides its whole subtree.
func PublicTree(tree []*models.TreeNode) []*models.TreeNode {
	out := []*models.TreeNode{}
	for _, tn := range tree {
		if !IsPublic(&tn.Node) {
			continue
		}
		out = append(out, &models.TreeNode{Node: tn.Node, Children: PublicTree(tn.Children)})
	}
	return out
}
