package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"taxonomy/internal/hierarchy"
	"taxonomy/internal/models"
)

// RowQuerier is the subset of a pgx pool Seed needs to check for
// existing rows.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NodeCreator creates hierarchy nodes. *hierarchy.Service implements it.
type NodeCreator interface {
	CreateNode(ctx context.Context, in hierarchy.CreateNodeInput) (*models.Node, error)
}

type seedNode struct {
	name     string
	slug     string
	metadata map[string]any
	children []seedNode
}

// seedTree is the starter storefront taxonomy. Positions follow the
// order of each level.
var seedTree = []seedNode{
	{
		name: "Chuches", slug: "chuches",
		metadata: map[string]any{"description": "Todas las golosinas y dulces", "is_public": true},
		children: []seedNode{
			{name: "Sin Gluten", slug: "sin-gluten", metadata: map[string]any{"description": "Golosinas sin gluten", "is_public": true, "dietary": "gluten-free"}},
			{name: "Veganas", slug: "veganas", metadata: map[string]any{"description": "Golosinas veganas", "is_public": true, "dietary": "vegan"}},
			{
				name: "Chocolates", slug: "chocolates",
				metadata: map[string]any{"description": "Chocolates y derivados", "is_public": true},
				children: []seedNode{
					{name: "Chocolate Negro", slug: "chocolate-negro", metadata: map[string]any{"description": "Chocolate con alto contenido de cacao", "is_public": true, "cocoa_level": "dark"}},
					{name: "Chocolate con Leche", slug: "chocolate-con-leche", metadata: map[string]any{"description": "Chocolate cremoso con leche", "is_public": true, "cocoa_level": "milk"}},
					{name: "Chocolate Blanco", slug: "chocolate-blanco", metadata: map[string]any{"description": "Chocolate blanco dulce", "is_public": true, "cocoa_level": "white"}},
				},
			},
			{name: "Gominolas", slug: "gominolas", metadata: map[string]any{"description": "Gominolas y caramelos blandos", "is_public": true}},
		},
	},
	{
		name: "Medicamentos", slug: "medicamentos",
		metadata: map[string]any{"description": "Productos farmacéuticos", "is_public": true},
		children: []seedNode{
			{name: "Analgésicos", slug: "analgesicos", metadata: map[string]any{"description": "Medicamentos para el dolor", "is_public": true, "type": "analgesic"}},
			{name: "Vitaminas", slug: "vitaminas", metadata: map[string]any{"description": "Suplementos vitamínicos", "is_public": true, "type": "supplement"}},
			{name: "Digestivos", slug: "digestivos", metadata: map[string]any{"description": "Medicamentos para problemas digestivos", "is_public": true, "type": "digestive"}},
		},
	},
	{
		name: "Cuidado Personal", slug: "cuidado-personal",
		metadata: map[string]any{"description": "Productos de higiene y cuidado", "is_public": true},
	},
}

// Seed populates an empty hierarchy with the starter taxonomy. It does
// nothing when any node already exists.
func Seed(ctx context.Context, db RowQuerier, nodes NodeCreator) error {
	var count int
	if err := db.QueryRow(ctx, "SELECT COUNT(*) FROM collection_hierarchy_node").Scan(&count); err != nil {
		return fmt.Errorf("seed check nodes: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping", "nodes", count)
		return nil
	}

	created, err := seedLevel(ctx, nodes, nil, seedTree)
	if err != nil {
		return err
	}

	slog.Info("database seeded with collection hierarchy", "nodes", created)
	return nil
}

func seedLevel(ctx context.Context, nodes NodeCreator, parentID *string, level []seedNode) (int, error) {
	created := 0
	for i, sn := range level {
		slug, position := sn.slug, i
		n, err := nodes.CreateNode(ctx, hierarchy.CreateNodeInput{
			Name:     sn.name,
			Slug:     &slug,
			ParentID: parentID,
			Position: &position,
			Metadata: sn.metadata,
		})
		if err != nil {
			return created, fmt.Errorf("seed node %q: %w", sn.slug, err)
		}
		created++

		n2, err := seedLevel(ctx, nodes, &n.ID, sn.children)
		created += n2
		if err != nil {
			return created, err
		}
	}
	return created, nil
}
