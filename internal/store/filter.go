// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"fmt"
	"sort"
	"strings"

	"taxonomy/internal/models"
)

// Field names a filterable / sortable node column.
type Field string

// Node columns usable in filters and orderings.
const (
	FieldID           Field = "id"
	FieldCollectionID Field = "collection_id"
	FieldParentID     Field = "parent_id"
	FieldName         Field = "name"
	FieldSlug         Field = "slug"
	FieldPath         Field = "path"
	FieldDepth        Field = "depth"
	FieldPosition     Field = "position"
)

// Op is a predicate operator.
type Op int

// Supported operators.
const (
	OpEq Op = iota
	OpNe
	OpIn
	OpIsNull
	OpNotNull
	OpPrefix
	OpOr
)

// Predicate is a single condition on a node column. Or predicates carry
// their alternatives in Any.
type Predicate struct {
	Field  Field
	Op     Op
	Value  any
	Values []string
	Any    []Predicate
}

// Filter is a conjunction of predicates. The zero Filter matches everything.
type Filter []Predicate

// Eq matches nodes whose field equals v.
func Eq(f Field, v any) Predicate { return Predicate{Field: f, Op: OpEq, Value: v} }

// Ne matches nodes whose field differs from v.
func Ne(f Field, v any) Predicate { return Predicate{Field: f, Op: OpNe, Value: v} }

// In matches nodes whose field is one of values.
func In(f Field, values []string) Predicate { return Predicate{Field: f, Op: OpIn, Values: values} }

// IsNull matches nodes whose nullable field is null.
func IsNull(f Field) Predicate { return Predicate{Field: f, Op: OpIsNull} }

// NotNull matches nodes whose nullable field is set.
func NotNull(f Field) Predicate { return Predicate{Field: f, Op: OpNotNull} }

// PathPrefix matches nodes whose path starts with prefix. Pass a node's
// DescendantPrefix to select its strict descendants.
func PathPrefix(prefix string) Predicate {
	return Predicate{Field: FieldPath, Op: OpPrefix, Value: prefix}
}

// Or matches nodes satisfying any of preds.
func Or(preds ...Predicate) Predicate { return Predicate{Op: OpOr, Any: preds} }

// ParentIs matches the children of parentID, or root nodes when nil.
func ParentIs(parentID *string) Predicate {
	if parentID == nil {
		return IsNull(FieldParentID)
	}
	return Eq(FieldParentID, *parentID)
}

// Subtree matches a node and all of its descendants.
func Subtree(n *models.Node) Predicate {
	return Or(Eq(FieldID, n.ID), PathPrefix(n.DescendantPrefix()))
}

// Sort is one ORDER BY term.
type Sort struct {
	Field Field
	Desc  bool
}

// Order is a list of sort terms applied left to right.
type Order []Sort

// Common orderings.
var (
	ByPosition      = Order{{Field: FieldPosition}}
	ByDepth         = Order{{Field: FieldDepth}}
	ByDepthPosition = Order{{Field: FieldDepth}, {Field: FieldPosition}}
)

// whereSQL renders the filter as a WHERE clause, appending bind values to
// args. Placeholders continue from len(*args)+1.
func (f Filter) whereSQL(args *[]any) string {
	if len(f) == 0 {
		return ""
	}
	parts := make([]string, 0, len(f))
	for _, p := range f {
		parts = append(parts, p.sql(args))
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

func (p Predicate) sql(args *[]any) string {
	bind := func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}

	switch p.Op {
	case OpEq:
		return string(p.Field) + " = " + bind(p.Value)
	case OpNe:
		return string(p.Field) + " <> " + bind(p.Value)
	case OpIn:
		return string(p.Field) + " = ANY(" + bind(p.Values) + ")"
	case OpIsNull:
		return string(p.Field) + " IS NULL"
	case OpNotNull:
		return string(p.Field) + " IS NOT NULL"
	case OpPrefix:
		prefix, _ := p.Value.(string)
		return string(p.Field) + ` LIKE ` + bind(escapeLike(prefix)+"%") + ` ESCAPE '\'`
	case OpOr:
		alts := make([]string, 0, len(p.Any))
		for _, a := range p.Any {
			alts = append(alts, a.sql(args))
		}
		return "(" + strings.Join(alts, " OR ") + ")"
	}
	return "FALSE"
}

// escapeLike escapes LIKE metacharacters so prefix matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// orderSQL renders the ORDER BY clause.
func (o Order) orderSQL() string {
	if len(o) == 0 {
		return ""
	}
	terms := make([]string, 0, len(o))
	for _, s := range o {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		terms = append(terms, string(s.Field)+" "+dir)
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

// Match evaluates the filter against an in-memory node.
func (f Filter) Match(n *models.Node) bool {
	for _, p := range f {
		if !p.Match(n) {
			return false
		}
	}
	return true
}

// Match evaluates a single predicate against an in-memory node.
func (p Predicate) Match(n *models.Node) bool {
	if p.Op == OpOr {
		for _, a := range p.Any {
			if a.Match(n) {
				return true
			}
		}
		return false
	}

	v, null := fieldValue(n, p.Field)
	switch p.Op {
	case OpEq:
		return !null && v == p.Value
	case OpNe:
		return !null && v != p.Value
	case OpIn:
		if null {
			return false
		}
		for _, want := range p.Values {
			if v == want {
				return true
			}
		}
		return false
	case OpIsNull:
		return null
	case OpNotNull:
		return !null
	case OpPrefix:
		prefix, _ := p.Value.(string)
		s, _ := v.(string)
		return strings.HasPrefix(s, prefix)
	}
	return false
}

// Sort orders nodes in place, matching the SQL ordering.
func (o Order) Sort(nodes []*models.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		for _, s := range o {
			c := compare(nodes[i], nodes[j], s.Field)
			if c == 0 {
				continue
			}
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compare(a, b *models.Node, f Field) int {
	av, _ := fieldValue(a, f)
	bv, _ := fieldValue(b, f)
	switch x := av.(type) {
	case int:
		y, _ := bv.(int)
		return x - y
	case string:
		y, _ := bv.(string)
		return strings.Compare(x, y)
	}
	return 0
}

// fieldValue returns the comparable value of a column and whether it is null.
func fieldValue(n *models.Node, f Field) (any, bool) {
	switch f {
	case FieldID:
		return n.ID, false
	case FieldName:
		return n.Name, false
	case FieldSlug:
		return n.Slug, false
	case FieldPath:
		return n.Path, false
	case FieldDepth:
		return n.Depth, false
	case FieldPosition:
		return n.Position, false
	case FieldParentID:
		if n.ParentID == nil {
			return nil, true
		}
		return *n.ParentID, false
	case FieldCollectionID:
		if n.CollectionID == nil {
			return nil, true
		}
		return *n.CollectionID, false
	}
	return nil, true
}
