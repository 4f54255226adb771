package hierarchy

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"taxonomy/internal/models"
	"taxonomy/internal/slug"
)

// Pagination bounds shared by node listings and product queries.
const (
	DefaultLimit = 20
	MaxLimit     = 100
	MaxNameLen   = 255
)

// CreateNodeInput is the payload of CreateNode.
type CreateNodeInput struct {
	Name         string         `json:"name" validate:"required,max=255"`
	Slug         *string        `json:"slug,omitempty" validate:"omitempty,slug"`
	CollectionID *string        `json:"collection_id,omitempty"`
	ParentID     *string        `json:"parent_id,omitempty"`
	Position     *int           `json:"position,omitempty" validate:"omitempty,min=0"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// UpdateNodeInput is the partial payload of UpdateNode. Absent fields are
// left untouched; null clears collection_id and metadata.
type UpdateNodeInput struct {
	Name         models.Optional[string]         `json:"name"`
	Slug         models.Optional[string]         `json:"slug"`
	CollectionID models.Optional[string]         `json:"collection_id"`
	Metadata     models.Optional[map[string]any] `json:"metadata"`
}

// MoveNodeInput is the payload of MoveNode. NewParentID must be present;
// null moves the node to the root level.
type MoveNodeInput struct {
	NewParentID models.Optional[string] `json:"new_parent_id"`
	NewPosition *int                    `json:"new_position,omitempty" validate:"omitempty,min=0"`
}

// ReorderSiblingsInput is the payload of ReorderSiblings.
type ReorderSiblingsInput struct {
	ParentID   *string  `json:"parent_id,omitempty"`
	OrderedIDs []string `json:"ordered_ids" validate:"required,unique,dive,required"`
}

// ListNodesInput filters ListNodes. An unset ParentID lists every node; a
// set but null ParentID lists the roots.
type ListNodesInput struct {
	ParentID models.Optional[string]
	Limit    *int `validate:"omitempty,min=1,max=100"`
	Offset   *int `validate:"omitempty,min=0"`
}

// ProductQuery pages products under a node. Region, currency and cart are
// forwarded to the catalog untouched.
type ProductQuery struct {
	Limit        *int   `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
	Offset       *int   `json:"offset,omitempty" validate:"omitempty,min=0"`
	RegionID     string `json:"region_id,omitempty"`
	CurrencyCode string `json:"currency_code,omitempty"`
	CartID       string `json:"cart_id,omitempty"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return strings.ToLower(f.Name)
			}
			return name
		})
		_ = validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			return slug.IsValid(fl.Field().String())
		})
	})
	return validate
}

// fieldMessages holds caller-facing messages per field and failing tag.
var fieldMessages = map[string]string{
	"name.required":        "name is required and must be a non-empty string",
	"name.max":             "name must not exceed 255 characters",
	"slug.slug":            "slug must contain only lowercase letters, digits and single hyphens",
	"position.min":         "position must be a non-negative integer",
	"new_position.min":     "new_position must be a non-negative integer",
	"ordered_ids.required": "ordered_ids must be an array of node ids",
	"ordered_ids.unique":   "ordered_ids must not contain duplicates",
	"limit.min":            "limit must be an integer between 1 and 100",
	"limit.max":            "limit must be an integer between 1 and 100",
	"offset.min":           "offset must be a non-negative integer",
}

// check runs struct validation and converts the first failure into an
// InvalidInput error.
func check(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return InvalidInput("", err.Error())
	}
	fe := verrs[0]
	field := fe.Field()
	if msg, ok := fieldMessages[field+"."+fe.Tag()]; ok {
		return InvalidInput(field, msg)
	}
	if strings.HasPrefix(field, "ordered_ids[") {
		return InvalidInput("ordered_ids", "ordered_ids must contain only non-empty strings")
	}
	return InvalidInput(field, fmt.Sprintf("%s is invalid", field))
}

// normalizeID treats empty ids as absent.
func normalizeID(id *string) *string {
	if id == nil {
		return nil
	}
	s := strings.TrimSpace(*id)
	if s == "" {
		return nil
	}
	return &s
}

// Validate trims and checks the payload.
func (in *CreateNodeInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Slug != nil {
		s := strings.TrimSpace(*in.Slug)
		in.Slug = &s
		if s == "" {
			in.Slug = nil
		}
	}
	in.CollectionID = normalizeID(in.CollectionID)
	in.ParentID = normalizeID(in.ParentID)
	return check(in)
}

// Validate trims and checks the present fields.
func (in *UpdateNodeInput) Validate() error {
	v := validatorInstance()

	if in.Name.Set {
		if in.Name.Value == nil {
			return InvalidInput("name", "name must be a non-empty string")
		}
		name := strings.TrimSpace(*in.Name.Value)
		if v.Var(name, "required") != nil {
			return InvalidInput("name", "name must be a non-empty string")
		}
		if v.Var(name, fmt.Sprintf("max=%d", MaxNameLen)) != nil {
			return InvalidInput("name", fieldMessages["name.max"])
		}
		in.Name = models.Some(name)
	}

	if in.Slug.Set {
		if in.Slug.Value == nil {
			return InvalidInput("slug", "slug must be a string")
		}
		s := strings.TrimSpace(*in.Slug.Value)
		if v.Var(s, "slug") != nil {
			return InvalidInput("slug", fieldMessages["slug.slug"])
		}
		in.Slug = models.Some(s)
	}

	if in.CollectionID.Set {
		if id := normalizeID(in.CollectionID.Value); id == nil {
			in.CollectionID = models.Null[string]()
		} else {
			in.CollectionID = models.Some(*id)
		}
	}
	return nil
}

// Validate checks the move payload.
func (in *MoveNodeInput) Validate() error {
	if !in.NewParentID.Set {
		return InvalidInput("new_parent_id", "new_parent_id is required and must be a string or null")
	}
	in.NewParentID.Value = normalizeID(in.NewParentID.Value)
	return check(in)
}

// Validate checks the reorder payload.
func (in *ReorderSiblingsInput) Validate() error {
	in.ParentID = normalizeID(in.ParentID)
	return check(in)
}

// Validate checks paging bounds.
func (in *ListNodesInput) Validate() error {
	if in.ParentID.Set {
		in.ParentID.Value = normalizeID(in.ParentID.Value)
	}
	return check(in)
}

// Validate checks paging bounds.
func (q *ProductQuery) Validate() error {
	return check(q)
}

func pageOf(limit, offset *int) (int, int) {
	l, o := DefaultLimit, 0
	if limit != nil {
		l = *limit
	}
	if offset != nil {
		o = *offset
	}
	return l, o
}
