package hierarchy

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/oops"
)

// Sentinel errors. Every error returned by the Service wraps exactly one
// of these (or none, for infrastructure failures).
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrDuplicateSlug  = errors.New("duplicate slug")
	ErrDuplicateName  = errors.New("duplicate sibling name")
	ErrParentNotFound = errors.New("parent not found")
	ErrNodeNotFound   = errors.New("node not found")
	ErrCycleDetected  = errors.New("cycle detected")
	ErrHasChildren    = errors.New("node has children")
)

// Error codes attached to hierarchy errors.
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeDuplicateSlug  = "DUPLICATE_SLUG"
	CodeDuplicateName  = "DUPLICATE_NAME"
	CodeParentNotFound = "PARENT_NOT_FOUND"
	CodeNodeNotFound   = "NODE_NOT_FOUND"
	CodeCycleDetected  = "CYCLE_DETECTED"
	CodeHasChildren    = "HAS_CHILDREN"
	CodeInternal       = "INTERNAL"
)

// Kind is the closed set of failure classes callers branch on.
type Kind int

// Failure kinds. KindInternal covers everything that is not a domain error.
const (
	KindInternal Kind = iota
	KindInvalidInput
	KindDuplicateSlug
	KindDuplicateName
	KindParentNotFound
	KindNodeNotFound
	KindCycleDetected
	KindHasChildren
)

var kinds = []struct {
	kind Kind
	err  error
	code string
}{
	{KindInvalidInput, ErrInvalidInput, CodeInvalidInput},
	{KindDuplicateSlug, ErrDuplicateSlug, CodeDuplicateSlug},
	{KindDuplicateName, ErrDuplicateName, CodeDuplicateName},
	{KindParentNotFound, ErrParentNotFound, CodeParentNotFound},
	{KindNodeNotFound, ErrNodeNotFound, CodeNodeNotFound},
	{KindCycleDetected, ErrCycleDetected, CodeCycleDetected},
	{KindHasChildren, ErrHasChildren, CodeHasChildren},
}

// KindOf classifies err. Nil and foreign errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Code returns the error code for the kind.
func (k Kind) Code() string {
	for _, e := range kinds {
		if e.kind == k {
			return e.code
		}
	}
	return CodeInternal
}

func (k Kind) String() string {
	for _, e := range kinds {
		if e.kind == k {
			return e.err.Error()
		}
	}
	return "internal error"
}

// HTTPStatus maps the kind onto a response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNodeNotFound:
		return http.StatusNotFound
	case KindInvalidInput, KindDuplicateSlug, KindDuplicateName,
		KindParentNotFound, KindCycleDetected, KindHasChildren:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Message returns the caller-facing message carried by a hierarchy error,
// or a generic one for anything else.
func Message(err error) string {
	if KindOf(err) == KindInternal {
		return "Something went wrong. Try again."
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if msg, ok := oopsErr.Context()["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return KindOf(err).String()
}

func domainError(code, msg string) oops.OopsErrorBuilder {
	return oops.In("hierarchy").Code(code).With("message", msg)
}

// InvalidInput returns an InvalidInput error for field with a
// caller-facing message.
func InvalidInput(field, msg string) error {
	return domainError(CodeInvalidInput, msg).
		With("field", field).
		Wrapf(ErrInvalidInput, "%s", msg)
}

func duplicateSlug(slug string) error {
	msg := fmt.Sprintf("node with slug %q already exists", slug)
	return domainError(CodeDuplicateSlug, msg).
		With("slug", slug).
		Wrapf(ErrDuplicateSlug, "%s", msg)
}

func duplicateName(parentID *string, name string) error {
	msg := fmt.Sprintf("a sibling named %q already exists", name)
	b := domainError(CodeDuplicateName, msg).With("name", name)
	if parentID != nil {
		b = b.With("parent_id", *parentID)
	}
	return b.Wrapf(ErrDuplicateName, "%s", msg)
}

func parentNotFound(id string) error {
	msg := fmt.Sprintf("parent node with id %q not found", id)
	return domainError(CodeParentNotFound, msg).
		With("parent_id", id).
		Wrapf(ErrParentNotFound, "%s", msg)
}

func nodeNotFound(id string) error {
	msg := fmt.Sprintf("node with id %q not found", id)
	return domainError(CodeNodeNotFound, msg).
		With("node_id", id).
		Wrapf(ErrNodeNotFound, "%s", msg)
}

func cycleDetected(id, parentID string) error {
	msg := "moving node would create a cycle"
	return domainError(CodeCycleDetected, msg).
		With("node_id", id).
		With("attempted_parent_id", parentID).
		Wrapf(ErrCycleDetected, "%s", msg)
}

func hasChildren(id string, children int) error {
	msg := "cannot delete node with children, use cascade=true to delete children as well"
	return domainError(CodeHasChildren, msg).
		With("node_id", id).
		With("children", children).
		Wrapf(ErrHasChildren, "%s", msg)
}
