package hierarchy

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	parent := "chn_p"
	tests := []struct {
		name   string
		err    error
		kind   Kind
		code   string
		status int
	}{
		{"nil", nil, KindInternal, CodeInternal, http.StatusInternalServerError},
		{"foreign", errors.New("boom"), KindInternal, CodeInternal, http.StatusInternalServerError},
		{"invalid input", InvalidInput("name", "bad"), KindInvalidInput, CodeInvalidInput, http.StatusBadRequest},
		{"duplicate slug", duplicateSlug("a"), KindDuplicateSlug, CodeDuplicateSlug, http.StatusBadRequest},
		{"duplicate name", duplicateName(&parent, "A"), KindDuplicateName, CodeDuplicateName, http.StatusBadRequest},
		{"parent not found", parentNotFound("x"), KindParentNotFound, CodeParentNotFound, http.StatusBadRequest},
		{"node not found", nodeNotFound("x"), KindNodeNotFound, CodeNodeNotFound, http.StatusNotFound},
		{"cycle", cycleDetected("a", "c"), KindCycleDetected, CodeCycleDetected, http.StatusBadRequest},
		{"has children", hasChildren("a", 2), KindHasChildren, CodeHasChildren, http.StatusBadRequest},
		{"wrapped", fmt.Errorf("outer: %w", nodeNotFound("x")), KindNodeNotFound, CodeNodeNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := KindOf(tt.err)
			assert.Equal(t, tt.kind, k)
			assert.Equal(t, tt.code, k.Code())
			assert.Equal(t, tt.status, k.HTTPStatus())
		})
	}
}

func TestDomainErrorsCarryOopsContext(t *testing.T) {
	err := cycleDetected("chn_a", "chn_c")

	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, CodeCycleDetected, oopsErr.Code())
	assert.Equal(t, "hierarchy", oopsErr.Domain())

	ctx := oopsErr.Context()
	assert.Equal(t, "chn_a", ctx["node_id"])
	assert.Equal(t, "chn_c", ctx["attempted_parent_id"])
	assert.Equal(t, "moving node would create a cycle", Message(err))
}

func TestDuplicateNameRootHasNoParentContext(t *testing.T) {
	oopsErr, ok := oops.AsOops(duplicateName(nil, "A"))
	require.True(t, ok)
	_, has := oopsErr.Context()["parent_id"]
	assert.False(t, has)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Something went wrong. Try again.", Message(errors.New("pq: connection refused")))
	assert.Equal(t, `node with slug "a" already exists`, Message(duplicateSlug("a")))
	assert.Equal(t, "node has children", Message(ErrHasChildren))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "cycle detected", KindCycleDetected.String())
	assert.Equal(t, "internal error", KindInternal.String())
}
