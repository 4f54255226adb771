package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxonomy/internal/hierarchy"
	"taxonomy/internal/models"
)

type recordingCreator struct {
	inputs []hierarchy.CreateNodeInput
	failOn string
}

func (c *recordingCreator) CreateNode(_ context.Context, in hierarchy.CreateNodeInput) (*models.Node, error) {
	if in.Slug != nil && *in.Slug == c.failOn {
		return nil, errors.New("insert failed")
	}
	c.inputs = append(c.inputs, in)
	return &models.Node{ID: fmt.Sprintf("chn_%d", len(c.inputs)), Name: in.Name, Slug: *in.Slug}, nil
}

func (c *recordingCreator) bySlug(slug string) *hierarchy.CreateNodeInput {
	for i := range c.inputs {
		if *c.inputs[i].Slug == slug {
			return &c.inputs[i]
		}
	}
	return nil
}

const countNodes = `SELECT COUNT\(\*\) FROM collection_hierarchy_node`

func TestSeed_EmptyDatabase(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(countNodes).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	creator := &recordingCreator{}
	require.NoError(t, Seed(context.Background(), mock, creator))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Len(t, creator.inputs, 13)

	roots := 0
	for _, in := range creator.inputs {
		if in.ParentID == nil {
			roots++
		}
	}
	assert.Equal(t, 3, roots)

	negro := creator.bySlug("chocolate-negro")
	require.NotNil(t, negro)
	chocolates := creator.bySlug("chocolates")
	require.NotNil(t, chocolates)
	assert.Equal(t, 2, *chocolates.Position)
	assert.Equal(t, "dark", negro.Metadata["cocoa_level"])
	assert.Equal(t, 0, *negro.Position)

	analgesicos := creator.bySlug("analgesicos")
	require.NotNil(t, analgesicos)
	assert.Equal(t, "Analgésicos", analgesicos.Name)
}

func TestSeed_SkipsWhenPopulated(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(countNodes).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	creator := &recordingCreator{}
	require.NoError(t, Seed(context.Background(), mock, creator))
	assert.Empty(t, creator.inputs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeed_Errors(t *testing.T) {
	t.Run("count fails", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(countNodes).WillReturnError(errors.New("relation does not exist"))

		err = Seed(context.Background(), mock, &recordingCreator{})
		assert.ErrorContains(t, err, "seed check nodes")
	})

	t.Run("create fails", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(countNodes).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

		creator := &recordingCreator{failOn: "veganas"}
		err = Seed(context.Background(), mock, creator)
		assert.ErrorContains(t, err, `seed node "veganas"`)
		assert.Len(t, creator.inputs, 2)
	})
}
