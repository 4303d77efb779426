package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/models"
)

func TestOpenWithoutURIIsNoop(t *testing.T) {
	ctx := context.Background()
	m, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, m)

	assert.NoError(t, m.UpsertNote(ctx, models.Note{ID: 1}))
	assert.NoError(t, m.UpsertConnection(ctx, models.Connection{ID: 1}))
	assert.NoError(t, m.DeleteConnection(ctx, 1))
	assert.NoError(t, m.DeleteNote(ctx, 1))
	assert.NoError(t, m.Close(ctx))
}
