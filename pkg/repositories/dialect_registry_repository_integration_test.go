//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lineagraph/lineage-engine/pkg/testhelpers"
)

func TestDialectRegistryRepository_List(t *testing.T) {
	registry := testhelpers.GetRegistryDB(t)
	repo := NewDialectRegistryRepository(registry.DB)

	dialects, err := repo.List(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, dialects)

	byID := make(map[string]bool, len(dialects))
	for _, d := range dialects {
		byID[d.ID] = true
	}
	for _, id := range []string{"postgres", "tsql", "plsql", "mysql"} {
		assert.True(t, byID[id], "expected seeded dialect %q", id)
	}
}

func TestDialectRegistryRepository_GetByID(t *testing.T) {
	registry := testhelpers.GetRegistryDB(t)
	repo := NewDialectRegistryRepository(registry.DB)
	ctx := context.Background()

	t.Run("known dialect", func(t *testing.T) {
		d, err := repo.GetByID(ctx, "tsql")
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, "tsql", d.ID)
		assert.NotEmpty(t, d.DisplayName)
		assert.NotEmpty(t, d.ParserKey)
		assert.True(t, d.Enabled)
	})

	t.Run("unknown dialect", func(t *testing.T) {
		d, err := repo.GetByID(ctx, "cobol")
		require.NoError(t, err)
		assert.Nil(t, d)
	})
}

func TestDialectRegistryRepository_GetDefault(t *testing.T) {
	registry := testhelpers.GetRegistryDB(t)
	repo := NewDialectRegistryRepository(registry.DB)

	d, err := repo.GetDefault(context.Background())
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "postgres", d.ID)
	assert.True(t, d.IsDefault)
	assert.True(t, d.Enabled)
}
