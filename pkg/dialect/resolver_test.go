package dialect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/apperrors"
	"github.com/lineagraph/lineage-engine/pkg/models"
)

// mockRegistry is a function-field mock of the dialect registry.
type mockRegistry struct {
	ListFunc       func(ctx context.Context) ([]*models.Dialect, error)
	GetByIDFunc    func(ctx context.Context, id string) (*models.Dialect, error)
	GetDefaultFunc func(ctx context.Context) (*models.Dialect, error)
}

func (m *mockRegistry) List(ctx context.Context) ([]*models.Dialect, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

func (m *mockRegistry) GetByID(ctx context.Context, id string) (*models.Dialect, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockRegistry) GetDefault(ctx context.Context) (*models.Dialect, error) {
	if m.GetDefaultFunc != nil {
		return m.GetDefaultFunc(ctx)
	}
	return nil, nil
}

func TestResolve_AutoUsesDefault(t *testing.T) {
	registry := &mockRegistry{
		GetDefaultFunc: func(ctx context.Context) (*models.Dialect, error) {
			return &models.Dialect{ID: "postgres", ParserKey: "postgres", Enabled: true, IsDefault: true}, nil
		},
	}
	resolver := NewResolver(registry, zap.NewNop())

	key, err := resolver.Resolve(context.Background(), models.DialectAuto)
	require.NoError(t, err)
	assert.Equal(t, "postgres", key)
}

func TestResolve_AutoWithoutDefault(t *testing.T) {
	resolver := NewResolver(&mockRegistry{}, zap.NewNop())

	_, err := resolver.Resolve(context.Background(), models.DialectAuto)
	assert.ErrorIs(t, err, apperrors.ErrUnknownDialect)
}

func TestResolve_ExplicitDialect(t *testing.T) {
	registry := &mockRegistry{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Dialect, error) {
			require.Equal(t, "tsql", id)
			return &models.Dialect{ID: "tsql", ParserKey: "tsql", Enabled: true}, nil
		},
	}
	resolver := NewResolver(registry, zap.NewNop())

	key, err := resolver.Resolve(context.Background(), "tsql")
	require.NoError(t, err)
	assert.Equal(t, "tsql", key)
}

func TestResolve_UnknownOrDisabled(t *testing.T) {
	tests := []struct {
		name    string
		dialect *models.Dialect
	}{
		{name: "unknown token", dialect: nil},
		{name: "disabled dialect", dialect: &models.Dialect{ID: "mysql", ParserKey: "mysql", Enabled: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := &mockRegistry{
				GetByIDFunc: func(ctx context.Context, id string) (*models.Dialect, error) {
					return tt.dialect, nil
				},
			}
			resolver := NewResolver(registry, zap.NewNop())

			_, err := resolver.Resolve(context.Background(), "mysql")
			assert.ErrorIs(t, err, apperrors.ErrUnknownDialect)
		})
	}
}

func TestResolve_RegistryErrorPropagates(t *testing.T) {
	registryErr := errors.New("connection refused")
	registry := &mockRegistry{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Dialect, error) {
			return nil, registryErr
		},
	}
	resolver := NewResolver(registry, zap.NewNop())

	_, err := resolver.Resolve(context.Background(), "plsql")
	require.Error(t, err)
	assert.ErrorIs(t, err, registryErr)
	assert.NotErrorIs(t, err, apperrors.ErrUnknownDialect)
}
