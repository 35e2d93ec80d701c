// Package dialect resolves logical dialect tokens to concrete parser
// dialect keys using the registry.
package dialect

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/apperrors"
	"github.com/lineagraph/lineage-engine/pkg/models"
	"github.com/lineagraph/lineage-engine/pkg/repositories"
)

// Resolver maps a dialect token (including the "auto" sentinel) to the
// concrete parser dialect key. Callers at the system boundary may accept
// "auto"; everything below the resolver receives a concrete key.
type Resolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

type resolver struct {
	registry repositories.DialectRegistryRepository
	logger   *zap.Logger
}

// NewResolver creates a registry-backed Resolver.
func NewResolver(registry repositories.DialectRegistryRepository, logger *zap.Logger) Resolver {
	return &resolver{
		registry: registry,
		logger:   logger.Named("dialect"),
	}
}

func (r *resolver) Resolve(ctx context.Context, token string) (string, error) {
	if token == models.DialectAuto {
		def, err := r.registry.GetDefault(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to look up default dialect: %w", err)
		}
		if def == nil {
			return "", fmt.Errorf("no default dialect configured: %w", apperrors.ErrUnknownDialect)
		}
		r.logger.Debug("resolved auto dialect",
			zap.String("dialect", def.ID),
			zap.String("parser_key", def.ParserKey))
		return def.ParserKey, nil
	}

	d, err := r.registry.GetByID(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to look up dialect %q: %w", token, err)
	}
	if d == nil || !d.Enabled {
		return "", fmt.Errorf("dialect %q: %w", token, apperrors.ErrUnknownDialect)
	}

	return d.ParserKey, nil
}
