package db

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// SchemaGuard runs schema setup at most once per process. A failed attempt
// leaves the guard unset so the next caller retries.
type SchemaGuard struct {
	mu    sync.Mutex
	ready bool
	setup func(ctx context.Context) error
}

// NewSchemaGuard wraps an arbitrary setup function.
func NewSchemaGuard(setup func(ctx context.Context) error) *SchemaGuard {
	return &SchemaGuard{setup: setup}
}

// NewMigrationGuard returns a guard whose setup applies pending migrations.
func NewMigrationGuard(m *Migrator, logger zerolog.Logger) *SchemaGuard {
	return NewSchemaGuard(func(ctx context.Context) error {
		n, err := m.Up(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("applied", n).Msg("schema ready")
		return nil
	})
}

// EnsureReady runs setup if it has not yet succeeded.
func (g *SchemaGuard) EnsureReady(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ready {
		return nil
	}
	if err := g.setup(ctx); err != nil {
		return fmt.Errorf("schema setup: %w", err)
	}
	g.ready = true
	return nil
}

// Ready reports whether setup has completed.
func (g *SchemaGuard) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Middleware blocks requests until the schema is ready. Requests matched by
// skip bypass the guard.
func (g *SchemaGuard) Middleware(logger zerolog.Logger, skip func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}
			if err := g.EnsureReady(c.Request().Context()); err != nil {
				logger.Error().Err(err).Msg("schema not ready")
				return &apperr.Error{
					Status:  http.StatusServiceUnavailable,
					Code:    "database-unavailable",
					Message: "database schema is not ready",
					Err:     err,
				}
			}
			return next(c)
		}
	}
}
