package catalog

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/zatekoja/shopdiscovery/internal/domain/entities"
	"github.com/zatekoja/shopdiscovery/internal/domain/repositories"
	apperrors "github.com/zatekoja/shopdiscovery/pkg/errors"
)

// LastKnownGood wraps a repository and keeps a copy of what it returned.
// Unfiltered reads replace the copy; filtered reads merge into it. The copy
// backs degraded searches while the wrapped store is unavailable.
type LastKnownGood struct {
	next     repositories.CatalogRepository
	snapshot *Memory
	logger   zerolog.Logger
	now      func() time.Time

	refreshedAt atomic.Int64
}

// NewLastKnownGood decorates next.
func NewLastKnownGood(next repositories.CatalogRepository, logger zerolog.Logger) *LastKnownGood {
	return &LastKnownGood{
		next:     next,
		snapshot: NewMemory(),
		logger:   logger.With().Str("component", "catalog_snapshot").Logger(),
		now:      time.Now,
	}
}

// ListEntities reads from the wrapped repository and records the response.
func (l *LastKnownGood) ListEntities(ctx context.Context, filter repositories.CatalogFilter) ([]*entities.CatalogEntity, error) {
	list, err := l.next.ListEntities(ctx, filter)
	if err != nil {
		return nil, err
	}

	if filter == (repositories.CatalogFilter{}) {
		l.snapshot.Replace(list)
	} else {
		l.snapshot.Put(list...)
	}
	l.refreshedAt.Store(l.now().UnixNano())
	return list, nil
}

// Snapshot lists the recorded entities matching filter. It fails with a not
// found error when nothing has been recorded yet.
func (l *LastKnownGood) Snapshot(ctx context.Context, filter repositories.CatalogFilter) ([]*entities.CatalogEntity, error) {
	if l.snapshot.Len() == 0 {
		return nil, apperrors.NewNotFoundError("no catalog snapshot available")
	}
	l.logger.Debug().
		Int("entities", l.snapshot.Len()).
		Time("refreshed_at", l.RefreshedAt()).
		Msg("serving catalog snapshot")
	return l.snapshot.ListEntities(ctx, filter)
}

// Warm performs one unfiltered read so a snapshot exists before traffic arrives.
func (l *LastKnownGood) Warm(ctx context.Context) error {
	_, err := l.ListEntities(ctx, repositories.CatalogFilter{})
	return err
}

// RefreshedAt is the time of the last successful read, zero if none.
func (l *LastKnownGood) RefreshedAt() time.Time {
	ns := l.refreshedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
