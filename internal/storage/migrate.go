package storage

import (
	"context"
	"fmt"

	"github.com/minetick/ticket-store/internal/errs"
	"github.com/minetick/ticket-store/internal/model"
)

// Builders constructs un-initialized stores per backend type. The migration
// orchestrator and the application wiring both go through it.
type Builders struct {
	Memory       func() (Store, error)
	SQLite       func() (Store, error)
	CachedSQLite func() (Store, error)
	Postgres     func() (Store, error)
}

func (b Builders) Build(t Type) (Store, error) {
	var build func() (Store, error)
	switch t {
	case TypeMemory:
		build = b.Memory
	case TypeSQLite:
		build = b.SQLite
	case TypeCachedSQLite:
		build = b.CachedSQLite
	case TypePostgres:
		build = b.Postgres
	}
	if build == nil {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownStorage, t)
	}
	return build()
}

// Migrate drains src into a freshly-initialized backend of the target type,
// preserving ticket ids and action order, then closes the destination.
//
// onBegin fires before any copying (callers lock the service against further
// mutations); onComplete fires after the destination is closed (callers
// unlock). A same-type target is a no-op that still fires both callbacks, so
// lock/unlock symmetry holds for callers. Copying is not transactional: an
// error routes to onError, leaving src untouched and the destination possibly
// partially populated.
func Migrate(ctx context.Context, src Store, target Type, builders Builders, onBegin, onComplete func(), onError func(error)) {
	onBegin()

	if target == src.Type() {
		onComplete()
		return
	}

	dst, err := builders.Build(target)
	if err != nil {
		onError(err)
		return
	}
	if err := dst.Initialize(ctx); err != nil {
		onError(fmt.Errorf("initialize destination: %w", err))
		return
	}

	err = src.EachTicket(ctx, func(t model.Ticket) error {
		return dst.InsertTicketForMigration(ctx, t)
	})
	if err != nil {
		_ = dst.Close(ctx)
		onError(fmt.Errorf("copy tickets: %w", err))
		return
	}

	if err := dst.Close(ctx); err != nil {
		onError(fmt.Errorf("close destination: %w", err))
		return
	}
	onComplete()
}
