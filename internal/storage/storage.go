package storage

import (
	"context"
	"fmt"

	"github.com/minetick/ticket-store/internal/errs"
	"github.com/minetick/ticket-store/internal/model"
)

type Type string

const (
	TypeMemory       Type = "memory"
	TypeSQLite       Type = "sqlite"
	TypeCachedSQLite Type = "cached_sqlite"
	TypePostgres     Type = "postgres"
)

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeMemory, TypeSQLite, TypeCachedSQLite, TypePostgres:
		return Type(s), nil
	default:
		return "", fmt.Errorf("%w: %q", errs.ErrUnknownStorage, s)
	}
}

// Store is the contract every backend satisfies. All backends expose the same
// observable behavior for id allocation, pagination and filtering; they differ
// only in their concurrency and durability strategy.
//
// Scalar setters assume the ticket exists; callers validate existence first
// (the service layer does). Setters and InsertAction are paired by the caller
// in the same logical operation so the cached scalar fields never drift from
// the action log.
type Store interface {
	Type() Type

	SetAssignment(ctx context.Context, ticketID uint64, assignment string) error
	SetCreatorStatusUpdate(ctx context.Context, ticketID uint64, value bool) error
	SetPriority(ctx context.Context, ticketID uint64, priority model.Priority) error
	SetStatus(ctx context.Context, ticketID uint64, status model.Status) error

	InsertAction(ctx context.Context, ticketID uint64, action model.Action) error
	// InsertTicket allocates a new id, persists the ticket and its initial
	// actions and returns the id. Safe under concurrent calls.
	InsertTicket(ctx context.Context, ticket model.Ticket) (uint64, error)
	// InsertTicketForMigration persists the ticket keeping its existing id and
	// advances the allocator past it. Only the migration orchestrator calls it.
	InsertTicketForMigration(ctx context.Context, ticket model.Ticket) error

	GetTicket(ctx context.Context, ticketID uint64) (model.Ticket, error)
	GetTickets(ctx context.Context, ticketIDs []uint64) ([]model.Ticket, error)

	GetOpenTickets(ctx context.Context, page, pageSize int) (Result, error)
	GetOpenTicketsAssignedTo(ctx context.Context, page, pageSize int, assignment string, groupNames []string) (Result, error)
	GetOpenTicketsNotAssigned(ctx context.Context, page, pageSize int) (Result, error)

	// MassCloseTickets closes every OPEN ticket with id in [lowerID, upperID],
	// appending one MASS_CLOSE action per closed ticket with a single shared
	// timestamp. Already-closed tickets in the range are left untouched.
	MassCloseTickets(ctx context.Context, lowerID, upperID uint64, actor model.Creator, loc model.Location) error

	CountOpenTickets(ctx context.Context) (int64, error)
	CountOpenTicketsAssignedTo(ctx context.Context, assignment string, groupNames []string) (int64, error)

	SearchTickets(ctx context.Context, constraint SearchConstraint, page, pageSize int) (Result, error)

	TicketIDsWithUpdates(ctx context.Context) ([]uint64, error)
	TicketIDsWithUpdatesFor(ctx context.Context, creator model.Creator) ([]uint64, error)

	// EachTicket visits every ticket, fully hydrated, in unspecified order.
	EachTicket(ctx context.Context, fn func(model.Ticket) error) error

	// Initialize performs idempotent setup: create files/schema if absent and
	// load existing data into any cache. Malformed persisted data is fatal.
	Initialize(ctx context.Context) error
	// Close flushes all pending durable writes and releases resources. It does
	// not return while a backup or queued write is still in flight.
	Close(ctx context.Context) error
}

// AssignmentValues expands a player assignment plus raw group names into the
// full set of assignment column values to match ("name", "::group", ...).
func AssignmentValues(assignment string, groupNames []string) []string {
	values := make([]string, 0, len(groupNames)+1)
	for _, g := range groupNames {
		values = append(values, model.GroupPrefix+g)
	}
	return append(values, assignment)
}
