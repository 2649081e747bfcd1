// Package memory implements the ticket store as a process-local map guarded
// by a single reader/writer lock, with a periodic durable JSON snapshot.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/minetick/ticket-store/internal/errs"
	"github.com/minetick/ticket-store/internal/model"
	"github.com/minetick/ticket-store/internal/storage"
)

// Store keeps every ticket in memory. Reads take the read side of one
// coarse-grained lock and run concurrently; any mutation takes the write side.
// The dataset is assumed to fit comfortably in memory.
type Store struct {
	path   string
	every  string // cron spec for the backup schedule, e.g. "@every 300s"
	logger *zap.Logger

	mu      sync.RWMutex
	tickets map[uint64]model.Ticket
	lastID  atomic.Uint64

	// backupMu serializes snapshot writes without holding mu for the duration
	// of file I/O. The scheduled job skips a tick if a backup is in flight;
	// Close waits it out before the final flush.
	backupMu sync.Mutex
	cron     *cron.Cron
	closed   atomic.Bool
}

func New(snapshotPath string, backupSeconds int, logger *zap.Logger) *Store {
	return &Store{
		path:    snapshotPath,
		every:   fmt.Sprintf("@every %ds", backupSeconds),
		logger:  logger,
		tickets: make(map[uint64]model.Ticket),
	}
}

func (s *Store) Type() storage.Type { return storage.TypeMemory }

// Initialize loads the snapshot file if one exists and starts the backup
// schedule. A snapshot that exists but cannot be parsed is fatal: refusing to
// start beats silently dropping tickets.
func (s *Store) Initialize(ctx context.Context) error {
	tickets, maxID, err := loadSnapshot(s.path)
	if err != nil {
		return err
	}
	if tickets != nil {
		s.tickets = tickets
	}
	s.lastID.Store(maxID)

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.every, s.runBackup); err != nil {
		return fmt.Errorf("schedule backup: %w", err)
	}
	s.cron.Start()
	return nil
}

// Close stops the schedule, waits for any in-flight backup, then performs one
// final synchronous snapshot. A failed final write propagates to the caller.
func (s *Store) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return errs.ErrStoreClosed
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.backupMu.Lock()
	defer s.backupMu.Unlock()
	return s.writeSnapshot()
}

func (s *Store) runBackup() {
	if !s.backupMu.TryLock() {
		return // previous backup still running
	}
	defer s.backupMu.Unlock()
	if err := s.writeSnapshot(); err != nil {
		// Retried on the next scheduled tick.
		s.logger.Warn("memory: snapshot failed", zap.Error(err))
	}
}

func (s *Store) update(ticketID uint64, fn func(model.Ticket) model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return fmt.Errorf("ticket %d: %w", ticketID, errs.ErrTicketNotFound)
	}
	s.tickets[ticketID] = fn(t)
	return nil
}

func (s *Store) SetAssignment(ctx context.Context, ticketID uint64, assignment string) error {
	return s.update(ticketID, func(t model.Ticket) model.Ticket { return t.WithAssignedTo(assignment) })
}

func (s *Store) SetCreatorStatusUpdate(ctx context.Context, ticketID uint64, value bool) error {
	return s.update(ticketID, func(t model.Ticket) model.Ticket { return t.WithCreatorStatusUpdate(value) })
}

func (s *Store) SetPriority(ctx context.Context, ticketID uint64, priority model.Priority) error {
	return s.update(ticketID, func(t model.Ticket) model.Ticket { return t.WithPriority(priority) })
}

func (s *Store) SetStatus(ctx context.Context, ticketID uint64, status model.Status) error {
	return s.update(ticketID, func(t model.Ticket) model.Ticket { return t.WithStatus(status) })
}

func (s *Store) InsertAction(ctx context.Context, ticketID uint64, action model.Action) error {
	return s.update(ticketID, func(t model.Ticket) model.Ticket { return t.Append(action) })
}

func (s *Store) InsertTicket(ctx context.Context, ticket model.Ticket) (uint64, error) {
	id := s.lastID.Add(1)
	s.mu.Lock()
	s.tickets[id] = ticket.WithID(id)
	s.mu.Unlock()
	return id, nil
}

func (s *Store) InsertTicketForMigration(ctx context.Context, ticket model.Ticket) error {
	s.mu.Lock()
	s.tickets[ticket.ID] = ticket
	s.mu.Unlock()
	for {
		last := s.lastID.Load()
		if ticket.ID <= last || s.lastID.CompareAndSwap(last, ticket.ID) {
			return nil
		}
	}
}

func (s *Store) GetTicket(ctx context.Context, ticketID uint64) (model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return model.Ticket{}, fmt.Errorf("ticket %d: %w", ticketID, errs.ErrTicketNotFound)
	}
	return t, nil
}

func (s *Store) GetTickets(ctx context.Context, ticketIDs []uint64) ([]model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tickets := make([]model.Ticket, 0, len(ticketIDs))
	for _, id := range ticketIDs {
		if t, ok := s.tickets[id]; ok {
			tickets = append(tickets, t)
		}
	}
	return tickets, nil
}

// snapshotWhere copies all tickets matching the predicate under the read lock.
func (s *Store) snapshotWhere(match func(model.Ticket) bool) []model.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Ticket
	for _, t := range s.tickets {
		if match(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) listOpen(page, pageSize int, match func(model.Ticket) bool) (storage.Result, error) {
	tickets := s.snapshotWhere(match)
	storage.SortForListing(tickets)
	return storage.Paginate(tickets, page, pageSize), nil
}

func (s *Store) GetOpenTickets(ctx context.Context, page, pageSize int) (storage.Result, error) {
	return s.listOpen(page, pageSize, model.Ticket.Open)
}

func (s *Store) GetOpenTicketsAssignedTo(ctx context.Context, page, pageSize int, assignment string, groupNames []string) (storage.Result, error) {
	values := storage.AssignmentValues(assignment, groupNames)
	return s.listOpen(page, pageSize, func(t model.Ticket) bool {
		return t.Open() && slices.Contains(values, t.AssignedTo)
	})
}

func (s *Store) GetOpenTicketsNotAssigned(ctx context.Context, page, pageSize int) (storage.Result, error) {
	return s.listOpen(page, pageSize, func(t model.Ticket) bool {
		return t.Open() && !t.Assigned()
	})
}

func (s *Store) MassCloseTickets(ctx context.Context, lowerID, upperID uint64, actor model.Creator, loc model.Location) error {
	ts := nowUnix()
	s.mu.Lock()
	defer s.mu.Unlock()
	if last := s.lastID.Load(); upperID > last {
		upperID = last
	}
	if lowerID == 0 {
		lowerID = 1
	}
	for id := lowerID; id <= upperID; id++ {
		t, ok := s.tickets[id]
		if !ok || !t.Open() {
			continue
		}
		s.tickets[id] = t.WithStatus(model.StatusClosed).Append(model.NewMassCloseAction(actor, ts, loc))
	}
	return nil
}

func (s *Store) CountOpenTickets(ctx context.Context) (int64, error) {
	return int64(len(s.snapshotWhere(model.Ticket.Open))), nil
}

func (s *Store) CountOpenTicketsAssignedTo(ctx context.Context, assignment string, groupNames []string) (int64, error) {
	values := storage.AssignmentValues(assignment, groupNames)
	n := len(s.snapshotWhere(func(t model.Ticket) bool {
		return t.Open() && slices.Contains(values, t.AssignedTo)
	}))
	return int64(n), nil
}

func (s *Store) SearchTickets(ctx context.Context, constraint storage.SearchConstraint, page, pageSize int) (storage.Result, error) {
	tickets := s.snapshotWhere(constraint.Matches)
	storage.SortByIDDesc(tickets)
	return storage.Paginate(tickets, page, pageSize), nil
}

func (s *Store) TicketIDsWithUpdates(ctx context.Context) ([]uint64, error) {
	return ids(s.snapshotWhere(func(t model.Ticket) bool { return t.CreatorStatusUpdate })), nil
}

func (s *Store) TicketIDsWithUpdatesFor(ctx context.Context, creator model.Creator) ([]uint64, error) {
	return ids(s.snapshotWhere(func(t model.Ticket) bool {
		return t.CreatorStatusUpdate && t.Creator.Equal(creator)
	})), nil
}

func (s *Store) EachTicket(ctx context.Context, fn func(model.Ticket) error) error {
	for _, t := range s.snapshotWhere(func(model.Ticket) bool { return true }) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

func ids(tickets []model.Ticket) []uint64 {
	out := make([]uint64, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.ID)
	}
	return out
}
