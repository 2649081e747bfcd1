package sqlite

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/minetick/ticket-store/internal/errs"
	"github.com/minetick/ticket-store/internal/model"
	"github.com/minetick/ticket-store/internal/storage"
	"github.com/minetick/ticket-store/internal/storage/sqlstore"
)

const writeQueueSize = 1000

// CachedStore layers an in-memory read cache over the database file. The
// cache is updated synchronously under a reader/writer lock and is always
// authoritative for reads; the matching SQL statements are enqueued and
// applied by a single worker goroutine in submission order, so the file is
// eventually consistent with the cache. Close drains the queue before
// releasing the file.
type CachedStore struct {
	path   string
	logger *zap.Logger
	db     *gorm.DB

	mu      sync.RWMutex
	tickets map[uint64]model.Ticket
	lastID  atomic.Uint64

	queueMu sync.RWMutex // guards queue against enqueue-after-close
	queue   chan func(*gorm.DB) error
	drained chan struct{}
	closed  bool
}

func NewCached(path string, logger *zap.Logger) *CachedStore {
	return &CachedStore{
		path:    path,
		logger:  logger,
		tickets: make(map[uint64]model.Ticket),
		queue:   make(chan func(*gorm.DB) error, writeQueueSize),
		drained: make(chan struct{}),
	}
}

func (s *CachedStore) Type() storage.Type { return storage.TypeCachedSQLite }

// Initialize creates the schema, loads every ticket into the cache, seeds the
// id allocator one past the highest id found and starts the writer goroutine.
func (s *CachedStore) Initialize(ctx context.Context) error {
	db, err := openFile(s.path)
	if err != nil {
		return err
	}
	s.db = db
	if err := migrateSchema(db); err != nil {
		return err
	}

	var rows []sqlstore.TicketRow
	if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
		return fmt.Errorf("load tickets: %w", err)
	}
	var actionRows []sqlstore.ActionRow
	if err := db.WithContext(ctx).Find(&actionRows).Error; err != nil {
		return fmt.Errorf("load actions: %w", err)
	}
	grouped := sqlstore.GroupActions(actionRows)

	var maxID uint64
	for _, r := range rows {
		t, err := sqlstore.RowToTicket(r, grouped[r.ID])
		if err != nil {
			return err
		}
		s.tickets[t.ID] = t
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	s.lastID.Store(maxID)

	go s.drainWrites()
	return nil
}

// drainWrites applies queued SQL statements one at a time, in submission
// order. A failed statement is logged and skipped: the cache already holds
// the authoritative state and the next snapshot of it is the next write.
func (s *CachedStore) drainWrites() {
	for write := range s.queue {
		if err := write(s.db); err != nil {
			s.logger.Warn("cached sqlite: queued write failed", zap.Error(err))
		}
	}
	close(s.drained)
}

func (s *CachedStore) enqueue(write func(*gorm.DB) error) error {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.closed {
		return errs.ErrStoreClosed
	}
	s.queue <- write
	return nil
}

// Close stops accepting writes, blocks until the worker has applied
// everything already queued, then releases the file.
func (s *CachedStore) Close(ctx context.Context) error {
	s.queueMu.Lock()
	if s.closed {
		s.queueMu.Unlock()
		return errs.ErrStoreClosed
	}
	s.closed = true
	close(s.queue)
	s.queueMu.Unlock()

	select {
	case <-s.drained:
	case <-ctx.Done():
		return ctx.Err()
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *CachedStore) update(ticketID uint64, fn func(model.Ticket) model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return fmt.Errorf("ticket %d: %w", ticketID, errs.ErrTicketNotFound)
	}
	s.tickets[ticketID] = fn(t)
	return nil
}

func (s *CachedStore) setColumn(ticketID uint64, column string, value any, apply func(model.Ticket) model.Ticket) error {
	if err := s.update(ticketID, apply); err != nil {
		return err
	}
	return s.enqueue(func(db *gorm.DB) error {
		return db.Model(&sqlstore.TicketRow{}).
			Where("id = ?", ticketID).
			Update(column, value).Error
	})
}

func (s *CachedStore) SetAssignment(ctx context.Context, ticketID uint64, assignment string) error {
	return s.setColumn(ticketID, "assigned_to", assignment,
		func(t model.Ticket) model.Ticket { return t.WithAssignedTo(assignment) })
}

func (s *CachedStore) SetCreatorStatusUpdate(ctx context.Context, ticketID uint64, value bool) error {
	return s.setColumn(ticketID, "status_update_for_creator", value,
		func(t model.Ticket) model.Ticket { return t.WithCreatorStatusUpdate(value) })
}

func (s *CachedStore) SetPriority(ctx context.Context, ticketID uint64, priority model.Priority) error {
	return s.setColumn(ticketID, "priority", uint8(priority),
		func(t model.Ticket) model.Ticket { return t.WithPriority(priority) })
}

func (s *CachedStore) SetStatus(ctx context.Context, ticketID uint64, status model.Status) error {
	return s.setColumn(ticketID, "status", string(status),
		func(t model.Ticket) model.Ticket { return t.WithStatus(status) })
}

func (s *CachedStore) InsertAction(ctx context.Context, ticketID uint64, action model.Action) error {
	if err := s.update(ticketID, func(t model.Ticket) model.Ticket { return t.Append(action) }); err != nil {
		return err
	}
	return s.enqueue(func(db *gorm.DB) error {
		row := sqlstore.ActionToRow(ticketID, action)
		return db.Create(&row).Error
	})
}

func (s *CachedStore) InsertTicket(ctx context.Context, ticket model.Ticket) (uint64, error) {
	id := s.lastID.Add(1)
	withID := ticket.WithID(id)

	s.mu.Lock()
	s.tickets[id] = withID
	s.mu.Unlock()

	err := s.enqueue(func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			row := sqlstore.TicketToRow(withID)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			actions := sqlstore.ActionsToRows(id, withID.Actions)
			if len(actions) == 0 {
				return nil
			}
			return tx.Create(&actions).Error
		})
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *CachedStore) InsertTicketForMigration(ctx context.Context, ticket model.Ticket) error {
	s.mu.Lock()
	s.tickets[ticket.ID] = ticket
	s.mu.Unlock()
	for {
		last := s.lastID.Load()
		if ticket.ID <= last || s.lastID.CompareAndSwap(last, ticket.ID) {
			break
		}
	}
	return s.enqueue(func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			row := sqlstore.TicketToRow(ticket)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			actions := sqlstore.ActionsToRows(ticket.ID, ticket.Actions)
			if len(actions) == 0 {
				return nil
			}
			return tx.Create(&actions).Error
		})
	})
}

func (s *CachedStore) GetTicket(ctx context.Context, ticketID uint64) (model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return model.Ticket{}, fmt.Errorf("ticket %d: %w", ticketID, errs.ErrTicketNotFound)
	}
	return t, nil
}

func (s *CachedStore) GetTickets(ctx context.Context, ticketIDs []uint64) ([]model.Ticket, error) {
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

func (s *CachedStore) snapshotWhere(match func(model.Ticket) bool) []model.Ticket {
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

func (s *CachedStore) listOpen(page, pageSize int, match func(model.Ticket) bool) (storage.Result, error) {
	tickets := s.snapshotWhere(match)
	storage.SortForListing(tickets)
	return storage.Paginate(tickets, page, pageSize), nil
}

func (s *CachedStore) GetOpenTickets(ctx context.Context, page, pageSize int) (storage.Result, error) {
	return s.listOpen(page, pageSize, model.Ticket.Open)
}

func (s *CachedStore) GetOpenTicketsAssignedTo(ctx context.Context, page, pageSize int, assignment string, groupNames []string) (storage.Result, error) {
	values := storage.AssignmentValues(assignment, groupNames)
	return s.listOpen(page, pageSize, func(t model.Ticket) bool {
		return t.Open() && slices.Contains(values, t.AssignedTo)
	})
}

func (s *CachedStore) GetOpenTicketsNotAssigned(ctx context.Context, page, pageSize int) (storage.Result, error) {
	return s.listOpen(page, pageSize, func(t model.Ticket) bool {
		return t.Open() && !t.Assigned()
	})
}

// MassCloseTickets flips the cache under one write lock, then enqueues a
// single transactional batch (one UPDATE ... IN plus the MASS_CLOSE inserts)
// sharing one timestamp.
func (s *CachedStore) MassCloseTickets(ctx context.Context, lowerID, upperID uint64, actor model.Creator, loc model.Location) error {
	ts := nowUnix()

	s.mu.Lock()
	if last := s.lastID.Load(); upperID > last {
		upperID = last
	}
	if lowerID == 0 {
		lowerID = 1
	}
	var closedIDs []uint64
	for id := lowerID; id <= upperID; id++ {
		t, ok := s.tickets[id]
		if !ok || !t.Open() {
			continue
		}
		s.tickets[id] = t.WithStatus(model.StatusClosed).Append(model.NewMassCloseAction(actor, ts, loc))
		closedIDs = append(closedIDs, id)
	}
	s.mu.Unlock()

	if len(closedIDs) == 0 {
		return nil
	}
	return s.enqueue(func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			err := tx.Model(&sqlstore.TicketRow{}).
				Where("id IN ?", closedIDs).
				Update("status", string(model.StatusClosed)).Error
			if err != nil {
				return err
			}
			rows := make([]sqlstore.ActionRow, 0, len(closedIDs))
			for _, id := range closedIDs {
				rows = append(rows, sqlstore.ActionToRow(id, model.NewMassCloseAction(actor, ts, loc)))
			}
			return tx.Create(&rows).Error
		})
	})
}

func (s *CachedStore) CountOpenTickets(ctx context.Context) (int64, error) {
	return int64(len(s.snapshotWhere(model.Ticket.Open))), nil
}

func (s *CachedStore) CountOpenTicketsAssignedTo(ctx context.Context, assignment string, groupNames []string) (int64, error) {
	values := storage.AssignmentValues(assignment, groupNames)
	n := len(s.snapshotWhere(func(t model.Ticket) bool {
		return t.Open() && slices.Contains(values, t.AssignedTo)
	}))
	return int64(n), nil
}

func (s *CachedStore) SearchTickets(ctx context.Context, constraint storage.SearchConstraint, page, pageSize int) (storage.Result, error) {
	tickets := s.snapshotWhere(constraint.Matches)
	storage.SortByIDDesc(tickets)
	return storage.Paginate(tickets, page, pageSize), nil
}

func (s *CachedStore) TicketIDsWithUpdates(ctx context.Context) ([]uint64, error) {
	return ticketIDs(s.snapshotWhere(func(t model.Ticket) bool { return t.CreatorStatusUpdate })), nil
}

func (s *CachedStore) TicketIDsWithUpdatesFor(ctx context.Context, creator model.Creator) ([]uint64, error) {
	return ticketIDs(s.snapshotWhere(func(t model.Ticket) bool {
		return t.CreatorStatusUpdate && t.Creator.Equal(creator)
	})), nil
}

func (s *CachedStore) EachTicket(ctx context.Context, fn func(model.Ticket) error) error {
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

func ticketIDs(tickets []model.Ticket) []uint64 {
	out := make([]uint64, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.ID)
	}
	return out
}

func nowUnix() int64 { return time.Now().Unix() }
