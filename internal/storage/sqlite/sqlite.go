// Package sqlite implements the ticket store on a single local database file.
// Store executes every call synchronously against the file; CachedStore keeps
// an authoritative in-memory cache and funnels SQL writes through a serialized
// single-writer queue.
package sqlite

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	sqlitedriver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/minetick/ticket-store/internal/errs"
	"github.com/minetick/ticket-store/internal/model"
	"github.com/minetick/ticket-store/internal/storage"
	"github.com/minetick/ticket-store/internal/storage/sqlstore"
)

type Store struct {
	path   string
	logger *zap.Logger
	db     *gorm.DB
}

func New(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger}
}

func (s *Store) Type() storage.Type { return storage.TypeSQLite }

// Initialize opens the database file (creating it if absent) and creates the
// schema idempotently. SQLite serializes writers itself; one connection is
// enough and avoids SQLITE_BUSY churn.
func (s *Store) Initialize(ctx context.Context) error {
	db, err := openFile(s.path)
	if err != nil {
		return err
	}
	s.db = db
	return migrateSchema(db)
}

func openFile(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlitedriver.Open(path+"?_fk=1"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func migrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&sqlstore.TicketRow{}, &sqlstore.ActionRow{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) setColumn(ctx context.Context, ticketID uint64, column string, value any) error {
	return s.db.WithContext(ctx).
		Model(&sqlstore.TicketRow{}).
		Where("id = ?", ticketID).
		Update(column, value).Error
}

func (s *Store) SetAssignment(ctx context.Context, ticketID uint64, assignment string) error {
	return s.setColumn(ctx, ticketID, "assigned_to", assignment)
}

func (s *Store) SetCreatorStatusUpdate(ctx context.Context, ticketID uint64, value bool) error {
	return s.setColumn(ctx, ticketID, "status_update_for_creator", value)
}

func (s *Store) SetPriority(ctx context.Context, ticketID uint64, priority model.Priority) error {
	return s.setColumn(ctx, ticketID, "priority", uint8(priority))
}

func (s *Store) SetStatus(ctx context.Context, ticketID uint64, status model.Status) error {
	return s.setColumn(ctx, ticketID, "status", string(status))
}

func (s *Store) InsertAction(ctx context.Context, ticketID uint64, action model.Action) error {
	row := sqlstore.ActionToRow(ticketID, action)
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) InsertTicket(ctx context.Context, ticket model.Ticket) (uint64, error) {
	var id uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := sqlstore.TicketToRow(ticket)
		row.ID = 0 // let the engine allocate
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		id = row.ID
		actions := sqlstore.ActionsToRows(id, ticket.Actions)
		if len(actions) == 0 {
			return nil
		}
		return tx.Create(&actions).Error
	})
	if err != nil {
		return 0, fmt.Errorf("insert ticket: %w", err)
	}
	return id, nil
}

func (s *Store) InsertTicketForMigration(ctx context.Context, ticket model.Ticket) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
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
}

func (s *Store) GetTicket(ctx context.Context, ticketID uint64) (model.Ticket, error) {
	var row sqlstore.TicketRow
	if err := s.db.WithContext(ctx).First(&row, ticketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Ticket{}, fmt.Errorf("ticket %d: %w", ticketID, errs.ErrTicketNotFound)
		}
		return model.Ticket{}, err
	}
	tickets, err := s.hydrate(ctx, []sqlstore.TicketRow{row})
	if err != nil {
		return model.Ticket{}, err
	}
	return tickets[0], nil
}

func (s *Store) GetTickets(ctx context.Context, ticketIDs []uint64) ([]model.Ticket, error) {
	if len(ticketIDs) == 0 {
		return nil, nil
	}
	var rows []sqlstore.TicketRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ticketIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.hydrate(ctx, rows)
}

// hydrate joins scalar rows with their action rows in one IN-clause query.
func (s *Store) hydrate(ctx context.Context, rows []sqlstore.TicketRow) ([]model.Ticket, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]uint64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	var actionRows []sqlstore.ActionRow
	if err := s.db.WithContext(ctx).Where("ticket_id IN ?", ids).Find(&actionRows).Error; err != nil {
		return nil, err
	}
	grouped := sqlstore.GroupActions(actionRows)

	tickets := make([]model.Ticket, 0, len(rows))
	for _, r := range rows {
		t, err := sqlstore.RowToTicket(r, grouped[r.ID])
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

func (s *Store) listOpen(ctx context.Context, page, pageSize int, query *gorm.DB) (storage.Result, error) {
	var rows []sqlstore.TicketRow
	if err := query.Find(&rows).Error; err != nil {
		return storage.Result{}, err
	}
	tickets, err := s.hydrate(ctx, rows)
	if err != nil {
		return storage.Result{}, err
	}
	storage.SortForListing(tickets)
	return storage.Paginate(tickets, page, pageSize), nil
}

func (s *Store) GetOpenTickets(ctx context.Context, page, pageSize int) (storage.Result, error) {
	return s.listOpen(ctx, page, pageSize,
		s.db.WithContext(ctx).Where("status = ?", string(model.StatusOpen)))
}

func (s *Store) GetOpenTicketsAssignedTo(ctx context.Context, page, pageSize int, assignment string, groupNames []string) (storage.Result, error) {
	values := storage.AssignmentValues(assignment, groupNames)
	return s.listOpen(ctx, page, pageSize,
		s.db.WithContext(ctx).Where("status = ? AND assigned_to IN ?", string(model.StatusOpen), values))
}

func (s *Store) GetOpenTicketsNotAssigned(ctx context.Context, page, pageSize int) (storage.Result, error) {
	return s.listOpen(ctx, page, pageSize,
		s.db.WithContext(ctx).Where("status = ? AND assigned_to = ''", string(model.StatusOpen)))
}

// MassCloseTickets runs the status flip and the action-log appends in one
// transaction, so a crash cannot leave a closed ticket without its MASS_CLOSE
// action.
func (s *Store) MassCloseTickets(ctx context.Context, lowerID, upperID uint64, actor model.Creator, loc model.Location) error {
	ts := nowUnix()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint64
		err := tx.Model(&sqlstore.TicketRow{}).
			Where("status = ? AND id BETWEEN ? AND ?", string(model.StatusOpen), lowerID, upperID).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		err = tx.Model(&sqlstore.TicketRow{}).
			Where("id IN ?", ids).
			Update("status", string(model.StatusClosed)).Error
		if err != nil {
			return err
		}
		rows := make([]sqlstore.ActionRow, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, sqlstore.ActionToRow(id, model.NewMassCloseAction(actor, ts, loc)))
		}
		return tx.Create(&rows).Error
	})
}

func (s *Store) CountOpenTickets(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&sqlstore.TicketRow{}).
		Where("status = ?", string(model.StatusOpen)).
		Count(&n).Error
	return n, err
}

func (s *Store) CountOpenTicketsAssignedTo(ctx context.Context, assignment string, groupNames []string) (int64, error) {
	values := storage.AssignmentValues(assignment, groupNames)
	var n int64
	err := s.db.WithContext(ctx).Model(&sqlstore.TicketRow{}).
		Where("status = ? AND assigned_to IN ?", string(model.StatusOpen), values).
		Count(&n).Error
	return n, err
}

// SearchTickets pushes the column-representable constraints into the WHERE
// clause, hydrates the narrowed candidates, then applies the action-log
// constraints in memory.
func (s *Store) SearchTickets(ctx context.Context, constraint storage.SearchConstraint, page, pageSize int) (storage.Result, error) {
	query := applyColumnConstraints(s.db.WithContext(ctx), constraint)
	var rows []sqlstore.TicketRow
	if err := query.Find(&rows).Error; err != nil {
		return storage.Result{}, err
	}
	candidates, err := s.hydrate(ctx, rows)
	if err != nil {
		return storage.Result{}, err
	}
	tickets := candidates[:0]
	for _, t := range candidates {
		if constraint.MatchesActionLog(t) {
			tickets = append(tickets, t)
		}
	}
	storage.SortByIDDesc(tickets)
	return storage.Paginate(tickets, page, pageSize), nil
}

func applyColumnConstraints(db *gorm.DB, c storage.SearchConstraint) *gorm.DB {
	query := db.Model(&sqlstore.TicketRow{})
	if c.Status != nil {
		query = query.Where("status = ?", string(*c.Status))
	}
	if c.Priority != nil {
		query = query.Where("priority = ?", uint8(*c.Priority))
	}
	if c.MinPriority != nil {
		query = query.Where("priority >= ?", uint8(*c.MinPriority))
	}
	if c.Creator != nil {
		query = query.Where("creator = ?", c.Creator.String())
	}
	if c.Assigned != nil {
		query = query.Where("assigned_to = ?", *c.Assigned)
	}
	return query
}

func (s *Store) TicketIDsWithUpdates(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&sqlstore.TicketRow{}).
		Where("status_update_for_creator = ?", true).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *Store) TicketIDsWithUpdatesFor(ctx context.Context, creator model.Creator) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&sqlstore.TicketRow{}).
		Where("status_update_for_creator = ? AND creator = ?", true, creator.String()).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *Store) EachTicket(ctx context.Context, fn func(model.Ticket) error) error {
	var rows []sqlstore.TicketRow
	result := s.db.WithContext(ctx).FindInBatches(&rows, 500, func(tx *gorm.DB, _ int) error {
		tickets, err := s.hydrate(ctx, rows)
		if err != nil {
			return err
		}
		for _, t := range tickets {
			if err := fn(t); err != nil {
				return err
			}
		}
		return nil
	})
	return result.Error
}
