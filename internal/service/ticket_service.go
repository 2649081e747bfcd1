// Package service implements the command-level ticket operations. Every
// scalar mutation is paired, in the same logical operation, with the action
// record that explains it, so the action log stays the source of truth and
// the scalar fields remain a projection of it.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/minetick/ticket-store/internal/events"
	"github.com/minetick/ticket-store/internal/model"
	"github.com/minetick/ticket-store/internal/storage"
)

// CreatorResolver maps a player name to its canonical identity. Returning the
// unresolved sentinel makes the name match no stored creator, so a typo in
// search input yields zero results instead of an error.
type CreatorResolver func(ctx context.Context, name string) model.Creator

type TicketService struct {
	store    storage.Store
	events   *events.Producer
	logger   *zap.Logger
	pageSize int
	resolve  CreatorResolver
	now      func() int64
}

func NewTicketService(store storage.Store, producer *events.Producer, pageSize int, logger *zap.Logger) *TicketService {
	return &TicketService{
		store:    store,
		events:   producer,
		logger:   logger,
		pageSize: pageSize,
		now:      func() int64 { return time.Now().Unix() },
	}
}

// SetCreatorResolver installs the name lookup used by search input parsing.
// Without one every name resolves to the unresolved sentinel.
func (s *TicketService) SetCreatorResolver(r CreatorResolver) {
	s.resolve = r
}

// ResolveCreator maps a player name to a creator for use in search
// constraints.
func (s *TicketService) ResolveCreator(ctx context.Context, name string) model.Creator {
	if s.resolve == nil {
		return model.Unresolved()
	}
	return s.resolve(ctx, name)
}

// Create opens a new ticket for creator with the given first message.
func (s *TicketService) Create(ctx context.Context, creator model.Creator, message string, loc model.Location) (model.Ticket, error) {
	ticket := model.NewTicket(creator, message, s.now(), loc)
	id, err := s.store.InsertTicket(ctx, ticket)
	if err != nil {
		return model.Ticket{}, err
	}
	ticket = ticket.WithID(id)
	s.logger.Info("ticket created", zap.Uint64("id", id), zap.String("creator", creator.String()))
	s.events.PublishTicket(ctx, events.TicketCreated, ticket)
	return ticket, nil
}

func (s *TicketService) Get(ctx context.Context, id uint64) (model.Ticket, error) {
	return s.store.GetTicket(ctx, id)
}

func (s *TicketService) GetMany(ctx context.Context, ids []uint64) ([]model.Ticket, error) {
	return s.store.GetTickets(ctx, ids)
}

// Comment appends a comment and flags the creator for notification when
// someone else wrote it.
func (s *TicketService) Comment(ctx context.Context, id uint64, actor model.Creator, message string, loc model.Location) error {
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.InsertAction(ctx, id, model.NewCommentAction(actor, message, s.now(), loc)); err != nil {
		return err
	}
	if err := s.flagCreator(ctx, t, actor); err != nil {
		return err
	}
	s.events.PublishTicket(ctx, events.TicketCommented, t)
	return nil
}

// Assign sets the assignment ("" unassigns, "::name" targets a permission
// group) and records the ASSIGN action.
func (s *TicketService) Assign(ctx context.Context, id uint64, actor model.Creator, assignment string, loc model.Location) error {
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SetAssignment(ctx, id, assignment); err != nil {
		return err
	}
	if err := s.store.InsertAction(ctx, id, model.NewAssignAction(actor, assignment, s.now(), loc)); err != nil {
		return err
	}
	s.events.PublishTicket(ctx, events.TicketAssigned, t.WithAssignedTo(assignment))
	return nil
}

func (s *TicketService) Close(ctx context.Context, id uint64, actor model.Creator, loc model.Location) error {
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SetStatus(ctx, id, model.StatusClosed); err != nil {
		return err
	}
	if err := s.store.InsertAction(ctx, id, model.NewCloseAction(actor, s.now(), loc)); err != nil {
		return err
	}
	if err := s.flagCreator(ctx, t, actor); err != nil {
		return err
	}
	s.events.PublishTicket(ctx, events.TicketClosed, t.WithStatus(model.StatusClosed))
	return nil
}

func (s *TicketService) Reopen(ctx context.Context, id uint64, actor model.Creator, loc model.Location) error {
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SetStatus(ctx, id, model.StatusOpen); err != nil {
		return err
	}
	if err := s.store.InsertAction(ctx, id, model.NewReopenAction(actor, s.now(), loc)); err != nil {
		return err
	}
	if err := s.flagCreator(ctx, t, actor); err != nil {
		return err
	}
	s.events.PublishTicket(ctx, events.TicketReopened, t.WithStatus(model.StatusOpen))
	return nil
}

func (s *TicketService) SetPriority(ctx context.Context, id uint64, actor model.Creator, priority model.Priority, loc model.Location) error {
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SetPriority(ctx, id, priority); err != nil {
		return err
	}
	if err := s.store.InsertAction(ctx, id, model.NewSetPriorityAction(actor, priority, s.now(), loc)); err != nil {
		return err
	}
	s.events.PublishTicket(ctx, events.TicketPriorityChanged, t.WithPriority(priority))
	return nil
}

// MassClose closes every open ticket with id in [lowerID, upperID].
func (s *TicketService) MassClose(ctx context.Context, lowerID, upperID uint64, actor model.Creator, loc model.Location) error {
	if lowerID > upperID {
		return fmt.Errorf("mass close: lower id %d above upper id %d", lowerID, upperID)
	}
	if err := s.store.MassCloseTickets(ctx, lowerID, upperID, actor, loc); err != nil {
		return err
	}
	s.logger.Info("tickets mass-closed",
		zap.Uint64("lower", lowerID), zap.Uint64("upper", upperID), zap.String("actor", actor.String()))
	s.events.Publish(ctx, events.TicketsMassClosed, map[string]any{
		"lower_id": lowerID,
		"upper_id": upperID,
		"actor":    actor.String(),
	})
	return nil
}

// MarkRead clears the creator-notification flag, typically when the creator
// views the ticket.
func (s *TicketService) MarkRead(ctx context.Context, id uint64) error {
	if _, err := s.store.GetTicket(ctx, id); err != nil {
		return err
	}
	return s.store.SetCreatorStatusUpdate(ctx, id, false)
}

func (s *TicketService) OpenTickets(ctx context.Context, page int) (storage.Result, error) {
	return s.store.GetOpenTickets(ctx, page, s.pageSize)
}

func (s *TicketService) OpenTicketsAssignedTo(ctx context.Context, page int, assignment string, groupNames []string) (storage.Result, error) {
	return s.store.GetOpenTicketsAssignedTo(ctx, page, s.pageSize, assignment, groupNames)
}

func (s *TicketService) OpenTicketsNotAssigned(ctx context.Context, page int) (storage.Result, error) {
	return s.store.GetOpenTicketsNotAssigned(ctx, page, s.pageSize)
}

func (s *TicketService) Search(ctx context.Context, constraint storage.SearchConstraint, page int) (storage.Result, error) {
	return s.store.SearchTickets(ctx, constraint, page, s.pageSize)
}

func (s *TicketService) CountOpen(ctx context.Context) (int64, error) {
	return s.store.CountOpenTickets(ctx)
}

func (s *TicketService) CountOpenAssignedTo(ctx context.Context, assignment string, groupNames []string) (int64, error) {
	return s.store.CountOpenTicketsAssignedTo(ctx, assignment, groupNames)
}

func (s *TicketService) UnreadUpdates(ctx context.Context) ([]uint64, error) {
	return s.store.TicketIDsWithUpdates(ctx)
}

func (s *TicketService) UnreadUpdatesFor(ctx context.Context, creator model.Creator) ([]uint64, error) {
	return s.store.TicketIDsWithUpdatesFor(ctx, creator)
}

// flagCreator marks the ticket as having an unread change when the actor is
// not the ticket's creator.
func (s *TicketService) flagCreator(ctx context.Context, t model.Ticket, actor model.Creator) error {
	if actor.Equal(t.Creator) {
		return nil
	}
	return s.store.SetCreatorStatusUpdate(ctx, t.ID, true)
}
