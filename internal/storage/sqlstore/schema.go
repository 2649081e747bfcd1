// Package sqlstore holds the relational schema shared by the embedded-sqlite
// and networked-postgres backends, plus the row/model converters. Both
// backends persist the same two tables so tickets migrate between them
// without translation.
package sqlstore

import (
	"fmt"
	"sort"

	"github.com/minetick/ticket-store/internal/model"
)

// TicketRow is the scalar projection of a ticket, one row per ticket.
type TicketRow struct {
	ID                     uint64 `gorm:"primaryKey;autoIncrement"`
	Creator                string `gorm:"type:varchar(64);index;not null"`
	Priority               uint8  `gorm:"not null"`
	Status                 string `gorm:"type:varchar(10);index;not null"`
	AssignedTo             string `gorm:"type:varchar(255);not null;default:''"`
	StatusUpdateForCreator bool   `gorm:"index;not null;default:false"`
}

func (TicketRow) TableName() string { return "tickets" }

// ActionRow is one row per action, keyed to its ticket.
type ActionRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	TicketID  uint64 `gorm:"index;not null"`
	Type      string `gorm:"type:varchar(20);not null"`
	Creator   string `gorm:"type:varchar(64);not null"`
	Message   string `gorm:"type:text;not null;default:''"`
	Location  string `gorm:"type:varchar(255);not null;default:''"`
	Timestamp int64  `gorm:"not null"`
}

func (ActionRow) TableName() string { return "ticket_actions" }

func TicketToRow(t model.Ticket) TicketRow {
	return TicketRow{
		ID:                     t.ID,
		Creator:                t.Creator.String(),
		Priority:               uint8(t.Priority),
		Status:                 string(t.Status),
		AssignedTo:             t.AssignedTo,
		StatusUpdateForCreator: t.CreatorStatusUpdate,
	}
}

func ActionToRow(ticketID uint64, a model.Action) ActionRow {
	return ActionRow{
		TicketID:  ticketID,
		Type:      string(a.Type),
		Creator:   a.User.String(),
		Message:   a.Message,
		Location:  a.Location.String(),
		Timestamp: a.Timestamp,
	}
}

func ActionsToRows(ticketID uint64, actions []model.Action) []ActionRow {
	rows := make([]ActionRow, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, ActionToRow(ticketID, a))
	}
	return rows
}

func RowToAction(r ActionRow) (model.Action, error) {
	user, err := model.ParseCreator(r.Creator)
	if err != nil {
		return model.Action{}, fmt.Errorf("action %d: %w", r.ID, err)
	}
	loc, err := model.ParseLocation(r.Location)
	if err != nil {
		return model.Action{}, fmt.Errorf("action %d: %w", r.ID, err)
	}
	return model.Action{
		Type:      model.ActionType(r.Type),
		Message:   r.Message,
		User:      user,
		Timestamp: r.Timestamp,
		Location:  loc,
	}, nil
}

// RowToTicket hydrates a scalar row with its action rows. Actions are ordered
// by timestamp, ties broken by insertion (row id) order.
func RowToTicket(r TicketRow, actionRows []ActionRow) (model.Ticket, error) {
	creator, err := model.ParseCreator(r.Creator)
	if err != nil {
		return model.Ticket{}, fmt.Errorf("ticket %d: %w", r.ID, err)
	}
	status, err := model.ParseStatus(r.Status)
	if err != nil {
		return model.Ticket{}, fmt.Errorf("ticket %d: %w", r.ID, err)
	}
	priority, err := model.ParsePriority(r.Priority)
	if err != nil {
		return model.Ticket{}, fmt.Errorf("ticket %d: %w", r.ID, err)
	}

	sort.SliceStable(actionRows, func(i, j int) bool {
		if actionRows[i].Timestamp != actionRows[j].Timestamp {
			return actionRows[i].Timestamp < actionRows[j].Timestamp
		}
		return actionRows[i].ID < actionRows[j].ID
	})
	actions := make([]model.Action, 0, len(actionRows))
	for _, ar := range actionRows {
		a, err := RowToAction(ar)
		if err != nil {
			return model.Ticket{}, err
		}
		actions = append(actions, a)
	}

	return model.Ticket{
		ID:                  r.ID,
		Creator:             creator,
		Priority:            priority,
		Status:              status,
		AssignedTo:          r.AssignedTo,
		CreatorStatusUpdate: r.StatusUpdateForCreator,
		Actions:             actions,
	}, nil
}

// GroupActions buckets action rows by ticket id.
func GroupActions(rows []ActionRow) map[uint64][]ActionRow {
	grouped := make(map[uint64][]ActionRow)
	for _, r := range rows {
		grouped[r.TicketID] = append(grouped[r.TicketID], r)
	}
	return grouped
}
