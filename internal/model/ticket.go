package model

import "fmt"

type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOpen, StatusClosed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("parse status: unknown value %q", s)
	}
}

// Priority is an ordinal level 1 (lowest) through 5 (highest).
type Priority uint8

const (
	PriorityLowest  Priority = 1
	PriorityLow     Priority = 2
	PriorityNormal  Priority = 3
	PriorityHigh    Priority = 4
	PriorityHighest Priority = 5
)

func ParsePriority(level uint8) (Priority, error) {
	if level < 1 || level > 5 {
		return 0, fmt.Errorf("parse priority: level %d out of range", level)
	}
	return Priority(level), nil
}

func (p Priority) String() string {
	switch p {
	case PriorityLowest:
		return "LOWEST"
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityHighest:
		return "HIGHEST"
	default:
		return fmt.Sprintf("PRIORITY(%d)", uint8(p))
	}
}

// GroupPrefix marks an assignment string as a permission-group reference
// rather than a player name.
const GroupPrefix = "::"

// Ticket is the root entity. The action log is the source of truth for its
// history; the scalar fields are a cached projection of the latest state kept
// for fast filtering. Values are immutable by convention: mutate through the
// With* copies and Append, never in place.
type Ticket struct {
	ID                  uint64   `json:"id"`
	Creator             Creator  `json:"creator"`
	Priority            Priority `json:"priority"`
	Status              Status   `json:"status"`
	AssignedTo          string   `json:"assigned_to,omitempty"` // "" = unassigned, "::name" = group
	CreatorStatusUpdate bool     `json:"creator_status_update"`
	Actions             []Action `json:"actions"`
}

// NewTicket builds an open ticket around its OPEN action. The ID is zero
// until a backend assigns one.
func NewTicket(creator Creator, message string, ts int64, loc Location) Ticket {
	return Ticket{
		Creator:  creator,
		Priority: PriorityNormal,
		Status:   StatusOpen,
		Actions:  []Action{NewOpenAction(creator, message, ts, loc)},
	}
}

func (t Ticket) Open() bool {
	return t.Status == StatusOpen
}

func (t Ticket) Assigned() bool {
	return t.AssignedTo != ""
}

// CreationLocation is the location of the OPEN action.
func (t Ticket) CreationLocation() Location {
	if len(t.Actions) == 0 {
		return Location{}
	}
	return t.Actions[0].Location
}

// CreatedAt is the timestamp of the OPEN action.
func (t Ticket) CreatedAt() int64 {
	if len(t.Actions) == 0 {
		return 0
	}
	return t.Actions[0].Timestamp
}

func (t Ticket) WithID(id uint64) Ticket {
	t.ID = id
	return t
}

func (t Ticket) WithPriority(p Priority) Ticket {
	t.Priority = p
	return t
}

func (t Ticket) WithStatus(s Status) Ticket {
	t.Status = s
	return t
}

func (t Ticket) WithAssignedTo(assignment string) Ticket {
	t.AssignedTo = assignment
	return t
}

func (t Ticket) WithCreatorStatusUpdate(v bool) Ticket {
	t.CreatorStatusUpdate = v
	return t
}

// Append returns a copy of the ticket with the action added. The action slice
// is reallocated so the copy never shares history with the receiver.
func (t Ticket) Append(a Action) Ticket {
	actions := make([]Action, len(t.Actions), len(t.Actions)+1)
	copy(actions, t.Actions)
	t.Actions = append(actions, a)
	return t
}
