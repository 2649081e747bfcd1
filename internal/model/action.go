package model

import "strconv"

type ActionType string

const (
	ActionOpen        ActionType = "OPEN"
	ActionComment     ActionType = "COMMENT"
	ActionAssign      ActionType = "ASSIGN"
	ActionClose       ActionType = "CLOSE"
	ActionMassClose   ActionType = "MASS_CLOSE"
	ActionReopen      ActionType = "REOPEN"
	ActionSetPriority ActionType = "SET_PRIORITY"
)

// Action is one immutable event in a ticket's history. Message carries the
// type-specific payload: the message text for OPEN/COMMENT, the assignment
// string for ASSIGN, the priority level digit for SET_PRIORITY, and nothing
// for CLOSE/MASS_CLOSE/REOPEN.
type Action struct {
	Type      ActionType `json:"type"`
	Message   string     `json:"message,omitempty"`
	User      Creator    `json:"user"`
	Timestamp int64      `json:"timestamp"`
	Location  Location   `json:"location"`
}

func NewOpenAction(user Creator, message string, ts int64, loc Location) Action {
	return Action{Type: ActionOpen, Message: message, User: user, Timestamp: ts, Location: loc}
}

func NewCommentAction(user Creator, message string, ts int64, loc Location) Action {
	return Action{Type: ActionComment, Message: message, User: user, Timestamp: ts, Location: loc}
}

func NewAssignAction(user Creator, assignment string, ts int64, loc Location) Action {
	return Action{Type: ActionAssign, Message: assignment, User: user, Timestamp: ts, Location: loc}
}

func NewCloseAction(user Creator, ts int64, loc Location) Action {
	return Action{Type: ActionClose, User: user, Timestamp: ts, Location: loc}
}

func NewMassCloseAction(user Creator, ts int64, loc Location) Action {
	return Action{Type: ActionMassClose, User: user, Timestamp: ts, Location: loc}
}

func NewReopenAction(user Creator, ts int64, loc Location) Action {
	return Action{Type: ActionReopen, User: user, Timestamp: ts, Location: loc}
}

func NewSetPriorityAction(user Creator, p Priority, ts int64, loc Location) Action {
	return Action{Type: ActionSetPriority, Message: strconv.Itoa(int(p)), User: user, Timestamp: ts, Location: loc}
}

// ClosesTicket reports whether the action transitions a ticket to CLOSED.
func (a Action) ClosesTicket() bool {
	return a.Type == ActionClose || a.Type == ActionMassClose
}
