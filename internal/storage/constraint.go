package storage

import (
	"strings"

	"github.com/minetick/ticket-store/internal/model"
)

// SearchConstraint is a record of optional, independently-specifiable filters.
// Present fields are ANDed together. The scalar-column fields (Creator,
// Assigned, Priority, MinPriority, Status) have a direct column representation
// and are pushed down to the SQL backends; the remaining fields inspect the
// action log and run as predicates over hydrated tickets.
type SearchConstraint struct {
	Creator      *model.Creator
	Assigned     *string // "" matches unassigned tickets
	Priority     *model.Priority
	MinPriority  *model.Priority
	Status       *model.Status
	ClosedBy     *model.Creator
	LastClosedBy *model.Creator
	World        *string
	CreatedAfter *int64   // epoch seconds, inclusive
	Keywords     []string // all must appear, case-insensitively, in OPEN/COMMENT messages
}

// Matches evaluates every constraint field against a fully-hydrated ticket.
func (c SearchConstraint) Matches(t model.Ticket) bool {
	if c.Status != nil && t.Status != *c.Status {
		return false
	}
	if c.Priority != nil && t.Priority != *c.Priority {
		return false
	}
	if c.MinPriority != nil && t.Priority < *c.MinPriority {
		return false
	}
	if c.Creator != nil && !t.Creator.Equal(*c.Creator) {
		return false
	}
	if c.Assigned != nil && t.AssignedTo != *c.Assigned {
		return false
	}
	return c.MatchesActionLog(t)
}

// MatchesActionLog evaluates only the log-inspecting constraints. SQL backends
// call this on candidates the pushed-down column filter already narrowed.
func (c SearchConstraint) MatchesActionLog(t model.Ticket) bool {
	if c.CreatedAfter != nil && t.CreatedAt() < *c.CreatedAfter {
		return false
	}
	if c.World != nil && t.CreationLocation().World != *c.World {
		return false
	}
	if c.ClosedBy != nil && !closedBy(t, *c.ClosedBy) {
		return false
	}
	if c.LastClosedBy != nil && !lastClosedBy(t, *c.LastClosedBy) {
		return false
	}
	if len(c.Keywords) > 0 && !matchesKeywords(t, c.Keywords) {
		return false
	}
	return true
}

func closedBy(t model.Ticket, actor model.Creator) bool {
	for _, a := range t.Actions {
		if a.ClosesTicket() && a.User.Equal(actor) {
			return true
		}
	}
	return false
}

func lastClosedBy(t model.Ticket, actor model.Creator) bool {
	for i := len(t.Actions) - 1; i >= 0; i-- {
		if t.Actions[i].ClosesTicket() {
			return t.Actions[i].User.Equal(actor)
		}
	}
	return false
}

func matchesKeywords(t model.Ticket, keywords []string) bool {
	var messages []string
	for _, a := range t.Actions {
		if a.Type == model.ActionOpen || a.Type == model.ActionComment {
			messages = append(messages, strings.ToLower(a.Message))
		}
	}
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		found := false
		for _, m := range messages {
			if strings.Contains(m, kw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
