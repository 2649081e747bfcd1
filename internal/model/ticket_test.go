package model

import "testing"

func TestNewTicketDefaults(t *testing.T) {
	ticket := NewTicket(Console(), "hello", 42, Location{Server: "hub", World: "world", X: 1, Y: 2, Z: 3})

	if ticket.Status != StatusOpen || ticket.Priority != PriorityNormal {
		t.Fatalf("defaults = %s/%s", ticket.Status, ticket.Priority)
	}
	if ticket.Assigned() {
		t.Error("new tickets start unassigned")
	}
	if ticket.CreatedAt() != 42 {
		t.Errorf("CreatedAt = %d, want 42", ticket.CreatedAt())
	}
	if ticket.CreationLocation().World != "world" {
		t.Errorf("CreationLocation = %+v", ticket.CreationLocation())
	}
	if len(ticket.Actions) != 1 || ticket.Actions[0].Type != ActionOpen || ticket.Actions[0].Message != "hello" {
		t.Fatalf("initial log = %v", ticket.Actions)
	}
}

func TestParsePriorityBounds(t *testing.T) {
	for _, level := range []uint8{1, 2, 3, 4, 5} {
		if _, err := ParsePriority(level); err != nil {
			t.Errorf("ParsePriority(%d): %v", level, err)
		}
	}
	for _, level := range []uint8{0, 6, 255} {
		if _, err := ParsePriority(level); err == nil {
			t.Errorf("ParsePriority(%d) should fail", level)
		}
	}
}

func TestAppendDoesNotShareHistory(t *testing.T) {
	base := NewTicket(Console(), "first", 1, Location{})
	a := base.Append(NewCommentAction(Console(), "branch a", 2, Location{}))
	b := base.Append(NewCommentAction(Console(), "branch b", 3, Location{}))

	if len(base.Actions) != 1 {
		t.Fatalf("base mutated: %d actions", len(base.Actions))
	}
	if a.Actions[1].Message == b.Actions[1].Message {
		t.Fatal("branches share an action slice")
	}
}

func TestClosesTicket(t *testing.T) {
	if !NewCloseAction(Console(), 1, Location{}).ClosesTicket() {
		t.Error("CLOSE closes")
	}
	if !NewMassCloseAction(Console(), 1, Location{}).ClosesTicket() {
		t.Error("MASS_CLOSE closes")
	}
	if NewReopenAction(Console(), 1, Location{}).ClosesTicket() {
		t.Error("REOPEN does not close")
	}
}
