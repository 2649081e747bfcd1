package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minetick/ticket-store/internal/errs"
	"github.com/minetick/ticket-store/internal/events"
	"github.com/minetick/ticket-store/internal/model"
	"github.com/minetick/ticket-store/internal/service"
	"github.com/minetick/ticket-store/internal/storage/memory"
)

var (
	player = model.User(uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5"))
	staff  = model.User(uuid.MustParse("ec561538-f3fd-461d-aff5-086b22154bce"))
	here   = model.Location{Server: "hub", World: "world", X: 0, Y: 64, Z: 0}
)

func newService(t *testing.T) (*service.TicketService, *memory.Store) {
	t.Helper()
	store := memory.New(filepath.Join(t.TempDir(), "tickets.json"), 3600, zap.NewNop())
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close(context.Background()) })

	producer := events.NewProducer(nil, "", zap.NewNop())
	return service.NewTicketService(store, producer, 8, zap.NewNop()), store
}

func TestCreateAssignsIDAndOpenAction(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	ticket, err := svc.Create(ctx, player, "stuck in a wall", here)
	if err != nil {
		t.Fatal(err)
	}
	if ticket.ID != 1 {
		t.Fatalf("id = %d, want 1", ticket.ID)
	}
	if ticket.Status != model.StatusOpen || ticket.Priority != model.PriorityNormal {
		t.Fatalf("state = %s/%s", ticket.Status, ticket.Priority)
	}
	if len(ticket.Actions) != 1 || ticket.Actions[0].Type != model.ActionOpen {
		t.Fatalf("log = %v", ticket.Actions)
	}
}

func TestCommentByOthersFlagsCreator(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	ticket, err := svc.Create(ctx, player, "stolen horse", here)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Comment(ctx, ticket.ID, staff, "looking into it", here); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.CreatorStatusUpdate {
		t.Error("staff comment must flag the creator")
	}
	if len(got.Actions) != 2 || got.Actions[1].Type != model.ActionComment {
		t.Fatalf("log = %v", got.Actions)
	}

	if err := svc.MarkRead(ctx, ticket.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Comment(ctx, ticket.ID, player, "any news?", here); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetTicket(ctx, ticket.ID)
	if got.CreatorStatusUpdate {
		t.Error("the creator's own comment must not flag them")
	}
}

func TestCloseAndReopenPairStatusWithActions(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	ticket, err := svc.Create(ctx, player, "grief report", here)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Close(ctx, ticket.ID, staff, here); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetTicket(ctx, ticket.ID)
	if got.Status != model.StatusClosed {
		t.Fatal("not closed")
	}
	if got.Actions[len(got.Actions)-1].Type != model.ActionClose {
		t.Fatalf("log = %v", got.Actions)
	}
	if !got.CreatorStatusUpdate {
		t.Error("staff close must flag the creator")
	}

	if err := svc.Reopen(ctx, ticket.ID, staff, here); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetTicket(ctx, ticket.ID)
	if got.Status != model.StatusOpen {
		t.Fatal("not reopened")
	}
	if got.Actions[len(got.Actions)-1].Type != model.ActionReopen {
		t.Fatalf("log = %v", got.Actions)
	}
}

func TestAssignAndPriorityRecordActions(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	ticket, err := svc.Create(ctx, player, "need a mod", here)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Assign(ctx, ticket.ID, staff, "::moderators", here); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetPriority(ctx, ticket.ID, staff, model.PriorityHighest, here); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetTicket(ctx, ticket.ID)
	if got.AssignedTo != "::moderators" || got.Priority != model.PriorityHighest {
		t.Fatalf("state = %q/%s", got.AssignedTo, got.Priority)
	}
	wantTypes := []model.ActionType{model.ActionOpen, model.ActionAssign, model.ActionSetPriority}
	for i, at := range wantTypes {
		if got.Actions[i].Type != at {
			t.Fatalf("action %d = %s, want %s", i, got.Actions[i].Type, at)
		}
	}
	if got.Actions[1].Message != "::moderators" {
		t.Errorf("ASSIGN payload = %q", got.Actions[1].Message)
	}
	if got.Actions[2].Message != "5" {
		t.Errorf("SET_PRIORITY payload = %q", got.Actions[2].Message)
	}
	if got.CreatorStatusUpdate {
		t.Error("assignment changes are staff-side and must not flag the creator")
	}
}

func TestMassCloseValidatesRange(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	if err := svc.MassClose(ctx, 10, 5, model.Console(), here); err == nil {
		t.Fatal("inverted range must fail")
	}

	for i := 0; i < 5; i++ {
		if _, err := svc.Create(ctx, player, "spam", here); err != nil {
			t.Fatal(err)
		}
	}
	if err := svc.MassClose(ctx, 1, 3, model.Console(), here); err != nil {
		t.Fatal(err)
	}
	n, err := svc.CountOpen(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("open after mass close = %d, want 2", n)
	}
}

func TestOperationsOnMissingTicket(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	if err := svc.Comment(ctx, 99, staff, "hello?", here); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Fatalf("Comment = %v, want ErrTicketNotFound", err)
	}
	if err := svc.Close(ctx, 99, staff, here); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Fatalf("Close = %v, want ErrTicketNotFound", err)
	}
	if err := svc.MarkRead(ctx, 99); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Fatalf("MarkRead = %v, want ErrTicketNotFound", err)
	}
}

func TestResolveCreator(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	if got := svc.ResolveCreator(ctx, "Steve"); got.Kind != model.CreatorUnresolved {
		t.Fatalf("without a resolver, got %s", got)
	}

	svc.SetCreatorResolver(func(ctx context.Context, name string) model.Creator {
		if name == "Steve" {
			return player
		}
		return model.Unresolved()
	})
	if got := svc.ResolveCreator(ctx, "Steve"); !got.Equal(player) {
		t.Fatalf("resolver ignored: %s", got)
	}
	if got := svc.ResolveCreator(ctx, "Herobrine"); got.Kind != model.CreatorUnresolved {
		t.Fatalf("unknown name should stay unresolved, got %s", got)
	}
}

func TestUnreadUpdatesFlow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	a, err := svc.Create(ctx, player, "one", here)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, staff, "two", here); err != nil {
		t.Fatal(err)
	}

	if err := svc.Comment(ctx, a.ID, staff, "reply", here); err != nil {
		t.Fatal(err)
	}

	ids, err := svc.UnreadUpdatesFor(ctx, player)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != a.ID {
		t.Fatalf("unread for player = %v, want [%d]", ids, a.ID)
	}

	if err := svc.MarkRead(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	ids, err = svc.UnreadUpdates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("unread after read = %v, want none", ids)
	}
}
