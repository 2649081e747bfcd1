package memory_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minetick/ticket-store/internal/errs"
	"github.com/minetick/ticket-store/internal/model"
	"github.com/minetick/ticket-store/internal/storage"
	"github.com/minetick/ticket-store/internal/storage/memory"
)

var steve = model.User(uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5"))

func newStore(t *testing.T) (*memory.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickets.json")
	s := memory.New(path, 3600, zap.NewNop())
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s, path
}

func insert(t *testing.T, s *memory.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ticket := model.NewTicket(steve, "help", int64(100+i), model.Location{Server: "hub", World: "world"})
		if _, err := s.InsertTicket(context.Background(), ticket); err != nil {
			t.Fatal(err)
		}
	}
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	defer s.Close(ctx)

	id, err := s.InsertTicket(ctx, model.NewTicket(steve, "stolen diamonds", 100,
		model.Location{Server: "hub", World: "world", X: 1, Y: 64, Z: -9}))
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("first id = %d, want 1", id)
	}

	got, err := s.GetTicket(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusOpen || got.Priority != model.PriorityNormal {
		t.Fatalf("new ticket state = %s/%s", got.Status, got.Priority)
	}
	if len(got.Actions) != 1 || got.Actions[0].Type != model.ActionOpen {
		t.Fatalf("expected single OPEN action, got %v", got.Actions)
	}
	if got.CreatedAt() != 100 {
		t.Fatalf("CreatedAt = %d, want 100", got.CreatedAt())
	}

	if _, err := s.GetTicket(ctx, 999); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Fatalf("missing ticket error = %v, want ErrTicketNotFound", err)
	}
}

func TestConcurrentInsertsAllocateDistinctIDs(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	defer s.Close(ctx)

	const n = 100
	ids := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.InsertTicket(ctx, model.NewTicket(steve, "race", 1, model.Location{}))
			if err != nil {
				t.Error(err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("id %d allocated twice", id)
		}
		seen[id] = true
	}
	for id := uint64(1); id <= n; id++ {
		if !seen[id] {
			t.Fatalf("id %d never allocated", id)
		}
	}
}

func TestSettersAndActionPairing(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	defer s.Close(ctx)
	insert(t, s, 1)

	if err := s.SetAssignment(ctx, 1, "::moderators"); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertAction(ctx, 1, model.NewAssignAction(model.Console(), "::moderators", 200, model.Location{})); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPriority(ctx, 1, model.PriorityHighest); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetTicket(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.AssignedTo != "::moderators" || got.Priority != model.PriorityHighest {
		t.Fatalf("assigned=%q priority=%s", got.AssignedTo, got.Priority)
	}
	if len(got.Actions) != 2 || got.Actions[1].Type != model.ActionAssign {
		t.Fatalf("unexpected action log %v", got.Actions)
	}

	if err := s.SetStatus(ctx, 42, model.StatusClosed); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Fatalf("setter on missing ticket = %v, want ErrTicketNotFound", err)
	}
}

func TestListingsFilterAndSort(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	defer s.Close(ctx)
	insert(t, s, 6)

	if err := s.SetPriority(ctx, 2, model.PriorityHighest); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAssignment(ctx, 3, "alex"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAssignment(ctx, 4, "::moderators"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetStatus(ctx, 5, model.StatusClosed); err != nil {
		t.Fatal(err)
	}

	open, err := s.GetOpenTickets(ctx, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if open.TotalResults != 5 {
		t.Fatalf("open count = %d, want 5", open.TotalResults)
	}
	// Priority sorts above id.
	if open.Tickets[0].ID != 2 {
		t.Fatalf("first open id = %d, want the high-priority 2", open.Tickets[0].ID)
	}
	if open.Tickets[1].ID != 6 {
		t.Fatalf("second open id = %d, want newest normal-priority 6", open.Tickets[1].ID)
	}

	assigned, err := s.GetOpenTicketsAssignedTo(ctx, 1, 0, "alex", []string{"moderators"})
	if err != nil {
		t.Fatal(err)
	}
	if assigned.TotalResults != 2 {
		t.Fatalf("assigned count = %d, want 2 (direct + group)", assigned.TotalResults)
	}

	unassigned, err := s.GetOpenTicketsNotAssigned(ctx, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if unassigned.TotalResults != 3 {
		t.Fatalf("unassigned count = %d, want 3", unassigned.TotalResults)
	}

	n, err := s.CountOpenTickets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("CountOpenTickets = %d, want 5", n)
	}
	n, err = s.CountOpenTicketsAssignedTo(ctx, "", []string{"moderators"})
	if err != nil {
		t.Fatal(err)
	}
	// "" also matches the unassigned tickets 1, 2 and 6.
	if n != 4 {
		t.Fatalf("CountOpenTicketsAssignedTo = %d, want 4", n)
	}
}

func TestMassCloseRange(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	defer s.Close(ctx)
	insert(t, s, 10)

	if err := s.SetStatus(ctx, 5, model.StatusClosed); err != nil {
		t.Fatal(err)
	}

	if err := s.MassCloseTickets(ctx, 3, 7, model.Console(), model.Location{Server: "hub"}); err != nil {
		t.Fatal(err)
	}

	var sharedTS int64
	for id := uint64(1); id <= 10; id++ {
		got, err := s.GetTicket(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		inRange := id >= 3 && id <= 7
		if inRange && got.Status != model.StatusClosed {
			t.Fatalf("ticket %d should be closed", id)
		}
		if !inRange && got.Status != model.StatusOpen {
			t.Fatalf("ticket %d outside range should stay open", id)
		}
		last := got.Actions[len(got.Actions)-1]
		if inRange && id != 5 {
			if last.Type != model.ActionMassClose {
				t.Fatalf("ticket %d missing MASS_CLOSE action", id)
			}
			if sharedTS == 0 {
				sharedTS = last.Timestamp
			} else if last.Timestamp != sharedTS {
				t.Fatalf("ticket %d timestamp %d differs from shared %d", id, last.Timestamp, sharedTS)
			}
		}
		// 5 was already closed: untouched, no extra action.
		if id == 5 && last.Type == model.ActionMassClose {
			t.Fatal("already-closed ticket must not receive a MASS_CLOSE action")
		}
	}
}

func TestMassCloseClampsRangeToExistingIDs(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	defer s.Close(ctx)
	insert(t, s, 3)

	if err := s.MassCloseTickets(ctx, 0, 1_000_000, model.Console(), model.Location{}); err != nil {
		t.Fatal(err)
	}
	for id := uint64(1); id <= 3; id++ {
		got, err := s.GetTicket(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != model.StatusClosed {
			t.Fatalf("ticket %d should be closed", id)
		}
	}
}

func TestCreatorUpdateFlags(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	defer s.Close(ctx)
	insert(t, s, 3)

	other := model.NewTicket(model.Console(), "console ticket", 100, model.Location{Server: "hub"})
	if _, err := s.InsertTicket(ctx, other); err != nil {
		t.Fatal(err)
	}

	if err := s.SetCreatorStatusUpdate(ctx, 2, true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCreatorStatusUpdate(ctx, 4, true); err != nil {
		t.Fatal(err)
	}

	all, err := s.TicketIDsWithUpdates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("updates = %v, want ids 2 and 4", all)
	}

	mine, err := s.TicketIDsWithUpdatesFor(ctx, steve)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0] != 2 {
		t.Fatalf("updates for steve = %v, want [2]", mine)
	}

	if err := s.SetCreatorStatusUpdate(ctx, 2, false); err != nil {
		t.Fatal(err)
	}
	mine, err = s.TicketIDsWithUpdatesFor(ctx, steve)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 0 {
		t.Fatalf("cleared flag still reported: %v", mine)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tickets.json")

	s := memory.New(path, 3600, zap.NewNop())
	if err := s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	insert(t, s, 4)
	if err := s.SetStatus(ctx, 3, model.StatusClosed); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertAction(ctx, 3, model.NewCloseAction(steve, 200, model.Location{})); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}

	reopened := memory.New(path, 3600, zap.NewNop())
	if err := reopened.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	defer reopened.Close(ctx)

	got, err := reopened.GetTicket(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusClosed || len(got.Actions) != 2 {
		t.Fatalf("restored ticket = %s with %d actions", got.Status, len(got.Actions))
	}
	if !got.Creator.Equal(steve) {
		t.Fatal("creator identity lost across snapshot")
	}

	// The allocator resumes past the snapshot's highest id.
	next, err := reopened.InsertTicket(ctx, model.NewTicket(steve, "after restart", 300, model.Location{}))
	if err != nil {
		t.Fatal(err)
	}
	if next != 5 {
		t.Fatalf("next id after restore = %d, want 5", next)
	}
}

func TestCorruptSnapshotIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := memory.New(path, 3600, zap.NewNop())
	err := s.Initialize(context.Background())
	if !errors.Is(err, errs.ErrCorruptSnapshot) {
		t.Fatalf("Initialize = %v, want ErrCorruptSnapshot", err)
	}
}

func TestCloseIsFinal(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); !errors.Is(err, errs.ErrStoreClosed) {
		t.Fatalf("second Close = %v, want ErrStoreClosed", err)
	}
}

func TestSearchSortsByIDDescending(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	defer s.Close(ctx)
	insert(t, s, 5)
	if err := s.SetPriority(ctx, 2, model.PriorityHighest); err != nil {
		t.Fatal(err)
	}

	res, err := s.SearchTickets(ctx, storage.SearchConstraint{}, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalResults != 5 {
		t.Fatalf("TotalResults = %d, want 5", res.TotalResults)
	}
	// Search ignores priority for ordering.
	for i, want := range []uint64{5, 4, 3, 2, 1} {
		if res.Tickets[i].ID != want {
			t.Fatalf("position %d: id %d, want %d", i, res.Tickets[i].ID, want)
		}
	}
}
